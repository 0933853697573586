package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/yandl/internal/api"
	"github.com/tanq16/yandl/internal/output"
	"github.com/tanq16/yandl/internal/store"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the recorded post metadata over a read-only JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(false)
			if cmd.Flags().Changed("addr") {
				appConfig.Serve.Addr = addr
			}
			s, err := store.Open(storeConfig())
			if err != nil {
				return err
			}
			defer s.Close()

			srv := &http.Server{
				Addr:              appConfig.Serve.Addr,
				Handler:           api.NewRouter(s),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()
			output.PrintInfo("Serving post metadata on " + appConfig.Serve.Addr)
			log.Info().Str("op", "cmd/serve").Str("addr", appConfig.Serve.Addr).Str("driver", appConfig.Store.Driver).Msg("API started")

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-cmd.Context().Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			log.Info().Str("op", "cmd/serve").Msg("API stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to serve.addr)")
	return cmd
}
