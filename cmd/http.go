package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/yandl/internal/utils"
)

func newHTTPCmd() *cobra.Command {
	var outputPath string
	var checksum string

	cmd := &cobra.Command{
		Use:   "http [URL] [--output OUTPUT_PATH]",
		Short: "Download a file via HTTP/HTTPS with parallel range requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(true)
			opts, err := transferOptions()
			if err != nil {
				return err
			}
			job := newJob("http", args[0], opts)
			job.OutputPath = outputPath
			job.Spec.Checksum = checksum
			return runJobs(cmd.Context(), []utils.Job{job}, nil)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (inferred from the server or URL if not provided)")
	cmd.Flags().StringVar(&checksum, "checksum", "", "Expected checksum (md5 hex, or sha1:/sha256: prefixed)")
	return cmd
}
