package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/yandl/internal/store"
)

// PostStore is the read side of the metadata store.
type PostStore interface {
	Get(ctx context.Context, id int64) (*store.Record, error)
	List(ctx context.Context, limit, offset int) ([]*store.Record, error)
	Count(ctx context.Context) (int64, error)
}

func NewRouter(posts PostStore) *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, posts)
	return e
}

func RegisterRoutes(e *echo.Echo, posts PostStore) {
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().Str("op", "api/router").Str("method", v.Method).Str("uri", v.URI).
				Int("status", v.Status).Dur("latency", v.Latency).Msg("Request")
			return nil
		},
	}))

	ctrl := &PostController{Store: posts}
	e.GET("/healthz", func(c *echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/api/posts", ctrl.List)
	e.GET("/api/posts/:id", ctrl.Get)
}
