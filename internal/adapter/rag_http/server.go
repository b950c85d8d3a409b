package rag_http

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RouterConfig holds the optional parts of the HTTP surface.
type RouterConfig struct {
	// StaticDir is served for every unmatched GET. Empty or missing disables it.
	StaticDir string

	RateLimiter *RateLimiter
	Ready       func(ctx context.Context) error
	Gatherer    prometheus.Gatherer
}

// NewRouter builds the echo instance serving the API, probes, metrics and
// static assets.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewRequestValidator()

	e.Pre(Preflight())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/healthz" || p == "/readyz" || p == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			rctx := c.Request().Context()
			if v.Error == nil {
				logger.InfoContext(rctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				logger.ErrorContext(rctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(CORS())

	var mws []echo.MiddlewareFunc
	if cfg.RateLimiter != nil {
		mws = append(mws, cfg.RateLimiter.Middleware())
	}
	h.Register(e, mws...)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/readyz", func(c echo.Context) error {
		if cfg.Ready != nil {
			if err := cfg.Ready(c.Request().Context()); err != nil {
				logger.WarnContext(c.Request().Context(), "readiness_check_failed", slog.String("error", err.Error()))
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "retrieval backend unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	})
	if cfg.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	if cfg.StaticDir != "" {
		if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
			e.Use(middleware.StaticWithConfig(middleware.StaticConfig{Root: cfg.StaticDir, Index: "index.html"}))
		} else {
			logger.Warn("static_dir_unavailable", slog.String("dir", cfg.StaticDir))
		}
	}
	return e
}

// WithH2C lets HTTP/2 clients stream over cleartext connections.
func WithH2C(handler http.Handler) http.Handler {
	return h2c.NewHandler(handler, &http2.Server{})
}
