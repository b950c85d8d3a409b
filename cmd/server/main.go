package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	rag_http "programme-qa/internal/adapter/rag_http"
	"programme-qa/internal/di"
	"programme-qa/internal/infra/config"
	"programme-qa/internal/infra/logger"
	"programme-qa/internal/infra/otel"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Config
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize Telemetry and Logger
	shutdownOTel, err := otel.InitProvider(ctx, otel.Config{
		ServiceName:    logger.ServiceName,
		ServiceVersion: cfg.OTel.ServiceVersion,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
		SampleRatio:    cfg.OTel.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	log := logger.NewWithOTel(cfg.LogLevel, cfg.OTel.Enabled)

	// 3. Wire Components
	app, err := di.NewApplicationComponents(ctx, cfg, prometheus.DefaultRegisterer, log)
	if err != nil {
		return fmt.Errorf("wire components: %w", err)
	}
	defer app.Close()

	// 4. Initialize Router
	var limiter *rag_http.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = rag_http.NewRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
		defer limiter.Stop()
	}
	handler := rag_http.NewHandler(app.AnswerUsecase, app.FeedbackUsecase, cfg.Answer.Timeout, log)
	e := rag_http.NewRouter(handler, rag_http.RouterConfig{
		StaticDir:   cfg.Server.StaticDir,
		RateLimiter: limiter,
		Ready:       app.Ready,
		Gatherer:    prometheus.DefaultGatherer,
	}, log)

	var root http.Handler = e
	if cfg.Server.H2C {
		root = rag_http.WithH2C(e)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Serve until a signal arrives
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting server", "addr", srv.Addr, "h2c", cfg.Server.H2C)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), shutdownOTel(shutdownCtx))
	})
	return g.Wait()
}
