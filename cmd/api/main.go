package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/medspa-booking/internal/api/router"
	"github.com/wolfman30/medspa-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medspa-booking/internal/config"
	httpmiddleware "github.com/wolfman30/medspa-booking/internal/http/middleware"
	"github.com/wolfman30/medspa-booking/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking/internal/sessions"
	"github.com/wolfman30/medspa-booking/internal/workflow"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting medspa booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.AvailabilityBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.BuildRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build availability backend", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	metricsHandler, workflowMetrics := setupMetrics()
	app, err := buildApp(cfg, rt, logger, workflowMetrics, metricsHandler)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	go app.manager.Run(ctx)
	go pruneLimiter(ctx, app.limiter)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	app.manager.Shutdown()
	logger.Info("server stopped")
}

type application struct {
	handler http.Handler
	manager *sessions.Manager
	limiter *httpmiddleware.RateLimiter
}

func newLogger(cfg *appconfig.Config) *logging.Logger {
	return logging.NewWithOptions(logging.Options{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		FilePath: cfg.LogFile,
	})
}

func setupMetrics() (http.Handler, *metrics.WorkflowMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewWorkflowMetrics(reg)
}

func buildApp(cfg *appconfig.Config, rt *bootstrap.Runtime, logger *logging.Logger, wm *metrics.WorkflowMetrics, metricsHandler http.Handler) (*application, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	manager := sessions.NewManager(rt.Backend, sessions.Config{
		IdleTimeout: cfg.SessionIdleTimeout,
		Location:    loc,
	}, logger, wm)
	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	handler := router.New(&router.Config{
		Logger:             logger,
		Sessions:           sessions.NewHandler(manager, workflow.NewPresenter(cfg.Currency), logger),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ActorSecret:        cfg.SessionJWTSecret,
		RateLimiter:        limiter,
		Ready:              rt.Ready,
	})
	return &application{handler: handler, manager: manager, limiter: limiter}, nil
}

func pruneLimiter(ctx context.Context, limiter *httpmiddleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}
