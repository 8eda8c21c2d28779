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

	"github.com/wolfman30/wa-retell-relay/internal/api/router"
	"github.com/wolfman30/wa-retell-relay/internal/app/bootstrap"
	appconfig "github.com/wolfman30/wa-retell-relay/internal/config"
	"github.com/wolfman30/wa-retell-relay/internal/http/handlers"
	"github.com/wolfman30/wa-retell-relay/internal/observability/metrics"
	"github.com/wolfman30/wa-retell-relay/pkg/logging"
)

func main() {
	// Optional .env for local runs.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting wa-retell-relay",
		"env", cfg.Env,
		"port", cfg.Port,
		"webhook_path", cfg.WebhookPath,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	handler, cleanup, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire relay", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
		// Must cover every upstream call made inside a webhook request.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RetellTimeout*2 + cfg.EvolutionTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}
	logger.Info("server stopped")
}

// buildHandler wires every component behind the HTTP router. The returned
// cleanup releases the Redis connection when one was opened.
func buildHandler(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (http.Handler, func(), error) {
	metricsHandler, relayMetrics, reg := setupMetrics()

	svc, store, err := bootstrap.BuildRelay(cfg, logger, relayMetrics)
	if err != nil {
		return nil, nil, err
	}
	metrics.RegisterSessionGauge(reg, store.Len)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	redisClient := bootstrap.BuildRedisClient(pingCtx, cfg, logger, true)
	cleanup := func() {}
	if redisClient != nil {
		cleanup = func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		}
	}
	tracker := bootstrap.BuildProcessedTracker(redisClient, cfg, logger)

	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; /clear-sessions is unauthenticated")
	}

	h := router.New(&router.Config{
		Logger:         logger,
		WebhookPath:    cfg.WebhookPath,
		Webhook:        handlers.NewEvolutionWebhookHandler(svc, tracker, relayMetrics, logger),
		AdminSessions:  handlers.NewAdminSessionsHandler(store, logger),
		AdminJWTSecret: cfg.AdminJWTSecret,
		MetricsHandler: metricsHandler,
	})
	return h, cleanup, nil
}

func setupMetrics() (http.Handler, *metrics.RelayMetrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	relayMetrics := metrics.NewRelayMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), relayMetrics, reg
}
