// Command worker consumes batch sanitization tasks from the Redpanda queue.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/notify"
	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/observability"
	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/payload-sanitizer/internal/config"
	"github.com/fairyhunter13/payload-sanitizer/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Expose queue metrics on a dedicated endpoint for scraping.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	pool, err := postgres.NewPool(context.Background(), cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	batchRepo := postgres.NewBatchRepo(pool)

	maxElapsed, initial, maxInterval := cfg.GetCallbackBackoff()
	notifier := notify.NewWebhookNotifier(
		notify.WithBackoff(maxElapsed, initial, maxInterval),
		notify.WithTimeout(cfg.CallbackTimeout),
	)

	// The worker does not submit batches, so no queue or idempotency store.
	batchSvc := usecase.NewBatchService(batchRepo, nil, nil, notifier, cfg.BatchStaleAfter)

	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, batchSvc, cfg.ConsumerMaxConcurrency)
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close consumer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("consumer error", slog.Any("error", err))
		}
	}()

	slog.Info("worker started, waiting for shutdown signal")
	<-ctx.Done()
	slog.Info("worker stopped")
}
