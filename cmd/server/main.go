// Command server starts the payload sanitizer HTTP API.
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

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/cache"
	httpserver "github.com/fairyhunter13/payload-sanitizer/internal/adapter/httpserver"
	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/observability"
	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/payload-sanitizer/internal/app"
	"github.com/fairyhunter13/payload-sanitizer/internal/config"
	"github.com/fairyhunter13/payload-sanitizer/internal/usecase"
)

// redisPinger adapts *redis.Client to the readiness RedisClient interface.
type redisPinger struct{ rdb *redis.Client }

func (r redisPinger) Ping(ctx context.Context) app.RedisPingResult { return r.rdb.Ping(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: DB pool
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	batchRepo := postgres.NewBatchRepo(pool)

	// Data retention
	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started", slog.Int("retention_days", cfg.DataRetentionDays), slog.Duration("interval", cfg.CleanupInterval))
	}

	// Redis-backed idempotency store
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() { _ = rdb.Close() }()
	idemStore := cache.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)

	// Queue client (Redpanda producer)
	qClient, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := qClient.Close(); err != nil {
			slog.Error("failed to close queue client", slog.Any("error", err))
		}
	}()

	// Per-client batch limits
	limits, err := config.LoadLimits(cfg)
	if err != nil {
		slog.Error("limits load failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Usecases
	sanitizeSvc := usecase.NewSanitizeService()
	batchSvc := usecase.NewBatchService(batchRepo, qClient, idemStore, nil, cfg.BatchStaleAfter)

	// Readiness checks
	dbCheck, redisCheck, kafkaCheck := app.BuildReadinessChecks(pool, redisPinger{rdb}, cfg.KafkaBrokers)

	// HTTP server
	srv := httpserver.NewServer(cfg, limits, sanitizeSvc, batchSvc, dbCheck, redisCheck, kafkaCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
