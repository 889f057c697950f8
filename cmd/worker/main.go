package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/cargo-ledger/internal/app"
	jobmetrics "github.com/odyssey-erp/cargo-ledger/internal/jobs"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/cache"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/db"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/lock"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
	"github.com/odyssey-erp/cargo-ledger/internal/store/postgres"
	"github.com/odyssey-erp/cargo-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.StoreDriver != app.StorePostgres {
		logger.Error("worker requires STORE_DRIVER=postgres", slog.String("driver", cfg.StoreDriver))
		os.Exit(1)
	}
	if cfg.RedisAddr == "" {
		logger.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The sweep must take the same invoice locks as the API when those live in Redis.
	var locker lock.Locker = lock.NewLocal()
	if cfg.LockDriver == app.LockRedis {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = lock.NewRedis(redisClient, lock.RedisOptions{
			TTL:        cfg.LockTTL,
			RetryCount: cfg.LockRetryCount,
			Backoff:    cfg.LockRetryBackoff,
		}, logger)
	}

	store := postgres.New(pool, cfg.DBTxRetries)
	settlementService := settlement.NewService(store.Settlement(), locker, shared.NewAuditLogger(pool), nil, logger, settlement.ServiceConfig{
		MinPaymentAmount: cfg.MinPaymentAmount,
		DefaultCurrency:  cfg.DefaultCurrency,
	})
	idempotency := shared.NewIdempotencyStore(pool)

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	metrics := jobmetrics.NewMetrics(registry)

	sweepJob := jobs.NewOverdueSweepJob(settlementService, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotency, logger, metrics)

	schedule, err := jobs.DefaultSchedule()
	if err != nil {
		logger.Error("build schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOverdueSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: schedule,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
