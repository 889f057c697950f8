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
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/cargo-ledger/internal/app"
	"github.com/odyssey-erp/cargo-ledger/internal/catalog"
	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/movement"
	"github.com/odyssey-erp/cargo-ledger/internal/observability"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/cache"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/db"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/lock"
	"github.com/odyssey-erp/cargo-ledger/internal/registry"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
	"github.com/odyssey-erp/cargo-ledger/internal/store/memory"
	"github.com/odyssey-erp/cargo-ledger/internal/store/postgres"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
	"github.com/odyssey-erp/cargo-ledger/jobs"
)

// backend is the storage wiring shared by every service.
type backend struct {
	ledger      ledger.RepositoryPort
	catalog     catalog.RepositoryPort
	registry    registry.RepositoryPort
	vessels     vessel.RepositoryPort
	settlement  settlement.RepositoryPort
	movements   movement.RepositoryPort
	audit       catalog.AuditPort
	idempotency movement.IdempotencyPort
}

func openBackend(ctx context.Context, cfg *app.Config, logger *slog.Logger) (backend, func(), error) {
	if cfg.StoreDriver == app.StoreMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		store := memory.New()
		return backend{
			ledger:      store,
			catalog:     store.Catalog(),
			registry:    store.Registry(),
			vessels:     store.Vessels(),
			settlement:  store.Settlement(),
			movements:   store.Movements(),
			audit:       &memory.AuditTrail{},
			idempotency: memory.NewIdempotency(),
		}, func() {}, nil
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return backend{}, nil, err
	}
	store := postgres.New(pool, cfg.DBTxRetries)
	if cfg.DBAutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return backend{}, nil, err
		}
		logger.Info("schema migrated")
	}
	return backend{
		ledger:      store,
		catalog:     store.Catalog(),
		registry:    store.Registry(),
		vessels:     store.Vessels(),
		settlement:  store.Settlement(),
		movements:   store.Movements(),
		audit:       shared.NewAuditLogger(pool),
		idempotency: shared.NewIdempotencyStore(pool),
	}, pool.Close, nil
}

func openLocker(cfg *app.Config, redisClient *redis.Client, logger *slog.Logger) lock.Locker {
	if cfg.LockDriver == app.LockRedis && redisClient != nil {
		return lock.NewRedis(redisClient, lock.RedisOptions{
			TTL:        cfg.LockTTL,
			RetryCount: cfg.LockRetryCount,
			Backoff:    cfg.LockRetryBackoff,
		}, logger)
	}
	if cfg.LockDriver == app.LockRedis {
		logger.Warn("redis unavailable, falling back to in-process locks")
	}
	return lock.NewLocal()
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	be, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeBackend()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis ping", slog.Any("error", err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}
	locker := openLocker(cfg, redisClient, logger)

	metrics := observability.NewMetrics()

	ledgerService := ledger.NewService(be.ledger)
	catalogService := catalog.NewService(be.catalog, locker, be.audit, logger)
	registryService := registry.NewService(be.registry, locker, be.audit, logger)
	vesselService := vessel.NewService(be.vessels, locker, be.audit, logger)
	settlementService := settlement.NewService(be.settlement, locker, be.audit, metrics, logger, settlement.ServiceConfig{
		MinPaymentAmount: cfg.MinPaymentAmount,
		DefaultCurrency:  cfg.DefaultCurrency,
	})
	movementService := movement.NewService(be.movements, locker, movement.Options{
		Audit:       be.audit,
		Idempotency: be.idempotency,
		Metrics:     metrics,
		Endpoints:   movement.NewEndpointLookup(registryService, vesselService),
		Logger:      logger,
	})

	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		inspector := asynq.NewInspector(redisOpts)
		defer inspector.Close()
		jobClient := jobs.NewClient(redisOpts)
		defer jobClient.Close()
		jobHandler = jobs.NewHandler(inspector, jobClient, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           metrics,
		CatalogHandler:    catalog.NewHandler(logger, catalogService, ledgerService),
		RegistryHandler:   registry.NewHandler(logger, registryService),
		VesselHandler:     vessel.NewHandler(logger, vesselService),
		SettlementHandler: settlement.NewHandler(logger, settlementService),
		MovementHandler:   movement.NewHandler(logger, movementService),
		JobHandler:        jobHandler,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting",
			slog.String("addr", cfg.AppAddr),
			slog.String("store", cfg.StoreDriver),
			slog.String("lock", cfg.LockDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down server")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
