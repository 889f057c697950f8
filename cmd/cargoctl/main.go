// Command cargoctl offers operator helpers: manual job triggers, queue
// inspection and demo data seeding.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odyssey-erp/cargo-ledger/cmd/cargoctl/cli"
	"github.com/odyssey-erp/cargo-ledger/internal/app"
	"github.com/odyssey-erp/cargo-ledger/internal/catalog"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/db"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/lock"
	"github.com/odyssey-erp/cargo-ledger/internal/registry"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
	"github.com/odyssey-erp/cargo-ledger/internal/store/postgres"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

const usage = `usage:
  cargoctl jobs trigger <overdue-sweep|idempotency-cleanup> [-retention 168h]
  cargoctl jobs stats
  cargoctl jobs scheduled [-size 10]
  cargoctl seed`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(stderr, "load config:", err)
		return 1
	}
	switch args[0] {
	case "jobs":
		return runJobs(ctx, cfg, args[1:], stdout, stderr)
	case "seed":
		return runSeed(ctx, cfg, stdout, stderr)
	default:
		fmt.Fprintln(stderr, usage)
		return 2
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer jobsCLI.Close()

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
		fs.SetOutput(stderr)
		retention := fs.Duration("retention", 0, "idempotency key retention")
		if len(args) < 2 {
			fmt.Fprintln(stderr, usage)
			return 2
		}
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1], *retention)
		if err != nil {
			fmt.Fprintln(stderr, "trigger:", err)
			return 1
		}
		fmt.Fprintf(stdout, "enqueued %s as %s\n", info.Type, info.ID)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(stderr, "stats:", err)
			return 1
		}
		_ = enc.Encode(stats)
	case "scheduled":
		fs := flag.NewFlagSet("scheduled", flag.ContinueOnError)
		fs.SetOutput(stderr)
		size := fs.Int("size", 10, "page size")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		tasks, err := jobsCLI.ListScheduled(ctx, *size)
		if err != nil {
			fmt.Fprintln(stderr, "scheduled:", err)
			return 1
		}
		for _, task := range tasks {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
		}
	default:
		fmt.Fprintln(stderr, usage)
		return 2
	}
	return 0
}

func runSeed(ctx context.Context, cfg *app.Config, stdout, stderr io.Writer) int {
	if cfg.StoreDriver != app.StorePostgres {
		fmt.Fprintln(stderr, "seed requires STORE_DRIVER=postgres")
		return 1
	}
	logger := app.NewLogger(cfg)
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		fmt.Fprintln(stderr, "connect postgres:", err)
		return 1
	}
	defer pool.Close()

	store := postgres.New(pool, cfg.DBTxRetries)
	if err := store.Migrate(ctx); err != nil {
		fmt.Fprintln(stderr, "migrate:", err)
		return 1
	}
	locker := lock.NewLocal()
	audit := shared.NewAuditLogger(pool)
	sum, err := cli.Seed(ctx, cli.SeedServices{
		Registry: registry.NewService(store.Registry(), locker, audit, logger),
		Vessels:  vessel.NewService(store.Vessels(), locker, audit, logger),
		Catalog:  catalog.NewService(store.Catalog(), locker, audit, logger),
		Settlement: settlement.NewService(store.Settlement(), locker, audit, nil, logger, settlement.ServiceConfig{
			MinPaymentAmount: cfg.MinPaymentAmount,
			DefaultCurrency:  cfg.DefaultCurrency,
		}),
	}, stdout)
	if err != nil {
		logger.Error("seed", slog.Any("error", err))
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(sum)
	return 0
}
