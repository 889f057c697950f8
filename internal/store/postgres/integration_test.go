package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cargo-ledger/internal/catalog"
	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/movement"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/db"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/lock"
	"github.com/odyssey-erp/cargo-ledger/internal/registry"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
	"github.com/odyssey-erp/cargo-ledger/internal/store/postgres"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

// TestSettlementAndDeliveryAgainstPostgres runs against a throwaway database
// named by CARGO_TEST_DATABASE_URL.
func TestSettlementAndDeliveryAgainstPostgres(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 and CARGO_TEST_DATABASE_URL to run integration tests")
	}
	dsn := os.Getenv("CARGO_TEST_DATABASE_URL")
	require.NotEmpty(t, dsn, "CARGO_TEST_DATABASE_URL is required")

	ctx := context.Background()
	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := postgres.New(pool, db.DefaultTxAttempts)
	require.NoError(t, store.Migrate(ctx))

	locker := lock.NewLocal()
	audit := shared.NewAuditLogger(pool)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registrySvc := registry.NewService(store.Registry(), locker, audit, logger)
	vesselSvc := vessel.NewService(store.Vessels(), locker, audit, logger)
	catalogSvc := catalog.NewService(store.Catalog(), locker, audit, logger)
	settlementSvc := settlement.NewService(store.Settlement(), locker, audit, nil, logger, settlement.ServiceConfig{})
	movementSvc := movement.NewService(store.Movements(), locker, movement.Options{
		Audit:       audit,
		Idempotency: shared.NewIdempotencyStore(pool),
		Endpoints:   movement.NewEndpointLookup(registrySvc, vesselSvc),
		Logger:      logger,
	})
	ledgerSvc := ledger.NewService(store)

	zone, err := registrySvc.CreateFreeZone(ctx, registry.FreeZoneInput{Name: "Zone " + t.Name()})
	require.NoError(t, err)
	customer, err := registrySvc.CreateCustomer(ctx, registry.CustomerInput{Name: "Buyer " + t.Name()})
	require.NoError(t, err)
	product, err := catalogSvc.Create(ctx, catalog.CreateInput{
		Name:     "Urea",
		Location: zone.Ref(),
		Quantity: decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	inv, err := settlementSvc.Create(ctx, settlement.InvoiceInput{
		CustomerID: customer.ID,
		Lines: []settlement.LineInput{{
			ProductID: product.ID,
			Quantity:  decimal.NewFromInt(200),
			UnitPrice: decimal.NewFromInt(100),
		}},
	})
	require.NoError(t, err)

	_, inv, err = settlementSvc.RecordPayment(ctx, inv.ID, settlement.PaymentInput{
		Amount:        decimal.NewFromInt(20000),
		Method:        settlement.MethodBankTransfer,
		ReleaseNumber: "REL-" + t.Name(),
	})
	require.NoError(t, err)
	require.Equal(t, settlement.StatusPaid, inv.Status)

	job, err := movementSvc.Create(ctx, movement.CreateInput{
		Type:      movement.TypeOutbound,
		From:      zone.Ref(),
		To:        customer.Ref(),
		InvoiceID: &inv.ID,
	})
	require.NoError(t, err)
	require.Len(t, job.Items, 1)

	pos, err := ledgerSvc.Position(ctx, product.ID)
	require.NoError(t, err)
	require.True(t, pos.OnHand.Equal(decimal.NewFromInt(300)), pos.OnHand.String())
	require.True(t, pos.Committed.IsZero())

	balances, err := ledgerSvc.Balances(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	require.ElementsMatch(t, []location.Ref{zone.Ref(), customer.Ref()},
		[]location.Ref{balances[0].Location, balances[1].Location})
}
