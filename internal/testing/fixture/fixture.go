// Package fixture wires every service over the in-memory store for tests.
package fixture

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cargo-ledger/internal/catalog"
	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/movement"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/lock"
	"github.com/odyssey-erp/cargo-ledger/internal/registry"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/store/memory"
	_ "github.com/odyssey-erp/cargo-ledger/internal/testing/guard"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

// Harness bundles the services sharing one store.
type Harness struct {
	Store       *memory.Store
	Audit       *memory.AuditTrail
	Idempotency *memory.Idempotency
	Logger      *slog.Logger

	Ledger     *ledger.Service
	Catalog    *catalog.Service
	Registry   *registry.Service
	Vessels    *vessel.Service
	Settlement *settlement.Service
	Movements  *movement.Service
}

// New builds a Harness with a local locker and a discarding logger.
func New(t testing.TB) *Harness {
	t.Helper()
	store := memory.New()
	locker := lock.NewLocal()
	audit := &memory.AuditTrail{}
	idem := memory.NewIdempotency()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registrySvc := registry.NewService(store.Registry(), locker, audit, logger)
	vesselSvc := vessel.NewService(store.Vessels(), locker, audit, logger)
	return &Harness{
		Store:       store,
		Audit:       audit,
		Idempotency: idem,
		Logger:      logger,
		Ledger:      ledger.NewService(store),
		Catalog:     catalog.NewService(store.Catalog(), locker, audit, logger),
		Registry:    registrySvc,
		Vessels:     vesselSvc,
		Settlement:  settlement.NewService(store.Settlement(), locker, audit, nil, logger, settlement.ServiceConfig{}),
		Movements: movement.NewService(store.Movements(), locker, movement.Options{
			Audit:       audit,
			Idempotency: idem,
			Endpoints:   movement.NewEndpointLookup(registrySvc, vesselSvc),
			Logger:      logger,
		}),
	}
}

// MT parses a decimal literal.
func MT(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Vessel registers an in-transit vessel.
func (h *Harness) Vessel(t testing.TB, name string) vessel.Vessel {
	t.Helper()
	v, err := h.Vessels.Create(context.Background(), vessel.VesselInput{Name: name})
	require.NoError(t, err)
	return v
}

// Port registers a port.
func (h *Harness) Port(t testing.TB, name string) registry.Port {
	t.Helper()
	p, err := h.Registry.CreatePort(context.Background(), registry.PortInput{Name: name})
	require.NoError(t, err)
	return p
}

// FreeZone registers a free zone.
func (h *Harness) FreeZone(t testing.TB, name string) registry.FreeZone {
	t.Helper()
	z, err := h.Registry.CreateFreeZone(context.Background(), registry.FreeZoneInput{Name: name})
	require.NoError(t, err)
	return z
}

// Customer registers a customer.
func (h *Harness) Customer(t testing.TB, name string) registry.Customer {
	t.Helper()
	c, err := h.Registry.CreateCustomer(context.Background(), registry.CustomerInput{Name: name})
	require.NoError(t, err)
	return c
}

// Product registers a product holding qty at loc.
func (h *Harness) Product(t testing.TB, name string, loc location.Ref, qty string) catalog.Product {
	t.Helper()
	p, err := h.Catalog.Create(context.Background(), catalog.CreateInput{Name: name, Location: loc, Quantity: MT(qty)})
	require.NoError(t, err)
	return p
}

// Invoice issues a one-line invoice.
func (h *Harness) Invoice(t testing.TB, customerID, productID int64, qty, price string) settlement.Invoice {
	t.Helper()
	inv, err := h.Settlement.Create(context.Background(), settlement.InvoiceInput{
		CustomerID: customerID,
		IssueDate:  time.Now().UTC(),
		Lines:      []settlement.LineInput{{ProductID: productID, Quantity: MT(qty), UnitPrice: MT(price)}},
	})
	require.NoError(t, err)
	return inv
}

// Pay records a payment, optionally carrying a release number.
func (h *Harness) Pay(t testing.TB, invoiceID int64, amount, release string) settlement.Invoice {
	t.Helper()
	_, inv, err := h.Settlement.RecordPayment(context.Background(), invoiceID, settlement.PaymentInput{
		Amount:        MT(amount),
		Method:        settlement.MethodBankTransfer,
		ReleaseNumber: release,
	})
	require.NoError(t, err)
	return inv
}

// Position returns the ledger position of a product.
func (h *Harness) Position(t testing.TB, productID int64) ledger.Position {
	t.Helper()
	pos, err := h.Ledger.Position(context.Background(), productID)
	require.NoError(t, err)
	return pos
}

// QuantityAt returns the balance of a product at loc, zero when none.
func (h *Harness) QuantityAt(t testing.TB, productID int64, loc location.Ref) decimal.Decimal {
	t.Helper()
	balances, err := h.Ledger.Balances(context.Background(), productID)
	require.NoError(t, err)
	for _, b := range balances {
		if b.Location == loc {
			return b.Quantity
		}
	}
	return decimal.Zero
}
