package movement_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/movement"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
	"github.com/odyssey-erp/cargo-ledger/internal/testing/fixture"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

func transfer(from, to location.Ref, productID int64, qty string) movement.CreateInput {
	return movement.CreateInput{
		Type:  movement.TypeTransfer,
		From:  from,
		To:    to,
		Items: []movement.ItemInput{{ProductID: productID, Quantity: fixture.MT(qty)}},
	}
}

func totalOnHand(t *testing.T, h *fixture.Harness, productID int64) decimal.Decimal {
	t.Helper()
	balances, err := h.Ledger.Balances(context.Background(), productID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, b := range balances {
		sum = sum.Add(b.Quantity)
	}
	return sum
}

func TestTransferConservesStock(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	port := h.Port(t, "Tanjung Priok")
	zone := h.FreeZone(t, "Batam FTZ")
	coal := h.Product(t, "Coal", ship.Ref(), "1000")

	job, err := h.Movements.Create(ctx, movement.CreateInput{
		Type:  movement.TypeInbound,
		From:  ship.Ref(),
		To:    port.Ref(),
		Items: []movement.ItemInput{{ProductID: coal.ID, Quantity: fixture.MT("400")}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, job.Reference)
	require.Equal(t, "MT", job.Items[0].Unit)
	require.True(t, h.QuantityAt(t, coal.ID, ship.Ref()).Equal(fixture.MT("600")))
	require.True(t, h.QuantityAt(t, coal.ID, port.Ref()).Equal(fixture.MT("400")))
	require.True(t, totalOnHand(t, h, coal.ID).Equal(fixture.MT("1000")))
	require.Equal(t, ship.Ref(), h.Position(t, coal.ID).Home)

	_, err = h.Movements.Create(ctx, transfer(port.Ref(), zone.Ref(), coal.ID, "400"))
	require.NoError(t, err)
	require.True(t, h.QuantityAt(t, coal.ID, port.Ref()).IsZero())
	require.True(t, h.QuantityAt(t, coal.ID, zone.Ref()).Equal(fixture.MT("400")))
	require.True(t, totalOnHand(t, h, coal.ID).Equal(fixture.MT("1000")))

	_, err = h.Movements.Create(ctx, transfer(port.Ref(), zone.Ref(), coal.ID, "1"))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	card, err := h.Ledger.StockCard(ctx, ledgerFilter(coal.ID))
	require.NoError(t, err)
	require.Len(t, card, 5, "opening entry plus two per relocation")
}

func TestCreateRejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	port := h.Port(t, "Tanjung Priok")
	buyer := h.Customer(t, "PT Baja Prima")
	coal := h.Product(t, "Coal", ship.Ref(), "10")

	_, err := h.Movements.Create(ctx, movement.CreateInput{Type: "teleport"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = h.Movements.Create(ctx, movement.CreateInput{Type: movement.TypeTransfer, From: ship.Ref(), To: port.Ref()})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = h.Movements.Create(ctx, transfer(ship.Ref(), ship.Ref(), coal.ID, "1"))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = h.Movements.Create(ctx, transfer(ship.Ref(), buyer.Ref(), coal.ID, "1"))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = h.Movements.Create(ctx, transfer(ship.Ref(), port.Ref(), coal.ID, "0"))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = h.Movements.Create(ctx, transfer(ship.Ref(), location.Port(99), coal.ID, "1"))
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = h.Movements.Create(ctx, movement.CreateInput{Type: movement.TypeOutbound})
	require.ErrorIs(t, err, shared.ErrValidation)

	jobs, total, err := h.Movements.List(ctx, movement.ListFilter{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, jobs)
}

func TestMultiItemMovementIsAtomic(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	port := h.Port(t, "Tanjung Priok")
	coal := h.Product(t, "Coal", ship.Ref(), "100")
	ore := h.Product(t, "Nickel ore", ship.Ref(), "5")

	_, err := h.Movements.Create(ctx, movement.CreateInput{
		Type: movement.TypeInbound,
		From: ship.Ref(),
		To:   port.Ref(),
		Items: []movement.ItemInput{
			{ProductID: coal.ID, Quantity: fixture.MT("50")},
			{ProductID: ore.ID, Quantity: fixture.MT("6")},
		},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, h.QuantityAt(t, coal.ID, ship.Ref()).Equal(fixture.MT("100")))
	require.True(t, h.QuantityAt(t, coal.ID, port.Ref()).IsZero())
}

func TestRelocationProtectsCommittedStock(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	port := h.Port(t, "Tanjung Priok")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar 16mm", ship.Ref(), "500")
	h.Invoice(t, buyer.ID, rebar.ID, "200", "250")

	_, err := h.Movements.Create(ctx, transfer(ship.Ref(), port.Ref(), rebar.ID, "301"))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	_, err = h.Movements.Create(ctx, transfer(ship.Ref(), port.Ref(), rebar.ID, "300"))
	require.NoError(t, err)
	pos := h.Position(t, rebar.ID)
	require.True(t, pos.OnHand.Equal(fixture.MT("200")))
	require.True(t, pos.Committed.Equal(fixture.MT("200")))
	require.True(t, pos.Available.IsZero())
}

func TestConcurrentMovementsNeverOversell(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	port := h.Port(t, "Tanjung Priok")
	coal := h.Product(t, "Coal", ship.Ref(), "100")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Movements.Create(ctx, transfer(ship.Ref(), port.Ref(), coal.ID, "10"))
			if err != nil {
				assert.ErrorIs(t, err, shared.ErrInsufficientStock)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 10, succeeded)
	require.True(t, h.QuantityAt(t, coal.ID, port.Ref()).Equal(fixture.MT("100")))
	require.True(t, totalOnHand(t, h, coal.ID).Equal(fixture.MT("100")))
	pos := h.Position(t, coal.ID)
	require.False(t, pos.OnHand.LessThan(pos.Committed))
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	port := h.Port(t, "Tanjung Priok")
	coal := h.Product(t, "Coal", ship.Ref(), "100")

	in := transfer(ship.Ref(), port.Ref(), coal.ID, "10")
	in.IdempotencyKey = "req-1"
	_, err := h.Movements.Create(ctx, in)
	require.NoError(t, err)
	_, err = h.Movements.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.True(t, h.QuantityAt(t, coal.ID, port.Ref()).Equal(fixture.MT("10")))

	// a failed request frees its key for a corrected retry
	bad := transfer(ship.Ref(), port.Ref(), coal.ID, "1000")
	bad.IdempotencyKey = "req-2"
	_, err = h.Movements.Create(ctx, bad)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	bad.Items[0].Quantity = fixture.MT("5")
	_, err = h.Movements.Create(ctx, bad)
	require.NoError(t, err)
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	port := h.Port(t, "Tanjung Priok")
	coal := h.Product(t, "Coal", ship.Ref(), "100")

	job, err := h.Movements.Create(ctx, transfer(ship.Ref(), port.Ref(), coal.ID, "10"))
	require.NoError(t, err)

	notes := "truck 7"
	vehicle := int64(7)
	job, err = h.Movements.Update(ctx, job.ID, movement.UpdateInput{Notes: &notes, VehicleID: &vehicle})
	require.NoError(t, err)
	require.Equal(t, "truck 7", job.Notes)

	_, err = h.Movements.SetStatus(ctx, job.ID, movement.StatusCompleted)
	require.ErrorIs(t, err, shared.ErrConflict)
	job, err = h.Movements.SetStatus(ctx, job.ID, movement.StatusInTransit)
	require.NoError(t, err)
	require.NotNil(t, job.ActualStart)
	_, err = h.Movements.Update(ctx, job.ID, movement.UpdateInput{Notes: &notes})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.ErrorIs(t, h.Movements.Delete(ctx, job.ID), shared.ErrConflict)
	job, err = h.Movements.SetStatus(ctx, job.ID, movement.StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, job.ActualEnd)

	pending, err := h.Movements.Create(ctx, transfer(ship.Ref(), port.Ref(), coal.ID, "5"))
	require.NoError(t, err)
	require.NoError(t, h.Movements.Delete(ctx, pending.ID))
	_, err = h.Movements.Get(ctx, pending.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	// deleting the job leaves the stock where it went
	require.True(t, h.QuantityAt(t, coal.ID, port.Ref()).Equal(fixture.MT("15")))

	listed, total, err := h.Movements.List(ctx, movement.ListFilter{Status: movement.StatusCompleted})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, job.ID, listed[0].ID)
}

func TestOutboundRules(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	zone := h.FreeZone(t, "Batam FTZ")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar", ship.Ref(), "100")
	cement := h.Product(t, "Cement", zone.Ref(), "100")

	inv, err := h.Settlement.Create(ctx, settlement.InvoiceInput{
		CustomerID: buyer.ID,
		Lines: []settlement.LineInput{
			{ProductID: rebar.ID, Quantity: fixture.MT("10"), UnitPrice: fixture.MT("10")},
			{ProductID: cement.ID, Quantity: fixture.MT("10"), UnitPrice: fixture.MT("10")},
		},
	})
	require.NoError(t, err)
	h.Pay(t, inv.ID, "200", "REL-1")

	// products held at different locations cannot leave together
	_, err = h.Movements.Create(ctx, movement.CreateInput{Type: movement.TypeOutbound, InvoiceID: &inv.ID})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = h.Movements.Create(ctx, movement.CreateInput{
		Type:      movement.TypeOutbound,
		InvoiceID: &inv.ID,
		Items:     []movement.ItemInput{{ProductID: rebar.ID, Quantity: fixture.MT("11")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	job, err := h.Movements.Create(ctx, movement.CreateInput{
		Type:      movement.TypeOutbound,
		InvoiceID: &inv.ID,
		Items:     []movement.ItemInput{{InvoiceLineID: inv.Lines[1].ID, Quantity: fixture.MT("10")}},
	})
	require.NoError(t, err)
	require.Equal(t, zone.Ref(), job.From)
	require.NotNil(t, job.Items[0].InvoiceLineID)

	// the delivered line can no longer be dropped from the invoice
	_, err = h.Settlement.Update(ctx, inv.ID, settlement.InvoiceInput{
		CustomerID: buyer.ID,
		Lines:      []settlement.LineInput{{ID: inv.Lines[0].ID, ProductID: rebar.ID, Quantity: fixture.MT("10"), UnitPrice: fixture.MT("10")}},
	})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.ErrorIs(t, h.Settlement.Delete(ctx, inv.ID), shared.ErrConflict)

	listed, _, err := h.Movements.List(ctx, movement.ListFilter{InvoiceID: inv.ID, LocationKind: location.KindCustomer})
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestEndpointsExcludeClosedVessels(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	open := h.Vessel(t, "MV Open")
	closed := h.Vessel(t, "MV Done")
	h.Port(t, "Tanjung Priok")
	h.FreeZone(t, "Batam FTZ")
	h.Customer(t, "PT Baja Prima")
	_, err := h.Vessels.SetStatus(ctx, closed.ID, vessel.StatusInput{Status: vessel.StatusClosed})
	require.NoError(t, err)

	endpoints, err := h.Movements.Endpoints(ctx)
	require.NoError(t, err)
	require.Len(t, endpoints, 3)
	require.Equal(t, movement.Endpoint{Type: location.KindVessel, ID: open.ID, Name: "MV Open"}, endpoints[0])
	for _, e := range endpoints {
		require.NotEqual(t, location.KindCustomer, e.Type)
	}
}

func ledgerFilter(productID int64) ledger.StockCardFilter {
	return ledger.StockCardFilter{ProductID: productID}
}
