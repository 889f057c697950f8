package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/movement"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
	"github.com/odyssey-erp/cargo-ledger/internal/testing/fixture"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

func outbound(invoiceID int64) movement.CreateInput {
	return movement.CreateInput{Type: movement.TypeOutbound, InvoiceID: &invoiceID}
}

func TestInvoicePaymentAndOutboundDelivery(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar 16mm", ship.Ref(), "500")

	inv := h.Invoice(t, buyer.ID, rebar.ID, "200", "250")
	require.True(t, inv.Total.Equal(fixture.MT("50000")))
	require.True(t, inv.Outstanding.Equal(fixture.MT("50000")))
	require.Equal(t, settlement.StatusDraft, inv.Status)
	require.True(t, h.Position(t, rebar.ID).Available.Equal(fixture.MT("300")))

	inv = h.Pay(t, inv.ID, "50000", "REL-1")
	require.True(t, inv.Outstanding.IsZero())
	require.Equal(t, settlement.StatusPaid, inv.Status)
	require.Equal(t, "REL-1", inv.ReleaseNumber)

	job, err := h.Movements.Create(ctx, outbound(inv.ID))
	require.NoError(t, err)
	require.Equal(t, movement.StatusPending, job.Status)
	require.Equal(t, ship.Ref(), job.From)
	require.Equal(t, buyer.Ref(), job.To)
	require.True(t, job.TransportValue.Equal(fixture.MT("50000")))
	require.Len(t, job.Items, 1)

	pos := h.Position(t, rebar.ID)
	require.True(t, pos.OnHand.Equal(fixture.MT("300")))
	require.True(t, pos.Committed.IsZero())
	require.True(t, pos.Available.Equal(fixture.MT("300")))
	require.True(t, h.QuantityAt(t, rebar.ID, buyer.Ref()).Equal(fixture.MT("200")))

	inv, err = h.Settlement.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, inv.Lines[0].Delivered.Equal(fixture.MT("200")))

	_, err = h.Movements.Create(ctx, outbound(inv.ID))
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestOutboundWithoutReleaseIsRejected(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar 16mm", ship.Ref(), "500")
	inv := h.Invoice(t, buyer.ID, rebar.ID, "200", "250")

	_, err := h.Movements.Create(ctx, outbound(inv.ID))
	require.ErrorIs(t, err, shared.ErrMissingRelease)

	// paid in full but still without a release
	h.Pay(t, inv.ID, "50000", "")
	_, err = h.Movements.Create(ctx, outbound(inv.ID))
	require.ErrorIs(t, err, shared.ErrMissingRelease)

	pos := h.Position(t, rebar.ID)
	require.True(t, pos.OnHand.Equal(fixture.MT("500")))
	require.True(t, pos.Committed.Equal(fixture.MT("200")))
}

func TestOutboundBeyondPaidBalanceIsRejected(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar 16mm", ship.Ref(), "500")
	inv := h.Invoice(t, buyer.ID, rebar.ID, "200", "250")
	h.Pay(t, inv.ID, "30000", "REL-1")

	_, err := h.Movements.Create(ctx, outbound(inv.ID))
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)

	// a partial delivery covered by the paid amount goes through
	job, err := h.Movements.Create(ctx, movement.CreateInput{
		Type:      movement.TypeOutbound,
		InvoiceID: &inv.ID,
		Items:     []movement.ItemInput{{ProductID: rebar.ID, Quantity: fixture.MT("120")}},
	})
	require.NoError(t, err)
	require.True(t, job.TransportValue.Equal(fixture.MT("30000")))

	pos := h.Position(t, rebar.ID)
	require.True(t, pos.OnHand.Equal(fixture.MT("380")))
	require.True(t, pos.Committed.Equal(fixture.MT("80")))
}

func TestManifestLineBeyondAvailableIsRejected(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	zone := h.FreeZone(t, "Batam FTZ")
	ship := h.Vessel(t, "MV Sentosa")
	cement := h.Product(t, "Cement", zone.Ref(), "100")

	_, err := h.Vessels.AddItem(ctx, ship.ID, vessel.ManifestInput{ProductID: cement.ID, Quantity: fixture.MT("150")})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	items, err := h.Vessels.ListManifest(ctx, ship.ID)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestClosingVesselWithCargoAboardIsRejected(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	port := h.Port(t, "Tanjung Priok")
	coal := h.Product(t, "Coal", ship.Ref(), "1000")

	_, err := h.Vessels.AddItem(ctx, ship.ID, vessel.ManifestInput{ProductID: coal.ID, Quantity: fixture.MT("1000")})
	require.NoError(t, err)

	_, err = h.Vessels.SetStatus(ctx, ship.ID, vessel.StatusInput{Status: vessel.StatusClosed})
	require.ErrorIs(t, err, shared.ErrConflict)

	got, err := h.Vessels.Get(ctx, ship.ID)
	require.NoError(t, err)
	require.True(t, got.HasProducts)
	require.Equal(t, vessel.StatusInTransit, got.Status)

	// discharging everything empties the vessel so it can close
	_, err = h.Movements.Create(ctx, movement.CreateInput{
		Type:  movement.TypeInbound,
		From:  ship.Ref(),
		To:    port.Ref(),
		Items: []movement.ItemInput{{ProductID: coal.ID, Quantity: fixture.MT("1000")}},
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	closed, err := h.Vessels.SetStatus(ctx, ship.ID, vessel.StatusInput{Status: vessel.StatusClosed, Date: &now})
	require.NoError(t, err)
	require.Equal(t, vessel.StatusClosed, closed.Status)
	require.False(t, closed.HasProducts)

	// a closed vessel takes no further part in movements
	_, err = h.Movements.Create(ctx, movement.CreateInput{
		Type:  movement.TypeTransfer,
		From:  port.Ref(),
		To:    ship.Ref(),
		Items: []movement.ItemInput{{ProductID: coal.ID, Quantity: fixture.MT("1")}},
	})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.True(t, h.QuantityAt(t, coal.ID, port.Ref()).Equal(fixture.MT("1000")))
	require.Equal(t, location.Port(port.ID), h.Position(t, coal.ID).Home)
}

func TestFullyDeliveredStockCannotBeSoldAgain(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	ship := h.Vessel(t, "MV Sentosa")
	first := h.Customer(t, "PT Baja Prima")
	second := h.Customer(t, "CV Logam Jaya")
	rebar := h.Product(t, "Rebar 16mm", ship.Ref(), "200")

	inv := h.Invoice(t, first.ID, rebar.ID, "200", "250")
	h.Pay(t, inv.ID, "50000", "REL-A")
	_, err := h.Movements.Create(ctx, outbound(inv.ID))
	require.NoError(t, err)

	pos := h.Position(t, rebar.ID)
	require.Equal(t, ship.Ref(), pos.Home)
	require.True(t, pos.OnHand.IsZero())
	require.True(t, pos.Committed.IsZero())
	require.True(t, pos.Available.IsZero())
	require.True(t, h.QuantityAt(t, rebar.ID, first.Ref()).Equal(fixture.MT("200")))

	_, err = h.Settlement.Create(ctx, settlement.InvoiceInput{
		CustomerID: second.ID,
		IssueDate:  time.Now().UTC(),
		Lines:      []settlement.LineInput{{ProductID: rebar.ID, Quantity: fixture.MT("200"), UnitPrice: fixture.MT("250")}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	require.True(t, h.QuantityAt(t, rebar.ID, first.Ref()).Equal(fixture.MT("200")))
	require.True(t, h.QuantityAt(t, rebar.ID, second.Ref()).IsZero())
}
