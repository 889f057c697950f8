package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cargo-ledger/internal/platform/lock"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
	"github.com/odyssey-erp/cargo-ledger/internal/testing/fixture"
)

func requireConsistent(t *testing.T, inv settlement.Invoice) {
	t.Helper()
	require.True(t, inv.Paid.Add(inv.Outstanding).Equal(inv.Total), "paid + outstanding must equal total")
	require.Equal(t, inv.Outstanding.IsZero(), inv.Status == settlement.StatusPaid)
}

func TestCreateReservesAllLinesOrNothing(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	zone := h.FreeZone(t, "Batam FTZ")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar", zone.Ref(), "100")
	wire := h.Product(t, "Wire rod", zone.Ref(), "10")

	_, err := h.Settlement.Create(ctx, settlement.InvoiceInput{
		CustomerID: buyer.ID,
		Lines: []settlement.LineInput{
			{ProductID: rebar.ID, Quantity: fixture.MT("50"), UnitPrice: fixture.MT("10")},
			{ProductID: wire.ID, Quantity: fixture.MT("11"), UnitPrice: fixture.MT("10")},
		},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, h.Position(t, rebar.ID).Committed.IsZero())
	require.True(t, h.Position(t, wire.ID).Committed.IsZero())

	inv, err := h.Settlement.Create(ctx, settlement.InvoiceInput{
		CustomerID: buyer.ID,
		TaxAmount:  fixture.MT("55.5"),
		Lines: []settlement.LineInput{
			{ProductID: rebar.ID, Quantity: fixture.MT("50"), UnitPrice: fixture.MT("10.333")},
			{ProductID: wire.ID, Quantity: fixture.MT("10"), UnitPrice: fixture.MT("10")},
		},
	})
	require.NoError(t, err)
	require.Len(t, inv.Lines, 2)
	require.True(t, inv.Lines[0].LineTotal.Equal(fixture.MT("516.65")))
	require.True(t, inv.Total.Equal(fixture.MT("672.15")))
	require.Equal(t, "USD", inv.Currency)
	require.NotEmpty(t, inv.Number)
	requireConsistent(t, inv)
	require.True(t, h.Position(t, rebar.ID).Available.Equal(fixture.MT("50")))
	require.True(t, h.Position(t, wire.ID).Available.IsZero())
}

func TestCreateValidatesHeader(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	zone := h.FreeZone(t, "Batam FTZ")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar", zone.Ref(), "100")
	line := []settlement.LineInput{{ProductID: rebar.ID, Quantity: fixture.MT("1"), UnitPrice: fixture.MT("1")}}

	_, err := h.Settlement.Create(ctx, settlement.InvoiceInput{Lines: line})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = h.Settlement.Create(ctx, settlement.InvoiceInput{CustomerID: buyer.ID})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = h.Settlement.Create(ctx, settlement.InvoiceInput{CustomerID: buyer.ID, Currency: "XXZ", Lines: line})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = h.Settlement.Create(ctx, settlement.InvoiceInput{CustomerID: 999, Lines: line})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = h.Settlement.Create(ctx, settlement.InvoiceInput{CustomerID: buyer.ID, Number: "PI-1", Lines: line})
	require.NoError(t, err)
	_, err = h.Settlement.Create(ctx, settlement.InvoiceInput{CustomerID: buyer.ID, Number: "PI-1", Lines: line})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestPartialPaymentsKeepInvoiceConsistent(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	zone := h.FreeZone(t, "Batam FTZ")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar", zone.Ref(), "100")
	inv := h.Invoice(t, buyer.ID, rebar.ID, "10", "100")

	_, _, err := h.Settlement.RecordPayment(ctx, inv.ID, settlement.PaymentInput{Amount: fixture.MT("99"), Method: settlement.MethodCash})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, _, err = h.Settlement.RecordPayment(ctx, inv.ID, settlement.PaymentInput{Amount: fixture.MT("100"), Method: "barter"})
	require.ErrorIs(t, err, shared.ErrValidation)

	p1, inv, err := h.Settlement.RecordPayment(ctx, inv.ID, settlement.PaymentInput{Amount: fixture.MT("400"), Method: settlement.MethodCash})
	require.NoError(t, err)
	require.True(t, p1.PreviousBalance.Equal(fixture.MT("1000")))
	require.True(t, p1.NewBalance.Equal(fixture.MT("600")))
	require.False(t, inv.HasRelease())
	requireConsistent(t, inv)

	_, inv, err = h.Settlement.RecordPayment(ctx, inv.ID, settlement.PaymentInput{Amount: fixture.MT("200"), Method: settlement.MethodCheck, ReleaseNumber: "REL-7"})
	require.NoError(t, err)
	require.Equal(t, "REL-7", inv.ReleaseNumber)
	requireConsistent(t, inv)

	// the first release number sticks
	_, inv, err = h.Settlement.RecordPayment(ctx, inv.ID, settlement.PaymentInput{Amount: fixture.MT("150"), Method: settlement.MethodCash, ReleaseNumber: "REL-8"})
	require.NoError(t, err)
	require.Equal(t, "REL-7", inv.ReleaseNumber)

	_, _, err = h.Settlement.RecordPayment(ctx, inv.ID, settlement.PaymentInput{Amount: fixture.MT("251"), Method: settlement.MethodCash})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, inv, err = h.Settlement.RecordPayment(ctx, inv.ID, settlement.PaymentInput{Amount: fixture.MT("250"), Method: settlement.MethodCash})
	require.NoError(t, err)
	require.Equal(t, settlement.StatusPaid, inv.Status)
	requireConsistent(t, inv)

	payments, total, err := h.Settlement.ListPayments(ctx, settlement.PaymentFilter{InvoiceID: inv.ID})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Len(t, payments, 4)
}

func TestPaymentsAreImmutable(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	zone := h.FreeZone(t, "Batam FTZ")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar", zone.Ref(), "100")
	inv := h.Invoice(t, buyer.ID, rebar.ID, "10", "100")
	p, _, err := h.Settlement.RecordPayment(ctx, inv.ID, settlement.PaymentInput{Amount: fixture.MT("500"), Method: settlement.MethodCash})
	require.NoError(t, err)

	require.ErrorIs(t, h.Settlement.UpdatePayment(ctx, p.ID), shared.ErrConflict)
	require.ErrorIs(t, h.Settlement.DeletePayment(ctx, p.ID), shared.ErrConflict)
	require.ErrorIs(t, h.Settlement.DeletePayment(ctx, 404), shared.ErrNotFound)

	got, err := h.Settlement.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.Amount.Equal(fixture.MT("500")))

	_, err = h.Settlement.Cancel(ctx, inv.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.ErrorIs(t, h.Settlement.Delete(ctx, inv.ID), shared.ErrConflict)
}

func TestUpdateAppliesReservationDeltas(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	zone := h.FreeZone(t, "Batam FTZ")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar", zone.Ref(), "100")
	wire := h.Product(t, "Wire rod", zone.Ref(), "40")
	inv := h.Invoice(t, buyer.ID, rebar.ID, "60", "10")

	updated, err := h.Settlement.Update(ctx, inv.ID, settlement.InvoiceInput{
		CustomerID: buyer.ID,
		Lines: []settlement.LineInput{
			{ID: inv.Lines[0].ID, ProductID: rebar.ID, Quantity: fixture.MT("90"), UnitPrice: fixture.MT("10")},
			{ProductID: wire.ID, Quantity: fixture.MT("40"), UnitPrice: fixture.MT("5")},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 2)
	require.True(t, updated.Total.Equal(fixture.MT("1100")))
	require.True(t, h.Position(t, rebar.ID).Committed.Equal(fixture.MT("90")))
	require.True(t, h.Position(t, wire.ID).Committed.Equal(fixture.MT("40")))

	_, err = h.Settlement.Update(ctx, inv.ID, settlement.InvoiceInput{
		CustomerID: buyer.ID,
		Lines:      []settlement.LineInput{{ID: inv.Lines[0].ID, ProductID: rebar.ID, Quantity: fixture.MT("101"), UnitPrice: fixture.MT("10")}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, h.Position(t, wire.ID).Committed.Equal(fixture.MT("40")))

	_, err = h.Settlement.Update(ctx, inv.ID, settlement.InvoiceInput{
		CustomerID: buyer.ID,
		Lines:      []settlement.LineInput{{ID: 9999, ProductID: rebar.ID, Quantity: fixture.MT("1"), UnitPrice: fixture.MT("10")}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	updated, err = h.Settlement.Update(ctx, inv.ID, settlement.InvoiceInput{
		CustomerID: buyer.ID,
		Lines:      []settlement.LineInput{{ID: inv.Lines[0].ID, ProductID: rebar.ID, Quantity: fixture.MT("20"), UnitPrice: fixture.MT("10")}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	require.True(t, h.Position(t, rebar.ID).Committed.Equal(fixture.MT("20")))
	require.True(t, h.Position(t, wire.ID).Committed.IsZero())
}

func TestCancelReleasesReservations(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	zone := h.FreeZone(t, "Batam FTZ")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar", zone.Ref(), "100")
	inv := h.Invoice(t, buyer.ID, rebar.ID, "60", "10")

	cancelled, err := h.Settlement.Cancel(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, settlement.StatusCancelled, cancelled.Status)
	require.True(t, h.Position(t, rebar.ID).Committed.IsZero())

	_, _, err = h.Settlement.RecordPayment(ctx, inv.ID, settlement.PaymentInput{Amount: fixture.MT("100"), Method: settlement.MethodCash})
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = h.Settlement.Cancel(ctx, inv.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	other := h.Invoice(t, buyer.ID, rebar.ID, "100", "1")
	require.NoError(t, h.Settlement.Delete(ctx, other.ID))
	require.True(t, h.Position(t, rebar.ID).Available.Equal(fixture.MT("100")))
	_, err = h.Settlement.Get(ctx, other.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMarkOverdue(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	zone := h.FreeZone(t, "Batam FTZ")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar", zone.Ref(), "100")

	clock := time.Now().UTC()
	h.Settlement.WithNow(func() time.Time { return clock })
	due := clock.Add(24 * time.Hour)
	inv, err := h.Settlement.Create(ctx, settlement.InvoiceInput{
		CustomerID: buyer.ID,
		IssueDate:  clock,
		DueDate:    &due,
		Lines:      []settlement.LineInput{{ProductID: rebar.ID, Quantity: fixture.MT("10"), UnitPrice: fixture.MT("100")}},
	})
	require.NoError(t, err)
	draft := h.Invoice(t, buyer.ID, rebar.ID, "1", "100")

	sent, err := h.Settlement.Send(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, settlement.StatusSent, sent.Status)

	clock = clock.Add(72 * time.Hour)
	got, err := h.Settlement.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, settlement.StatusOverdue, got.Status)

	marked, err := h.Settlement.MarkOverdue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, marked)

	list, _, err := h.Settlement.List(ctx, settlement.ListFilter{Status: settlement.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, inv.ID, list[0].ID)

	got, err = h.Settlement.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, settlement.StatusDraft, got.Status)

	marked, err = h.Settlement.MarkOverdue(ctx)
	require.NoError(t, err)
	require.Zero(t, marked)
}

// racingLocker runs a competing edit just before it hands out the locks.
type racingLocker struct {
	lock.Locker
	before func()
}

func (l *racingLocker) Acquire(ctx context.Context, keys ...lock.Key) (lock.Release, error) {
	if l.before != nil {
		l.before()
		l.before = nil
	}
	return l.Locker.Acquire(ctx, keys...)
}

func TestCancelRefusesInvoiceChangedWhileLocking(t *testing.T) {
	ctx := context.Background()
	h := fixture.New(t)
	zone := h.FreeZone(t, "Batam FTZ")
	buyer := h.Customer(t, "PT Baja Prima")
	rebar := h.Product(t, "Rebar", zone.Ref(), "100")
	wire := h.Product(t, "Wire rod", zone.Ref(), "40")
	inv := h.Invoice(t, buyer.ID, rebar.ID, "60", "10")

	locker := &racingLocker{Locker: lock.NewLocal()}
	locker.before = func() {
		_, err := h.Settlement.Update(ctx, inv.ID, settlement.InvoiceInput{
			CustomerID: buyer.ID,
			Lines: []settlement.LineInput{
				{ID: inv.Lines[0].ID, ProductID: rebar.ID, Quantity: fixture.MT("60"), UnitPrice: fixture.MT("10")},
				{ProductID: wire.ID, Quantity: fixture.MT("10"), UnitPrice: fixture.MT("5")},
			},
		})
		require.NoError(t, err)
	}
	svc := settlement.NewService(h.Store.Settlement(), locker, nil, nil, h.Logger, settlement.ServiceConfig{})

	_, err := svc.Cancel(ctx, inv.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.True(t, h.Position(t, wire.ID).Committed.Equal(fixture.MT("10")))
	require.True(t, h.Position(t, rebar.ID).Committed.Equal(fixture.MT("60")))

	// a retry reads the new lines and succeeds
	cancelled, err := svc.Cancel(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, settlement.StatusCancelled, cancelled.Status)
	require.True(t, h.Position(t, wire.ID).Committed.IsZero())
}
