package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cargo-ledger/internal/catalog"
	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

func TestWithTxDiscardsFailedWork(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.Catalog().WithTx(ctx, func(ctx context.Context, tx catalog.TxRepository) error {
		id, err := tx.InsertProduct(ctx, catalog.Product{Name: "Cement"})
		require.NoError(t, err)
		require.NoError(t, tx.UpsertBalance(ctx, ledger.Balance{ProductID: id, Location: location.Port(1), Quantity: decimal.NewFromInt(5)}))
		require.NoError(t, tx.InsertStockEntry(ctx, ledger.StockEntry{ProductID: id, Location: location.Port(1)}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	products, total, err := s.ListProducts(ctx, catalog.ListFilter{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, products)
	card, err := s.GetStockCard(ctx, ledger.StockCardFilter{ProductID: 1})
	require.NoError(t, err)
	require.Empty(t, card)
}

func TestSaveInvoiceAssignsLineIDs(t *testing.T) {
	ctx := context.Background()
	s := New()
	var id int64
	err := s.Settlement().WithTx(ctx, func(ctx context.Context, tx settlement.TxRepository) error {
		var err error
		id, err = tx.InsertInvoice(ctx, settlement.Invoice{Number: "PI-1", Lines: []settlement.Line{{ProductID: 1}}})
		if err != nil {
			return err
		}
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		inv.Lines = append(inv.Lines, settlement.Line{ProductID: 2})
		return tx.SaveInvoice(ctx, inv)
	})
	require.NoError(t, err)

	inv, err := s.GetInvoice(ctx, id)
	require.NoError(t, err)
	require.Len(t, inv.Lines, 2)
	require.NotZero(t, inv.Lines[0].ID)
	require.NotZero(t, inv.Lines[1].ID)
	require.NotEqual(t, inv.Lines[0].ID, inv.Lines[1].ID)
	require.Equal(t, id, inv.Lines[1].InvoiceID)

	// mutating a read copy leaves the store untouched
	inv.Lines[0].ProductID = 99
	again, err := s.GetInvoice(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(1), again.Lines[0].ProductID)

	_, err = s.GetInvoice(ctx, id+1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestIdempotencyCleanup(t *testing.T) {
	ctx := context.Background()
	idem := NewIdempotency()
	require.NoError(t, idem.CheckAndInsert(ctx, "k", "movement"))
	require.ErrorIs(t, idem.CheckAndInsert(ctx, "k", "movement"), shared.ErrIdempotencyConflict)
	purged, err := idem.Cleanup(ctx, -1)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)
	require.NoError(t, idem.CheckAndInsert(ctx, "k", "movement"))
}
