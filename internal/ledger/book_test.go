package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

type memoryTx struct {
	items    map[int64]Item
	balances map[string]Balance
	entries  []StockEntry
}

func newMemoryTx() *memoryTx {
	return &memoryTx{items: make(map[int64]Item), balances: make(map[string]Balance)}
}

func (tx *memoryTx) GetItemForUpdate(_ context.Context, productID int64) (Item, error) {
	item, ok := tx.items[productID]
	if !ok {
		return Item{}, shared.NotFound("product %d not found", productID)
	}
	return item, nil
}

func (tx *memoryTx) SaveItem(_ context.Context, item Item) error {
	tx.items[item.ProductID] = item
	return nil
}

func (tx *memoryTx) GetBalanceForUpdate(_ context.Context, productID int64, loc location.Ref) (Balance, error) {
	bal, ok := tx.balances[balanceKey(productID, loc)]
	if !ok {
		return Balance{ProductID: productID, Location: loc}, ErrBalanceNotFound
	}
	return bal, nil
}

func (tx *memoryTx) UpsertBalance(_ context.Context, balance Balance) error {
	tx.balances[balanceKey(balance.ProductID, balance.Location)] = balance
	return nil
}

func (tx *memoryTx) InsertStockEntry(_ context.Context, entry StockEntry) error {
	entry.ID = int64(len(tx.entries) + 1)
	tx.entries = append(tx.entries, entry)
	return nil
}

func balanceKey(productID int64, loc location.Ref) string {
	return fmt.Sprintf("%d/%s", productID, loc)
}

func (tx *memoryTx) qty(productID int64, loc location.Ref) decimal.Decimal {
	return tx.balances[balanceKey(productID, loc)].Quantity
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func seeded(t *testing.T, qty int64) (*memoryTx, *Book) {
	t.Helper()
	tx := newMemoryTx()
	tx.items[1] = Item{ProductID: 1, Home: location.Vessel(10)}
	book := Open(tx)
	require.NoError(t, book.Receive(context.Background(), 1, location.Vessel(10), d(qty), "PRD-1"))
	return tx, book
}

func TestReserveRejectsOversell(t *testing.T) {
	ctx := context.Background()
	tx, book := seeded(t, 500)

	require.NoError(t, book.Reserve(ctx, 1, d(200)))
	avail, err := book.Available(ctx, 1)
	require.NoError(t, err)
	require.True(t, avail.Equal(d(300)))

	err = book.Reserve(ctx, 1, d(301))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, tx.items[1].Committed.Equal(d(200)))

	require.NoError(t, book.Release(ctx, 1, d(50)))
	require.True(t, tx.items[1].Committed.Equal(d(150)))
	require.ErrorIs(t, book.Release(ctx, 1, d(151)), shared.ErrConflict)
}

func TestRelocateConservesQuantity(t *testing.T) {
	ctx := context.Background()
	tx, book := seeded(t, 500)
	vessel, port := location.Vessel(10), location.Port(3)

	require.NoError(t, book.Relocate(ctx, Movement{ProductID: 1, From: vessel, To: port, Quantity: d(120), Reference: "TRN-1"}))
	require.True(t, tx.qty(1, vessel).Equal(d(380)))
	require.True(t, tx.qty(1, port).Equal(d(120)))
	require.True(t, tx.qty(1, vessel).Add(tx.qty(1, port)).Equal(d(500)))
	require.True(t, tx.items[1].OnHand.Equal(d(380)))
	require.Len(t, tx.entries, 3)

	require.NoError(t, book.Relocate(ctx, Movement{ProductID: 1, From: port, To: location.FreeZone(4), Quantity: d(20)}))
	require.True(t, tx.qty(1, port).Equal(d(100)))
	require.True(t, tx.items[1].OnHand.Equal(d(380)))
}

func TestRelocateProtectsCommittedStock(t *testing.T) {
	ctx := context.Background()
	tx, book := seeded(t, 500)
	vessel := location.Vessel(10)
	require.NoError(t, book.Reserve(ctx, 1, d(200)))

	err := book.Relocate(ctx, Movement{ProductID: 1, From: vessel, To: location.Port(3), Quantity: d(301)})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, tx.qty(1, vessel).Equal(d(500)))

	require.NoError(t, book.Relocate(ctx, Movement{ProductID: 1, From: vessel, To: location.Customer(7), Quantity: d(200), Fulfil: d(200)}))
	item := tx.items[1]
	require.True(t, item.OnHand.Equal(d(300)))
	require.True(t, item.Committed.IsZero())
	require.Equal(t, vessel, item.Home)
	require.True(t, tx.qty(1, location.Customer(7)).Equal(d(200)))
}

func TestRelocateMovesHomeWhenDrained(t *testing.T) {
	ctx := context.Background()
	tx, book := seeded(t, 50)
	port := location.Port(3)

	require.NoError(t, book.Relocate(ctx, Movement{ProductID: 1, From: location.Vessel(10), To: port, Quantity: d(50)}))
	require.Equal(t, port, tx.items[1].Home)
	require.True(t, tx.items[1].OnHand.Equal(d(50)))
}

func TestRelocateKeepsHomeWhenDeliveryDrainsIt(t *testing.T) {
	ctx := context.Background()
	tx, book := seeded(t, 50)
	vessel, buyer := location.Vessel(10), location.Customer(7)
	require.NoError(t, book.Reserve(ctx, 1, d(50)))

	require.NoError(t, book.Relocate(ctx, Movement{ProductID: 1, From: vessel, To: buyer, Quantity: d(50), Fulfil: d(50)}))
	item := tx.items[1]
	require.Equal(t, vessel, item.Home)
	require.True(t, item.OnHand.IsZero())
	require.True(t, PositionOf(item).Available.IsZero())
	require.True(t, tx.qty(1, buyer).Equal(d(50)))

	err := book.Relocate(ctx, Movement{ProductID: 1, From: buyer, To: location.Customer(8), Quantity: d(50)})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.ErrorIs(t, book.Reserve(ctx, 1, d(1)), shared.ErrInsufficientStock)
	require.ErrorIs(t, book.Receive(ctx, 1, buyer, d(5), "PRD-1"), shared.ErrValidation)
}

func TestRelocateRejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()
	_, book := seeded(t, 50)
	vessel := location.Vessel(10)

	require.ErrorIs(t, book.Relocate(ctx, Movement{ProductID: 1, From: vessel, To: vessel, Quantity: d(1)}), shared.ErrValidation)
	require.ErrorIs(t, book.Relocate(ctx, Movement{ProductID: 1, From: vessel, To: location.Port(1), Quantity: d(0)}), shared.ErrValidation)
	require.ErrorIs(t, book.Relocate(ctx, Movement{ProductID: 1, From: location.Port(9), To: vessel, Quantity: d(1)}), shared.ErrInsufficientStock)
	require.ErrorIs(t, book.Relocate(ctx, Movement{ProductID: 2, From: vessel, To: location.Port(1), Quantity: d(1)}), shared.ErrNotFound)
}

func TestPositionFloorsAvailable(t *testing.T) {
	pos := PositionOf(Item{ProductID: 1, OnHand: d(10), Committed: d(15)})
	require.True(t, pos.Available.IsZero())
	require.True(t, pos.Committed.Equal(d(15)))
}
