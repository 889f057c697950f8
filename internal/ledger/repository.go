package ledger

import (
	"context"
	"errors"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
)

// ErrBalanceNotFound indicates missing balance row.
var ErrBalanceNotFound = errors.New("ledger balance not found")

// TxRepository exposes the row-locking operations the ledger mutates through.
// Every call happens inside the caller's transaction.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, productID int64) (Item, error)
	SaveItem(ctx context.Context, item Item) error
	GetBalanceForUpdate(ctx context.Context, productID int64, loc location.Ref) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertStockEntry(ctx context.Context, entry StockEntry) error
}

// RepositoryPort abstracts read access for the ledger service.
type RepositoryPort interface {
	GetItem(ctx context.Context, productID int64) (Item, error)
	ListBalances(ctx context.Context, productID int64) ([]Balance, error)
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockEntry, error)
}
