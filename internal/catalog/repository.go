package catalog

import (
	"context"

	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	ledger.TxRepository
	InsertProduct(ctx context.Context, p Product) (int64, error)
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id int64) error
	LocationExists(ctx context.Context, ref location.Ref) (bool, error)
	ProductReferenced(ctx context.Context, id int64) (bool, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
}
