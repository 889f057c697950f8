package registry

import (
	"context"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertPort(ctx context.Context, p Port) (int64, error)
	GetPortForUpdate(ctx context.Context, id int64) (Port, error)
	UpdatePort(ctx context.Context, p Port) error
	DeletePort(ctx context.Context, id int64) error

	InsertFreeZone(ctx context.Context, z FreeZone) (int64, error)
	GetFreeZoneForUpdate(ctx context.Context, id int64) (FreeZone, error)
	UpdateFreeZone(ctx context.Context, z FreeZone) error
	DeleteFreeZone(ctx context.Context, id int64) error

	InsertCustomer(ctx context.Context, c Customer) (int64, error)
	GetCustomerForUpdate(ctx context.Context, id int64) (Customer, error)
	UpdateCustomer(ctx context.Context, c Customer) error
	DeleteCustomer(ctx context.Context, id int64) error

	// LocationInUse reports whether stock, records or jobs still point at ref.
	LocationInUse(ctx context.Context, ref location.Ref) (bool, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPorts(ctx context.Context, filter ListFilter) ([]Port, int, error)
	GetPort(ctx context.Context, id int64) (Port, error)
	ListFreeZones(ctx context.Context, filter ListFilter) ([]FreeZone, int, error)
	GetFreeZone(ctx context.Context, id int64) (FreeZone, error)
	ListCustomers(ctx context.Context, filter ListFilter) ([]Customer, int, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
}
