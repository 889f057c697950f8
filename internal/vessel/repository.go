package vessel

import (
	"context"

	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	ledger.TxRepository
	InsertVessel(ctx context.Context, v Vessel) (int64, error)
	GetVesselForUpdate(ctx context.Context, id int64) (Vessel, error)
	UpdateVessel(ctx context.Context, v Vessel) error
	// DeleteVessel removes the vessel together with its manifest.
	DeleteVessel(ctx context.Context, id int64) error
	BLNumberTaken(ctx context.Context, bl string, exceptID int64) (bool, error)
	LocationExists(ctx context.Context, ref location.Ref) (bool, error)
	LocationInUse(ctx context.Context, ref location.Ref) (bool, error)

	ListManifestItems(ctx context.Context, vesselID int64) ([]ManifestItem, error)
	InsertManifestItem(ctx context.Context, item ManifestItem) (int64, error)
	GetManifestItemForUpdate(ctx context.Context, id int64) (ManifestItem, error)
	UpdateManifestItem(ctx context.Context, item ManifestItem) error
	DeleteManifestItem(ctx context.Context, id int64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListVessels(ctx context.Context, filter ListFilter) ([]Vessel, int, error)
	GetVessel(ctx context.Context, id int64) (Vessel, error)
	ListManifest(ctx context.Context, vesselID int64) ([]ManifestItem, error)
}
