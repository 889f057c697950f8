package movement

import (
	"context"

	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	ledger.TxRepository
	settlement.InvoiceTx
	LocationExists(ctx context.Context, ref location.Ref) (bool, error)
	// LocationClosed reports whether ref can no longer take part in
	// movements. Only vessels close.
	LocationClosed(ctx context.Context, ref location.Ref) (bool, error)
	InsertJob(ctx context.Context, job Job) (int64, error)
	GetJobForUpdate(ctx context.Context, id int64) (Job, error)
	UpdateJob(ctx context.Context, job Job) error
	DeleteJob(ctx context.Context, id int64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListJobs(ctx context.Context, filter ListFilter) ([]Job, int, error)
	GetJob(ctx context.Context, id int64) (Job, error)
	GetInvoice(ctx context.Context, id int64) (settlement.Invoice, error)
}
