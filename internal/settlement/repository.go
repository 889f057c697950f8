package settlement

import (
	"context"
	"time"

	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
)

// InvoiceTx reads and writes invoices inside a transaction. The movement
// engine shares it to fulfil invoice lines.
type InvoiceTx interface {
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	// SaveInvoice persists header and lines; lines without an id are inserted
	// and lines no longer present are removed.
	SaveInvoice(ctx context.Context, inv Invoice) error
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	ledger.TxRepository
	InvoiceTx
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	DeleteInvoice(ctx context.Context, id int64) error
	InvoiceNumberTaken(ctx context.Context, number string, exceptID int64) (bool, error)
	CustomerExists(ctx context.Context, id int64) (bool, error)
	InvoiceHasMovements(ctx context.Context, id int64) (bool, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	ListOverdueCandidates(ctx context.Context, now time.Time) ([]int64, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, int, error)
	GetPayment(ctx context.Context, id int64) (Payment, error)
}
