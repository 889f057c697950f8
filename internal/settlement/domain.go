// Package settlement is the financial side of the release-to-ship decision:
// proforma invoices, partial payments and release authorisation.
package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// Status of an invoice. It is always derived, never set by clients.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	default:
		return false
	}
}

// Method of a payment.
type Method string

const (
	MethodCash         Method = "cash"
	MethodBankTransfer Method = "bank_transfer"
	MethodCheck        Method = "check"
	MethodCreditCard   Method = "credit_card"
	MethodOther        Method = "other"
)

// IsValid checks if the method is valid.
func (m Method) IsValid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCheck, MethodCreditCard, MethodOther:
		return true
	default:
		return false
	}
}

// Invoice is a proforma invoice and its settlement state.
type Invoice struct {
	ID            int64           `json:"id"`
	Number        string          `json:"pi_number"`
	CustomerID    int64           `json:"customer_id"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	Status        Status          `json:"status"`
	Currency      string          `json:"currency"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Total         decimal.Decimal `json:"total_amount"`
	Paid          decimal.Decimal `json:"paid_amount"`
	Holded        decimal.Decimal `json:"holded_amount"`
	Outstanding   decimal.Decimal `json:"outstanding_amount"`
	ReleaseNumber string          `json:"release_number,omitempty"`
	Notes         string          `json:"notes"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	Lines         []Line          `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Line is one product line of an invoice.
type Line struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	ProductID   int64           `json:"product_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Delivered   decimal.Decimal `json:"delivered_quantity"`
}

// Open is the part of the line still committed to the customer.
func (l Line) Open() decimal.Decimal {
	return l.Quantity.Sub(l.Delivered)
}

// Payment is an append-only settlement record.
type Payment struct {
	ID                int64           `json:"id"`
	InvoiceID         int64           `json:"invoice_id"`
	Amount            decimal.Decimal `json:"amount"`
	Method            Method          `json:"payment_method"`
	Reference         string          `json:"reference_number"`
	ReceiptURL        string          `json:"receipt_url,omitempty"`
	ReleaseNumber     string          `json:"release_number,omitempty"`
	ReleaseReceiptURL string          `json:"release_receipt_url,omitempty"`
	PaymentDate       time.Time       `json:"payment_date"`
	PreviousBalance   decimal.Decimal `json:"previous_balance"`
	NewBalance        decimal.Decimal `json:"new_balance"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// IsCancelled reports an explicitly cancelled invoice.
func (inv Invoice) IsCancelled() bool {
	return inv.CancelledAt != nil
}

// HasRelease reports whether outbound movement is authorised.
func (inv Invoice) HasRelease() bool {
	return inv.ReleaseNumber != ""
}

// Recalculate derives totals, outstanding and status from lines and payments.
func (inv *Invoice) Recalculate(now time.Time) {
	subtotal := decimal.Zero
	for i := range inv.Lines {
		inv.Lines[i].LineTotal = inv.Lines[i].Quantity.Mul(inv.Lines[i].UnitPrice).Round(2)
		subtotal = subtotal.Add(inv.Lines[i].LineTotal)
	}
	inv.Subtotal = subtotal
	inv.Total = subtotal.Add(inv.TaxAmount)
	inv.Outstanding = inv.Total.Sub(inv.Paid)
	inv.Status = inv.statusAt(now)
}

func (inv Invoice) statusAt(now time.Time) Status {
	switch {
	case inv.IsCancelled():
		return StatusCancelled
	case inv.Outstanding.IsZero():
		return StatusPaid
	case inv.SentAt == nil:
		return StatusDraft
	case inv.DueDate != nil && now.After(*inv.DueDate):
		return StatusOverdue
	default:
		return StatusSent
	}
}

// OpenByProduct sums the still-committed quantity of every product. A
// cancelled invoice commits nothing.
func (inv Invoice) OpenByProduct() map[int64]decimal.Decimal {
	open := make(map[int64]decimal.Decimal)
	if inv.IsCancelled() {
		return open
	}
	for _, l := range inv.Lines {
		if q := l.Open(); q.IsPositive() {
			open[l.ProductID] = open[l.ProductID].Add(q)
		}
	}
	return open
}

// ProductIDs lists the products referenced by the invoice lines.
func (inv Invoice) ProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(inv.Lines))
	ids := make([]int64, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Search     string
	CustomerID int64
	Status     Status
	Page       shared.Page
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	Search    string
	InvoiceID int64
	Method    Method
	Page      shared.Page
}

// LineInput describes an invoice line. ID matches an existing line on update.
type LineInput struct {
	ID          int64
	ProductID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// InvoiceInput carries the editable invoice fields.
type InvoiceInput struct {
	CustomerID int64
	Number     string
	IssueDate  time.Time
	DueDate    *time.Time
	Currency   string
	TaxAmount  decimal.Decimal
	Holded     decimal.Decimal
	Notes      string
	Lines      []LineInput
}

// PaymentInput records a payment against an invoice.
type PaymentInput struct {
	Amount            decimal.Decimal
	Method            Method
	Reference         string
	ReceiptURL        string
	ReleaseNumber     string
	ReleaseReceiptURL string
	PaymentDate       time.Time
	Notes             string
}

var errMissingInvoice = shared.Validation("invoice_id is required")
