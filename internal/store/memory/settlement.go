package memory

import (
	"context"
	"strings"
	"time"

	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

func (s *state) assignLineIDs(inv *settlement.Invoice) {
	for i := range inv.Lines {
		if inv.Lines[i].ID == 0 {
			inv.Lines[i].ID = s.next("invoice_lines")
		}
		inv.Lines[i].InvoiceID = inv.ID
	}
}

func (t *tx) GetInvoiceForUpdate(_ context.Context, id int64) (settlement.Invoice, error) {
	inv, ok := t.st.invoices[id]
	if !ok {
		return settlement.Invoice{}, shared.NotFound("invoice %d not found", id)
	}
	return cloneInvoice(inv), nil
}

func (t *tx) SaveInvoice(_ context.Context, inv settlement.Invoice) error {
	if _, ok := t.st.invoices[inv.ID]; !ok {
		return shared.NotFound("invoice %d not found", inv.ID)
	}
	inv = cloneInvoice(inv)
	t.st.assignLineIDs(&inv)
	t.st.invoices[inv.ID] = inv
	return nil
}

func (t *tx) InsertInvoice(_ context.Context, inv settlement.Invoice) (int64, error) {
	inv = cloneInvoice(inv)
	inv.ID = t.st.next("invoices")
	t.st.assignLineIDs(&inv)
	t.st.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (t *tx) DeleteInvoice(_ context.Context, id int64) error {
	if _, ok := t.st.invoices[id]; !ok {
		return shared.NotFound("invoice %d not found", id)
	}
	delete(t.st.invoices, id)
	return nil
}

func (t *tx) InvoiceNumberTaken(_ context.Context, number string, exceptID int64) (bool, error) {
	for _, inv := range t.st.invoices {
		if inv.ID != exceptID && strings.EqualFold(inv.Number, number) {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) CustomerExists(_ context.Context, id int64) (bool, error) {
	_, ok := t.st.customers[id]
	return ok, nil
}

func (t *tx) InvoiceHasMovements(_ context.Context, id int64) (bool, error) {
	for _, job := range t.st.jobs {
		if job.InvoiceID != nil && *job.InvoiceID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertPayment(_ context.Context, p settlement.Payment) (int64, error) {
	p.ID = t.st.next("payments")
	t.st.payments[p.ID] = p
	return p.ID, nil
}

func (t *tx) ListOverdueCandidates(_ context.Context, now time.Time) ([]int64, error) {
	candidates := sortedValues(t.st.invoices, func(inv settlement.Invoice) bool {
		return !inv.IsCancelled() &&
			inv.Status != settlement.StatusOverdue &&
			inv.SentAt != nil &&
			inv.DueDate != nil && now.After(*inv.DueDate) &&
			inv.Outstanding.IsPositive()
	})
	ids := make([]int64, 0, len(candidates))
	for _, inv := range candidates {
		ids = append(ids, inv.ID)
	}
	return ids, nil
}

// ListInvoices returns matching invoices newest first. Status filters match
// the status as of now.
func (s *Store) ListInvoices(_ context.Context, filter settlement.ListFilter) ([]settlement.Invoice, int, error) {
	now := time.Now().UTC()
	var all []settlement.Invoice
	s.read(func(st *state) {
		all = sortedValues(st.invoices, func(inv settlement.Invoice) bool {
			if filter.CustomerID > 0 && inv.CustomerID != filter.CustomerID {
				return false
			}
			if filter.Status != "" {
				cur := cloneInvoice(inv)
				cur.Recalculate(now)
				if cur.Status != filter.Status {
					return false
				}
			}
			return shared.MatchesSearch(filter.Search, inv.Number, inv.Notes, st.customers[inv.CustomerID].Name)
		})
		for i := range all {
			all[i] = cloneInvoice(all[i])
		}
	})
	return shared.Paginate(all, filter.Page), len(all), nil
}

// GetInvoice returns one invoice with its lines.
func (s *Store) GetInvoice(_ context.Context, id int64) (settlement.Invoice, error) {
	var (
		inv settlement.Invoice
		ok  bool
	)
	s.read(func(st *state) {
		inv, ok = st.invoices[id]
		inv = cloneInvoice(inv)
	})
	if !ok {
		return settlement.Invoice{}, shared.NotFound("invoice %d not found", id)
	}
	return inv, nil
}

// ListPayments returns matching payments newest first.
func (s *Store) ListPayments(_ context.Context, filter settlement.PaymentFilter) ([]settlement.Payment, int, error) {
	var all []settlement.Payment
	s.read(func(st *state) {
		all = sortedValues(st.payments, func(p settlement.Payment) bool {
			if filter.InvoiceID > 0 && p.InvoiceID != filter.InvoiceID {
				return false
			}
			if filter.Method != "" && p.Method != filter.Method {
				return false
			}
			return shared.MatchesSearch(filter.Search, p.Reference, p.ReleaseNumber, st.invoices[p.InvoiceID].Number)
		})
	})
	return shared.Paginate(all, filter.Page), len(all), nil
}

// GetPayment returns one payment.
func (s *Store) GetPayment(_ context.Context, id int64) (settlement.Payment, error) {
	var (
		p  settlement.Payment
		ok bool
	)
	s.read(func(st *state) { p, ok = st.payments[id] })
	if !ok {
		return settlement.Payment{}, shared.NotFound("payment %d not found", id)
	}
	return p, nil
}
