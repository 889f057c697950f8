package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
)

const (
	invoiceColumns = `i.id, i.pi_number, i.customer_id, i.issue_date, i.due_date, i.status, i.currency,
	i.subtotal, i.tax_amount, i.total_amount, i.paid_amount, i.holded_amount, i.outstanding_amount,
	i.release_number, i.notes, i.sent_at, i.cancelled_at, i.created_at, i.updated_at`
	lineColumns    = "id, invoice_id, product_id, description, quantity, unit_price, line_total, delivered_quantity"
	paymentColumns = `p.id, p.invoice_id, p.amount, p.payment_method, p.reference_number, p.receipt_url,
	p.release_number, p.release_receipt_url, p.payment_date, p.previous_balance, p.new_balance,
	p.notes, p.created_at`

	// currentStatus derives the invoice status as of now, matching Invoice.Recalculate.
	currentStatus = `CASE
		WHEN i.cancelled_at IS NOT NULL THEN 'cancelled'
		WHEN i.outstanding_amount = 0 THEN 'paid'
		WHEN i.sent_at IS NULL THEN 'draft'
		WHEN i.due_date IS NOT NULL AND i.due_date < NOW() THEN 'overdue'
		ELSE 'sent' END`
)

func scanInvoice(row pgx.Row) (settlement.Invoice, error) {
	var inv settlement.Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.IssueDate, &inv.DueDate, &inv.Status, &inv.Currency,
		&inv.Subtotal, &inv.TaxAmount, &inv.Total, &inv.Paid, &inv.Holded, &inv.Outstanding,
		&inv.ReleaseNumber, &inv.Notes, &inv.SentAt, &inv.CancelledAt, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func scanLine(row pgx.Row) (settlement.Line, error) {
	var l settlement.Line
	err := row.Scan(&l.ID, &l.InvoiceID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice, &l.LineTotal, &l.Delivered)
	return l, err
}

func scanPayment(row pgx.Row) (settlement.Payment, error) {
	var p settlement.Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.ReceiptURL,
		&p.ReleaseNumber, &p.ReleaseReceiptURL, &p.PaymentDate, &p.PreviousBalance, &p.NewBalance,
		&p.Notes, &p.CreatedAt)
	return p, err
}

// attachLines loads the lines of every invoice in one round trip.
func attachLines(ctx context.Context, q querier, invoices []settlement.Invoice, lock string) error {
	if len(invoices) == 0 {
		return nil
	}
	ids := make([]int64, len(invoices))
	index := make(map[int64]int, len(invoices))
	for i, inv := range invoices {
		ids[i] = inv.ID
		index[inv.ID] = i
	}
	rows, err := q.Query(ctx,
		"SELECT "+lineColumns+" FROM invoice_items WHERE invoice_id = ANY($1) ORDER BY id"+lock, ids)
	if err != nil {
		return err
	}
	lines, err := collect(rows, scanLine)
	if err != nil {
		return err
	}
	for _, l := range lines {
		i := index[l.InvoiceID]
		invoices[i].Lines = append(invoices[i].Lines, l)
	}
	return nil
}

func getInvoice(ctx context.Context, q querier, id int64, lock string) (settlement.Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx, "SELECT "+invoiceColumns+" FROM invoices i WHERE i.id = $1"+lock, id))
	if err != nil {
		return settlement.Invoice{}, notFound(err, "invoice %d not found", id)
	}
	one := []settlement.Invoice{inv}
	if err := attachLines(ctx, q, one, lock); err != nil {
		return settlement.Invoice{}, err
	}
	return one[0], nil
}

func (t *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (settlement.Invoice, error) {
	return getInvoice(ctx, t.q, id, " FOR UPDATE")
}

func (t *txRepo) writeInvoiceHeader(ctx context.Context, inv settlement.Invoice) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE invoices SET pi_number = $2, customer_id = $3, issue_date = $4, due_date = $5, status = $6,
		    currency = $7, subtotal = $8, tax_amount = $9, total_amount = $10, paid_amount = $11,
		    holded_amount = $12, outstanding_amount = $13, release_number = $14, notes = $15,
		    sent_at = $16, cancelled_at = $17, updated_at = $18
		WHERE id = $1`,
		inv.ID, inv.Number, inv.CustomerID, inv.IssueDate, inv.DueDate, inv.Status,
		inv.Currency, inv.Subtotal, inv.TaxAmount, inv.Total, inv.Paid,
		inv.Holded, inv.Outstanding, inv.ReleaseNumber, inv.Notes,
		inv.SentAt, inv.CancelledAt, inv.UpdatedAt)
	return mustAffect(tag, err, "invoice %d not found", inv.ID)
}

func (t *txRepo) insertLine(ctx context.Context, invoiceID int64, l settlement.Line) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO invoice_items (invoice_id, product_id, description, quantity, unit_price, line_total, delivered_quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		invoiceID, l.ProductID, l.Description, l.Quantity, l.UnitPrice, l.LineTotal, l.Delivered)
	return err
}

func (t *txRepo) SaveInvoice(ctx context.Context, inv settlement.Invoice) error {
	if err := t.writeInvoiceHeader(ctx, inv); err != nil {
		return err
	}
	keep := make([]int64, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		if l.ID > 0 {
			keep = append(keep, l.ID)
		}
	}
	if _, err := t.q.Exec(ctx,
		"DELETE FROM invoice_items WHERE invoice_id = $1 AND NOT (id = ANY($2))", inv.ID, keep); err != nil {
		return err
	}
	for _, l := range inv.Lines {
		if l.ID == 0 {
			if err := t.insertLine(ctx, inv.ID, l); err != nil {
				return err
			}
			continue
		}
		tag, err := t.q.Exec(ctx, `
			UPDATE invoice_items SET product_id = $3, description = $4, quantity = $5,
			    unit_price = $6, line_total = $7, delivered_quantity = $8
			WHERE id = $1 AND invoice_id = $2`,
			l.ID, inv.ID, l.ProductID, l.Description, l.Quantity, l.UnitPrice, l.LineTotal, l.Delivered)
		if err := mustAffect(tag, err, "invoice line %d not found", l.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv settlement.Invoice) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO invoices (pi_number, customer_id, issue_date, due_date, status, currency,
		    subtotal, tax_amount, total_amount, paid_amount, holded_amount, outstanding_amount,
		    release_number, notes, sent_at, cancelled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`,
		inv.Number, inv.CustomerID, inv.IssueDate, inv.DueDate, inv.Status, inv.Currency,
		inv.Subtotal, inv.TaxAmount, inv.Total, inv.Paid, inv.Holded, inv.Outstanding,
		inv.ReleaseNumber, inv.Notes, inv.SentAt, inv.CancelledAt, inv.CreatedAt, inv.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, l := range inv.Lines {
		if err := t.insertLine(ctx, id, l); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (t *txRepo) DeleteInvoice(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM invoices WHERE id = $1", id)
	return mustAffect(tag, err, "invoice %d not found", id)
}

func (t *txRepo) InvoiceNumberTaken(ctx context.Context, number string, exceptID int64) (bool, error) {
	return exists(ctx, t.q, "SELECT 1 FROM invoices WHERE LOWER(pi_number) = LOWER($1) AND id <> $2", number, exceptID)
}

func (t *txRepo) CustomerExists(ctx context.Context, id int64) (bool, error) {
	return exists(ctx, t.q, "SELECT 1 FROM customers WHERE id = $1", id)
}

func (t *txRepo) InvoiceHasMovements(ctx context.Context, id int64) (bool, error) {
	return exists(ctx, t.q, "SELECT 1 FROM transportation_jobs WHERE invoice_id = $1", id)
}

func (t *txRepo) InsertPayment(ctx context.Context, p settlement.Payment) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO payments (invoice_id, amount, payment_method, reference_number, receipt_url,
		    release_number, release_receipt_url, payment_date, previous_balance, new_balance, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		p.InvoiceID, p.Amount, p.Method, p.Reference, p.ReceiptURL,
		p.ReleaseNumber, p.ReleaseReceiptURL, p.PaymentDate, p.PreviousBalance, p.NewBalance, p.Notes, p.CreatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) ListOverdueCandidates(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := t.q.Query(ctx, `
		SELECT id FROM invoices
		WHERE cancelled_at IS NULL AND status <> 'overdue' AND sent_at IS NOT NULL
		  AND due_date IS NOT NULL AND due_date < $1 AND outstanding_amount > 0
		ORDER BY id DESC`, now)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (int64, error) {
		var id int64
		err := row.Scan(&id)
		return id, err
	})
}

// ListInvoices returns matching invoices newest first. Status filters match
// the status as of now.
func (s *Store) ListInvoices(ctx context.Context, filter settlement.ListFilter) ([]settlement.Invoice, int, error) {
	var c conditions
	if filter.CustomerID > 0 {
		c.add("i.customer_id = %s", filter.CustomerID)
	}
	if filter.Status != "" {
		c.add("("+currentStatus+") = %s", string(filter.Status))
	}
	c.search(filter.Search, "i.pi_number", "i.notes", "c.name")
	from := "invoices i JOIN customers c ON c.id = i.customer_id"
	total, err := c.count(ctx, s.pool, from)
	if err != nil {
		return nil, 0, err
	}
	query := "SELECT " + invoiceColumns + " FROM " + from + c.where() + " ORDER BY i.id DESC" + c.page(filter.Page)
	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows, scanInvoice)
	if err != nil {
		return nil, 0, err
	}
	if err := attachLines(ctx, s.pool, out, ""); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetInvoice returns one invoice with its lines.
func (s *Store) GetInvoice(ctx context.Context, id int64) (settlement.Invoice, error) {
	return getInvoice(ctx, s.pool, id, "")
}

// ListPayments returns matching payments newest first.
func (s *Store) ListPayments(ctx context.Context, filter settlement.PaymentFilter) ([]settlement.Payment, int, error) {
	var c conditions
	if filter.InvoiceID > 0 {
		c.add("p.invoice_id = %s", filter.InvoiceID)
	}
	if filter.Method != "" {
		c.add("p.payment_method = %s", string(filter.Method))
	}
	c.search(filter.Search, "p.reference_number", "p.release_number", "i.pi_number")
	from := "payments p JOIN invoices i ON i.id = p.invoice_id"
	total, err := c.count(ctx, s.pool, from)
	if err != nil {
		return nil, 0, err
	}
	query := "SELECT " + paymentColumns + " FROM " + from + c.where() + " ORDER BY p.id DESC" + c.page(filter.Page)
	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows, scanPayment)
	return out, total, err
}

// GetPayment returns one payment.
func (s *Store) GetPayment(ctx context.Context, id int64) (settlement.Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx, "SELECT "+paymentColumns+" FROM payments p WHERE p.id = $1", id))
	if err != nil {
		return settlement.Payment{}, notFound(err, "payment %d not found", id)
	}
	return p, nil
}
