package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/lock"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives settlement counters.
type MetricsPort interface {
	PaymentRecorded(method string, amount float64)
	Rejected(operation string, kind shared.Kind)
}

// ServiceConfig groups settlement business rules.
type ServiceConfig struct {
	MinPaymentAmount decimal.Decimal
	DefaultCurrency  string
}

// Service coordinates invoices and payments.
type Service struct {
	repo    RepositoryPort
	locker  lock.Locker
	audit   AuditPort
	metrics MetricsPort
	logger  *slog.Logger
	cfg     ServiceConfig
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, locker lock.Locker, audit AuditPort, metrics MetricsPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinPaymentAmount.IsZero() {
		cfg.MinPaymentAmount = decimal.NewFromInt(100)
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns invoices matching filter with their status derived as of now.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, shared.Validation("unknown invoice status %q", filter.Status)
	}
	invoices, total, err := s.repo.ListInvoices(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for i := range invoices {
		invoices[i].Status = invoices[i].statusAt(now)
	}
	return invoices, total, nil
}

// Get returns one invoice with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Status = inv.statusAt(s.now())
	return inv, nil
}

// Create issues an invoice and reserves every line against the ledger. One
// line failing rejects the whole invoice.
func (s *Service) Create(ctx context.Context, in InvoiceInput) (Invoice, error) {
	cur, err := s.validateHeader(&in)
	if err != nil {
		return Invoice{}, s.reject("invoice:create", err)
	}
	for _, l := range in.Lines {
		if l.ID != 0 {
			return Invoice{}, s.reject("invoice:create", shared.Validation("new invoice lines cannot carry an id"))
		}
	}
	now := s.now()
	inv := Invoice{
		Number:     strings.TrimSpace(in.Number),
		CustomerID: in.CustomerID,
		IssueDate:  in.IssueDate,
		DueDate:    in.DueDate,
		Currency:   cur,
		TaxAmount:  in.TaxAmount,
		Holded:     in.Holded,
		Paid:       decimal.Zero,
		Notes:      strings.TrimSpace(in.Notes),
		Lines:      buildLines(in.Lines),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if inv.Number == "" {
		inv.Number = newInvoiceNumber(now)
	}
	inv.Recalculate(now)

	err = s.locked(ctx, invoiceKeys(0, inv.ProductIDs()), func(ctx context.Context, tx TxRepository) error {
		if err := s.checkReferences(ctx, tx, inv); err != nil {
			return err
		}
		if err := applyDeltas(ctx, ledger.Open(tx), nil, inv.OpenByProduct()); err != nil {
			return err
		}
		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv, err = tx.GetInvoiceForUpdate(ctx, id)
		return err
	})
	if err != nil {
		return Invoice{}, s.reject("invoice:create", err)
	}
	inv.Status = inv.statusAt(now)
	s.record(ctx, "invoice:create", "invoice", inv.ID, map[string]any{"number": inv.Number, "total": inv.Total.String()})
	s.logger.Info("invoice created", slog.Int64("invoice_id", inv.ID), slog.String("total", inv.Total.String()))
	return inv, nil
}

// Update replaces header fields and lines, applying reservation deltas.
func (s *Service) Update(ctx context.Context, id int64, in InvoiceInput) (Invoice, error) {
	cur, err := s.validateHeader(&in)
	if err != nil {
		return Invoice{}, s.reject("invoice:update", err)
	}
	snapshot, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	products := snapshot.ProductIDs()
	for _, l := range in.Lines {
		products = append(products, l.ProductID)
	}

	keys := invoiceKeys(id, products)
	var updated Invoice
	err = s.locked(ctx, keys, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := stillCovered(keys, inv); err != nil {
			return err
		}
		if inv.IsCancelled() {
			return shared.Conflict("invoice %s is cancelled", inv.Number)
		}
		before := inv.OpenByProduct()
		lines, err := mergeLines(inv.Lines, in.Lines)
		if err != nil {
			return err
		}
		now := s.now()
		if n := strings.TrimSpace(in.Number); n != "" {
			inv.Number = n
		}
		inv.CustomerID = in.CustomerID
		inv.IssueDate = in.IssueDate
		inv.DueDate = in.DueDate
		inv.Currency = cur
		inv.TaxAmount = in.TaxAmount
		inv.Holded = in.Holded
		inv.Notes = strings.TrimSpace(in.Notes)
		inv.Lines = lines
		inv.UpdatedAt = now
		inv.Recalculate(now)
		if inv.Total.LessThan(inv.Paid) {
			return shared.Conflict("invoice total %s cannot drop below the paid amount %s", inv.Total, inv.Paid)
		}
		if err := s.checkReferences(ctx, tx, inv); err != nil {
			return err
		}
		if err := applyDeltas(ctx, ledger.Open(tx), before, inv.OpenByProduct()); err != nil {
			return err
		}
		if err := tx.SaveInvoice(ctx, inv); err != nil {
			return err
		}
		updated, err = tx.GetInvoiceForUpdate(ctx, id)
		return err
	})
	if err != nil {
		return Invoice{}, s.reject("invoice:update", err)
	}
	updated.Status = updated.statusAt(s.now())
	s.record(ctx, "invoice:update", "invoice", id, map[string]any{"total": updated.Total.String()})
	return updated, nil
}

// Delete removes an unpaid invoice and releases its reservations.
func (s *Service) Delete(ctx context.Context, id int64) error {
	snapshot, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	keys := invoiceKeys(id, snapshot.ProductIDs())
	err = s.locked(ctx, keys, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := stillCovered(keys, inv); err != nil {
			return err
		}
		if inv.Paid.IsPositive() {
			return shared.Conflict("invoice %s has payments and cannot be deleted", inv.Number)
		}
		moved, err := tx.InvoiceHasMovements(ctx, id)
		if err != nil {
			return err
		}
		if moved {
			return shared.Conflict("invoice %s has outbound movements and cannot be deleted", inv.Number)
		}
		if err := applyDeltas(ctx, ledger.Open(tx), inv.OpenByProduct(), nil); err != nil {
			return err
		}
		return tx.DeleteInvoice(ctx, id)
	})
	if err != nil {
		return s.reject("invoice:delete", err)
	}
	s.record(ctx, "invoice:delete", "invoice", id, nil)
	return nil
}

// Send moves a draft invoice to sent.
func (s *Service) Send(ctx context.Context, id int64) (Invoice, error) {
	var sent Invoice
	err := s.locked(ctx, invoiceKeys(id, nil), func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.IsCancelled() {
			return shared.Conflict("invoice %s is cancelled", inv.Number)
		}
		if inv.SentAt != nil {
			return shared.Conflict("invoice %s was already sent", inv.Number)
		}
		now := s.now()
		inv.SentAt = &now
		inv.UpdatedAt = now
		inv.Recalculate(now)
		sent = inv
		return tx.SaveInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, s.reject("invoice:send", err)
	}
	s.record(ctx, "invoice:send", "invoice", id, nil)
	return sent, nil
}

// Cancel voids an unpaid invoice, releasing all outstanding reservations.
func (s *Service) Cancel(ctx context.Context, id int64) (Invoice, error) {
	snapshot, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	var cancelled Invoice
	keys := invoiceKeys(id, snapshot.ProductIDs())
	err = s.locked(ctx, keys, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := stillCovered(keys, inv); err != nil {
			return err
		}
		if inv.IsCancelled() {
			return shared.Conflict("invoice %s is already cancelled", inv.Number)
		}
		if inv.Paid.IsPositive() {
			return shared.Conflict("invoice %s has payments and cannot be cancelled", inv.Number)
		}
		if err := applyDeltas(ctx, ledger.Open(tx), inv.OpenByProduct(), nil); err != nil {
			return err
		}
		now := s.now()
		inv.CancelledAt = &now
		inv.UpdatedAt = now
		inv.Recalculate(now)
		cancelled = inv
		return tx.SaveInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, s.reject("invoice:cancel", err)
	}
	s.record(ctx, "invoice:cancel", "invoice", id, nil)
	s.logger.Info("invoice cancelled", slog.Int64("invoice_id", id))
	return cancelled, nil
}

// RecordPayment appends a payment and advances the paid amount. A release
// number on the payment authorises outbound movement from then on.
func (s *Service) RecordPayment(ctx context.Context, invoiceID int64, in PaymentInput) (Payment, Invoice, error) {
	if in.Amount.LessThan(s.cfg.MinPaymentAmount) {
		return Payment{}, Invoice{}, s.reject("payment:create",
			shared.Validation("payment amount must be at least %s", s.cfg.MinPaymentAmount))
	}
	if !in.Method.IsValid() {
		return Payment{}, Invoice{}, s.reject("payment:create", shared.Validation("unknown payment method %q", in.Method))
	}
	now := s.now()
	if in.PaymentDate.IsZero() {
		in.PaymentDate = now
	}
	var (
		payment Payment
		updated Invoice
	)
	err := s.locked(ctx, invoiceKeys(invoiceID, nil), func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.IsCancelled() {
			return shared.Conflict("invoice %s is cancelled", inv.Number)
		}
		if inv.Paid.Add(in.Amount).GreaterThan(inv.Total) {
			return shared.Validation("payment of %s exceeds the outstanding amount %s", in.Amount, inv.Outstanding)
		}
		payment = Payment{
			InvoiceID:         invoiceID,
			Amount:            in.Amount,
			Method:            in.Method,
			Reference:         strings.TrimSpace(in.Reference),
			ReceiptURL:        strings.TrimSpace(in.ReceiptURL),
			ReleaseNumber:     strings.TrimSpace(in.ReleaseNumber),
			ReleaseReceiptURL: strings.TrimSpace(in.ReleaseReceiptURL),
			PaymentDate:       in.PaymentDate,
			PreviousBalance:   inv.Outstanding,
			Notes:             strings.TrimSpace(in.Notes),
			CreatedAt:         now,
		}
		inv.Paid = inv.Paid.Add(in.Amount)
		if !inv.HasRelease() && payment.ReleaseNumber != "" {
			inv.ReleaseNumber = payment.ReleaseNumber
		}
		inv.UpdatedAt = now
		inv.Recalculate(now)
		payment.NewBalance = inv.Outstanding
		id, err := tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = id
		updated = inv
		return tx.SaveInvoice(ctx, inv)
	})
	if err != nil {
		return Payment{}, Invoice{}, s.reject("payment:create", err)
	}
	if s.metrics != nil {
		s.metrics.PaymentRecorded(string(payment.Method), payment.Amount.InexactFloat64())
	}
	s.record(ctx, "payment:create", "invoice", invoiceID, map[string]any{
		"payment_id":     payment.ID,
		"amount":         payment.Amount.String(),
		"release_number": payment.ReleaseNumber,
	})
	s.logger.Info("payment recorded", slog.Int64("invoice_id", invoiceID), slog.Int64("payment_id", payment.ID),
		slog.String("amount", payment.Amount.String()), slog.String("status", string(updated.Status)))
	return payment, updated, nil
}

// ListPayments lists payment records.
func (s *Service) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, int, error) {
	if filter.Method != "" && !filter.Method.IsValid() {
		return nil, 0, shared.Validation("unknown payment method %q", filter.Method)
	}
	return s.repo.ListPayments(ctx, filter)
}

// GetPayment returns one payment.
func (s *Service) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// UpdatePayment always fails: payments are append-only and corrections are
// recorded as new payments.
func (s *Service) UpdatePayment(ctx context.Context, id int64) error {
	if _, err := s.repo.GetPayment(ctx, id); err != nil {
		return err
	}
	return s.reject("payment:update", shared.Conflict("payment %d is immutable; record a correcting payment instead", id))
}

// DeletePayment always fails for the same reason as UpdatePayment.
func (s *Service) DeletePayment(ctx context.Context, id int64) error {
	if _, err := s.repo.GetPayment(ctx, id); err != nil {
		return err
	}
	return s.reject("payment:delete", shared.Conflict("payment %d is immutable and cannot be deleted", id))
}

// MarkOverdue persists the overdue status of sent invoices past their due
// date. Reads derive the same status, so this only keeps filters accurate.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	now := s.now()
	var ids []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ids, err = tx.ListOverdueCandidates(ctx, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, id := range ids {
		changed := false
		err := s.locked(ctx, invoiceKeys(id, nil), func(ctx context.Context, tx TxRepository) error {
			inv, err := tx.GetInvoiceForUpdate(ctx, id)
			if err != nil {
				return err
			}
			inv.Recalculate(now)
			changed = inv.Status == StatusOverdue
			if !changed {
				return nil
			}
			return tx.SaveInvoice(ctx, inv)
		})
		if err != nil {
			return marked, fmt.Errorf("mark invoice %d overdue: %w", id, err)
		}
		if changed {
			marked++
		}
	}
	if marked > 0 {
		s.logger.Info("invoices marked overdue", slog.Int("count", marked))
	}
	return marked, nil
}

func (s *Service) validateHeader(in *InvoiceInput) (string, error) {
	if in.CustomerID <= 0 {
		return "", shared.Validation("customer is required")
	}
	if len(in.Lines) == 0 {
		return "", shared.Validation("an invoice needs at least one item")
	}
	if in.TaxAmount.IsNegative() || in.Holded.IsNegative() {
		return "", shared.Validation("tax and holded amounts must not be negative")
	}
	if in.IssueDate.IsZero() {
		in.IssueDate = s.now()
	}
	if in.DueDate != nil && in.DueDate.Before(in.IssueDate) {
		return "", shared.Validation("due date cannot precede the issue date")
	}
	for i, l := range in.Lines {
		if l.ProductID <= 0 {
			return "", shared.Validation("item %d: product is required", i+1)
		}
		if !l.Quantity.IsPositive() {
			return "", shared.Validation("item %d: quantity must be greater than zero", i+1)
		}
		if l.UnitPrice.IsNegative() {
			return "", shared.Validation("item %d: unit price must not be negative", i+1)
		}
	}
	code := strings.ToUpper(strings.TrimSpace(in.Currency))
	if code == "" {
		code = s.cfg.DefaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", shared.Validation("unknown currency %q", in.Currency)
	}
	return unit.String(), nil
}

func (s *Service) checkReferences(ctx context.Context, tx TxRepository, inv Invoice) error {
	ok, err := tx.CustomerExists(ctx, inv.CustomerID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NotFound("customer %d not found", inv.CustomerID)
	}
	taken, err := tx.InvoiceNumberTaken(ctx, inv.Number, inv.ID)
	if err != nil {
		return err
	}
	if taken {
		return shared.Conflict("invoice number %s is already used", inv.Number)
	}
	return nil
}

func (s *Service) locked(ctx context.Context, keys []lock.Key, fn func(context.Context, TxRepository) error) error {
	release, err := s.locker.Acquire(ctx, keys...)
	if err != nil {
		return err
	}
	defer release()
	return s.repo.WithTx(ctx, fn)
}

func (s *Service) reject(op string, err error) error {
	if err != nil && s.metrics != nil {
		s.metrics.Rejected(op, shared.KindOf(err))
	}
	return err
}

func (s *Service) record(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// applyDeltas releases what is no longer committed before reserving what is
// newly committed, so swapping quantities between lines never trips the check.
func applyDeltas(ctx context.Context, book *ledger.Book, before, after map[int64]decimal.Decimal) error {
	all := make(map[int64]decimal.Decimal, len(before)+len(after))
	for id := range before {
		all[id] = decimal.Zero
	}
	for id := range after {
		all[id] = decimal.Zero
	}
	var grow []int64
	for _, id := range sortedIDs(all) {
		delta := after[id].Sub(before[id])
		switch {
		case delta.IsNegative():
			if err := book.Release(ctx, id, delta.Neg()); err != nil {
				return err
			}
		case delta.IsPositive():
			grow = append(grow, id)
		}
	}
	for _, id := range grow {
		if err := book.Reserve(ctx, id, after[id].Sub(before[id])); err != nil {
			return err
		}
	}
	return nil
}

func buildLines(inputs []LineInput) []Line {
	lines := make([]Line, 0, len(inputs))
	for _, in := range inputs {
		lines = append(lines, Line{
			ID:          in.ID,
			ProductID:   in.ProductID,
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Delivered:   decimal.Zero,
		})
	}
	return lines
}

// mergeLines matches inputs to existing lines by id, carrying delivered
// quantities across. Delivered lines can neither disappear nor shrink below
// what was delivered.
func mergeLines(existing []Line, inputs []LineInput) ([]Line, error) {
	byID := make(map[int64]Line, len(existing))
	for _, l := range existing {
		byID[l.ID] = l
	}
	kept := make(map[int64]bool, len(inputs))
	lines := buildLines(inputs)
	for i, in := range inputs {
		if in.ID == 0 {
			continue
		}
		old, ok := byID[in.ID]
		if !ok {
			return nil, shared.NotFound("invoice item %d not found", in.ID)
		}
		if kept[in.ID] {
			return nil, shared.Validation("invoice item %d appears twice", in.ID)
		}
		kept[in.ID] = true
		if old.Delivered.IsPositive() && old.ProductID != in.ProductID {
			return nil, shared.Conflict("invoice item %d was partly delivered; its product cannot change", in.ID)
		}
		if in.Quantity.LessThan(old.Delivered) {
			return nil, shared.Validation("invoice item %d: quantity %s is below the delivered %s", in.ID, in.Quantity, old.Delivered)
		}
		lines[i].InvoiceID = old.InvoiceID
		lines[i].Delivered = old.Delivered
	}
	for _, l := range existing {
		if !kept[l.ID] && l.Delivered.IsPositive() {
			return nil, shared.Conflict("invoice item %d was partly delivered and cannot be removed", l.ID)
		}
	}
	return lines, nil
}

func invoiceKeys(invoiceID int64, productIDs []int64) []lock.Key {
	keys := make([]lock.Key, 0, len(productIDs)+1)
	if invoiceID > 0 {
		keys = append(keys, lock.InvoiceKey(invoiceID))
	}
	for _, id := range productIDs {
		keys = append(keys, lock.ProductKey(id))
	}
	return keys
}

// stillCovered fails when the invoice gained products between the unlocked
// snapshot and the locked read. The caller may simply retry.
func stillCovered(keys []lock.Key, inv Invoice) error {
	if lock.Covers(keys, invoiceKeys(0, inv.ProductIDs())...) {
		return nil
	}
	return shared.Conflict("invoice %s changed while waiting for locks, retry the request", inv.Number)
}

func sortedIDs(m map[int64]decimal.Decimal) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func newInvoiceNumber(now time.Time) string {
	return fmt.Sprintf("PI-%s-%s", now.Format("20060102"), strings.ToUpper(uuid.NewString()[:6]))
}
