package movement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cargo-ledger/internal/catalog"
	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/lock"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

const idempotencyModule = "movement"

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort remembers processed request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort receives movement counters.
type MetricsPort interface {
	MovementCreated(kind string)
	Rejected(operation string, kind shared.Kind)
}

// Service is the movement engine.
type Service struct {
	repo        RepositoryPort
	locker      lock.Locker
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	endpoints   *EndpointLookup
	logger      *slog.Logger
	now         func() time.Time
}

// Options groups optional collaborators.
type Options struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Metrics     MetricsPort
	Endpoints   *EndpointLookup
	Logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, locker lock.Locker, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		locker:      locker,
		audit:       opts.Audit,
		idempotency: opts.Idempotency,
		metrics:     opts.Metrics,
		endpoints:   opts.Endpoints,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List returns jobs matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Job, int, error) {
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, 0, shared.Validation("unknown movement type %q", filter.Type)
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, shared.Validation("unknown movement status %q", filter.Status)
	}
	return s.repo.ListJobs(ctx, filter)
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, id int64) (Job, error) {
	return s.repo.GetJob(ctx, id)
}

// Endpoints lists the locations a movement can start or end at.
func (s *Service) Endpoints(ctx context.Context) ([]Endpoint, error) {
	if s.endpoints == nil {
		return nil, errors.New("movement: endpoint lookup not configured")
	}
	return s.endpoints.All(ctx)
}

// Create validates and executes a movement as one atomic unit, then records
// a pending transportation job for it.
func (s *Service) Create(ctx context.Context, in CreateInput) (Job, error) {
	job, err := s.create(ctx, in)
	if err != nil {
		if s.metrics != nil {
			s.metrics.Rejected("movement:create", shared.KindOf(err))
		}
		s.logger.Warn("movement rejected", slog.String("type", string(in.Type)),
			slog.String("kind", string(shared.KindOf(err))), slog.Any("error", err))
		return Job{}, err
	}
	if s.metrics != nil {
		s.metrics.MovementCreated(string(job.Type))
	}
	s.record(ctx, "movement:create", job.ID, map[string]any{
		"type":      job.Type,
		"reference": job.Reference,
		"from":      job.From.String(),
		"to":        job.To.String(),
	})
	s.logger.Info("movement created", slog.Int64("job_id", job.ID), slog.String("reference", job.Reference),
		slog.String("type", string(job.Type)), slog.String("from", job.From.String()), slog.String("to", job.To.String()))
	return job, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (Job, error) {
	if !in.Type.IsValid() {
		return Job{}, shared.Validation("unknown movement type %q", in.Type)
	}
	if in.Type != TypeOutbound && len(in.Items) == 0 {
		return Job{}, shared.Validation("a movement needs at least one item")
	}
	for i, it := range in.Items {
		if it.ProductID <= 0 && it.InvoiceLineID <= 0 {
			return Job{}, shared.Validation("item %d: product is required", i+1)
		}
		if !it.Quantity.IsPositive() {
			return Job{}, shared.Validation("item %d: quantity must be greater than zero", i+1)
		}
	}

	var keys []lock.Key
	if in.Type == TypeOutbound {
		if in.InvoiceID == nil || *in.InvoiceID <= 0 {
			return Job{}, shared.Validation("outbound movements need an invoice")
		}
		var err error
		keys, err = s.outboundKeys(ctx, *in.InvoiceID, in.Items)
		if err != nil {
			return Job{}, err
		}
	} else {
		if err := validateEndpoints(in.From, in.To); err != nil {
			return Job{}, err
		}
		keys = endpointKeys(in.From, in.To)
		for _, it := range in.Items {
			keys = append(keys, lock.ProductKey(it.ProductID))
		}
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		key := idempotencyModule + ":" + in.IdempotencyKey
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Job{}, shared.Conflict("request %s was already processed", in.IdempotencyKey)
			}
			return Job{}, err
		}
		job, err := s.execute(ctx, in, keys)
		if err != nil {
			if derr := s.idempotency.Delete(ctx, key); derr != nil {
				s.logger.Warn("idempotency rollback failed", slog.String("key", key), slog.Any("error", derr))
			}
			return Job{}, err
		}
		return job, nil
	}
	return s.execute(ctx, in, keys)
}

func (s *Service) execute(ctx context.Context, in CreateInput, keys []lock.Key) (Job, error) {
	release, err := s.locker.Acquire(ctx, keys...)
	if err != nil {
		return Job{}, err
	}
	defer release()

	var job Job
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := s.now()
		job = Job{
			Reference:     newReference(now),
			Type:          in.Type,
			Status:        StatusPending,
			VehicleID:     in.VehicleID,
			ScheduledDate: in.ScheduledDate,
			Notes:         strings.TrimSpace(in.Notes),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		var err error
		if in.Type == TypeOutbound {
			err = s.applyOutbound(ctx, tx, in, keys, &job)
		} else {
			err = s.applyRelocation(ctx, tx, in, &job)
		}
		if err != nil {
			return err
		}
		id, err := tx.InsertJob(ctx, job)
		if err != nil {
			return err
		}
		job, err = tx.GetJobForUpdate(ctx, id)
		return err
	})
	return job, err
}

// applyRelocation executes inbound and transfer movements.
func (s *Service) applyRelocation(ctx context.Context, tx TxRepository, in CreateInput, job *Job) error {
	for _, ref := range []location.Ref{in.From, in.To} {
		ok, err := tx.LocationExists(ctx, ref)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NotFound("location %s not found", ref)
		}
		closed, err := tx.LocationClosed(ctx, ref)
		if err != nil {
			return err
		}
		if closed {
			return shared.Conflict("%s is closed", ref)
		}
	}
	job.From, job.To = in.From, in.To
	job.TransportValue = decimal.Zero
	book := ledger.Open(tx)
	for _, it := range in.Items {
		if err := book.Relocate(ctx, ledger.Movement{
			ProductID: it.ProductID,
			From:      in.From,
			To:        in.To,
			Quantity:  it.Quantity,
			Reference: job.Reference,
			Note:      string(in.Type),
		}); err != nil {
			return err
		}
		job.Items = append(job.Items, Item{ProductID: it.ProductID, Quantity: it.Quantity, Unit: unitOf(it.Unit)})
	}
	return nil
}

// applyOutbound delivers invoice lines to the invoice's customer. The checks
// run in a fixed order: release authorisation first, then line selection,
// paid balance and finally stock.
func (s *Service) applyOutbound(ctx context.Context, tx TxRepository, in CreateInput, keys []lock.Key, job *Job) error {
	inv, err := tx.GetInvoiceForUpdate(ctx, *in.InvoiceID)
	if err != nil {
		return err
	}
	for _, id := range inv.ProductIDs() {
		if !lock.Covers(keys, lock.ProductKey(id)) {
			return shared.Conflict("invoice %s changed while waiting for locks, retry the request", inv.Number)
		}
	}
	if inv.IsCancelled() {
		return shared.Conflict("invoice %s is cancelled", inv.Number)
	}
	if !inv.HasRelease() {
		return shared.MissingRelease("invoice %s has no payment carrying a release number", inv.Number)
	}
	picks, err := selectLines(inv, in.Items)
	if err != nil {
		return err
	}

	value := decimal.Zero
	for _, p := range picks {
		value = value.Add(p.quantity.Mul(inv.Lines[p.line].UnitPrice))
	}
	value = value.Round(2)
	// Holded funds are deliberately not deducted here.
	if value.GreaterThan(inv.Paid) {
		return shared.InsufficientBalance("transport value %s exceeds the paid amount %s", value, inv.Paid)
	}

	book := ledger.Open(tx)
	var from location.Ref
	for _, p := range picks {
		item, err := book.Item(ctx, inv.Lines[p.line].ProductID)
		if err != nil {
			return err
		}
		if item.Home.IsNone() || item.Home.Kind == location.KindCustomer {
			return shared.InsufficientStock("product %d is not held at any location", item.ProductID)
		}
		if from.IsNone() {
			from = item.Home
		} else if from != item.Home {
			return shared.Validation("selected products are held at different locations (%s, %s)", from, item.Home)
		}
	}

	to := location.Customer(inv.CustomerID)
	closed, err := tx.LocationClosed(ctx, from)
	if err != nil {
		return err
	}
	if closed {
		return shared.Conflict("%s is closed", from)
	}
	for _, p := range picks {
		line := &inv.Lines[p.line]
		if err := book.Relocate(ctx, ledger.Movement{
			ProductID: line.ProductID,
			From:      from,
			To:        to,
			Quantity:  p.quantity,
			Fulfil:    p.quantity,
			Reference: job.Reference,
			Note:      "outbound " + inv.Number,
		}); err != nil {
			return err
		}
		line.Delivered = line.Delivered.Add(p.quantity)
		lineID := line.ID
		job.Items = append(job.Items, Item{ProductID: line.ProductID, InvoiceLineID: &lineID, Quantity: p.quantity, Unit: unitOf(p.unit)})
	}
	inv.UpdatedAt = s.now()
	inv.Recalculate(inv.UpdatedAt)
	if err := tx.SaveInvoice(ctx, inv); err != nil {
		return err
	}
	invoiceID := inv.ID
	job.InvoiceID = &invoiceID
	job.From, job.To = from, to
	job.TransportValue = value
	return nil
}

type pick struct {
	line     int
	quantity decimal.Decimal
	unit     string
}

// selectLines resolves requested items to invoice lines. With no items every
// open line is selected in full.
func selectLines(inv settlement.Invoice, items []ItemInput) ([]pick, error) {
	if len(items) == 0 {
		var picks []pick
		for i, l := range inv.Lines {
			if l.Open().IsPositive() {
				picks = append(picks, pick{line: i, quantity: l.Open()})
			}
		}
		if len(picks) == 0 {
			return nil, shared.Conflict("invoice %s has nothing left to deliver", inv.Number)
		}
		return picks, nil
	}
	requested := make(map[int]decimal.Decimal)
	picks := make([]pick, 0, len(items))
	for i, it := range items {
		idx := -1
		for j, l := range inv.Lines {
			switch {
			case it.InvoiceLineID > 0 && l.ID == it.InvoiceLineID:
				idx = j
			case it.InvoiceLineID <= 0 && l.ProductID == it.ProductID && l.Open().IsPositive():
				if idx >= 0 {
					return nil, shared.Validation("item %d: product %d appears on several invoice lines; select the line", i+1, it.ProductID)
				}
				idx = j
			}
		}
		if idx < 0 {
			return nil, shared.Validation("item %d: no matching open line on invoice %s", i+1, inv.Number)
		}
		line := inv.Lines[idx]
		if it.ProductID > 0 && it.ProductID != line.ProductID {
			return nil, shared.Validation("item %d: invoice line %d is for product %d", i+1, line.ID, line.ProductID)
		}
		requested[idx] = requested[idx].Add(it.Quantity)
		if requested[idx].GreaterThan(line.Open()) {
			return nil, shared.Validation("item %d: quantity %s exceeds the %s left to deliver on line %d",
				i+1, requested[idx], line.Open(), line.ID)
		}
		picks = append(picks, pick{line: idx, quantity: it.Quantity, unit: it.Unit})
	}
	return picks, nil
}

// outboundKeys reads a snapshot of the invoice to learn which products the
// movement will touch. applyOutbound confirms the set under the locks.
func (s *Service) outboundKeys(ctx context.Context, invoiceID int64, items []ItemInput) ([]lock.Key, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	keys := []lock.Key{lock.InvoiceKey(invoiceID)}
	for _, id := range inv.ProductIDs() {
		keys = append(keys, lock.ProductKey(id))
	}
	for _, it := range items {
		if it.ProductID > 0 {
			keys = append(keys, lock.ProductKey(it.ProductID))
		}
	}
	return keys, nil
}

// Update edits a pending job's descriptive fields.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Job, error) {
	var updated Job
	err := s.locked(ctx, id, func(ctx context.Context, tx TxRepository) error {
		job, err := tx.GetJobForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !job.Status.CanEdit() {
			return shared.Conflict("movement %s is %s and can no longer be edited", job.Reference, job.Status)
		}
		if in.VehicleID != nil {
			job.VehicleID = in.VehicleID
		}
		if in.ScheduledDate != nil {
			job.ScheduledDate = in.ScheduledDate
		}
		if in.Notes != nil {
			job.Notes = strings.TrimSpace(*in.Notes)
		}
		job.UpdatedAt = s.now()
		updated = job
		return tx.UpdateJob(ctx, job)
	})
	if err != nil {
		return Job{}, err
	}
	s.record(ctx, "movement:update", id, nil)
	return updated, nil
}

// SetStatus advances a job. The ledger is not touched: stock moved when the
// job was created.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status) (Job, error) {
	if !status.IsValid() {
		return Job{}, shared.Validation("unknown movement status %q", status)
	}
	var (
		updated Job
		from    Status
	)
	err := s.locked(ctx, id, func(ctx context.Context, tx TxRepository) error {
		job, err := tx.GetJobForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = job.Status
		if !job.Status.CanTransitionTo(status) {
			return shared.Conflict("movement %s cannot move from %s to %s", job.Reference, job.Status, status)
		}
		now := s.now()
		switch status {
		case StatusInTransit:
			job.ActualStart = &now
		case StatusCompleted:
			job.ActualEnd = &now
		}
		job.Status = status
		job.UpdatedAt = now
		updated = job
		return tx.UpdateJob(ctx, job)
	})
	if err != nil {
		return Job{}, err
	}
	s.logger.Info("movement status changed", slog.Int64("job_id", id),
		slog.String("from", string(from)), slog.String("to", string(status)))
	s.record(ctx, "movement:status", id, map[string]any{"from": from, "to": status})
	return updated, nil
}

// Delete removes a pending job. Its relocation stays applied; reversing it
// needs a compensating movement.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.locked(ctx, id, func(ctx context.Context, tx TxRepository) error {
		job, err := tx.GetJobForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !job.Status.CanEdit() {
			return shared.Conflict("movement %s is %s and cannot be deleted", job.Reference, job.Status)
		}
		return tx.DeleteJob(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "movement:delete", id, nil)
	return nil
}

func (s *Service) locked(ctx context.Context, jobID int64, fn func(context.Context, TxRepository) error) error {
	release, err := s.locker.Acquire(ctx, lock.JobKey(jobID))
	if err != nil {
		return err
	}
	defer release()
	return s.repo.WithTx(ctx, fn)
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "transportation_job",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func validateEndpoints(from, to location.Ref) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	if from == to {
		return shared.Validation("source and destination must differ")
	}
	if from.Kind == location.KindCustomer || to.Kind == location.KindCustomer {
		return shared.Validation("customer locations are only reached by outbound movements")
	}
	return nil
}

func endpointKeys(refs ...location.Ref) []lock.Key {
	var keys []lock.Key
	for _, ref := range refs {
		if key, ok := lock.LocationKey(ref); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func unitOf(unit string) string {
	if unit = strings.TrimSpace(unit); unit != "" {
		return unit
	}
	return catalog.DefaultUnit
}

func newReference(now time.Time) string {
	return fmt.Sprintf("TRN-%s-%s", now.Format("20060102"), strings.ToUpper(uuid.NewString()[:6]))
}
