package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/lock"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates product operations.
type Service struct {
	repo   RepositoryPort
	locker lock.Locker
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, locker lock.Locker, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, locker: locker, audit: audit, logger: logger}
}

// List returns products matching filter and the unpaged total.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, shared.Validation("unknown product status %q", filter.Status)
	}
	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range products {
		products[i] = products[i].withPosition()
	}
	return products, total, nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	return p.withPosition(), nil
}

// Create registers a product and books its opening quantity.
func (s *Service) Create(ctx context.Context, in CreateInput) (Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Product{}, shared.Validation("name is required")
	}
	if in.Quantity.IsNegative() {
		return Product{}, shared.Validation("quantity must not be negative")
	}
	if in.Location.IsNone() && in.Quantity.IsPositive() {
		return Product{}, shared.Validation("a quantity needs a location")
	}
	if !in.Location.IsNone() {
		if err := in.Location.Validate(); err != nil {
			return Product{}, err
		}
		if in.Location.Kind == location.KindCustomer {
			return Product{}, shared.Validation("products cannot be held at %s", in.Location)
		}
	}
	if in.Unit == "" {
		in.Unit = DefaultUnit
	}
	if in.Status == "" {
		in.Status = StatusActive
	}
	if !in.Status.IsValid() {
		return Product{}, shared.Validation("unknown product status %q", in.Status)
	}

	var keys []lock.Key
	if key, ok := lock.LocationKey(in.Location); ok {
		keys = append(keys, key)
	}
	release, err := s.locker.Acquire(ctx, keys...)
	if err != nil {
		return Product{}, err
	}
	defer release()

	now := time.Now().UTC()
	var created Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if !in.Location.IsNone() {
			ok, err := tx.LocationExists(ctx, in.Location)
			if err != nil {
				return err
			}
			if !ok {
				return shared.NotFound("location %s not found", in.Location)
			}
		}
		p := Product{
			Name:      in.Name,
			Category:  strings.TrimSpace(in.Category),
			Unit:      in.Unit,
			Status:    in.Status,
			Location:  in.Location,
			CreatedAt: now,
			UpdatedAt: now,
		}
		id, err := tx.InsertProduct(ctx, p)
		if err != nil {
			return err
		}
		if err := ledger.Open(tx).Receive(ctx, id, in.Location, in.Quantity, fmt.Sprintf("PRD-%d", id)); err != nil {
			return err
		}
		created, err = tx.GetProductForUpdate(ctx, id)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "product:create", created.ID, map[string]any{
		"location": created.Location.String(),
		"quantity": in.Quantity.String(),
	})
	s.logger.Info("product created", slog.Int64("product_id", created.ID), slog.String("location", created.Location.String()))
	return created.withPosition(), nil
}

// Update changes descriptive product fields.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Product, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return Product{}, shared.Validation("name must not be blank")
	}
	if in.Status != nil && !in.Status.IsValid() {
		return Product{}, shared.Validation("unknown product status %q", *in.Status)
	}
	release, err := s.locker.Acquire(ctx, lock.ProductKey(id))
	if err != nil {
		return Product{}, err
	}
	defer release()

	var updated Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			p.Name = strings.TrimSpace(*in.Name)
		}
		if in.Category != nil {
			p.Category = strings.TrimSpace(*in.Category)
		}
		if in.Unit != nil && *in.Unit != "" {
			p.Unit = *in.Unit
		}
		if in.Status != nil {
			p.Status = *in.Status
		}
		p.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "product:update", id, nil)
	return updated.withPosition(), nil
}

// Delete removes a product nothing depends on.
func (s *Service) Delete(ctx context.Context, id int64) error {
	release, err := s.locker.Acquire(ctx, lock.ProductKey(id))
	if err != nil {
		return err
	}
	defer release()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.Committed.IsPositive() {
			return shared.Conflict("product %d has %s committed to invoices", id, p.Committed)
		}
		used, err := tx.ProductReferenced(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return shared.Conflict("product %d is referenced by invoices, manifests or movements", id)
		}
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "product:delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
