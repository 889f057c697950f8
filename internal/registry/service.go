package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/lock"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the location registries.
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

// ListPorts lists ports.
func (s *Service) ListPorts(ctx context.Context, filter ListFilter) ([]Port, int, error) {
	return s.repo.ListPorts(ctx, filter)
}

// GetPort returns one port.
func (s *Service) GetPort(ctx context.Context, id int64) (Port, error) {
	return s.repo.GetPort(ctx, id)
}

// CreatePort registers a port.
func (s *Service) CreatePort(ctx context.Context, in PortInput) (Port, error) {
	if err := requireName(in.Name); err != nil {
		return Port{}, err
	}
	if in.Capacity.IsNegative() {
		return Port{}, shared.Validation("capacity must not be negative")
	}
	now := time.Now().UTC()
	p := Port{
		Name:      strings.TrimSpace(in.Name),
		Code:      strings.ToUpper(strings.TrimSpace(in.Code)),
		Country:   strings.TrimSpace(in.Country),
		Capacity:  in.Capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPort(ctx, p)
		p.ID = id
		return err
	})
	if err != nil {
		return Port{}, err
	}
	s.record(ctx, "port:create", p.Ref())
	return p, nil
}

// UpdatePort edits a port.
func (s *Service) UpdatePort(ctx context.Context, id int64, in PortInput) (Port, error) {
	if err := requireName(in.Name); err != nil {
		return Port{}, err
	}
	if in.Capacity.IsNegative() {
		return Port{}, shared.Validation("capacity must not be negative")
	}
	var updated Port
	err := s.locked(ctx, location.Port(id), func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPortForUpdate(ctx, id)
		if err != nil {
			return err
		}
		p.Name = strings.TrimSpace(in.Name)
		p.Code = strings.ToUpper(strings.TrimSpace(in.Code))
		p.Country = strings.TrimSpace(in.Country)
		p.Capacity = in.Capacity
		p.UpdatedAt = time.Now().UTC()
		updated = p
		return tx.UpdatePort(ctx, p)
	})
	if err != nil {
		return Port{}, err
	}
	s.record(ctx, "port:update", updated.Ref())
	return updated, nil
}

// DeletePort removes a port nothing points at.
func (s *Service) DeletePort(ctx context.Context, id int64) error {
	ref := location.Port(id)
	return s.remove(ctx, ref, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetPortForUpdate(ctx, id); err != nil {
			return err
		}
		return tx.DeletePort(ctx, id)
	})
}

// ListFreeZones lists free zones.
func (s *Service) ListFreeZones(ctx context.Context, filter ListFilter) ([]FreeZone, int, error) {
	return s.repo.ListFreeZones(ctx, filter)
}

// GetFreeZone returns one free zone.
func (s *Service) GetFreeZone(ctx context.Context, id int64) (FreeZone, error) {
	return s.repo.GetFreeZone(ctx, id)
}

// CreateFreeZone registers a free zone.
func (s *Service) CreateFreeZone(ctx context.Context, in FreeZoneInput) (FreeZone, error) {
	if err := validateFreeZone(in); err != nil {
		return FreeZone{}, err
	}
	now := time.Now().UTC()
	z := FreeZone{
		Name:       strings.TrimSpace(in.Name),
		Address:    strings.TrimSpace(in.Address),
		Area:       in.Area,
		RentalRate: in.RentalRate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertFreeZone(ctx, z)
		z.ID = id
		return err
	})
	if err != nil {
		return FreeZone{}, err
	}
	s.record(ctx, "free_zone:create", z.Ref())
	return z, nil
}

// UpdateFreeZone edits a free zone.
func (s *Service) UpdateFreeZone(ctx context.Context, id int64, in FreeZoneInput) (FreeZone, error) {
	if err := validateFreeZone(in); err != nil {
		return FreeZone{}, err
	}
	var updated FreeZone
	err := s.locked(ctx, location.FreeZone(id), func(ctx context.Context, tx TxRepository) error {
		z, err := tx.GetFreeZoneForUpdate(ctx, id)
		if err != nil {
			return err
		}
		z.Name = strings.TrimSpace(in.Name)
		z.Address = strings.TrimSpace(in.Address)
		z.Area = in.Area
		z.RentalRate = in.RentalRate
		z.UpdatedAt = time.Now().UTC()
		updated = z
		return tx.UpdateFreeZone(ctx, z)
	})
	if err != nil {
		return FreeZone{}, err
	}
	s.record(ctx, "free_zone:update", updated.Ref())
	return updated, nil
}

// DeleteFreeZone removes an empty free zone.
func (s *Service) DeleteFreeZone(ctx context.Context, id int64) error {
	return s.remove(ctx, location.FreeZone(id), func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetFreeZoneForUpdate(ctx, id); err != nil {
			return err
		}
		return tx.DeleteFreeZone(ctx, id)
	})
}

// ListCustomers lists customers with their invoice aggregates.
func (s *Service) ListCustomers(ctx context.Context, filter ListFilter) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, filter)
}

// GetCustomer returns one customer.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// CreateCustomer registers a customer.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (Customer, error) {
	if err := requireName(in.Name); err != nil {
		return Customer{}, err
	}
	now := time.Now().UTC()
	c := Customer{
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Address:   strings.TrimSpace(in.Address),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertCustomer(ctx, c)
		c.ID = id
		return err
	})
	if err != nil {
		return Customer{}, err
	}
	s.record(ctx, "customer:create", c.Ref())
	return c, nil
}

// UpdateCustomer edits a customer.
func (s *Service) UpdateCustomer(ctx context.Context, id int64, in CustomerInput) (Customer, error) {
	if err := requireName(in.Name); err != nil {
		return Customer{}, err
	}
	err := s.locked(ctx, location.Customer(id), func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCustomerForUpdate(ctx, id)
		if err != nil {
			return err
		}
		c.Name = strings.TrimSpace(in.Name)
		c.Email = strings.TrimSpace(in.Email)
		c.Phone = strings.TrimSpace(in.Phone)
		c.Address = strings.TrimSpace(in.Address)
		c.UpdatedAt = time.Now().UTC()
		return tx.UpdateCustomer(ctx, c)
	})
	if err != nil {
		return Customer{}, err
	}
	s.record(ctx, "customer:update", location.Customer(id))
	return s.repo.GetCustomer(ctx, id)
}

// DeleteCustomer removes a customer with no invoices or deliveries.
func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	return s.remove(ctx, location.Customer(id), func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetCustomerForUpdate(ctx, id); err != nil {
			return err
		}
		return tx.DeleteCustomer(ctx, id)
	})
}

func (s *Service) remove(ctx context.Context, ref location.Ref, fn func(context.Context, TxRepository) error) error {
	err := s.locked(ctx, ref, func(ctx context.Context, tx TxRepository) error {
		used, err := tx.LocationInUse(ctx, ref)
		if err != nil {
			return err
		}
		if used {
			return shared.Conflict("%s is still in use", ref)
		}
		return fn(ctx, tx)
	})
	if err != nil {
		return err
	}
	s.record(ctx, string(ref.Kind)+":delete", ref)
	return nil
}

func (s *Service) locked(ctx context.Context, ref location.Ref, fn func(context.Context, TxRepository) error) error {
	key, _ := lock.LocationKey(ref)
	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return s.repo.WithTx(ctx, fn)
}

func (s *Service) record(ctx context.Context, action string, ref location.Ref) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   string(ref.Kind),
		EntityID: fmt.Sprintf("%d", ref.ID),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return shared.Validation("name is required")
	}
	return nil
}

func validateFreeZone(in FreeZoneInput) error {
	if err := requireName(in.Name); err != nil {
		return err
	}
	if in.Area.IsNegative() || in.RentalRate.IsNegative() {
		return shared.Validation("area and rental rate must not be negative")
	}
	return nil
}
