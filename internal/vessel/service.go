package vessel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/lock"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the vessel and manifest lifecycle.
type Service struct {
	repo   RepositoryPort
	locker lock.Locker
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, locker lock.Locker, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, locker: locker, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// List returns vessels matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Vessel, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, shared.Validation("unknown delivery status %q", filter.Status)
	}
	return s.repo.ListVessels(ctx, filter)
}

// Get returns one vessel.
func (s *Service) Get(ctx context.Context, id int64) (Vessel, error) {
	return s.repo.GetVessel(ctx, id)
}

// Create registers a vessel in transit.
func (s *Service) Create(ctx context.Context, in VesselInput) (Vessel, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Vessel{}, shared.Validation("name is required")
	}
	now := s.now()
	v := Vessel{
		Name:             strings.TrimSpace(in.Name),
		BLNumber:         strings.TrimSpace(in.BLNumber),
		PortID:           in.PortID,
		Status:           StatusInTransit,
		ArrivalDate:      in.ArrivalDate,
		DischargeDate:    in.DischargeDate,
		PortTransferDate: in.PortTransferDate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if v.BLNumber == "" {
		v.BLNumber = newBLNumber(now)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.checkVesselFields(ctx, tx, v); err != nil {
			return err
		}
		id, err := tx.InsertVessel(ctx, v)
		v.ID = id
		return err
	})
	if err != nil {
		return Vessel{}, err
	}
	s.record(ctx, "vessel:create", "vessel", v.ID, map[string]any{"bl_number": v.BLNumber})
	return v, nil
}

// Update edits descriptive vessel fields. Status only moves through SetStatus.
func (s *Service) Update(ctx context.Context, id int64, in VesselInput) (Vessel, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Vessel{}, shared.Validation("name is required")
	}
	var updated Vessel
	err := s.locked(ctx, []lock.Key{vesselKey(id)}, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVesselForUpdate(ctx, id)
		if err != nil {
			return err
		}
		v.Name = strings.TrimSpace(in.Name)
		if bl := strings.TrimSpace(in.BLNumber); bl != "" {
			v.BLNumber = bl
		}
		v.PortID = in.PortID
		if in.ArrivalDate != nil {
			v.ArrivalDate = in.ArrivalDate
		}
		if in.DischargeDate != nil {
			v.DischargeDate = in.DischargeDate
		}
		if in.PortTransferDate != nil {
			v.PortTransferDate = in.PortTransferDate
		}
		if err := s.checkVesselFields(ctx, tx, v); err != nil {
			return err
		}
		v.UpdatedAt = s.now()
		if err := tx.UpdateVessel(ctx, v); err != nil {
			return err
		}
		v.HasProducts, err = s.hasProducts(ctx, tx, id)
		updated = v
		return err
	})
	if err != nil {
		return Vessel{}, err
	}
	s.record(ctx, "vessel:update", "vessel", id, nil)
	return updated, nil
}

// Delete removes an empty vessel and its manifest.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.locked(ctx, []lock.Key{vesselKey(id)}, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetVesselForUpdate(ctx, id); err != nil {
			return err
		}
		has, err := s.hasProducts(ctx, tx, id)
		if err != nil {
			return err
		}
		if has {
			return shared.Conflict("vessel %d still holds products", id)
		}
		used, err := tx.LocationInUse(ctx, location.Vessel(id))
		if err != nil {
			return err
		}
		if used {
			return shared.Conflict("vessel %d is still referenced by stock or movements", id)
		}
		return tx.DeleteVessel(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "vessel:delete", "vessel", id, nil)
	return nil
}

// SetStatus advances a vessel's delivery status.
func (s *Service) SetStatus(ctx context.Context, id int64, in StatusInput) (Vessel, error) {
	if !in.Status.IsValid() {
		return Vessel{}, shared.Validation("unknown delivery status %q", in.Status)
	}
	if in.Status.RequiresDate() && (in.Date == nil || in.Date.IsZero()) {
		return Vessel{}, shared.Validation("status %s requires a date", in.Status)
	}
	var updated Vessel
	var from DeliveryStatus
	err := s.locked(ctx, []lock.Key{vesselKey(id)}, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVesselForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = v.Status
		if !v.Status.CanAdvanceTo(in.Status) {
			return shared.Conflict("vessel %d cannot move from %s to %s", id, v.Status, in.Status)
		}
		has, err := s.hasProducts(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.now()
		switch in.Status {
		case StatusArrived:
			v.ArrivalDate = in.Date
		case StatusDischarged:
			v.DischargeDate = in.Date
		case StatusMovedToPort:
			v.PortTransferDate = in.Date
		case StatusClosed:
			if has {
				return shared.Conflict("vessel %d still holds products and cannot be closed", id)
			}
			closedAt := now
			if in.Date != nil && !in.Date.IsZero() {
				closedAt = *in.Date
			}
			v.ClosedAt = &closedAt
		}
		v.Status = in.Status
		v.UpdatedAt = now
		v.HasProducts = has
		updated = v
		return tx.UpdateVessel(ctx, v)
	})
	if err != nil {
		return Vessel{}, err
	}
	s.logger.Info("vessel status changed", slog.Int64("vessel_id", id),
		slog.String("from", string(from)), slog.String("to", string(in.Status)))
	s.record(ctx, "vessel:status", "vessel", id, map[string]any{"from": from, "to": in.Status})
	return updated, nil
}

// ListManifest lists the manifest of a vessel.
func (s *Service) ListManifest(ctx context.Context, vesselID int64) ([]ManifestItem, error) {
	if _, err := s.repo.GetVessel(ctx, vesselID); err != nil {
		return nil, err
	}
	return s.repo.ListManifest(ctx, vesselID)
}

// AddItem registers cargo against a vessel.
func (s *Service) AddItem(ctx context.Context, vesselID int64, in ManifestInput) (ManifestItem, error) {
	if in.Status == "" {
		in.Status = ManifestPending
	}
	if err := validateManifest(in); err != nil {
		return ManifestItem{}, err
	}
	keys := []lock.Key{vesselKey(vesselID), lock.ProductKey(in.ProductID)}
	var item ManifestItem
	err := s.locked(ctx, keys, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVesselForUpdate(ctx, vesselID)
		if err != nil {
			return err
		}
		if v.Status == StatusClosed {
			return shared.Conflict("vessel %d is closed", vesselID)
		}
		if err := s.checkManifestFields(ctx, tx, in); err != nil {
			return err
		}
		now := s.now()
		item = ManifestItem{
			VesselID:        vesselID,
			ProductID:       in.ProductID,
			DischargePortID: in.DischargePortID,
			Quantity:        in.Quantity,
			BLReference:     manifestBL(in.BLReference, v),
			ArrivalDate:     in.ArrivalDate,
			Status:          in.Status,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		id, err := tx.InsertManifestItem(ctx, item)
		item.ID = id
		return err
	})
	if err != nil {
		return ManifestItem{}, err
	}
	s.record(ctx, "manifest:create", "manifest_item", item.ID, map[string]any{
		"vessel_id": vesselID, "product_id": in.ProductID, "quantity": in.Quantity.String(),
	})
	return item, nil
}

// UpdateItem edits an open manifest item, re-checking availability.
func (s *Service) UpdateItem(ctx context.Context, vesselID, itemID int64, in ManifestInput) (ManifestItem, error) {
	if !in.Quantity.IsPositive() {
		return ManifestItem{}, shared.Validation("quantity must be greater than zero")
	}
	if in.Status != "" && !in.Status.IsValid() {
		return ManifestItem{}, shared.Validation("unknown manifest status %q", in.Status)
	}
	current, err := s.itemOf(ctx, vesselID, itemID)
	if err != nil {
		return ManifestItem{}, err
	}
	if in.ProductID == 0 {
		in.ProductID = current.ProductID
	}
	keys := []lock.Key{vesselKey(vesselID), lock.ProductKey(current.ProductID), lock.ProductKey(in.ProductID)}
	var updated ManifestItem
	err = s.locked(ctx, keys, func(ctx context.Context, tx TxRepository) error {
		item, err := s.lockedItem(ctx, tx, vesselID, itemID)
		if err != nil {
			return err
		}
		if item.Status.IsTerminal() {
			return shared.Conflict("manifest item %d is %s", itemID, item.Status)
		}
		if in.Status == "" {
			in.Status = item.Status
		}
		if err := s.checkManifestFields(ctx, tx, in); err != nil {
			return err
		}
		v, err := tx.GetVesselForUpdate(ctx, vesselID)
		if err != nil {
			return err
		}
		item.ProductID = in.ProductID
		item.DischargePortID = in.DischargePortID
		item.Quantity = in.Quantity
		item.BLReference = manifestBL(in.BLReference, v)
		item.ArrivalDate = in.ArrivalDate
		item.Status = in.Status
		item.UpdatedAt = s.now()
		updated = item
		return tx.UpdateManifestItem(ctx, item)
	})
	if err != nil {
		return ManifestItem{}, err
	}
	s.record(ctx, "manifest:update", "manifest_item", itemID, nil)
	return updated, nil
}

// SetItemStatus changes the operator status of a manifest item.
func (s *Service) SetItemStatus(ctx context.Context, vesselID, itemID int64, status ManifestStatus) (ManifestItem, error) {
	if !status.IsValid() {
		return ManifestItem{}, shared.Validation("unknown manifest status %q", status)
	}
	var updated ManifestItem
	err := s.locked(ctx, []lock.Key{vesselKey(vesselID)}, func(ctx context.Context, tx TxRepository) error {
		item, err := s.lockedItem(ctx, tx, vesselID, itemID)
		if err != nil {
			return err
		}
		if item.Status == status {
			updated = item
			return nil
		}
		if item.Status.IsTerminal() {
			return shared.Conflict("manifest item %d is already %s", itemID, item.Status)
		}
		item.Status = status
		item.UpdatedAt = s.now()
		updated = item
		return tx.UpdateManifestItem(ctx, item)
	})
	if err != nil {
		return ManifestItem{}, err
	}
	s.record(ctx, "manifest:status", "manifest_item", itemID, map[string]any{"status": status})
	return updated, nil
}

// DeleteItem removes a manifest item that has not completed.
func (s *Service) DeleteItem(ctx context.Context, vesselID, itemID int64) error {
	err := s.locked(ctx, []lock.Key{vesselKey(vesselID)}, func(ctx context.Context, tx TxRepository) error {
		item, err := s.lockedItem(ctx, tx, vesselID, itemID)
		if err != nil {
			return err
		}
		if item.Status == ManifestCompleted {
			return shared.Conflict("manifest item %d is completed", itemID)
		}
		return tx.DeleteManifestItem(ctx, itemID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "manifest:delete", "manifest_item", itemID, nil)
	return nil
}

func (s *Service) itemOf(ctx context.Context, vesselID, itemID int64) (ManifestItem, error) {
	items, err := s.ListManifest(ctx, vesselID)
	if err != nil {
		return ManifestItem{}, err
	}
	for _, it := range items {
		if it.ID == itemID {
			return it, nil
		}
	}
	return ManifestItem{}, shared.NotFound("manifest item %d not found on vessel %d", itemID, vesselID)
}

func (s *Service) lockedItem(ctx context.Context, tx TxRepository, vesselID, itemID int64) (ManifestItem, error) {
	item, err := tx.GetManifestItemForUpdate(ctx, itemID)
	if err != nil {
		return ManifestItem{}, err
	}
	if item.VesselID != vesselID {
		return ManifestItem{}, shared.NotFound("manifest item %d not found on vessel %d", itemID, vesselID)
	}
	return item, nil
}

func (s *Service) hasProducts(ctx context.Context, tx TxRepository, vesselID int64) (bool, error) {
	items, err := tx.ListManifestItems(ctx, vesselID)
	if err != nil {
		return false, err
	}
	aboard := location.Vessel(vesselID)
	return HasProducts(items, func(productID int64) (decimal.Decimal, error) {
		bal, err := tx.GetBalanceForUpdate(ctx, productID, aboard)
		if errors.Is(err, ledger.ErrBalanceNotFound) {
			return decimal.Zero, nil
		}
		return bal.Quantity, err
	})
}

func (s *Service) checkVesselFields(ctx context.Context, tx TxRepository, v Vessel) error {
	taken, err := tx.BLNumberTaken(ctx, v.BLNumber, v.ID)
	if err != nil {
		return err
	}
	if taken {
		return shared.Conflict("bill of lading %s is already registered", v.BLNumber)
	}
	if v.PortID != nil {
		ok, err := tx.LocationExists(ctx, location.Port(*v.PortID))
		if err != nil {
			return err
		}
		if !ok {
			return shared.NotFound("port %d not found", *v.PortID)
		}
	}
	return nil
}

func (s *Service) checkManifestFields(ctx context.Context, tx TxRepository, in ManifestInput) error {
	if in.DischargePortID != nil {
		ok, err := tx.LocationExists(ctx, location.Port(*in.DischargePortID))
		if err != nil {
			return err
		}
		if !ok {
			return shared.NotFound("discharge port %d not found", *in.DischargePortID)
		}
	}
	avail, err := ledger.Open(tx).Available(ctx, in.ProductID)
	if err != nil {
		return err
	}
	if in.Quantity.GreaterThan(avail) {
		return shared.InsufficientStock("product %d: manifest quantity %s exceeds available %s",
			in.ProductID, in.Quantity, decimal.Max(avail, decimal.Zero))
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

func validateManifest(in ManifestInput) error {
	if in.ProductID <= 0 {
		return shared.Validation("product is required")
	}
	if !in.Quantity.IsPositive() {
		return shared.Validation("quantity must be greater than zero")
	}
	if !in.Status.IsValid() {
		return shared.Validation("unknown manifest status %q", in.Status)
	}
	return nil
}

func vesselKey(id int64) lock.Key {
	key, _ := lock.LocationKey(location.Vessel(id))
	return key
}

func manifestBL(ref string, v Vessel) string {
	if ref = strings.TrimSpace(ref); ref != "" {
		return ref
	}
	return v.BLNumber
}

func newBLNumber(now time.Time) string {
	return fmt.Sprintf("BL-%s-%s", now.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}
