// Package vessel tracks vessels, their delivery lifecycle and cargo manifests.
package vessel

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// ============================================================================
// DELIVERY STATUS
// ============================================================================

// DeliveryStatus is the position of a vessel in its delivery lifecycle.
type DeliveryStatus string

const (
	StatusInTransit   DeliveryStatus = "in_transit"
	StatusArrived     DeliveryStatus = "arrived"
	StatusDischarged  DeliveryStatus = "discharged"
	StatusMovedToPort DeliveryStatus = "moved_to_port"
	StatusClosed      DeliveryStatus = "closed"
)

var statusRank = map[DeliveryStatus]int{
	StatusInTransit:   0,
	StatusArrived:     1,
	StatusDischarged:  2,
	StatusMovedToPort: 3,
	StatusClosed:      4,
}

// IsValid checks if the status is valid.
func (s DeliveryStatus) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvanceTo reports whether next lies strictly after s. Closing is
// allowed from any open state; the caller checks the vessel is empty.
func (s DeliveryStatus) CanAdvanceTo(next DeliveryStatus) bool {
	if s == StatusClosed || !next.IsValid() {
		return false
	}
	if next == StatusClosed {
		return true
	}
	return statusRank[next] > statusRank[s]
}

// RequiresDate reports whether entering s needs a date stamp.
func (s DeliveryStatus) RequiresDate() bool {
	return s == StatusArrived || s == StatusDischarged || s == StatusMovedToPort
}

// Vessel is a ship carrying cargo. It is also a stock location.
type Vessel struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	BLNumber         string         `json:"bl_number"`
	PortID           *int64         `json:"port_id,omitempty"`
	Status           DeliveryStatus `json:"delivery_status"`
	ArrivalDate      *time.Time     `json:"arrival_date,omitempty"`
	DischargeDate    *time.Time     `json:"discharge_date,omitempty"`
	PortTransferDate *time.Time     `json:"port_transfer_date,omitempty"`
	ClosedAt         *time.Time     `json:"closed_at,omitempty"`
	HasProducts      bool           `json:"has_products"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Ref returns the vessel as a location.
func (v Vessel) Ref() location.Ref { return location.Vessel(v.ID) }

// ============================================================================
// MANIFEST
// ============================================================================

// ManifestStatus is operator-set; only the terminal states are enforced.
type ManifestStatus string

const (
	ManifestPending     ManifestStatus = "pending"
	ManifestLoading     ManifestStatus = "loading"
	ManifestDischarging ManifestStatus = "discharging"
	ManifestCompleted   ManifestStatus = "completed"
	ManifestCancelled   ManifestStatus = "cancelled"
)

// IsValid checks if the status is valid.
func (s ManifestStatus) IsValid() bool {
	switch s {
	case ManifestPending, ManifestLoading, ManifestDischarging, ManifestCompleted, ManifestCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports completed and cancelled.
func (s ManifestStatus) IsTerminal() bool {
	return s == ManifestCompleted || s == ManifestCancelled
}

// ManifestItem is one product line carried by a vessel.
type ManifestItem struct {
	ID              int64           `json:"id"`
	VesselID        int64           `json:"vessel_id"`
	ProductID       int64           `json:"product_id"`
	DischargePortID *int64          `json:"discharge_port_id,omitempty"`
	Quantity        decimal.Decimal `json:"quantity_mt"`
	BLReference     string          `json:"bl_number"`
	ArrivalDate     *time.Time      `json:"arrival_date,omitempty"`
	Status          ManifestStatus  `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// HasProducts reports whether any open manifest item still has stock aboard.
// stockAboard returns the quantity of a product held at the vessel.
func HasProducts(items []ManifestItem, stockAboard func(productID int64) (decimal.Decimal, error)) (bool, error) {
	for _, it := range items {
		if it.Status.IsTerminal() {
			continue
		}
		qty, err := stockAboard(it.ProductID)
		if err != nil {
			return false, err
		}
		if qty.IsPositive() {
			return true, nil
		}
	}
	return false, nil
}

// ============================================================================
// INPUTS
// ============================================================================

// ListFilter narrows vessel listings.
type ListFilter struct {
	Search string
	Status DeliveryStatus
	Page   shared.Page
}

// VesselInput carries editable vessel fields.
type VesselInput struct {
	Name             string
	BLNumber         string
	PortID           *int64
	ArrivalDate      *time.Time
	DischargeDate    *time.Time
	PortTransferDate *time.Time
}

// StatusInput moves a vessel along its lifecycle.
type StatusInput struct {
	Status DeliveryStatus
	Date   *time.Time
}

// ManifestInput carries editable manifest item fields.
type ManifestInput struct {
	ProductID       int64
	DischargePortID *int64
	Quantity        decimal.Decimal
	BLReference     string
	ArrivalDate     *time.Time
	Status          ManifestStatus
}
