// Package movement executes cargo movements between locations and tracks the
// transportation jobs that carry them out.
package movement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// Type of movement.
type Type string

const (
	TypeInbound  Type = "inbound"
	TypeOutbound Type = "outbound"
	TypeTransfer Type = "transfer"
)

// IsValid checks if the type is valid.
func (t Type) IsValid() bool {
	return t == TypeInbound || t == TypeOutbound || t == TypeTransfer
}

// Status of a transportation job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInTransit, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports completed and cancelled.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo enforces pending -> in_transit -> completed, with
// cancellation from either open state.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusInTransit || next == StatusCancelled
	case StatusInTransit:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// CanEdit checks if the job metadata can still change.
func (s Status) CanEdit() bool {
	return s == StatusPending
}

// Job is a transportation job created with a successful movement.
type Job struct {
	ID             int64           `json:"id"`
	Reference      string          `json:"reference_number"`
	Type           Type            `json:"type"`
	Status         Status          `json:"status"`
	From           location.Ref    `json:"from_location"`
	To             location.Ref    `json:"to_location"`
	VehicleID      *int64          `json:"vehicle_id,omitempty"`
	InvoiceID      *int64          `json:"invoice_id,omitempty"`
	TransportValue decimal.Decimal `json:"transport_value"`
	ScheduledDate  *time.Time      `json:"scheduled_date,omitempty"`
	ActualStart    *time.Time      `json:"actual_start,omitempty"`
	ActualEnd      *time.Time      `json:"actual_end,omitempty"`
	Notes          string          `json:"notes"`
	Items          []Item          `json:"items"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Item is one product line carried by a job.
type Item struct {
	ID            int64           `json:"id"`
	JobID         int64           `json:"job_id"`
	ProductID     int64           `json:"product_id"`
	InvoiceLineID *int64          `json:"invoice_item_id,omitempty"`
	Quantity      decimal.Decimal `json:"quantity_mt"`
	Unit          string          `json:"unit"`
}

// Endpoint is a location usable as a movement source or destination.
type Endpoint struct {
	Type location.Kind `json:"type"`
	ID   int64         `json:"id"`
	Name string        `json:"name"`
}

// ListFilter narrows job listings.
type ListFilter struct {
	Search       string
	Type         Type
	Status       Status
	LocationKind location.Kind
	InvoiceID    int64
	Page         shared.Page
}

// ItemInput selects a product, or for outbound an invoice line, to move.
type ItemInput struct {
	ProductID     int64
	InvoiceLineID int64
	Quantity      decimal.Decimal
	Unit          string
}

// CreateInput requests a movement.
type CreateInput struct {
	Type           Type
	From           location.Ref
	To             location.Ref
	VehicleID      *int64
	InvoiceID      *int64
	ScheduledDate  *time.Time
	Notes          string
	Items          []ItemInput
	IdempotencyKey string
}

// UpdateInput edits descriptive job fields.
type UpdateInput struct {
	VehicleID     *int64
	ScheduledDate *time.Time
	Notes         *string
}
