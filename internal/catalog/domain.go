// Package catalog manages the product registry.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// DefaultUnit is metric tons.
const DefaultUnit = "MT"

// Status of a product record.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusInactive
}

// Product is a tradable good and its ledger position.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Unit      string          `json:"unit"`
	Status    Status          `json:"status"`
	Location  location.Ref    `json:"location"`
	OnHand    decimal.Decimal `json:"on_hand_quantity"`
	Committed decimal.Decimal `json:"committed_quantity"`
	Available decimal.Decimal `json:"available_quantity"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Item returns the ledger row carried by the product.
func (p Product) Item() ledger.Item {
	return ledger.Item{ProductID: p.ID, Home: p.Location, OnHand: p.OnHand, Committed: p.Committed}
}

// withPosition fills the derived read-side quantities.
func (p Product) withPosition() Product {
	p.Available = ledger.PositionOf(p.Item()).Available
	return p
}

// ListFilter narrows product listings.
type ListFilter struct {
	Search       string
	Status       Status
	LocationKind location.Kind
	Location     *location.Ref
	Page         shared.Page
}

// CreateInput registers a product, optionally with an opening quantity.
type CreateInput struct {
	Name     string
	Category string
	Unit     string
	Status   Status
	Location location.Ref
	Quantity decimal.Decimal
}

// UpdateInput changes descriptive fields. Quantities and location only move
// through the ledger.
type UpdateInput struct {
	Name     *string
	Category *string
	Unit     *string
	Status   *Status
}
