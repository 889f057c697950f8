// Package registry keeps the ports, free zones and customers stock can be
// held at or delivered to.
package registry

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// Port is a harbour products can be discharged to.
type Port struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Code      string          `json:"code"`
	Country   string          `json:"country"`
	Capacity  decimal.Decimal `json:"capacity"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Ref returns the port as a location.
func (p Port) Ref() location.Ref { return location.Port(p.ID) }

// FreeZone is a bonded storage area. Area and rental rate are reporting
// figures, never enforced.
type FreeZone struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Address    string          `json:"location"`
	Area       decimal.Decimal `json:"area"`
	RentalRate decimal.Decimal `json:"rental_rate"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Ref returns the free zone as a location.
func (z FreeZone) Ref() location.Ref { return location.FreeZone(z.ID) }

// Customer buys goods; delivered stock ends up at the customer location.
type Customer struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	Address      string          `json:"address"`
	InvoiceCount int             `json:"invoice_count"`
	Outstanding  decimal.Decimal `json:"outstanding_amount"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Ref returns the customer as a location.
func (c Customer) Ref() location.Ref { return location.Customer(c.ID) }

// ListFilter narrows registry listings.
type ListFilter struct {
	Search string
	Page   shared.Page
}

// PortInput carries editable port fields.
type PortInput struct {
	Name     string
	Code     string
	Country  string
	Capacity decimal.Decimal
}

// FreeZoneInput carries editable free zone fields.
type FreeZoneInput struct {
	Name       string
	Address    string
	Area       decimal.Decimal
	RentalRate decimal.Decimal
}

// CustomerInput carries editable customer fields.
type CustomerInput struct {
	Name    string
	Email   string
	Phone   string
	Address string
}
