// Package ledger is the single source of truth for how much of a product is
// where, and how much of it is spoken for.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
)

// Item is the ledger view of a product row: its home location, the quantity
// physically there and the portion committed to open invoice lines.
type Item struct {
	ProductID int64
	Home      location.Ref
	OnHand    decimal.Decimal
	Committed decimal.Decimal
}

// Available is on hand minus committed, unfloored.
func (i Item) Available() decimal.Decimal {
	return i.OnHand.Sub(i.Committed)
}

// Balance is the quantity of one product held at one location.
type Balance struct {
	ProductID int64           `json:"product_id"`
	Location  location.Ref    `json:"location"`
	Quantity  decimal.Decimal `json:"quantity"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StockEntry is one line of a product's stock card.
type StockEntry struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Location  location.Ref    `json:"location"`
	QtyIn     decimal.Decimal `json:"qty_in"`
	QtyOut    decimal.Decimal `json:"qty_out"`
	Balance   decimal.Decimal `json:"balance"`
	Reference string          `json:"reference"`
	Note      string          `json:"note,omitempty"`
	PostedAt  time.Time       `json:"posted_at"`
}

// StockCardFilter narrows a stock card query.
type StockCardFilter struct {
	ProductID int64
	Location  *location.Ref
	From      time.Time
	To        time.Time
	Limit     int
}

// Position summarises a product for read-side display.
type Position struct {
	ProductID int64           `json:"product_id"`
	Home      location.Ref    `json:"location"`
	OnHand    decimal.Decimal `json:"on_hand_quantity"`
	Committed decimal.Decimal `json:"committed_quantity"`
	Available decimal.Decimal `json:"available_quantity"`
}

// PositionOf derives the display position of an item. Available is floored
// at zero here and nowhere else.
func PositionOf(item Item) Position {
	avail := item.Available()
	if avail.IsNegative() {
		avail = decimal.Zero
	}
	return Position{
		ProductID: item.ProductID,
		Home:      item.Home,
		OnHand:    item.OnHand,
		Committed: item.Committed,
		Available: avail,
	}
}

// Movement describes one relocation of stock.
type Movement struct {
	ProductID int64
	From      location.Ref
	To        location.Ref
	Quantity  decimal.Decimal
	// Fulfil is the part of Quantity that settles committed stock. Only
	// outbound deliveries set it.
	Fulfil    decimal.Decimal
	Reference string
	Note      string
}
