package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// Book applies ledger mutations through an open transaction. Callers must
// already hold the product locks for every product they touch.
type Book struct {
	tx  TxRepository
	now func() time.Time
}

// Open binds a Book to tx.
func Open(tx TxRepository) *Book {
	return &Book{tx: tx, now: func() time.Time { return time.Now().UTC() }}
}

// Item returns the locked ledger row of a product.
func (b *Book) Item(ctx context.Context, productID int64) (Item, error) {
	return b.tx.GetItemForUpdate(ctx, productID)
}

// Available returns on hand minus committed for the product's home location.
// The value is not floored so callers can detect a true oversell.
func (b *Book) Available(ctx context.Context, productID int64) (decimal.Decimal, error) {
	item, err := b.tx.GetItemForUpdate(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return item.Available(), nil
}

// Receive books an opening quantity at loc.
func (b *Book) Receive(ctx context.Context, productID int64, loc location.Ref, qty decimal.Decimal, reference string) error {
	if qty.IsNegative() {
		return shared.Validation("quantity must not be negative")
	}
	item, err := b.tx.GetItemForUpdate(ctx, productID)
	if err != nil {
		return err
	}
	if loc.IsNone() {
		if qty.IsPositive() {
			return shared.Validation("stock cannot be received without a location")
		}
		return nil
	}
	if err := loc.Validate(); err != nil {
		return err
	}
	if loc.Kind == location.KindCustomer {
		return shared.Validation("stock cannot be received at %s", loc)
	}
	if item.Home.IsNone() {
		item.Home = loc
	}
	if qty.IsZero() {
		return b.tx.SaveItem(ctx, item)
	}
	bal, err := b.balance(ctx, productID, loc)
	if err != nil {
		return err
	}
	now := b.now()
	bal.Quantity = bal.Quantity.Add(qty)
	bal.UpdatedAt = now
	if err := b.tx.UpsertBalance(ctx, bal); err != nil {
		return err
	}
	if err := b.tx.InsertStockEntry(ctx, StockEntry{
		ProductID: productID,
		Location:  loc,
		QtyIn:     qty,
		QtyOut:    decimal.Zero,
		Balance:   bal.Quantity,
		Reference: reference,
		Note:      "opening balance",
		PostedAt:  now,
	}); err != nil {
		return err
	}
	if loc == item.Home {
		item.OnHand = bal.Quantity
	}
	return b.tx.SaveItem(ctx, item)
}

// Reserve commits qty of a product's available stock to an invoice line.
func (b *Book) Reserve(ctx context.Context, productID int64, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return shared.Validation("reserved quantity must be positive")
	}
	item, err := b.tx.GetItemForUpdate(ctx, productID)
	if err != nil {
		return err
	}
	if avail := item.Available(); qty.GreaterThan(avail) {
		return shared.InsufficientStock("product %d: requested %s, available %s", productID, qty, floor(avail))
	}
	item.Committed = item.Committed.Add(qty)
	return b.tx.SaveItem(ctx, item)
}

// Release returns committed stock to the available pool.
func (b *Book) Release(ctx context.Context, productID int64, qty decimal.Decimal) error {
	if qty.IsZero() {
		return nil
	}
	if qty.IsNegative() {
		return shared.Validation("released quantity must be positive")
	}
	item, err := b.tx.GetItemForUpdate(ctx, productID)
	if err != nil {
		return err
	}
	if qty.GreaterThan(item.Committed) {
		return shared.Conflict("product %d: cannot release %s, only %s committed", productID, qty, item.Committed)
	}
	item.Committed = item.Committed.Sub(qty)
	return b.tx.SaveItem(ctx, item)
}

// Relocate moves stock between two locations. It is the only operation that
// changes where a product is and how much of it is there.
func (b *Book) Relocate(ctx context.Context, m Movement) error {
	if !m.Quantity.IsPositive() {
		return shared.Validation("product %d: quantity must be positive", m.ProductID)
	}
	if m.Fulfil.IsNegative() || m.Fulfil.GreaterThan(m.Quantity) {
		return shared.Validation("product %d: fulfilled quantity out of range", m.ProductID)
	}
	if err := m.From.Validate(); err != nil {
		return err
	}
	if err := m.To.Validate(); err != nil {
		return err
	}
	if m.From == m.To {
		return shared.Validation("source and destination must differ")
	}
	if m.From.Kind == location.KindCustomer {
		return shared.InsufficientStock("product %d: stock delivered to %s is no longer held", m.ProductID, m.From)
	}
	item, err := b.tx.GetItemForUpdate(ctx, m.ProductID)
	if err != nil {
		return err
	}
	from, err := b.balance(ctx, m.ProductID, m.From)
	if err != nil {
		return err
	}
	to, err := b.balance(ctx, m.ProductID, m.To)
	if err != nil {
		return err
	}

	remaining := from.Quantity.Sub(m.Quantity)
	atHome := m.From == item.Home
	if atHome {
		if m.Fulfil.GreaterThan(item.Committed) {
			return shared.Conflict("product %d: delivering %s but only %s committed", m.ProductID, m.Fulfil, item.Committed)
		}
		stillCommitted := item.Committed.Sub(m.Fulfil)
		if remaining.LessThan(stillCommitted) {
			return shared.InsufficientStock("product %d at %s: requested %s, available %s",
				m.ProductID, m.From, m.Quantity, floor(from.Quantity.Sub(stillCommitted)))
		}
		item.Committed = stillCommitted
	} else {
		if m.Fulfil.IsPositive() {
			return shared.Conflict("product %d: committed stock only leaves from %s", m.ProductID, item.Home)
		}
		if remaining.IsNegative() {
			return shared.InsufficientStock("product %d at %s: requested %s, on hand %s",
				m.ProductID, m.From, m.Quantity, from.Quantity)
		}
	}

	now := b.now()
	from.Quantity = remaining
	from.UpdatedAt = now
	to.Quantity = to.Quantity.Add(m.Quantity)
	to.UpdatedAt = now
	if err := b.tx.UpsertBalance(ctx, from); err != nil {
		return err
	}
	if err := b.tx.UpsertBalance(ctx, to); err != nil {
		return err
	}
	if err := b.tx.InsertStockEntry(ctx, StockEntry{
		ProductID: m.ProductID, Location: m.From, QtyIn: decimal.Zero, QtyOut: m.Quantity,
		Balance: from.Quantity, Reference: m.Reference, Note: m.Note, PostedAt: now,
	}); err != nil {
		return err
	}
	if err := b.tx.InsertStockEntry(ctx, StockEntry{
		ProductID: m.ProductID, Location: m.To, QtyIn: m.Quantity, QtyOut: decimal.Zero,
		Balance: to.Quantity, Reference: m.Reference, Note: m.Note, PostedAt: now,
	}); err != nil {
		return err
	}

	switch {
	case atHome && from.Quantity.IsZero() && item.Committed.IsZero() && m.To.Kind != location.KindCustomer:
		// the whole lot left, so the product now lives at the destination.
		// Delivered stock never becomes the home: it is out of custody.
		item.Home = m.To
		item.OnHand = to.Quantity
	case atHome:
		item.OnHand = from.Quantity
	case m.To == item.Home:
		item.OnHand = to.Quantity
	}
	return b.tx.SaveItem(ctx, item)
}

func (b *Book) balance(ctx context.Context, productID int64, loc location.Ref) (Balance, error) {
	bal, err := b.tx.GetBalanceForUpdate(ctx, productID, loc)
	if errors.Is(err, ErrBalanceNotFound) {
		return Balance{ProductID: productID, Location: loc, Quantity: decimal.Zero}, nil
	}
	return bal, err
}

func floor(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
