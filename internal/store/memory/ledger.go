package memory

import (
	"context"
	"sort"

	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

func (s *state) item(productID int64) (ledger.Item, error) {
	p, ok := s.products[productID]
	if !ok {
		return ledger.Item{}, shared.NotFound("product %d not found", productID)
	}
	return p.Item(), nil
}

func (s *state) quantityAt(productID int64, loc location.Ref) ledger.Balance {
	bal, ok := s.balances[balanceKey{productID, loc}]
	if !ok {
		return ledger.Balance{ProductID: productID, Location: loc}
	}
	return bal
}

func (t *tx) GetItemForUpdate(_ context.Context, productID int64) (ledger.Item, error) {
	return t.st.item(productID)
}

func (t *tx) SaveItem(_ context.Context, item ledger.Item) error {
	p, ok := t.st.products[item.ProductID]
	if !ok {
		return shared.NotFound("product %d not found", item.ProductID)
	}
	p.Location = item.Home
	p.OnHand = item.OnHand
	p.Committed = item.Committed
	t.st.products[p.ID] = p
	return nil
}

func (t *tx) GetBalanceForUpdate(_ context.Context, productID int64, loc location.Ref) (ledger.Balance, error) {
	bal, ok := t.st.balances[balanceKey{productID, loc}]
	if !ok {
		return ledger.Balance{}, ledger.ErrBalanceNotFound
	}
	return bal, nil
}

func (t *tx) UpsertBalance(_ context.Context, bal ledger.Balance) error {
	t.st.balances[balanceKey{bal.ProductID, bal.Location}] = bal
	return nil
}

func (t *tx) InsertStockEntry(_ context.Context, entry ledger.StockEntry) error {
	entry.ID = t.st.next("stock_entries")
	t.st.entries = append(t.st.entries, entry)
	return nil
}

// GetItem returns the ledger row of a product.
func (s *Store) GetItem(_ context.Context, productID int64) (ledger.Item, error) {
	var (
		item ledger.Item
		err  error
	)
	s.read(func(st *state) { item, err = st.item(productID) })
	return item, err
}

// ListBalances returns every non-empty balance of a product.
func (s *Store) ListBalances(_ context.Context, productID int64) ([]ledger.Balance, error) {
	var out []ledger.Balance
	s.read(func(st *state) {
		for key, bal := range st.balances {
			if key.productID == productID && !bal.Quantity.IsZero() {
				out = append(out, bal)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Location.String() < out[j].Location.String() })
	return out, nil
}

// GetStockCard returns stock entries newest first.
func (s *Store) GetStockCard(_ context.Context, filter ledger.StockCardFilter) ([]ledger.StockEntry, error) {
	var out []ledger.StockEntry
	s.read(func(st *state) {
		for i := len(st.entries) - 1; i >= 0; i-- {
			e := st.entries[i]
			if e.ProductID != filter.ProductID {
				continue
			}
			if filter.Location != nil && e.Location != *filter.Location {
				continue
			}
			if !filter.From.IsZero() && e.PostedAt.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && e.PostedAt.After(filter.To) {
				continue
			}
			out = append(out, e)
			if filter.Limit > 0 && len(out) == filter.Limit {
				break
			}
		}
	})
	return out, nil
}
