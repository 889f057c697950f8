package memory

import (
	"context"

	"github.com/odyssey-erp/cargo-ledger/internal/catalog"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

func (s *state) locationExists(ref location.Ref) bool {
	var ok bool
	switch ref.Kind {
	case location.KindVessel:
		_, ok = s.vessels[ref.ID]
	case location.KindPort:
		_, ok = s.ports[ref.ID]
	case location.KindFreeZone:
		_, ok = s.freeZones[ref.ID]
	case location.KindCustomer:
		_, ok = s.customers[ref.ID]
	}
	return ok
}

func (s *state) productReferenced(id int64) bool {
	for _, inv := range s.invoices {
		for _, l := range inv.Lines {
			if l.ProductID == id {
				return true
			}
		}
	}
	for _, it := range s.manifest {
		if it.ProductID == id {
			return true
		}
	}
	for _, job := range s.jobs {
		for _, it := range job.Items {
			if it.ProductID == id {
				return true
			}
		}
	}
	return false
}

func (t *tx) LocationExists(_ context.Context, ref location.Ref) (bool, error) {
	return t.st.locationExists(ref), nil
}

func (t *tx) ProductReferenced(_ context.Context, id int64) (bool, error) {
	return t.st.productReferenced(id), nil
}

func (t *tx) InsertProduct(_ context.Context, p catalog.Product) (int64, error) {
	p.ID = t.st.next("products")
	t.st.products[p.ID] = p
	return p.ID, nil
}

func (t *tx) GetProductForUpdate(_ context.Context, id int64) (catalog.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return catalog.Product{}, shared.NotFound("product %d not found", id)
	}
	return p, nil
}

func (t *tx) UpdateProduct(_ context.Context, p catalog.Product) error {
	cur, ok := t.st.products[p.ID]
	if !ok {
		return shared.NotFound("product %d not found", p.ID)
	}
	// ledger columns are owned by SaveItem
	p.Location, p.OnHand, p.Committed = cur.Location, cur.OnHand, cur.Committed
	t.st.products[p.ID] = p
	return nil
}

func (t *tx) DeleteProduct(_ context.Context, id int64) error {
	if _, ok := t.st.products[id]; !ok {
		return shared.NotFound("product %d not found", id)
	}
	delete(t.st.products, id)
	for key := range t.st.balances {
		if key.productID == id {
			delete(t.st.balances, key)
		}
	}
	return nil
}

// ListProducts returns matching products newest first.
func (s *Store) ListProducts(_ context.Context, filter catalog.ListFilter) ([]catalog.Product, int, error) {
	var all []catalog.Product
	s.read(func(st *state) {
		all = sortedValues(st.products, func(p catalog.Product) bool {
			if filter.Status != "" && p.Status != filter.Status {
				return false
			}
			if filter.LocationKind != "" && p.Location.Kind != filter.LocationKind {
				return false
			}
			if filter.Location != nil && p.Location != *filter.Location {
				return false
			}
			return shared.MatchesSearch(filter.Search, p.Name, p.Category)
		})
	})
	return shared.Paginate(all, filter.Page), len(all), nil
}

// GetProduct returns one product.
func (s *Store) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	var (
		p  catalog.Product
		ok bool
	)
	s.read(func(st *state) { p, ok = st.products[id] })
	if !ok {
		return catalog.Product{}, shared.NotFound("product %d not found", id)
	}
	return p, nil
}
