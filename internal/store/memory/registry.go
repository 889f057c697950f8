package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/registry"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

func (s *state) locationInUse(ref location.Ref) bool {
	for _, p := range s.products {
		if p.Location == ref {
			return true
		}
	}
	for key, bal := range s.balances {
		if key.loc == ref && !bal.Quantity.IsZero() {
			return true
		}
	}
	for _, job := range s.jobs {
		if job.From == ref || job.To == ref {
			return true
		}
	}
	switch ref.Kind {
	case location.KindPort:
		for _, v := range s.vessels {
			if v.PortID != nil && *v.PortID == ref.ID {
				return true
			}
		}
		for _, it := range s.manifest {
			if it.DischargePortID != nil && *it.DischargePortID == ref.ID {
				return true
			}
		}
	case location.KindCustomer:
		for _, inv := range s.invoices {
			if inv.CustomerID == ref.ID {
				return true
			}
		}
	}
	return false
}

func (s *state) withAggregates(c registry.Customer) registry.Customer {
	c.InvoiceCount = 0
	c.Outstanding = decimal.Zero
	for _, inv := range s.invoices {
		if inv.CustomerID != c.ID {
			continue
		}
		c.InvoiceCount++
		if !inv.IsCancelled() {
			c.Outstanding = c.Outstanding.Add(inv.Outstanding)
		}
	}
	return c
}

func (t *tx) LocationInUse(_ context.Context, ref location.Ref) (bool, error) {
	return t.st.locationInUse(ref), nil
}

func (t *tx) InsertPort(_ context.Context, p registry.Port) (int64, error) {
	p.ID = t.st.next("ports")
	t.st.ports[p.ID] = p
	return p.ID, nil
}

func (t *tx) GetPortForUpdate(_ context.Context, id int64) (registry.Port, error) {
	p, ok := t.st.ports[id]
	if !ok {
		return registry.Port{}, shared.NotFound("port %d not found", id)
	}
	return p, nil
}

func (t *tx) UpdatePort(_ context.Context, p registry.Port) error {
	if _, ok := t.st.ports[p.ID]; !ok {
		return shared.NotFound("port %d not found", p.ID)
	}
	t.st.ports[p.ID] = p
	return nil
}

func (t *tx) DeletePort(_ context.Context, id int64) error {
	if _, ok := t.st.ports[id]; !ok {
		return shared.NotFound("port %d not found", id)
	}
	delete(t.st.ports, id)
	return nil
}

func (t *tx) InsertFreeZone(_ context.Context, z registry.FreeZone) (int64, error) {
	z.ID = t.st.next("free_zones")
	t.st.freeZones[z.ID] = z
	return z.ID, nil
}

func (t *tx) GetFreeZoneForUpdate(_ context.Context, id int64) (registry.FreeZone, error) {
	z, ok := t.st.freeZones[id]
	if !ok {
		return registry.FreeZone{}, shared.NotFound("free zone %d not found", id)
	}
	return z, nil
}

func (t *tx) UpdateFreeZone(_ context.Context, z registry.FreeZone) error {
	if _, ok := t.st.freeZones[z.ID]; !ok {
		return shared.NotFound("free zone %d not found", z.ID)
	}
	t.st.freeZones[z.ID] = z
	return nil
}

func (t *tx) DeleteFreeZone(_ context.Context, id int64) error {
	if _, ok := t.st.freeZones[id]; !ok {
		return shared.NotFound("free zone %d not found", id)
	}
	delete(t.st.freeZones, id)
	return nil
}

func (t *tx) InsertCustomer(_ context.Context, c registry.Customer) (int64, error) {
	c.ID = t.st.next("customers")
	t.st.customers[c.ID] = c
	return c.ID, nil
}

func (t *tx) GetCustomerForUpdate(_ context.Context, id int64) (registry.Customer, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return registry.Customer{}, shared.NotFound("customer %d not found", id)
	}
	return t.st.withAggregates(c), nil
}

func (t *tx) UpdateCustomer(_ context.Context, c registry.Customer) error {
	if _, ok := t.st.customers[c.ID]; !ok {
		return shared.NotFound("customer %d not found", c.ID)
	}
	t.st.customers[c.ID] = c
	return nil
}

func (t *tx) DeleteCustomer(_ context.Context, id int64) error {
	if _, ok := t.st.customers[id]; !ok {
		return shared.NotFound("customer %d not found", id)
	}
	delete(t.st.customers, id)
	return nil
}

// ListPorts returns matching ports newest first.
func (s *Store) ListPorts(_ context.Context, filter registry.ListFilter) ([]registry.Port, int, error) {
	var all []registry.Port
	s.read(func(st *state) {
		all = sortedValues(st.ports, func(p registry.Port) bool {
			return shared.MatchesSearch(filter.Search, p.Name, p.Code, p.Country)
		})
	})
	return shared.Paginate(all, filter.Page), len(all), nil
}

// GetPort returns one port.
func (s *Store) GetPort(_ context.Context, id int64) (registry.Port, error) {
	var (
		p  registry.Port
		ok bool
	)
	s.read(func(st *state) { p, ok = st.ports[id] })
	if !ok {
		return registry.Port{}, shared.NotFound("port %d not found", id)
	}
	return p, nil
}

// ListFreeZones returns matching free zones newest first.
func (s *Store) ListFreeZones(_ context.Context, filter registry.ListFilter) ([]registry.FreeZone, int, error) {
	var all []registry.FreeZone
	s.read(func(st *state) {
		all = sortedValues(st.freeZones, func(z registry.FreeZone) bool {
			return shared.MatchesSearch(filter.Search, z.Name, z.Address)
		})
	})
	return shared.Paginate(all, filter.Page), len(all), nil
}

// GetFreeZone returns one free zone.
func (s *Store) GetFreeZone(_ context.Context, id int64) (registry.FreeZone, error) {
	var (
		z  registry.FreeZone
		ok bool
	)
	s.read(func(st *state) { z, ok = st.freeZones[id] })
	if !ok {
		return registry.FreeZone{}, shared.NotFound("free zone %d not found", id)
	}
	return z, nil
}

// ListCustomers returns matching customers with their invoice aggregates.
func (s *Store) ListCustomers(_ context.Context, filter registry.ListFilter) ([]registry.Customer, int, error) {
	var all []registry.Customer
	s.read(func(st *state) {
		all = sortedValues(st.customers, func(c registry.Customer) bool {
			return shared.MatchesSearch(filter.Search, c.Name, c.Email, c.Phone)
		})
		for i := range all {
			all[i] = st.withAggregates(all[i])
		}
	})
	return shared.Paginate(all, filter.Page), len(all), nil
}

// GetCustomer returns one customer with its invoice aggregates.
func (s *Store) GetCustomer(_ context.Context, id int64) (registry.Customer, error) {
	var (
		c  registry.Customer
		ok bool
	)
	s.read(func(st *state) {
		c, ok = st.customers[id]
		if ok {
			c = st.withAggregates(c)
		}
	})
	if !ok {
		return registry.Customer{}, shared.NotFound("customer %d not found", id)
	}
	return c, nil
}
