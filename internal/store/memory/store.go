// Package memory is an in-process store implementing every repository port.
// Each transaction works on a private copy of the state that replaces the
// shared one on commit, so a failed operation leaves no trace.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/odyssey-erp/cargo-ledger/internal/catalog"
	"github.com/odyssey-erp/cargo-ledger/internal/ledger"
	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/movement"
	"github.com/odyssey-erp/cargo-ledger/internal/registry"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

type balanceKey struct {
	productID int64
	loc       location.Ref
}

type state struct {
	seq       map[string]int64
	products  map[int64]catalog.Product
	balances  map[balanceKey]ledger.Balance
	entries   []ledger.StockEntry
	ports     map[int64]registry.Port
	freeZones map[int64]registry.FreeZone
	customers map[int64]registry.Customer
	vessels   map[int64]vessel.Vessel
	manifest  map[int64]vessel.ManifestItem
	invoices  map[int64]settlement.Invoice
	payments  map[int64]settlement.Payment
	jobs      map[int64]movement.Job
}

func newState() *state {
	return &state{
		seq:       make(map[string]int64),
		products:  make(map[int64]catalog.Product),
		balances:  make(map[balanceKey]ledger.Balance),
		ports:     make(map[int64]registry.Port),
		freeZones: make(map[int64]registry.FreeZone),
		customers: make(map[int64]registry.Customer),
		vessels:   make(map[int64]vessel.Vessel),
		manifest:  make(map[int64]vessel.ManifestItem),
		invoices:  make(map[int64]settlement.Invoice),
		payments:  make(map[int64]settlement.Payment),
		jobs:      make(map[int64]movement.Job),
	}
}

func cloneMap[K comparable, V any](m map[K]V, cp func(V) V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		if cp != nil {
			v = cp(v)
		}
		out[k] = v
	}
	return out
}

func cloneInvoice(inv settlement.Invoice) settlement.Invoice {
	inv.Lines = append([]settlement.Line(nil), inv.Lines...)
	return inv
}

func cloneJob(job movement.Job) movement.Job {
	job.Items = append([]movement.Item(nil), job.Items...)
	return job
}

func (s *state) clone() *state {
	return &state{
		seq:       cloneMap(s.seq, nil),
		products:  cloneMap(s.products, nil),
		balances:  cloneMap(s.balances, nil),
		entries:   s.entries[:len(s.entries):len(s.entries)],
		ports:     cloneMap(s.ports, nil),
		freeZones: cloneMap(s.freeZones, nil),
		customers: cloneMap(s.customers, nil),
		vessels:   cloneMap(s.vessels, nil),
		manifest:  cloneMap(s.manifest, nil),
		invoices:  cloneMap(s.invoices, cloneInvoice),
		payments:  cloneMap(s.payments, nil),
		jobs:      cloneMap(s.jobs, cloneJob),
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// Store holds the committed state.
type Store struct {
	mu sync.RWMutex
	st *state
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// tx implements every module's TxRepository over a private state copy.
type tx struct {
	st *state
}

func (s *Store) withTx(ctx context.Context, fn func(*tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) read(fn func(*state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

// CatalogRepo adapts the store to catalog.RepositoryPort.
type CatalogRepo struct{ *Store }

// WithTx runs fn in a transaction.
func (r CatalogRepo) WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error {
	return r.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

// RegistryRepo adapts the store to registry.RepositoryPort.
type RegistryRepo struct{ *Store }

// WithTx runs fn in a transaction.
func (r RegistryRepo) WithTx(ctx context.Context, fn func(context.Context, registry.TxRepository) error) error {
	return r.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

// VesselRepo adapts the store to vessel.RepositoryPort.
type VesselRepo struct{ *Store }

// WithTx runs fn in a transaction.
func (r VesselRepo) WithTx(ctx context.Context, fn func(context.Context, vessel.TxRepository) error) error {
	return r.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

// SettlementRepo adapts the store to settlement.RepositoryPort.
type SettlementRepo struct{ *Store }

// WithTx runs fn in a transaction.
func (r SettlementRepo) WithTx(ctx context.Context, fn func(context.Context, settlement.TxRepository) error) error {
	return r.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

// MovementRepo adapts the store to movement.RepositoryPort.
type MovementRepo struct{ *Store }

// WithTx runs fn in a transaction.
func (r MovementRepo) WithTx(ctx context.Context, fn func(context.Context, movement.TxRepository) error) error {
	return r.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

// Catalog returns the catalog adapter.
func (s *Store) Catalog() CatalogRepo { return CatalogRepo{s} }

// Registry returns the registry adapter.
func (s *Store) Registry() RegistryRepo { return RegistryRepo{s} }

// Vessels returns the vessel adapter.
func (s *Store) Vessels() VesselRepo { return VesselRepo{s} }

// Settlement returns the settlement adapter.
func (s *Store) Settlement() SettlementRepo { return SettlementRepo{s} }

// Movements returns the movement adapter.
func (s *Store) Movements() MovementRepo { return MovementRepo{s} }

func sortedValues[V any](m map[int64]V, keep func(V) bool) []V {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
