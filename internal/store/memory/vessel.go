package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

func (s *state) manifestOf(vesselID int64) []vessel.ManifestItem {
	var items []vessel.ManifestItem
	for _, it := range s.manifest {
		if it.VesselID == vesselID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (s *state) withHasProducts(v vessel.Vessel) vessel.Vessel {
	ref := location.Vessel(v.ID)
	v.HasProducts, _ = vessel.HasProducts(s.manifestOf(v.ID), func(productID int64) (decimal.Decimal, error) {
		return s.quantityAt(productID, ref).Quantity, nil
	})
	return v
}

func (t *tx) InsertVessel(_ context.Context, v vessel.Vessel) (int64, error) {
	v.ID = t.st.next("vessels")
	t.st.vessels[v.ID] = v
	return v.ID, nil
}

func (t *tx) GetVesselForUpdate(_ context.Context, id int64) (vessel.Vessel, error) {
	v, ok := t.st.vessels[id]
	if !ok {
		return vessel.Vessel{}, shared.NotFound("vessel %d not found", id)
	}
	return t.st.withHasProducts(v), nil
}

func (t *tx) UpdateVessel(_ context.Context, v vessel.Vessel) error {
	if _, ok := t.st.vessels[v.ID]; !ok {
		return shared.NotFound("vessel %d not found", v.ID)
	}
	t.st.vessels[v.ID] = v
	return nil
}

func (t *tx) DeleteVessel(_ context.Context, id int64) error {
	if _, ok := t.st.vessels[id]; !ok {
		return shared.NotFound("vessel %d not found", id)
	}
	delete(t.st.vessels, id)
	for itemID, it := range t.st.manifest {
		if it.VesselID == id {
			delete(t.st.manifest, itemID)
		}
	}
	return nil
}

func (t *tx) BLNumberTaken(_ context.Context, bl string, exceptID int64) (bool, error) {
	for _, v := range t.st.vessels {
		if v.ID != exceptID && strings.EqualFold(v.BLNumber, bl) {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) ListManifestItems(_ context.Context, vesselID int64) ([]vessel.ManifestItem, error) {
	return t.st.manifestOf(vesselID), nil
}

func (t *tx) InsertManifestItem(_ context.Context, item vessel.ManifestItem) (int64, error) {
	item.ID = t.st.next("manifest_items")
	t.st.manifest[item.ID] = item
	return item.ID, nil
}

func (t *tx) GetManifestItemForUpdate(_ context.Context, id int64) (vessel.ManifestItem, error) {
	it, ok := t.st.manifest[id]
	if !ok {
		return vessel.ManifestItem{}, shared.NotFound("manifest item %d not found", id)
	}
	return it, nil
}

func (t *tx) UpdateManifestItem(_ context.Context, item vessel.ManifestItem) error {
	if _, ok := t.st.manifest[item.ID]; !ok {
		return shared.NotFound("manifest item %d not found", item.ID)
	}
	t.st.manifest[item.ID] = item
	return nil
}

func (t *tx) DeleteManifestItem(_ context.Context, id int64) error {
	if _, ok := t.st.manifest[id]; !ok {
		return shared.NotFound("manifest item %d not found", id)
	}
	delete(t.st.manifest, id)
	return nil
}

// ListVessels returns matching vessels newest first.
func (s *Store) ListVessels(_ context.Context, filter vessel.ListFilter) ([]vessel.Vessel, int, error) {
	var all []vessel.Vessel
	s.read(func(st *state) {
		all = sortedValues(st.vessels, func(v vessel.Vessel) bool {
			if filter.Status != "" && v.Status != filter.Status {
				return false
			}
			return shared.MatchesSearch(filter.Search, v.Name, v.BLNumber)
		})
		for i := range all {
			all[i] = st.withHasProducts(all[i])
		}
	})
	return shared.Paginate(all, filter.Page), len(all), nil
}

// GetVessel returns one vessel.
func (s *Store) GetVessel(_ context.Context, id int64) (vessel.Vessel, error) {
	var (
		v  vessel.Vessel
		ok bool
	)
	s.read(func(st *state) {
		v, ok = st.vessels[id]
		if ok {
			v = st.withHasProducts(v)
		}
	})
	if !ok {
		return vessel.Vessel{}, shared.NotFound("vessel %d not found", id)
	}
	return v, nil
}

// ListManifest returns the manifest of a vessel.
func (s *Store) ListManifest(_ context.Context, vesselID int64) ([]vessel.ManifestItem, error) {
	var (
		items []vessel.ManifestItem
		ok    bool
	)
	s.read(func(st *state) {
		_, ok = st.vessels[vesselID]
		items = st.manifestOf(vesselID)
	})
	if !ok {
		return nil, shared.NotFound("vessel %d not found", vesselID)
	}
	return items, nil
}
