package movement

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/registry"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
)

// RegistryReader lists ports and free zones.
type RegistryReader interface {
	ListPorts(ctx context.Context, filter registry.ListFilter) ([]registry.Port, int, error)
	ListFreeZones(ctx context.Context, filter registry.ListFilter) ([]registry.FreeZone, int, error)
}

// VesselReader lists vessels.
type VesselReader interface {
	List(ctx context.Context, filter vessel.ListFilter) ([]vessel.Vessel, int, error)
}

// EndpointLookup gathers every location a movement can use.
type EndpointLookup struct {
	registry RegistryReader
	vessels  VesselReader
}

// NewEndpointLookup builds EndpointLookup.
func NewEndpointLookup(registry RegistryReader, vessels VesselReader) *EndpointLookup {
	return &EndpointLookup{registry: registry, vessels: vessels}
}

// All returns open vessels, ports and free zones, fetched concurrently.
func (l *EndpointLookup) All(ctx context.Context) ([]Endpoint, error) {
	var vessels, ports, zones []Endpoint
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, _, err := l.vessels.List(ctx, vessel.ListFilter{})
		for _, v := range list {
			if v.Status != vessel.StatusClosed {
				vessels = append(vessels, Endpoint{Type: location.KindVessel, ID: v.ID, Name: v.Name})
			}
		}
		return err
	})
	g.Go(func() error {
		list, _, err := l.registry.ListPorts(ctx, registry.ListFilter{})
		for _, p := range list {
			ports = append(ports, Endpoint{Type: location.KindPort, ID: p.ID, Name: p.Name})
		}
		return err
	})
	g.Go(func() error {
		list, _, err := l.registry.ListFreeZones(ctx, registry.ListFilter{})
		for _, z := range list {
			zones = append(zones, Endpoint{Type: location.KindFreeZone, ID: z.ID, Name: z.Name})
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]Endpoint, 0, len(vessels)+len(ports)+len(zones))
	for _, group := range [][]Endpoint{vessels, ports, zones} {
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })
		out = append(out, group...)
	}
	return out, nil
}
