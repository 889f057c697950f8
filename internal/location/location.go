// Package location models the places a product can physically be.
package location

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// Kind enumerates location types.
type Kind string

const (
	KindNone     Kind = "none"
	KindVessel   Kind = "vessel"
	KindPort     Kind = "port"
	KindFreeZone Kind = "free_zone"
	KindCustomer Kind = "customer"
)

// customerTransfer is the product-facing label for stock delivered to a customer.
const customerTransfer = "customer_transfer"

// ParseKind accepts both the endpoint and the product-facing spellings.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(KindNone):
		return KindNone, nil
	case string(KindVessel):
		return KindVessel, nil
	case string(KindPort):
		return KindPort, nil
	case string(KindFreeZone), "freezone", "free-zone":
		return KindFreeZone, nil
	case string(KindCustomer), customerTransfer:
		return KindCustomer, nil
	default:
		return "", shared.Validation("unknown location type %q", s)
	}
}

// ProductLabel renders the kind the way product records expose it.
func (k Kind) ProductLabel() string {
	if k == KindCustomer {
		return customerTransfer
	}
	return string(k)
}

// Ref identifies one concrete location.
type Ref struct {
	Kind Kind  `json:"type"`
	ID   int64 `json:"id"`
}

// Nowhere is the location of an unplaced product.
var Nowhere = Ref{Kind: KindNone}

func Vessel(id int64) Ref   { return Ref{Kind: KindVessel, ID: id} }
func Port(id int64) Ref     { return Ref{Kind: KindPort, ID: id} }
func FreeZone(id int64) Ref { return Ref{Kind: KindFreeZone, ID: id} }
func Customer(id int64) Ref { return Ref{Kind: KindCustomer, ID: id} }

// IsNone reports whether the ref points nowhere.
func (r Ref) IsNone() bool {
	return r.Kind == "" || r.Kind == KindNone
}

// Validate checks that the ref names a concrete location.
func (r Ref) Validate() error {
	switch r.Kind {
	case KindVessel, KindPort, KindFreeZone, KindCustomer:
	default:
		return shared.Validation("location type %q is not a concrete location", r.Kind)
	}
	if r.ID <= 0 {
		return shared.Validation("%s location id is required", r.Kind)
	}
	return nil
}

func (r Ref) String() string {
	if r.IsNone() {
		return string(KindNone)
	}
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Parse reads the "kind:id" form produced by String.
func Parse(s string) (Ref, error) {
	kindPart, idPart, found := strings.Cut(s, ":")
	kind, err := ParseKind(kindPart)
	if err != nil {
		return Ref{}, err
	}
	if kind == KindNone {
		return Nowhere, nil
	}
	if !found {
		return Ref{}, shared.Validation("location %q is missing an id", s)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return Ref{}, shared.Validation("location %q has an invalid id", s)
	}
	ref := Ref{Kind: kind, ID: id}
	return ref, ref.Validate()
}

// Resolve turns the loose location fields carried by product records into a
// Ref. Legacy records carry only a free zone id.
func Resolve(locationType string, locationID *int64, legacyFreeZoneID *int64) (Ref, error) {
	kind, err := ParseKind(locationType)
	if err != nil {
		return Ref{}, err
	}
	if kind == KindNone {
		if legacyFreeZoneID != nil && *legacyFreeZoneID > 0 {
			return FreeZone(*legacyFreeZoneID), nil
		}
		if locationID != nil && *locationID > 0 {
			return Ref{}, shared.Validation("location id given without a location type")
		}
		return Nowhere, nil
	}
	if locationID == nil || *locationID <= 0 {
		if kind == KindFreeZone && legacyFreeZoneID != nil && *legacyFreeZoneID > 0 {
			return FreeZone(*legacyFreeZoneID), nil
		}
		return Ref{}, shared.Validation("%s location id is required", kind)
	}
	return Ref{Kind: kind, ID: *locationID}, nil
}
