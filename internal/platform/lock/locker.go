// Package lock serialises mutations per aggregate.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
)

// Key identifies one lockable aggregate.
type Key struct {
	Scope string
	ID    int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Scope, k.ID)
}

const (
	scopeProduct = "product"
	scopeInvoice = "invoice"
	scopeJob     = "job"
)

// ProductKey guards stock held for a product.
func ProductKey(id int64) Key { return Key{Scope: scopeProduct, ID: id} }

// InvoiceKey guards settlement state of an invoice.
func InvoiceKey(id int64) Key { return Key{Scope: scopeInvoice, ID: id} }

// JobKey guards a transportation job.
func JobKey(id int64) Key { return Key{Scope: scopeJob, ID: id} }

// LocationKey guards a location registry entry. Unplaced refs yield no key.
func LocationKey(ref location.Ref) (Key, bool) {
	if ref.IsNone() || ref.ID <= 0 {
		return Key{}, false
	}
	return Key{Scope: "location:" + string(ref.Kind), ID: ref.ID}, true
}

// Release frees every key obtained by a single Acquire call.
type Release func()

// Locker acquires a set of keys atomically with respect to other callers.
type Locker interface {
	Acquire(ctx context.Context, keys ...Key) (Release, error)
}

// ErrNotObtained is returned when a key stays contended after all retries.
var ErrNotObtained = errors.New("lock: not obtained")

// Ordered removes duplicates and sorts keys by scope then ascending id, the
// acquisition order every Locker uses.
func Ordered(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Covers reports whether every wanted key is among the held ones. Services
// derive keys from an unlocked read and call this once the locked read is in
// hand.
func Covers(held []Key, want ...Key) bool {
	set := make(map[Key]struct{}, len(held))
	for _, k := range held {
		set[k] = struct{}{}
	}
	for _, k := range want {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}
