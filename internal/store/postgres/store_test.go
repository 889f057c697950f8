package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

func TestConditionsNumberPlaceholders(t *testing.T) {
	var c conditions
	c.add("status = %s", "active")
	c.add("(from_type = %[1]s OR to_type = %[1]s)", "vessel")
	c.search("  urea ", "name", "category")

	require.Equal(t,
		" WHERE status = $1 AND (from_type = $2 OR to_type = $2) AND (name ILIKE $3 OR category ILIKE $3)",
		c.where())
	require.Equal(t, " LIMIT $4 OFFSET $5", c.page(shared.Page{Number: 3, PerPage: 10}))
	require.Equal(t, []any{"active", "vessel", "%urea%", 10, 20}, c.args)
}

func TestConditionsEmpty(t *testing.T) {
	var c conditions
	c.search("   ", "name")
	require.Empty(t, c.where())
	require.Empty(t, c.page(shared.Page{}))
	require.Empty(t, c.args)
}

func TestRefColumnsRoundTrip(t *testing.T) {
	kind, id := refArgs(location.Nowhere)
	require.Equal(t, "none", kind)
	require.Zero(t, id)
	require.True(t, refOf(kind, id).IsNone())

	kind, id = refArgs(location.FreeZone(7))
	require.Equal(t, location.FreeZone(7), refOf(kind, id))
}
