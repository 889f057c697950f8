package location

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

func int64Ptr(v int64) *int64 { return &v }

func TestResolve(t *testing.T) {
	ref, err := Resolve("vessel", int64Ptr(4), nil)
	require.NoError(t, err)
	require.Equal(t, Vessel(4), ref)

	ref, err = Resolve("customer_transfer", int64Ptr(9), nil)
	require.NoError(t, err)
	require.Equal(t, Customer(9), ref)
	require.Equal(t, "customer_transfer", ref.Kind.ProductLabel())

	ref, err = Resolve("", nil, int64Ptr(2))
	require.NoError(t, err)
	require.Equal(t, FreeZone(2), ref)

	ref, err = Resolve("none", nil, nil)
	require.NoError(t, err)
	require.True(t, ref.IsNone())

	_, err = Resolve("port", nil, nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = Resolve("warehouse", int64Ptr(1), nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestParseRoundTrip(t *testing.T) {
	for _, ref := range []Ref{Vessel(1), Port(22), FreeZone(3), Customer(40)} {
		parsed, err := Parse(ref.String())
		require.NoError(t, err)
		require.Equal(t, ref, parsed)
	}
	parsed, err := Parse("none")
	require.NoError(t, err)
	require.True(t, parsed.IsNone())

	_, err = Parse("port:abc")
	require.Error(t, err)
}
