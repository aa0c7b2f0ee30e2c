package spatial

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromLatLon(t *testing.T) {
	a := FromLatLon(51.25, 7.15)
	b := FromLatLon(51.25, 7.25)
	c := FromLatLon(51.25, 7.25001)

	assert.NotEqual(t, a, b, "0.1 degree apart must not share an index")
	assert.Equal(t, b, c, "0.00001 degree apart must share an index")
	assert.Equal(t, a, FromPoint(orb.Point{7.15, 51.25}))
}

func TestFromLatLonReservedValues(t *testing.T) {
	coords := [][2]float64{
		{-90, -180}, {90, 180}, {0, 0}, {-90, 180}, {90, -180},
		{51.25, 7.15}, {-33.86, 151.2}, {40.7, -74.0},
	}
	for _, c := range coords {
		idx := FromLatLon(c[0], c[1])
		assert.NotEqual(t, DeletedValue, idx, "coord %v", c)
		assert.NotEqual(t, AmbiguousValue, idx, "coord %v", c)
		assert.False(t, idx.IsCompound(), "coord %v", c)
		assert.NotEqual(t, WideScan.Block(), idx.Block(), "coord %v", c)
	}
}

func TestBlock(t *testing.T) {
	idx := FromLatLon(51.25, 7.15)
	assert.Equal(t, idx&0x7fffff00, idx.Block())
	assert.Equal(t, Index(0x7fffff00), WideScan.Block())
}

func TestBoundContainsPoint(t *testing.T) {
	idx := FromLatLon(51.25, 7.15)
	bound := idx.Bound()
	assert.True(t, bound.Contains(orb.Point{7.15, 51.25}), "bound %v", bound)
	assert.False(t, bound.Contains(orb.Point{7.25, 51.25}), "bound %v", bound)
}

func TestCombine(t *testing.T) {
	a := FromLatLon(51.25, 7.15)
	near := a ^ 0x3

	tests := []struct {
		name      string
		members   []Index
		ambiguous bool
		want      Index
	}{
		{name: "single member", members: []Index{a}, want: a},
		{name: "identical members", members: []Index{a, a, a}, want: a},
		{name: "unknown members skipped", members: []Index{0, a, 0}, want: a},
		{name: "no members", members: nil, ambiguous: true},
		{name: "only unknown members", members: []Index{0, 0}, ambiguous: true},
		{name: "wide scan member", members: []Index{a, WideScan}, ambiguous: true},
		{name: "far apart", members: []Index{a, FromLatLon(-33.86, 151.2)}, ambiguous: true},
		{name: "neighbours", members: []Index{a, near}, want: CompoundFlag | (a &^ 0xff) | 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := Combine(tt.members)
			if tt.ambiguous {
				assert.True(t, pos.IsAmbiguous(), "got %v", pos)
				assert.Equal(t, WideScan, pos.Stored())
				return
			}
			got, ok := pos.Index()
			require.True(t, ok, "got %v", pos)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCombineCompoundBlock(t *testing.T) {
	a := FromLatLon(51.25, 7.15)
	got, ok := Combine([]Index{a, a ^ 0x3}).Index()
	require.True(t, ok)

	assert.True(t, got.IsCompound())
	assert.Equal(t, 8, got.Level())
	assert.Equal(t, a.Block(), got.Block())

	// Combining the compound with a member inside it keeps the compound.
	again, ok := Combine([]Index{got, a ^ 0x30}).Index()
	require.True(t, ok)
	assert.Equal(t, got, again)
}

func TestParentsContainCombined(t *testing.T) {
	a := FromLatLon(51.25, 7.15)
	for _, other := range []Index{a, a ^ 0x3, a ^ 0x300, a ^ 0x30000, FromLatLon(51.3, 7.2)} {
		pos := Combine([]Index{a, other})
		assert.Contains(t, Parents(a), pos.Stored(), "combined with %v", other)
	}
	assert.Equal(t, []Index{WideScan}, Parents(WideScan))
}

func TestPosition(t *testing.T) {
	assert.True(t, At(DeletedValue).IsDeleted())
	assert.True(t, At(AmbiguousValue).IsAmbiguous())
	assert.True(t, Gone().IsDeleted())
	assert.Equal(t, DeletedValue, Gone().Stored())
	assert.Equal(t, WideScan, Ambiguous().Stored())

	idx := FromLatLon(51.25, 7.15)
	got, ok := At(idx).Index()
	assert.True(t, ok)
	assert.Equal(t, idx, got)
	assert.Equal(t, StateConcrete, At(idx).State())
}

func TestZeroPositionIsDeleted(t *testing.T) {
	var p Position
	assert.True(t, p.IsDeleted())
	assert.Equal(t, DeletedValue, p.Stored())
}
