package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

func TestSetReplaceOnInsert(t *testing.T) {
	s := NewSet(element.Meta{Ref: 2, Version: 1}, element.Meta{Ref: 1, Version: 3})
	s.Insert(element.Meta{Ref: 1, Version: 3, Changeset: 99})

	require.Equal(t, 2, s.Len())
	got, ok := s.Find(element.Meta{Ref: 1, Version: 3})
	require.True(t, ok)
	assert.Equal(t, uint64(99), got.Changeset)
	assert.Equal(t, element.ID(1), s.Items()[0].Ref)

	assert.True(t, s.Remove(element.Meta{Ref: 2, Version: 1}))
	assert.False(t, s.Remove(element.Meta{Ref: 2, Version: 1}))
	assert.Equal(t, 1, s.Len())

	var empty *Set[element.Meta]
	assert.Equal(t, 0, empty.Len())
	assert.False(t, empty.Contains(element.Meta{Ref: 1}))
}

func TestBucketsKeysSortedAndRemoveDropsEmpty(t *testing.T) {
	b := make(Buckets[spatial.Index, element.ID])
	b.Add(30, 1)
	b.Add(10, 2)
	b.Add(20, 3)
	b.Add(10, 4)

	assert.Equal(t, []spatial.Index{10, 20, 30}, b.Keys())
	assert.Equal(t, 4, b.Len())

	assert.True(t, b.Remove(20, 3))
	assert.Nil(t, b.Get(20))
	assert.False(t, b.Remove(20, 3))

	var visited []element.ID
	b.Each(func(_ spatial.Index, id element.ID) { visited = append(visited, id) })
	assert.Equal(t, []element.ID{2, 4, 1}, visited)
}

func TestMemStoreIterate(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore[spatial.Index, element.ID]()

	add := make(Buckets[spatial.Index, element.ID])
	add.Add(0x100, 1)
	add.Add(0x100, 2)
	add.Add(0x180, 3)
	add.Add(0x200, 4)
	require.NoError(t, st.AtomicReplace(ctx, nil, add))

	var got []element.ID
	collect := func(_ spatial.Index, id element.ID) error {
		got = append(got, id)
		return nil
	}

	require.NoError(t, st.DiscreteIterate(ctx, []spatial.Index{0x200, 0x100, 0x999}, collect))
	assert.Equal(t, []element.ID{1, 2, 4}, got)

	got = nil
	require.NoError(t, st.RangeIterate(ctx, []Range[spatial.Index]{{Begin: 0x100, End: 0x200}}, collect))
	assert.Equal(t, []element.ID{1, 2, 3}, got, "range end is exclusive")

	got = nil
	overlapping := []Range[spatial.Index]{{Begin: 0x100, End: 0x190}, {Begin: 0x180, End: 0x201}}
	require.NoError(t, st.RangeIterate(ctx, overlapping, collect))
	assert.Equal(t, []element.ID{1, 2, 3, 4}, got, "overlapping ranges visit each record once")
}

func TestMemStoreAtomicReplace(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore[spatial.Index, element.ID]()

	first := make(Buckets[spatial.Index, element.ID])
	first.Add(0x100, 1)
	first.Add(0x100, 2)
	require.NoError(t, st.AtomicReplace(ctx, nil, first))

	remove := make(Buckets[spatial.Index, element.ID])
	remove.Add(0x100, 1)
	add := make(Buckets[spatial.Index, element.ID])
	add.Add(0x100, 1)
	add.Add(0x300, 5)
	require.NoError(t, st.AtomicReplace(ctx, remove, add))

	snap := st.Snapshot()
	assert.Equal(t, []element.ID{1, 2}, snap.Get(0x100).Items(), "removal happens before insertion")
	assert.Equal(t, 3, st.Len())
}

func TestMemDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemDirectory()

	_, ok, err := d.Get(ctx, 496)
	require.NoError(t, err)
	assert.False(t, ok)

	idx := spatial.FromLatLon(51.25, 7.15)
	require.NoError(t, d.Put(ctx, 496, idx))
	got, ok, err := d.Get(ctx, 496)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, idx, got)

	require.NoError(t, d.Put(ctx, 496, spatial.DeletedValue))
	_, ok, _ = d.Get(ctx, 496)
	assert.False(t, ok)
	assert.Equal(t, 0, d.Len())
}

// countedKey counts comparisons so reads can be checked against table size.
type countedKey uint32

var comparisons int

func (k countedKey) Less(o countedKey) bool {
	comparisons++
	return k < o
}

func TestMemStoreReadsDoNotScanTable(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore[countedKey, element.ID]()

	add := make(Buckets[countedKey, element.ID])
	for i := 0; i < 50000; i++ {
		add.Add(countedKey(i*4), element.ID(i))
	}
	require.NoError(t, st.AtomicReplace(ctx, nil, add))

	var got []element.ID
	collect := func(_ countedKey, id element.ID) error {
		got = append(got, id)
		return nil
	}

	comparisons = 0
	require.NoError(t, st.DiscreteIterate(ctx, []countedKey{400, 40000, 401}, collect))
	assert.Equal(t, []element.ID{100, 10000}, got)
	assert.Less(t, comparisons, 500)

	got = nil
	comparisons = 0
	ranges := []Range[countedKey]{{Begin: 1000, End: 1012}, {Begin: 800, End: 805}}
	require.NoError(t, st.RangeIterate(ctx, ranges, collect))
	assert.Equal(t, []element.ID{200, 201, 250, 251, 252}, got, "ranges are visited in key order")
	assert.Less(t, comparisons, 500)
}
