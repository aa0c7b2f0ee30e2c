package updater

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
)

func TestDeriveGlobalTags(t *testing.T) {
	a := spatial.FromLatLon(51.25, 7.15)
	b := spatial.FromLatLon(-33.86, 151.2)
	local := make(localTags)
	local.Add(element.LocalTag(a, "amenity", "cafe"), 1)
	local.Add(element.LocalTag(b, "amenity", "cafe"), 2)
	local.Add(element.LocalTag(b, "name", "x"), 2)

	global := DeriveGlobalTags(local)
	assert.Equal(t, []element.ID{1, 2}, global.Get(element.TagGlobal{Key: "amenity", Value: "cafe"}).Items())
	assert.Equal(t, []element.ID{2}, global.Get(element.TagGlobal{Key: "name", Value: "x"}).Items())
	assert.Equal(t, 2, len(global))
}

func TestAtticGlobalTagsAbsorbsVoidValues(t *testing.T) {
	idx := spatial.FromLatLon(51.25, 7.15)
	one := element.NewAttic[element.ID](1, 100)
	two := element.NewAttic[element.ID](2, 100)
	later := element.NewAttic[element.ID](1, 200)

	local := make(store.Buckets[element.TagLocal, element.Attic[element.ID]])
	local.Add(element.LocalTag(idx, "name", ""), one)
	local.Add(element.LocalTag(idx, "name", ""), two)
	local.Add(element.LocalTag(idx, "name", ""), later)
	local.Add(element.LocalTag(idx, "name", "x"), one)

	global := AtticGlobalTags(local)
	assert.Equal(t, []element.Attic[element.ID]{one}, global.Get(element.TagGlobal{Key: "name", Value: "x"}).Items())
	assert.Equal(t, []element.Attic[element.ID]{later, two}, global.Get(element.TagGlobal{Key: "name"}).Items())
}

func TestDiffLocalTagsReplacesAll(t *testing.T) {
	from := spatial.FromLatLon(51.25, 7.15)
	to := spatial.FromLatLon(51.25, 7.25)
	existing := make(localTags)
	existing.Add(element.LocalTag(from, "name", "a"), 496)

	var data DataByID[element.NodeSkeleton]
	data.Add(Entry[element.NodeSkeleton]{ID: 496, Pos: spatial.At(to), Tags: tags("name", "a", "amenity", "cafe")})
	data.Add(Entry[element.NodeSkeleton]{ID: 497, Pos: spatial.Gone()})
	data.Sort()

	attic, added := DiffLocalTags(&data, existing)
	assert.Equal(t, existing, attic)
	assert.Equal(t, []element.TagLocal{
		element.LocalTag(to, "amenity", "cafe"),
		element.LocalTag(to, "name", "a"),
	}, added.Keys())
}
