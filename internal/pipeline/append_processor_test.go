package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmindex-go/internal/changelog"
	"github.com/wegman-software/osmindex-go/internal/config"
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/osc"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
	"github.com/wegman-software/osmindex-go/internal/tagfilter"
)

const createOSC = `<osmChange version="0.6">
  <create>
    <node id="1" lat="51.25" lon="7.15" version="1" timestamp="2024-01-15T12:00:00Z"/>
    <node id="2" lat="51.2501" lon="7.1501" version="1" timestamp="2024-01-15T12:00:00Z"/>
    <node id="3" lat="40.0" lon="-3.0" version="1" timestamp="2024-01-15T12:00:00Z"/>
    <way id="10" version="1" timestamp="2024-01-15T12:00:00Z">
      <nd ref="1"/>
      <nd ref="2"/>
      <tag k="highway" v="residential"/>
      <tag k="created_by" v="JOSM"/>
    </way>
    <relation id="20" version="1" timestamp="2024-01-15T12:00:00Z">
      <member type="way" ref="10" role="outer"/>
      <tag k="type" v="multipolygon"/>
    </relation>
  </create>
</osmChange>`

const moveOSC = `<osmChange version="0.6">
  <modify>
    <node id="1" lat="51.25" lon="7.25" version="2" timestamp="2024-01-16T12:00:00Z"/>
  </modify>
</osmChange>`

const rules = `
all:
  exclude:
    created_by: []
`

type harness struct {
	backend   *Backend
	processor *AppendProcessor
	sink      *changelog.MemorySink
}

func newHarness(t *testing.T, modify func(*config.Config)) *harness {
	t.Helper()
	ctx := context.Background()
	cfg := config.DefaultConfig()
	if modify != nil {
		modify(cfg)
	}
	backend, err := OpenBackend(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	filter, err := tagfilter.ParseRules([]byte(rules))
	require.NoError(t, err)
	sink := &changelog.MemorySink{}
	p, err := NewAppendProcessor(ctx, cfg, backend, filter, sink, nil)
	require.NoError(t, err)
	return &harness{backend: backend, processor: p, sink: sink}
}

func (h *harness) apply(t *testing.T, data string) *AppendStats {
	t.Helper()
	ctx := context.Background()
	changes, errs := osc.NewParser().ParseReader(ctx, strings.NewReader(data))
	stats, err := h.processor.ProcessChanges(ctx, changes)
	require.NoError(t, err)
	require.NoError(t, <-errs)
	return stats
}

func get(t *testing.T, dir store.Directory, id element.ID) spatial.Index {
	t.Helper()
	idx, ok, err := dir.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok, "no directory entry for %d", id)
	return idx
}

func TestProcessChanges(t *testing.T) {
	h := newHarness(t, nil)
	stats := h.apply(t, createOSC)

	assert.Equal(t, 1, stats.Cycles)
	assert.Equal(t, int64(3), stats.NodesProcessed)
	assert.Equal(t, 3, stats.Nodes.Inserted)
	assert.Equal(t, 1, stats.Ways.Inserted)
	assert.Equal(t, 1, stats.Relations.Inserted)
	assert.Zero(t, stats.Anomalies)

	b := h.backend
	assert.Equal(t, spatial.FromLatLon(51.25, 7.15), get(t, b.Nodes.Directory, 1))
	way := get(t, b.Ways.Directory, 10)
	assert.Equal(t, way, get(t, b.Relations.Directory, 20))

	global := b.Ways.Global.(*store.MemStore[element.TagGlobal, element.ID]).Snapshot()
	assert.True(t, global.Get(element.TagGlobal{Key: "highway", Value: "residential"}).Contains(10))
	assert.Nil(t, global.Get(element.TagGlobal{Key: "created_by", Value: "JOSM"}))

	entries := h.sink.Entries()
	require.Len(t, entries, 5)
	for _, e := range entries {
		assert.Equal(t, changelog.Insert, e.Action)
		assert.NotEmpty(t, e.Cycle)
		assert.Equal(t, entries[0].Cycle, e.Cycle)
	}
}

func TestProcessChangesPropagatesMoves(t *testing.T) {
	h := newHarness(t, nil)
	h.apply(t, createOSC)
	first := h.sink.Entries()[0].Cycle
	h.sink.Reset()

	stats := h.apply(t, moveOSC)
	assert.Equal(t, 1, stats.Nodes.Moved)
	assert.Equal(t, 1, stats.Ways.Implicit)
	assert.Equal(t, 1, stats.Relations.Implicit)

	b := h.backend
	way := get(t, b.Ways.Directory, 10)
	want := spatial.Combine([]spatial.Index{spatial.FromLatLon(51.25, 7.25), spatial.FromLatLon(51.2501, 7.1501)})
	wantIdx, ok := want.Index()
	require.True(t, ok)
	assert.Equal(t, wantIdx, way)
	assert.Equal(t, way, get(t, b.Relations.Directory, 20))

	for _, e := range h.sink.Entries() {
		assert.NotEqual(t, first, e.Cycle)
	}
}

func TestProcessChangesBatches(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.BatchSize = 2 })
	stats := h.apply(t, createOSC)

	// Ways and relations of later batches still find their members.
	assert.Equal(t, 3, stats.Cycles)
	assert.Zero(t, stats.Anomalies)
	get(t, h.backend.Ways.Directory, 10)
	get(t, h.backend.Relations.Directory, 20)
}

func TestProcessChangesBBox(t *testing.T) {
	h := newHarness(t, nil)
	bbox, err := config.ParseBBox("7.0,51.0,7.5,51.5")
	require.NoError(t, err)
	h.processor.BBox = bbox

	stats := h.apply(t, createOSC)
	assert.Equal(t, int64(1), stats.OutsideBBox)
	_, ok, err := h.backend.Nodes.Directory.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRebuildDirectories(t *testing.T) {
	h := newHarness(t, nil)
	h.apply(t, createOSC)

	b := h.backend
	b.Nodes.Directory = store.NewMemDirectory()
	b.Ways.Directory = store.NewMemDirectory()
	b.Relations.Directory = store.NewMemDirectory()

	counts, err := b.RebuildDirectories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[element.Kind]int{element.Node: 3, element.Way: 1, element.Relation: 1}, counts)
	assert.Equal(t, spatial.FromLatLon(51.25, 7.15), get(t, b.Nodes.Directory, 1))
}

func TestOpenBackendMmapDirectory(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, func(c *config.Config) {
		c.DirectoryBackend = config.BackendMmap
		c.DirectoryCapacity = 1 << 16
		c.DataDir = dir
	})
	h.apply(t, createOSC)
	assert.Equal(t, spatial.FromLatLon(51.25, 7.15), get(t, h.backend.Nodes.Directory, 1))
}
