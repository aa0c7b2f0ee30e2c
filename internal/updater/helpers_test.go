package updater

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmindex-go/internal/changelog"
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
)

func node(id element.ID, lat, lon float64) element.NodeSkeleton {
	return element.NodeSkeleton{ID: id, Lat: element.ScaleCoord(lat), Lon: element.ScaleCoord(lon)}
}

func meta(version uint32, ts int64) element.Meta {
	return element.Meta{Version: version, Timestamp: ts, Changeset: uint64(ts), UserID: 7, User: "mapper"}
}

func tags(kv ...string) []element.Tag {
	out := make([]element.Tag, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, element.Tag{Key: kv[i], Value: kv[i+1]})
	}
	return out
}

func snapshot[K store.Key[K], R element.Lesser[R]](t *testing.T, st store.IndexedStore[K, R]) store.Buckets[K, R] {
	t.Helper()
	mem, ok := st.(*store.MemStore[K, R])
	require.True(t, ok, "expected a memory store")
	return mem.Snapshot()
}

func dirGet(t *testing.T, dir store.Directory, id element.ID) (spatial.Index, bool) {
	t.Helper()
	idx, ok, err := dir.Get(context.Background(), id)
	require.NoError(t, err)
	return idx, ok
}

// world wires the three updaters over memory tables the way the append
// pipeline does.
type world struct {
	nodes     *NodeUpdater
	ways      *WayUpdater
	relations *RelationUpdater
	sink      *changelog.MemorySink
	roles     *MemRoleStore
}

func newWorld(t *testing.T, opts Options) *world {
	t.Helper()
	sink := &changelog.MemorySink{}
	opts.Sink = sink

	nodes, err := NewNodeUpdater(NewMemTables[element.NodeSkeleton](), opts)
	require.NoError(t, err)
	ways, err := NewWayUpdater(NewMemTables[element.WaySkeleton](), nodes.Tables().Directory, opts)
	require.NoError(t, err)

	roleStore := &MemRoleStore{}
	roles, err := NewRoleDictionary(context.Background(), roleStore, 0)
	require.NoError(t, err)
	relations, err := NewRelationUpdater(NewMemTables[element.RelationSkeleton](),
		nodes.Tables().Directory, ways.Tables().Directory, roles, opts)
	require.NoError(t, err)

	return &world{nodes: nodes, ways: ways, relations: relations, sink: sink, roles: roleStore}
}

// update runs one cycle over all kinds.
func (w *world) update(t *testing.T) (nodes, ways, relations *Result) {
	t.Helper()
	ctx := context.Background()
	var err error
	nodes, err = w.nodes.Update(ctx)
	require.NoError(t, err)
	ways, err = w.ways.Update(ctx, nodes.Moved)
	require.NoError(t, err)
	relations, err = w.relations.Update(ctx, nodes.Moved, ways.Moved)
	require.NoError(t, err)
	return nodes, ways, relations
}

func attic() Options {
	opts := DefaultOptions()
	opts.MetaMode = MetaAttic
	return opts
}
