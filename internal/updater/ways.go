package updater

import (
	"context"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
)

// WayUpdater maintains the way tables. Way indices are combined from the
// current node directory; ways follow their moved nodes.
type WayUpdater struct {
	e     *engine[element.WaySkeleton]
	nodes store.Directory
}

// NewWayUpdater creates an updater over tables, placing ways through the
// node directory.
func NewWayUpdater(tables *Tables[element.WaySkeleton], nodes store.Directory, opts Options) (*WayUpdater, error) {
	e, err := newEngine(element.Way, tables, opts)
	if err != nil {
		return nil, err
	}
	return &WayUpdater{e: e, nodes: nodes}, nil
}

// SetWay stages a way version. Its index is computed in Update.
func (u *WayUpdater) SetWay(w element.WaySkeleton, tags []element.Tag, meta element.Meta) {
	u.e.stage(Entry[element.WaySkeleton]{ID: w.ID, Pos: spatial.Ambiguous(), Elem: w, Tags: tags, Meta: meta})
}

// SetDeleted stages the deletion of a way.
func (u *WayUpdater) SetDeleted(id element.ID, meta element.Meta) {
	u.e.stage(Entry[element.WaySkeleton]{
		ID:   id,
		Pos:  spatial.Gone(),
		Elem: element.WaySkeleton{ID: id},
		Meta: meta,
	})
}

// Pending returns the number of staged entries.
func (u *WayUpdater) Pending() int { return u.e.data.Len() }

// Tables returns the way tables.
func (u *WayUpdater) Tables() *Tables[element.WaySkeleton] { return u.e.tables }

func wayMembers(w element.WaySkeleton) []memberRef {
	out := make([]memberRef, len(w.Nodes))
	for i, n := range w.Nodes {
		out[i] = memberRef{kind: element.Node, id: n}
	}
	return out
}

// Update applies the staged ways plus the ways carried along by
// movedNodes and returns every way that changed index.
func (u *WayUpdater) Update(ctx context.Context, movedNodes []Moved) (*Result, error) {
	res, err := u.update(ctx, movedNodes)
	if err != nil {
		u.e.abort()
	}
	return res, err
}

func (u *WayUpdater) update(ctx context.Context, movedNodes []Moved) (*Result, error) {
	c := u.e.begin()
	members := newMemberIndex(map[element.Kind]store.Directory{element.Node: u.nodes})

	entries := u.e.data.Entries()
	for i := range entries {
		if entries[i].Pos.IsDeleted() {
			continue
		}
		pos, err := members.combine(ctx, c.report, element.Way, entries[i].ID, wayMembers(entries[i].Elem), u.e.data.IsLast(i))
		if err != nil {
			return nil, err
		}
		entries[i].Pos = pos
	}

	if len(movedNodes) > 0 {
		moved := movedTimestamps(movedNodes)
		match := func(w element.WaySkeleton) (int64, bool) {
			var until int64
			hit := false
			for _, n := range w.Nodes {
				if ts, ok := moved[n]; ok {
					hit = true
					until = max(until, ts)
				}
			}
			return until, hit
		}
		if err := u.e.findDependents(ctx, c, parentsOf(movedNodes), match); err != nil {
			return nil, err
		}
		locate := func(w element.WaySkeleton) (spatial.Position, error) {
			return members.combine(ctx, c.report, element.Way, w.ID, wayMembers(w), false)
		}
		if err := u.e.placeDependents(c, locate); err != nil {
			return nil, err
		}
	}

	if err := u.e.prepare(ctx, c); err != nil {
		return nil, err
	}
	return u.e.commit(ctx, c, nil)
}
