package updater

import (
	"context"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

// NodeUpdater maintains the node tables. Nodes are placed by their own
// coordinate and have no members, so nothing moves them implicitly.
type NodeUpdater struct {
	e *engine[element.NodeSkeleton]
}

// NewNodeUpdater creates an updater over tables.
func NewNodeUpdater(tables *Tables[element.NodeSkeleton], opts Options) (*NodeUpdater, error) {
	e, err := newEngine(element.Node, tables, opts)
	if err != nil {
		return nil, err
	}
	return &NodeUpdater{e: e}, nil
}

// SetNode stages a node version.
func (u *NodeUpdater) SetNode(n element.NodeSkeleton, tags []element.Tag, meta element.Meta) {
	u.e.stage(Entry[element.NodeSkeleton]{
		ID:   n.ID,
		Pos:  spatial.At(spatial.FromLatLon(n.LatLon())),
		Elem: n,
		Tags: tags,
		Meta: meta,
	})
}

// SetDeleted stages the deletion of a node.
func (u *NodeUpdater) SetDeleted(id element.ID, meta element.Meta) {
	u.e.stage(Entry[element.NodeSkeleton]{
		ID:   id,
		Pos:  spatial.Gone(),
		Elem: element.NodeSkeleton{ID: id},
		Meta: meta,
	})
}

// Pending returns the number of staged entries.
func (u *NodeUpdater) Pending() int { return u.e.data.Len() }

// Tables returns the node tables.
func (u *NodeUpdater) Tables() *Tables[element.NodeSkeleton] { return u.e.tables }

// Update applies the staged nodes and returns the nodes that changed index.
func (u *NodeUpdater) Update(ctx context.Context) (*Result, error) {
	c := u.e.begin()
	if err := u.e.prepare(ctx, c); err != nil {
		u.e.abort()
		return nil, err
	}
	return u.e.commit(ctx, c, nil)
}
