package updater

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

func TestRelationFollowsMovedWay(t *testing.T) {
	w := newWorld(t, DefaultOptions())

	w.nodes.SetNode(node(1, 51.25, 7.15), nil, meta(1, 1000))
	w.nodes.SetNode(node(2, 51.2501, 7.1501), nil, meta(1, 1000))
	w.ways.SetWay(element.WaySkeleton{ID: 10, Nodes: []element.ID{1, 2}}, nil, meta(1, 1000))
	require.NoError(t, w.relations.SetRelation(100, []element.RelationMember{
		{Ref: 10, Type: element.Way, Role: "outer"},
		{Ref: 1, Type: element.Node, Role: "admin_centre"},
	}, tags("boundary", "administrative"), meta(1, 1000)))
	w.update(t)

	a := spatial.FromLatLon(51.25, 7.15)
	got, ok := dirGet(t, w.relations.Tables().Directory, 100)
	require.True(t, ok)
	require.Equal(t, a, got)

	w.nodes.SetNode(node(2, 51.3, 7.2), nil, meta(2, 1100))
	_, ways, rels := w.update(t)

	require.Len(t, ways.Moved, 1)
	want := spatial.Combine([]spatial.Index{ways.Moved[0].To, a}).Stored()
	assert.Equal(t, []Moved{{ID: 100, From: a, To: want, Timestamp: 1100}}, rels.Moved)

	tbl := w.relations.Tables()
	assert.Equal(t, []spatial.Index{want}, snapshot(t, tbl.Skeletons).Keys())
	assert.True(t, snapshot(t, tbl.Local).Get(element.LocalTag(want, "boundary", "administrative")).Contains(100))
	got, _ = dirGet(t, tbl.Directory, 100)
	assert.Equal(t, want, got)
}

func TestRelationMembersKeepRolesAndOrder(t *testing.T) {
	w := newWorld(t, DefaultOptions())

	w.nodes.SetNode(node(1, 51.25, 7.15), nil, meta(1, 1000))
	require.NoError(t, w.relations.SetRelation(100, []element.RelationMember{
		{Ref: 1, Type: element.Node, Role: "stop"},
		{Ref: 999, Type: element.Node, Role: "platform"},
		{Ref: 5, Type: element.Relation, Role: "stop"},
	}, nil, meta(1, 1000)))
	_, _, rels := w.update(t)

	assert.Equal(t, 1, rels.Report.Count(UnresolvedReference), "only the node member is resolvable")

	idx := spatial.FromLatLon(51.25, 7.15)
	items := snapshot(t, w.relations.Tables().Skeletons).Get(idx).Items()
	require.Len(t, items, 1)
	assert.Equal(t, []element.Member{
		{Ref: 1, Type: element.Node, Role: 0},
		{Ref: 999, Type: element.Node, Role: 1},
		{Ref: 5, Type: element.Relation, Role: 0},
	}, items[0].Members)

	assert.Equal(t, []Role{{ID: 0, Name: "stop"}, {ID: 1, Name: "platform"}}, w.roles.roles)
}

func TestRelationWithoutPositionedMembers(t *testing.T) {
	w := newWorld(t, DefaultOptions())
	require.NoError(t, w.relations.SetRelation(100, []element.RelationMember{
		{Ref: 5, Type: element.Relation, Role: ""},
	}, nil, meta(1, 1000)))
	_, _, rels := w.update(t)

	assert.Equal(t, 1, rels.Report.Count(AmbiguousPlacement))
	got, _ := dirGet(t, w.relations.Tables().Directory, 100)
	assert.Equal(t, spatial.WideScan, got)
}

func TestRoleExhaustionAbortsBeforeWriting(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, DefaultOptions())
	roles, err := NewRoleDictionary(ctx, w.roles, 2)
	require.NoError(t, err)
	w.relations.roles = roles

	require.NoError(t, w.relations.SetRelation(100, []element.RelationMember{
		{Ref: 1, Type: element.Node, Role: "inner"},
	}, nil, meta(1, 1000)))
	err = w.relations.SetRelation(101, []element.RelationMember{
		{Ref: 1, Type: element.Node, Role: "outer"},
		{Ref: 2, Type: element.Node, Role: "label"},
	}, nil, meta(1, 1000))
	require.ErrorIs(t, err, ErrRoleIDExhausted)

	_, err = w.relations.Update(ctx, nil, nil)
	require.ErrorIs(t, err, ErrRoleIDExhausted)

	tbl := w.relations.Tables()
	assert.Zero(t, snapshot(t, tbl.Skeletons).Len())
	assert.Zero(t, snapshot(t, tbl.Local).Len())
	_, ok := dirGet(t, tbl.Directory, 100)
	assert.False(t, ok)
	assert.Zero(t, w.relations.Pending(), "a failed cycle drops its staged entries")
	assert.Empty(t, w.roles.roles, "nothing is persisted")

	// The next cycle starts clean.
	require.NoError(t, w.relations.SetRelation(100, []element.RelationMember{
		{Ref: 1, Type: element.Node, Role: "inner"},
	}, nil, meta(1, 1000)))
	_, err = w.relations.Update(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot(t, tbl.Skeletons).Len())
}

func TestRoleGuardRejectsUnflushedRoles(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, DefaultOptions())
	require.NoError(t, w.relations.SetRelation(100, []element.RelationMember{
		{Ref: 1, Type: element.Node, Role: "inner"},
	}, nil, meta(1, 1000)))

	c := w.relations.e.begin()
	w.relations.members = newMemberIndex(nil)
	require.NoError(t, w.relations.ComputeIndexes(ctx, c))
	require.NoError(t, w.relations.ResolveDeletions(ctx, c))
	require.NoError(t, w.relations.PatchMembers(ctx, c))

	err := w.relations.checkRoles(c)(ctx)
	require.ErrorIs(t, err, ErrRoleNotFlushed)

	require.NoError(t, w.relations.FlushRoles(ctx))
	require.NoError(t, w.relations.checkRoles(c)(ctx))
}
