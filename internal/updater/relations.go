package updater

import (
	"context"
	"fmt"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
)

// RelationUpdater maintains the relation tables. Relation indices are
// combined from the node and way directories; relation members do not
// contribute. Member roles are interned through the role dictionary,
// which is flushed before any relation table is written.
//
// One cycle runs FindAffected, ComputeIndexes, ResolveDeletions,
// PatchMembers and FlushRoles, then applies and logs the result.
type RelationUpdater struct {
	e        *engine[element.RelationSkeleton]
	nodes    store.Directory
	ways     store.Directory
	roles    *RoleDictionary
	members  *memberIndex
	stageErr error
}

// NewRelationUpdater creates an updater over tables.
func NewRelationUpdater(tables *Tables[element.RelationSkeleton], nodes, ways store.Directory, roles *RoleDictionary, opts Options) (*RelationUpdater, error) {
	if roles == nil {
		return nil, fmt.Errorf("relation updater requires a role dictionary")
	}
	e, err := newEngine(element.Relation, tables, opts)
	if err != nil {
		return nil, err
	}
	return &RelationUpdater{e: e, nodes: nodes, ways: ways, roles: roles}, nil
}

// SetRelation stages a relation version. Role strings are interned here;
// when the role id space is exhausted the error is returned and the next
// Update fails without writing anything.
func (u *RelationUpdater) SetRelation(id element.ID, members []element.RelationMember, tags []element.Tag, meta element.Meta) error {
	skel := element.RelationSkeleton{ID: id, Members: make([]element.Member, len(members))}
	for i, m := range members {
		role, err := u.roles.ID(m.Role)
		if err != nil {
			if u.stageErr == nil {
				u.stageErr = fmt.Errorf("relation %d: %w", id, err)
			}
			return err
		}
		skel.Members[i] = element.Member{Ref: m.Ref, Type: m.Type, Role: role}
	}
	u.e.stage(Entry[element.RelationSkeleton]{ID: id, Pos: spatial.Ambiguous(), Elem: skel, Tags: tags, Meta: meta})
	return nil
}

// SetDeleted stages the deletion of a relation.
func (u *RelationUpdater) SetDeleted(id element.ID, meta element.Meta) {
	u.e.stage(Entry[element.RelationSkeleton]{
		ID:   id,
		Pos:  spatial.Gone(),
		Elem: element.RelationSkeleton{ID: id},
		Meta: meta,
	})
}

// Pending returns the number of staged entries.
func (u *RelationUpdater) Pending() int { return u.e.data.Len() }

// Tables returns the relation tables.
func (u *RelationUpdater) Tables() *Tables[element.RelationSkeleton] { return u.e.tables }

// Roles returns the role dictionary.
func (u *RelationUpdater) Roles() *RoleDictionary { return u.roles }

func relationMembers(r element.RelationSkeleton) []memberRef {
	out := make([]memberRef, len(r.Members))
	for i, m := range r.Members {
		out[i] = memberRef{kind: m.Type, id: m.Ref}
	}
	return out
}

// FindAffected adds the relations that reference a moved node or way to
// the cycle, even when they were not staged.
func (u *RelationUpdater) FindAffected(ctx context.Context, c *Cycle[element.RelationSkeleton], movedNodes, movedWays []Moved) error {
	if len(movedNodes) == 0 && len(movedWays) == 0 {
		return nil
	}
	nodes := movedTimestamps(movedNodes)
	ways := movedTimestamps(movedWays)
	match := func(r element.RelationSkeleton) (int64, bool) {
		var until int64
		hit := false
		for _, m := range r.Members {
			var ts int64
			var ok bool
			switch m.Type {
			case element.Node:
				ts, ok = nodes[m.Ref]
			case element.Way:
				ts, ok = ways[m.Ref]
			}
			if ok {
				hit = true
				until = max(until, ts)
			}
		}
		return until, hit
	}
	return u.e.findDependents(ctx, c, parentsOf(movedNodes, movedWays), match)
}

// ComputeIndexes places every staged relation and every affected one.
func (u *RelationUpdater) ComputeIndexes(ctx context.Context, c *Cycle[element.RelationSkeleton]) error {
	entries := u.e.data.Entries()
	for i := range entries {
		if entries[i].Pos.IsDeleted() {
			continue
		}
		pos, err := u.members.combine(ctx, c.report, element.Relation, entries[i].ID, relationMembers(entries[i].Elem), u.e.data.IsLast(i))
		if err != nil {
			return err
		}
		entries[i].Pos = pos
		c.pulse.tick("compute indexes")
	}
	return u.e.placeDependents(c, func(r element.RelationSkeleton) (spatial.Position, error) {
		return u.members.combine(ctx, c.report, element.Relation, r.ID, relationMembers(r), false)
	})
}

// ResolveDeletions looks up the current index of every staged relation:
// the records there are retired by this cycle.
func (u *RelationUpdater) ResolveDeletions(ctx context.Context, c *Cycle[element.RelationSkeleton]) error {
	return u.e.lookupPrior(ctx, c)
}

// PatchMembers reads the current state of the touched relations and
// computes every table change, feeding the update logger.
func (u *RelationUpdater) PatchMembers(ctx context.Context, c *Cycle[element.RelationSkeleton]) error {
	if err := u.e.fetch(ctx, c); err != nil {
		return err
	}
	u.e.diff(c)
	return nil
}

// FlushRoles persists the roles assigned since the last flush.
func (u *RelationUpdater) FlushRoles(ctx context.Context) error {
	return u.roles.Flush(ctx)
}

// checkRoles fails if any relation about to be written uses a role id
// that is not persisted.
func (u *RelationUpdater) checkRoles(c *Cycle[element.RelationSkeleton]) func(context.Context) error {
	return func(context.Context) error {
		var err error
		check := func(r element.RelationSkeleton) {
			for _, m := range r.Members {
				if err == nil {
					err = u.roles.Check(m.Role)
				}
			}
		}
		c.skel.New.Each(func(_ spatial.Index, r element.RelationSkeleton) { check(r) })
		c.history.Skeletons.Each(func(_ spatial.Index, a element.Attic[element.RelationSkeleton]) { check(a.Elem) })
		return err
	}
}

// Update runs one relation cycle against the node and way moves of the
// same batch and returns every relation that changed index.
func (u *RelationUpdater) Update(ctx context.Context, movedNodes, movedWays []Moved) (*Result, error) {
	res, err := u.update(ctx, movedNodes, movedWays)
	if err != nil {
		u.e.abort()
	}
	return res, err
}

func (u *RelationUpdater) update(ctx context.Context, movedNodes, movedWays []Moved) (*Result, error) {
	if err := u.stageErr; err != nil {
		u.stageErr = nil
		return nil, err
	}

	c := u.e.begin()
	u.members = newMemberIndex(map[element.Kind]store.Directory{
		element.Node: u.nodes,
		element.Way:  u.ways,
	})

	if err := u.FindAffected(ctx, c, movedNodes, movedWays); err != nil {
		return nil, err
	}
	if err := u.ComputeIndexes(ctx, c); err != nil {
		return nil, err
	}
	if err := u.ResolveDeletions(ctx, c); err != nil {
		return nil, err
	}
	if err := u.PatchMembers(ctx, c); err != nil {
		return nil, err
	}
	if err := u.FlushRoles(ctx); err != nil {
		return nil, err
	}
	return u.e.commit(ctx, c, u.checkRoles(c))
}
