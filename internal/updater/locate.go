package updater

import (
	"context"
	"errors"
	"fmt"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
)

// memberIndex resolves member positions through the directories of the
// member kinds, caching lookups for one cycle.
type memberIndex struct {
	dirs  map[element.Kind]store.Directory
	cache map[element.Kind]map[element.ID]spatial.Index
}

func newMemberIndex(dirs map[element.Kind]store.Directory) *memberIndex {
	cache := make(map[element.Kind]map[element.ID]spatial.Index, len(dirs))
	for k := range dirs {
		cache[k] = make(map[element.ID]spatial.Index)
	}
	return &memberIndex{dirs: dirs, cache: cache}
}

// index returns the current index of a member; zero if it has none.
// Kinds without a directory never resolve, nor do ids beyond the
// directory's capacity.
func (m *memberIndex) index(ctx context.Context, kind element.Kind, id element.ID) (spatial.Index, error) {
	dir, ok := m.dirs[kind]
	if !ok {
		return spatial.DeletedValue, nil
	}
	if idx, ok := m.cache[kind][id]; ok {
		return idx, nil
	}
	idx, found, err := dir.Get(ctx, id)
	if errors.Is(err, store.ErrOutOfRange) {
		found, err = false, nil
	}
	if err != nil {
		return 0, fmt.Errorf("directory lookup of %s %d: %w", kind, id, err)
	}
	if !found {
		idx = spatial.DeletedValue
	}
	m.cache[kind][id] = idx
	return idx, nil
}

type memberRef struct {
	kind element.Kind
	id   element.ID
}

// combine places an element from its members and reports members without
// a position and ambiguous results when report is set.
func (m *memberIndex) combine(ctx context.Context, c *Report, kind element.Kind, id element.ID, members []memberRef, report bool) (spatial.Position, error) {
	idxs := make([]spatial.Index, 0, len(members))
	var missing []memberRef
	for _, mr := range members {
		if _, ok := m.dirs[mr.kind]; !ok {
			continue
		}
		idx, err := m.index(ctx, mr.kind, mr.id)
		if err != nil {
			return spatial.Position{}, err
		}
		if idx == spatial.DeletedValue {
			missing = append(missing, mr)
			continue
		}
		idxs = append(idxs, idx)
	}
	pos := spatial.Combine(idxs)
	if !report {
		return pos, nil
	}
	for _, mr := range missing {
		c.add(UnresolvedReference, kind, id, "%s %d has no current position", mr.kind, mr.id)
	}
	if pos.IsAmbiguous() {
		c.add(AmbiguousPlacement, kind, id, "%d members cannot share one index, stored at %s", len(idxs), spatial.WideScan)
	}
	return pos, nil
}

// parentsOf lists the candidate indices of dependents of moved members.
func parentsOf(moved ...[]Moved) []spatial.Index {
	var out []spatial.Index
	for _, list := range moved {
		for _, m := range list {
			out = append(out, spatial.Parents(m.From)...)
		}
	}
	return out
}

func movedTimestamps(moved []Moved) map[element.ID]int64 {
	out := make(map[element.ID]int64, len(moved))
	for _, m := range moved {
		out[m.ID] = max(out[m.ID], m.Timestamp)
	}
	return out
}
