package updater

import (
	"cmp"
	"slices"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

// Entry is one staged element version.
type Entry[S any] struct {
	ID   element.ID
	Pos  spatial.Position
	Elem S
	Tags []element.Tag
	Meta element.Meta
}

// DataByID collects staged versions. After Sort, entries of one id are
// adjacent and keep their arrival order; only the last of each run
// determines the id's new current state.
type DataByID[S any] struct {
	entries []Entry[S]
}

// Add stages an entry.
func (d *DataByID[S]) Add(e Entry[S]) {
	e.Meta.Ref = e.ID
	d.entries = append(d.entries, e)
}

// Len returns the number of staged entries.
func (d *DataByID[S]) Len() int { return len(d.entries) }

// Sort orders entries by id, stable within an id.
func (d *DataByID[S]) Sort() {
	slices.SortStableFunc(d.entries, func(a, b Entry[S]) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// Entries exposes the staged entries for in-place position assignment.
func (d *DataByID[S]) Entries() []Entry[S] { return d.entries }

// IsLast reports whether entry i is the last of its id run.
func (d *DataByID[S]) IsLast(i int) bool {
	return i == len(d.entries)-1 || d.entries[i+1].ID != d.entries[i].ID
}

// IDs returns the deduplicated ascending id list. Requires Sort.
func (d *DataByID[S]) IDs() []element.ID {
	ids := make([]element.ID, 0, len(d.entries))
	for i, e := range d.entries {
		if d.IsLast(i) {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Last returns the last entry of every id. Requires Sort.
func (d *DataByID[S]) Last() []Entry[S] {
	out := make([]Entry[S], 0, len(d.entries))
	for i, e := range d.entries {
		if d.IsLast(i) {
			out = append(out, e)
		}
	}
	return out
}

// runs calls fn with the entries of each id in turn. Requires Sort.
func (d *DataByID[S]) runs(fn func(run []Entry[S])) {
	start := 0
	for i := range d.entries {
		if d.IsLast(i) {
			fn(d.entries[start : i+1])
			start = i + 1
		}
	}
}

// Reset drops all staged entries.
func (d *DataByID[S]) Reset() {
	d.entries = d.entries[:0]
}

// Positions maps ids to the index of their current skeleton.
type Positions map[element.ID]spatial.Index
