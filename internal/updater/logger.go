package updater

import (
	"context"
	"slices"

	"github.com/wegman-software/osmindex-go/internal/changelog"
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

// Snapshot is one resolved state of an element. A zero Index means the
// state is absent.
type Snapshot[S any] struct {
	Index spatial.Index
	Elem  S
	Tags  []element.Tag
	Meta  element.Meta
}

// Present reports whether the snapshot holds a state.
func (s Snapshot[S]) Present() bool {
	return s.Index != spatial.DeletedValue
}

func (s Snapshot[S]) version() *changelog.Version {
	if !s.Present() {
		return nil
	}
	v := &changelog.Version{Index: s.Index, Element: s.Elem, Tags: s.Tags}
	if s.Meta.Version != 0 {
		m := s.Meta
		v.Meta = &m
	}
	return v
}

type logRecord[S any] struct {
	action changelog.Action
	before Snapshot[S]
	after  Snapshot[S]
}

func rank(a changelog.Action) int {
	switch a {
	case changelog.Insert:
		return 3
	case changelog.Erase:
		return 2
	case changelog.Keep:
		return 1
	}
	return 0
}

// UpdateLogger classifies every touched id of one cycle as insert, keep or
// erase. Insert wins over erase and erase over keep; a later call of equal
// or higher precedence replaces the recorded snapshots.
type UpdateLogger[S any] struct {
	kind    element.Kind
	records map[element.ID]logRecord[S]
}

// NewUpdateLogger creates a logger for one element kind.
func NewUpdateLogger[S any](kind element.Kind) *UpdateLogger[S] {
	return &UpdateLogger[S]{kind: kind, records: make(map[element.ID]logRecord[S])}
}

func (l *UpdateLogger[S]) set(id element.ID, rec logRecord[S]) {
	if cur, ok := l.records[id]; ok && rank(cur.action) > rank(rec.action) {
		return
	}
	l.records[id] = rec
}

// Insert records a new or replaced element.
func (l *UpdateLogger[S]) Insert(id element.ID, before, after Snapshot[S]) {
	l.set(id, logRecord[S]{action: changelog.Insert, before: before, after: after})
}

// Erase records a deleted element.
func (l *UpdateLogger[S]) Erase(id element.ID, before Snapshot[S]) {
	l.set(id, logRecord[S]{action: changelog.Erase, before: before})
}

// Keep records an element whose content did not change, such as one
// carried along by its members.
func (l *UpdateLogger[S]) Keep(id element.ID, before, after Snapshot[S]) {
	l.set(id, logRecord[S]{action: changelog.Keep, before: before, after: after})
}

// Action returns the classification of id.
func (l *UpdateLogger[S]) Action(id element.ID) (changelog.Action, bool) {
	rec, ok := l.records[id]
	return rec.action, ok
}

// Len returns the number of classified ids.
func (l *UpdateLogger[S]) Len() int { return len(l.records) }

// Count returns the number of ids with the given classification.
func (l *UpdateLogger[S]) Count(a changelog.Action) int {
	n := 0
	for _, rec := range l.records {
		if rec.action == a {
			n++
		}
	}
	return n
}

// Entries renders the records in id order.
func (l *UpdateLogger[S]) Entries() []changelog.Entry {
	ids := make([]element.ID, 0, len(l.records))
	for id := range l.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]changelog.Entry, 0, len(ids))
	for _, id := range ids {
		rec := l.records[id]
		out = append(out, changelog.Entry{
			Kind:   l.kind,
			ID:     id,
			Action: rec.action,
			Before: rec.before.version(),
			After:  rec.after.version(),
		})
	}
	return out
}

// Flush writes all records to sink and resets the logger, also on error.
func (l *UpdateLogger[S]) Flush(ctx context.Context, sink changelog.Sink) error {
	defer l.Reset()
	if len(l.records) == 0 {
		return nil
	}
	return sink.Write(ctx, l.Entries())
}

// Reset drops all records.
func (l *UpdateLogger[S]) Reset() {
	clear(l.records)
}
