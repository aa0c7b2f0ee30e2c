package updater

import (
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
)

// Skeleton is the capability set the differencer needs from a kind.
type Skeleton[S any] interface {
	element.Lesser[S]
	ElemID() element.ID
	Equal(S) bool
}

// SkeletonDiff is the outcome of skeleton differencing. Attic holds the
// records leaving the current table, New the records entering it.
type SkeletonDiff[S element.Lesser[S]] struct {
	Attic store.Buckets[spatial.Index, S]
	New   store.Buckets[spatial.Index, S]
	Moved []Moved
	// Kept lists ids left in place because nothing changed.
	Kept []element.ID
	// Gaps lists ids whose prior skeleton was missing at its index.
	Gaps []element.ID
}

// DiffSkeletons compares the last staged version of each id with its
// current skeleton. existing must hold only the current skeletons of
// staged ids, at their prior positions.
func DiffSkeletons[S Skeleton[S]](data *DataByID[S], prior Positions, existing store.Buckets[spatial.Index, S], opts Options) SkeletonDiff[S] {
	diff := SkeletonDiff[S]{
		Attic: existing.Clone(),
		New:   make(store.Buckets[spatial.Index, S]),
	}

	for _, e := range data.Last() {
		if e.Pos.IsDeleted() {
			// Any prior record is already in Attic.
			continue
		}
		target := e.Pos.Stored()
		from, ok := prior[e.ID]
		switch {
		case !ok:
			diff.New.Add(target, e.Elem)
		case from != target:
			diff.Moved = append(diff.Moved, Moved{ID: e.ID, From: from, To: target, Timestamp: e.Meta.Timestamp})
			diff.New.Add(target, e.Elem)
		default:
			old, found := existing.Get(target).Find(e.Elem)
			if !found {
				diff.Gaps = append(diff.Gaps, e.ID)
				diff.New.Add(target, e.Elem)
				continue
			}
			if opts.SkipUnchanged && old.Equal(e.Elem) {
				diff.Attic.Remove(target, old)
				diff.Kept = append(diff.Kept, e.ID)
				continue
			}
			diff.New.Add(target, e.Elem)
			if opts.RecordMinusculeMoves {
				diff.Moved = append(diff.Moved, Moved{ID: e.ID, From: from, To: target, Timestamp: e.Meta.Timestamp})
			}
		}
	}
	return diff
}

// DiffMeta retires every existing meta of the staged ids and adds the last
// entry's meta of each id that is not deleted, with or without a version.
func DiffMeta[S any](data *DataByID[S], existing store.Buckets[spatial.Index, element.Meta]) (attic, added store.Buckets[spatial.Index, element.Meta]) {
	attic = existing.Clone()
	added = make(store.Buckets[spatial.Index, element.Meta])
	for _, e := range data.Last() {
		if e.Pos.IsDeleted() {
			continue
		}
		added.Add(e.Pos.Stored(), e.Meta)
	}
	return attic, added
}
