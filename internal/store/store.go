// Package store defines the storage collaborators the update engine writes
// through: a sparse id → index directory and key-sorted indexed stores of
// record sets. Memory implementations live here; persistent ones live in
// the dirindex and middle packages.
package store

import (
	"context"
	"errors"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

// Key is the constraint for indexed store keys.
type Key[K any] interface {
	comparable
	Less(K) bool
}

// Range is a half-open key range [Begin, End).
type Range[K any] struct {
	Begin K
	End   K
}

// Contains reports whether k lies in the range.
func (r Range[K]) Contains(k K, less func(a, b K) bool) bool {
	return !less(k, r.Begin) && less(k, r.End)
}

// ErrOutOfRange is returned by directories for ids beyond their capacity.
var ErrOutOfRange = errors.New("element id out of directory range")

// Directory maps element ids to the index of their current skeleton.
// An index of zero passed to Put removes the entry.
type Directory interface {
	Get(ctx context.Context, id element.ID) (spatial.Index, bool, error)
	Put(ctx context.Context, id element.ID, idx spatial.Index) error
}

// IndexedStore is a key-sorted store holding a set of records per key.
// Iteration visits keys in ascending order and records in set order.
type IndexedStore[K Key[K], R element.Lesser[R]] interface {
	DiscreteIterate(ctx context.Context, keys []K, fn func(K, R) error) error
	RangeIterate(ctx context.Context, ranges []Range[K], fn func(K, R) error) error
	// AtomicReplace removes every record of remove and adds every record of
	// add in one atomic step.
	AtomicReplace(ctx context.Context, remove, add Buckets[K, R]) error
}
