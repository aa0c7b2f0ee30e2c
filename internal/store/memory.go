package store

import (
	"context"
	"slices"
	"sync"

	"github.com/google/btree"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

// MemStore is an in-memory IndexedStore. Keys live in a B-tree, so a
// discrete or range read only visits the keys it selects.
type MemStore[K Key[K], R element.Lesser[R]] struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[bucket[K, R]]
}

type bucket[K Key[K], R element.Lesser[R]] struct {
	key K
	set *Set[R]
}

func lessBucket[K Key[K], R element.Lesser[R]](a, b bucket[K, R]) bool {
	return a.key.Less(b.key)
}

// NewMemStore creates an empty memory store.
func NewMemStore[K Key[K], R element.Lesser[R]]() *MemStore[K, R] {
	return &MemStore[K, R]{tree: btree.NewG[bucket[K, R]](32, lessBucket[K, R])}
}

type entry[K any, R any] struct {
	key K
	rec R
}

func appendBucket[K Key[K], R element.Lesser[R]](out []entry[K, R], b bucket[K, R]) []entry[K, R] {
	for _, r := range b.set.Items() {
		out = append(out, entry[K, R]{key: b.key, rec: r})
	}
	return out
}

func compareKeys[K Key[K]](a, b K) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}

func (m *MemStore[K, R]) visit(ctx context.Context, entries []entry[K, R], fn func(K, R) error) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e.key, e.rec); err != nil {
			return err
		}
	}
	return nil
}

// DiscreteIterate visits the records of keys in ascending key order. The
// records are copied under the read lock so fn runs without holding it.
func (m *MemStore[K, R]) DiscreteIterate(ctx context.Context, keys []K, fn func(K, R) error) error {
	sorted := slices.Clone(keys)
	slices.SortFunc(sorted, compareKeys[K])
	sorted = slices.Compact(sorted)

	var out []entry[K, R]
	m.mu.RLock()
	for _, k := range sorted {
		if b, ok := m.tree.Get(bucket[K, R]{key: k}); ok {
			out = appendBucket(out, b)
		}
	}
	m.mu.RUnlock()
	return m.visit(ctx, out, fn)
}

// RangeIterate visits every record whose key lies in one of ranges, once,
// in ascending key order.
func (m *MemStore[K, R]) RangeIterate(ctx context.Context, ranges []Range[K], fn func(K, R) error) error {
	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b Range[K]) int { return compareKeys(a.Begin, b.Begin) })

	var (
		out  []entry[K, R]
		last K
		seen bool
	)
	m.mu.RLock()
	for _, r := range sorted {
		begin := r.Begin
		if seen && begin.Less(last) {
			begin = last
		}
		m.tree.AscendRange(bucket[K, R]{key: begin}, bucket[K, R]{key: r.End}, func(b bucket[K, R]) bool {
			if seen && !last.Less(b.key) {
				return true
			}
			out = appendBucket(out, b)
			last, seen = b.key, true
			return true
		})
	}
	m.mu.RUnlock()
	return m.visit(ctx, out, fn)
}

func (m *MemStore[K, R]) AtomicReplace(ctx context.Context, remove, add Buckets[K, R]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, s := range remove {
		b, ok := m.tree.Get(bucket[K, R]{key: k})
		if !ok {
			continue
		}
		for _, r := range s.Items() {
			b.set.Remove(r)
		}
		if b.set.Len() == 0 {
			m.tree.Delete(b)
		}
	}
	for k, s := range add {
		b, ok := m.tree.Get(bucket[K, R]{key: k})
		if !ok {
			b = bucket[K, R]{key: k, set: &Set[R]{}}
			m.tree.ReplaceOrInsert(b)
		}
		for _, r := range s.Items() {
			b.set.Insert(r)
		}
	}
	return nil
}

// Snapshot returns a deep copy of the stored data.
func (m *MemStore[K, R]) Snapshot() Buckets[K, R] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(Buckets[K, R], m.tree.Len())
	m.tree.Ascend(func(b bucket[K, R]) bool {
		out[b.key] = b.set.Clone()
		return true
	})
	return out
}

// Len returns the number of stored records.
func (m *MemStore[K, R]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	m.tree.Ascend(func(b bucket[K, R]) bool {
		n += b.set.Len()
		return true
	})
	return n
}

// MemDirectory is an in-memory Directory.
type MemDirectory struct {
	mu      sync.RWMutex
	entries map[element.ID]spatial.Index
}

// NewMemDirectory creates an empty directory.
func NewMemDirectory() *MemDirectory {
	return &MemDirectory{entries: make(map[element.ID]spatial.Index)}
}

func (d *MemDirectory) Get(_ context.Context, id element.ID) (spatial.Index, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.entries[id]
	return idx, ok, nil
}

func (d *MemDirectory) Put(_ context.Context, id element.ID, idx spatial.Index) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx == spatial.DeletedValue {
		delete(d.entries, id)
		return nil
	}
	d.entries[id] = idx
	return nil
}

// Len returns the number of ids with a current index.
func (d *MemDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Entries returns a copy of all entries.
func (d *MemDirectory) Entries() map[element.ID]spatial.Index {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[element.ID]spatial.Index, len(d.entries))
	for k, v := range d.entries {
		out[k] = v
	}
	return out
}
