package store

import (
	"slices"

	"github.com/wegman-software/osmindex-go/internal/element"
)

// Buckets maps keys to record sets. It is the unit handed to AtomicReplace
// and the shape of every attic and new map the differencers produce.
type Buckets[K Key[K], R element.Lesser[R]] map[K]*Set[R]

// Add inserts r under k.
func (b Buckets[K, R]) Add(k K, r R) {
	s, ok := b[k]
	if !ok {
		s = &Set[R]{}
		b[k] = s
	}
	s.Insert(r)
}

// Remove deletes r from k, dropping k once its set is empty.
func (b Buckets[K, R]) Remove(k K, r R) bool {
	s, ok := b[k]
	if !ok {
		return false
	}
	removed := s.Remove(r)
	if s.Len() == 0 {
		delete(b, k)
	}
	return removed
}

// Get returns the set under k, nil if absent.
func (b Buckets[K, R]) Get(k K) *Set[R] {
	return b[k]
}

// Keys returns the keys in ascending order.
func (b Buckets[K, R]) Keys() []K {
	keys := make([]K, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, c K) int {
		switch {
		case a.Less(c):
			return -1
		case c.Less(a):
			return 1
		}
		return 0
	})
	return keys
}

// Len counts the records over all keys.
func (b Buckets[K, R]) Len() int {
	n := 0
	for _, s := range b {
		n += s.Len()
	}
	return n
}

// Each visits every record in key order.
func (b Buckets[K, R]) Each(fn func(K, R)) {
	for _, k := range b.Keys() {
		for _, r := range b[k].Items() {
			fn(k, r)
		}
	}
}

// Merge adds every record of o.
func (b Buckets[K, R]) Merge(o Buckets[K, R]) {
	for k, s := range o {
		for _, r := range s.Items() {
			b.Add(k, r)
		}
	}
}

// Clone returns a deep copy.
func (b Buckets[K, R]) Clone() Buckets[K, R] {
	out := make(Buckets[K, R], len(b))
	for k, s := range b {
		out[k] = s.Clone()
	}
	return out
}
