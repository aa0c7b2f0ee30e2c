package store

import (
	"slices"
	"sort"

	"github.com/wegman-software/osmindex-go/internal/element"
)

// Set is an ordered set of records. Records comparing equal under Less are
// the same member; inserting one replaces the stored value.
type Set[T element.Lesser[T]] struct {
	items []T
}

// NewSet builds a set from items.
func NewSet[T element.Lesser[T]](items ...T) *Set[T] {
	s := &Set[T]{}
	for _, it := range items {
		s.Insert(it)
	}
	return s
}

func (s *Set[T]) search(x T) (int, bool) {
	i := sort.Search(len(s.items), func(i int) bool { return !s.items[i].Less(x) })
	return i, i < len(s.items) && !x.Less(s.items[i])
}

// Insert adds x, replacing an equal member.
func (s *Set[T]) Insert(x T) {
	i, ok := s.search(x)
	if ok {
		s.items[i] = x
		return
	}
	s.items = slices.Insert(s.items, i, x)
}

// Remove deletes the member equal to x and reports whether it was present.
func (s *Set[T]) Remove(x T) bool {
	if s == nil {
		return false
	}
	i, ok := s.search(x)
	if ok {
		s.items = slices.Delete(s.items, i, i+1)
	}
	return ok
}

// Find returns the member equal to x.
func (s *Set[T]) Find(x T) (T, bool) {
	var zero T
	if s == nil {
		return zero, false
	}
	i, ok := s.search(x)
	if !ok {
		return zero, false
	}
	return s.items[i], true
}

// Contains reports whether a member equal to x exists.
func (s *Set[T]) Contains(x T) bool {
	_, ok := s.Find(x)
	return ok
}

// Len returns the number of members. A nil set is empty.
func (s *Set[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Items returns the members in order. The slice must not be modified.
func (s *Set[T]) Items() []T {
	if s == nil {
		return nil
	}
	return s.items
}

// Clone returns an independent copy.
func (s *Set[T]) Clone() *Set[T] {
	if s == nil {
		return &Set[T]{}
	}
	return &Set[T]{items: slices.Clone(s.items)}
}
