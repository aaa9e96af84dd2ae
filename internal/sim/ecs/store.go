package ecs

import "sort"

// Store is a sparse-set component table: sparse maps an entity index to a
// slot in the dense arrays. Removal swaps the last slot into the hole, so
// dense order is not meaningful; use Entities for ordered iteration.
type Store[T any] struct {
	sparse []int32
	ents   []Entity
	vals   []T

	// sorted caches Entities until membership changes.
	sorted []Entity
	valid  bool
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{}
}

func (s *Store[T]) slot(e Entity) int {
	if int(e.Index) >= len(s.sparse) {
		return -1
	}
	i := int(s.sparse[e.Index])
	if i < 0 || s.ents[i] != e {
		return -1
	}
	return i
}

// Set inserts or overwrites e's component.
func (s *Store[T]) Set(e Entity, v T) {
	if i := s.slot(e); i >= 0 {
		s.vals[i] = v
		return
	}
	for int(e.Index) >= len(s.sparse) {
		s.sparse = append(s.sparse, -1)
	}
	// A stale generation may still own the slot; drop it first.
	if old := s.sparse[e.Index]; old >= 0 && s.ents[old].Index == e.Index {
		s.Remove(s.ents[old])
	}
	s.sparse[e.Index] = int32(len(s.ents))
	s.ents = append(s.ents, e)
	s.vals = append(s.vals, v)
	s.invalidate()
}

func (s *Store[T]) invalidate() {
	s.sorted = nil
	s.valid = false
}

// Get returns a pointer into the dense array. It is invalidated by the next
// Set or Remove on this store.
func (s *Store[T]) Get(e Entity) (*T, bool) {
	i := s.slot(e)
	if i < 0 {
		return nil, false
	}
	return &s.vals[i], true
}

// Value returns a copy of e's component, or the zero value.
func (s *Store[T]) Value(e Entity) (T, bool) {
	i := s.slot(e)
	if i < 0 {
		var zero T
		return zero, false
	}
	return s.vals[i], true
}

func (s *Store[T]) Has(e Entity) bool { return s.slot(e) >= 0 }

func (s *Store[T]) Remove(e Entity) bool {
	i := s.slot(e)
	if i < 0 {
		return false
	}
	last := len(s.ents) - 1
	if i != last {
		s.ents[i] = s.ents[last]
		s.vals[i] = s.vals[last]
		s.sparse[s.ents[i].Index] = int32(i)
	}
	var zero T
	s.vals[last] = zero
	s.ents = s.ents[:last]
	s.vals = s.vals[:last]
	s.sparse[e.Index] = -1
	s.invalidate()
	return true
}

func (s *Store[T]) Len() int { return len(s.ents) }

// Entities returns the members in ascending index order. The slice is
// shared until the next membership change and must not be modified; a
// Set or Remove during iteration leaves it intact.
func (s *Store[T]) Entities() []Entity {
	if !s.valid {
		out := append([]Entity(nil), s.ents...)
		sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
		s.sorted = out
		s.valid = true
	}
	return s.sorted
}

// Clone deep-copies the store. copyFn may be nil for plain value types.
func (s *Store[T]) Clone(copyFn func(T) T) *Store[T] {
	c := &Store[T]{
		sparse: append([]int32(nil), s.sparse...),
		ents:   append([]Entity(nil), s.ents...),
		vals:   make([]T, len(s.vals)),
	}
	for i, v := range s.vals {
		if copyFn != nil {
			v = copyFn(v)
		}
		c.vals[i] = v
	}
	return c
}

// Clear drops every component but keeps capacity.
func (s *Store[T]) Clear() {
	for i := range s.sparse {
		s.sparse[i] = -1
	}
	var zero T
	for i := range s.vals {
		s.vals[i] = zero
	}
	s.ents = s.ents[:0]
	s.vals = s.vals[:0]
	s.invalidate()
}
