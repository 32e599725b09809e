// Package ds provides small generic data structures shared by the router.
package ds

import (
	"encoding/json"
	"fmt"
)

type StringSet = Set[string]

// Set is an insertion-ordered set. Iteration order is deterministic, which
// keeps membership diffs and interest fan-outs reproducible in tests.
//
// Add, Remove and Clear mutate the receiver; Additions, Removals, Diff,
// Copy and Values return fresh values. A Set is not safe for concurrent use.
type Set[T comparable] struct {
	items map[T]struct{}
	order []T
}

// NewSet creates a set holding items.
func NewSet[T comparable](items ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]struct{}, len(items)), order: make([]T, 0, len(items))}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// NewStringSet creates a string set holding items.
func NewStringSet(items ...string) *StringSet { return NewSet(items...) }

func (s *Set[T]) String() string { return fmt.Sprintf("%v", s.order) }

// Add inserts v and reports whether it was new.
func (s *Set[T]) Add(v T) bool {
	if s.Contains(v) {
		return false
	}
	s.items[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

// Remove deletes vs and reports whether anything was removed. O(n).
func (s *Set[T]) Remove(vs ...T) bool {
	removed := false
	for _, v := range vs {
		if _, ok := s.items[v]; ok {
			delete(s.items, v)
			removed = true
		}
	}
	if !removed {
		return false
	}
	order := s.order[:0]
	for _, v := range s.order {
		if _, ok := s.items[v]; ok {
			order = append(order, v)
		}
	}
	s.order = order
	return true
}

func (s *Set[T]) Contains(v T) bool {
	_, ok := s.items[v]
	return ok
}

func (s *Set[T]) Len() int { return len(s.items) }

func (s *Set[T]) IsEmpty() bool { return len(s.items) == 0 }

// Values returns a copy of the elements in insertion order.
func (s *Set[T]) Values() []T {
	out := make([]T, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Set[T]) Copy() *Set[T] { return NewSet(s.order...) }

func (s *Set[T]) Clear() {
	s.items = map[T]struct{}{}
	s.order = nil
}

// Additions returns the elements of other missing from s, in other's order.
func (s *Set[T]) Additions(other *Set[T]) *Set[T] {
	add := NewSet[T]()
	for _, v := range other.order {
		if !s.Contains(v) {
			add.Add(v)
		}
	}
	return add
}

// Removals returns the elements of s missing from other, in s's order.
func (s *Set[T]) Removals(other *Set[T]) *Set[T] {
	return other.Additions(s)
}

// Diff returns what has to be added to and removed from s to obtain other.
func (s *Set[T]) Diff(other *Set[T]) (add *Set[T], remove *Set[T]) {
	return s.Additions(other), s.Removals(other)
}

func (s *Set[T]) MarshalJSON() ([]byte, error) { return json.Marshal(s.Values()) }

func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var vs []T
	if err := json.Unmarshal(data, &vs); err != nil {
		return err
	}
	s.Clear()
	for _, v := range vs {
		s.Add(v)
	}
	return nil
}
