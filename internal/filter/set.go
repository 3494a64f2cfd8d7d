// Package filter provides name membership sets used by the decision engine.
package filter

import (
	"slices"
	"sync"
)

// Set is a concurrency-safe set of names. Matching is exact: server and
// category names are compared as configured.
type Set struct {
	names map[string]struct{}
	mu    sync.RWMutex
}

// NewSet creates a set holding names.
func NewSet(names ...string) *Set {
	s := &Set{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.names[n] = struct{}{}
	}
	return s
}

// Contains checks if name is in the set.
func (s *Set) Contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.names[name]
	return exists
}

// Add adds name and reports whether it was new.
func (s *Set) Add(name string) bool {
	s.mu.RLock()
	_, exists := s.names[name]
	s.mu.RUnlock()
	if exists {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.names[name]; exists {
		return false
	}
	s.names[name] = struct{}{}
	return true
}

// Size returns the number of names.
func (s *Set) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Names returns the members in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	result := make([]string, 0, len(s.names))
	for n := range s.names {
		result = append(result, n)
	}
	s.mu.RUnlock()
	slices.Sort(result)
	return result
}
