// Package memory is a process-local CategoryRepository. Nothing survives a
// restart; it backs tests and the "memory" cache backend.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/vietddude/toolfilter/internal/core/domain"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]domain.Record
	saves   int
}

func NewStore() *Store {
	return &Store{records: make(map[string]domain.Record)}
}

// Seed stores records as if a previous process had saved them.
func (s *Store) Seed(records map[string]domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.records, records)
}

func (s *Store) Load(ctx context.Context) (map[string]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.records), nil
}

func (s *Store) Save(ctx context.Context, entries map[string]domain.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := make(map[string]domain.Record, len(entries))
	for name, e := range entries {
		next[name] = domain.FullRecord(e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = next
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
