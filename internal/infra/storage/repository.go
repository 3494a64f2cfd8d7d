package storage

import (
	"context"
	"errors"

	"github.com/vietddude/toolfilter/internal/core/domain"
)

var (
	// ErrUnknownBackend is returned when no repository exists for a backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// CategoryRepository persists the warm cache tier.
type CategoryRepository interface {
	// Load returns every stored record. A missing store is an empty map, not an error.
	Load(ctx context.Context) (map[string]domain.Record, error)

	// Save replaces the stored contents with entries. Implementations must make
	// the replacement atomic: a failure leaves the previous contents readable.
	Save(ctx context.Context, entries map[string]domain.CacheEntry) error
}
