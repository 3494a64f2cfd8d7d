package worker

import (
	"context"
	"log/slog"
	"time"
)

// Cache is the part of the tiered cache the flusher maintains.
type Cache interface {
	Prune() int
	Flush(ctx context.Context) error
}

// Expirer deletes expired rows from a persistent backend.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Flusher periodically prunes expired entries and persists the warm tier.
type Flusher struct {
	cache    Cache
	expirer  Expirer
	interval time.Duration
	log      *slog.Logger
}

// NewFlusher creates a new Flusher worker. expirer may be nil.
func NewFlusher(cache Cache, expirer Expirer, interval time.Duration, log *slog.Logger) *Flusher {
	if log == nil {
		log = slog.Default()
	}
	return &Flusher{
		cache:    cache,
		expirer:  expirer,
		interval: interval,
		log:      log.With("component", "flusher"),
	}
}

// Start runs the flush loop until ctx is cancelled.
func (f *Flusher) Start(ctx context.Context) {
	if f.interval <= 0 {
		return // Periodic flushing disabled
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *Flusher) tick(ctx context.Context) {
	if n := f.cache.Prune(); n > 0 {
		f.log.Debug("Pruned expired cache entries", "count", n)
	}

	// Flush logs its own failures.
	_ = f.cache.Flush(ctx)

	if f.expirer == nil {
		return
	}
	deleted, err := f.expirer.DeleteExpired(ctx, time.Now())
	if err != nil {
		f.log.Error("Failed to delete expired rows", "error", err)
		return
	}
	if deleted > 0 {
		f.log.Debug("Deleted expired rows", "count", deleted)
	}
}
