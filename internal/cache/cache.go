// Package cache implements the two-tier category cache.
//
// The hot tier is a plain in-memory map consulted first on every decision. The
// warm tier holds entries learned from the classifier, is TTL-validated on
// read, and is persisted through a storage.CategoryRepository in batches.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/toolfilter/internal/core/domain"
	"github.com/vietddude/toolfilter/internal/infra/storage"
)

// DefaultFlushThreshold is the number of pending writes that triggers a flush.
const DefaultFlushThreshold = 10

// fixed per-entry overhead used by the size estimate: confidence, createdAt, ttlSeconds.
const entryOverhead = 8 * 3

// Options tunes a Cache.
type Options struct {
	FlushThreshold int
	// TTL is applied to legacy records upgraded on Load.
	TTL time.Duration
	Now func() time.Time
	Log *slog.Logger
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	HotSize        int
	WarmSize       int
	EstimatedBytes int64
	PendingWrites  int64
	Dirty          bool
}

// Cache is the tiered category cache. It is safe for concurrent use; none of
// the read or write methods perform I/O.
type Cache struct {
	mu    sync.RWMutex
	hot   map[string]domain.CacheEntry
	warm  map[string]domain.CacheEntry
	bytes int64
	dirty bool

	pending  atomic.Int64
	flushing atomic.Bool
	flushMu  sync.Mutex
	flushWG  sync.WaitGroup
	asyncMu  sync.Mutex // guards closed and flushWG.Add
	closed   bool

	repo      storage.CategoryRepository
	threshold int64
	ttl       time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// New creates a cache persisting through repo. repo may be nil for a purely
// in-memory cache.
func New(repo storage.CategoryRepository, opts Options) *Cache {
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = DefaultFlushThreshold
	}
	if opts.TTL <= 0 {
		opts.TTL = domain.DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Cache{
		hot:       make(map[string]domain.CacheEntry),
		warm:      make(map[string]domain.CacheEntry),
		repo:      repo,
		threshold: int64(opts.FlushThreshold),
		ttl:       opts.TTL,
		now:       opts.Now,
		log:       opts.Log.With("component", "cache"),
	}
}

// Get returns the entry for name from the hot tier, or failing that from the
// warm tier. Expired entries are evicted and reported as not found.
func (c *Cache) Get(name string) (domain.CacheEntry, bool) {
	if e, ok := c.Hot(name); ok {
		return e, true
	}
	return c.Warm(name)
}

// Hot looks only at the hot tier.
func (c *Cache) Hot(name string) (domain.CacheEntry, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.hot[name]
	c.mu.RUnlock()
	if !ok {
		return domain.CacheEntry{}, false
	}
	if !e.Expired(now) {
		return e, true
	}

	c.mu.Lock()
	// Re-check under the write lock; a concurrent Put may have refreshed it.
	if cur, still := c.hot[name]; still && cur.Expired(now) {
		c.deleteLocked(c.hot, name)
	}
	c.mu.Unlock()
	return domain.CacheEntry{}, false
}

// Warm looks only at the warm tier, validating TTL.
func (c *Cache) Warm(name string) (domain.CacheEntry, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.warm[name]
	c.mu.RUnlock()
	if !ok {
		return domain.CacheEntry{}, false
	}
	if !e.Expired(now) {
		return e, true
	}

	c.mu.Lock()
	if cur, still := c.warm[name]; still && cur.Expired(now) {
		c.deleteLocked(c.warm, name)
		c.dirty = true
	}
	c.mu.Unlock()
	return domain.CacheEntry{}, false
}

// Put writes e to both tiers and schedules a flush once enough writes are pending.
func (c *Cache) Put(name string, e domain.CacheEntry) {
	c.mu.Lock()
	c.setLocked(c.hot, name, e)
	c.setLocked(c.warm, name, e)
	c.dirty = true
	c.mu.Unlock()

	if c.pending.Add(1) >= c.threshold {
		c.flushAsync()
	}
}

// PutHot writes e to the hot tier only. Used for results that are cheap to
// recompute and must not outlive the current configuration.
func (c *Cache) PutHot(name string, e domain.CacheEntry) {
	c.mu.Lock()
	c.setLocked(c.hot, name, e)
	c.mu.Unlock()
}

// Promote copies a warm hit into the hot tier.
func (c *Cache) Promote(name string, e domain.CacheEntry) {
	c.PutHot(name, e)
}

// Stats returns sizes and flush state.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		HotSize:        len(c.hot),
		WarmSize:       len(c.warm),
		EstimatedBytes: c.bytes,
		PendingWrites:  c.pending.Load(),
		Dirty:          c.dirty,
	}
}

// Prune drops expired entries from both tiers and returns how many went.
func (c *Cache) Prune() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for name, e := range c.hot {
		if e.Expired(now) {
			c.deleteLocked(c.hot, name)
			removed++
		}
	}
	for name, e := range c.warm {
		if e.Expired(now) {
			c.deleteLocked(c.warm, name)
			c.dirty = true
			removed++
		}
	}
	return removed
}

// Dirty reports whether the warm tier changed since the last flush.
func (c *Cache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

func (c *Cache) setLocked(tier map[string]domain.CacheEntry, name string, e domain.CacheEntry) {
	if old, ok := tier[name]; ok {
		c.bytes -= entrySize(name, old)
	}
	tier[name] = e
	c.bytes += entrySize(name, e)
}

func (c *Cache) deleteLocked(tier map[string]domain.CacheEntry, name string) {
	if old, ok := tier[name]; ok {
		c.bytes -= entrySize(name, old)
		delete(tier, name)
	}
}

func entrySize(name string, e domain.CacheEntry) int64 {
	return int64(len(name)+len(e.Category)+len(e.Source)) + entryOverhead
}

// Wait blocks until background flushes started by Put have finished or ctx ends.
// Put no longer starts background flushes once Wait has been called; later
// writes are persisted by an explicit Flush.
func (c *Cache) Wait(ctx context.Context) error {
	c.asyncMu.Lock()
	c.closed = true
	c.asyncMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.flushWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
