package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/toolfilter/internal/core/domain"
)

const asyncFlushTimeout = 10 * time.Second

// Load fills the warm tier from the repository. Expired records are dropped and
// legacy flat records are upgraded; either marks the cache dirty so the next
// flush rewrites the store in the current shape.
func (c *Cache) Load(ctx context.Context) (int, error) {
	if c.repo == nil {
		return 0, nil
	}

	records, err := c.repo.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load category cache: %w", err)
	}

	now := c.now()
	var loaded, upgraded, dropped int

	c.mu.Lock()
	for name, r := range records {
		if r.IsLegacy() {
			upgraded++
		}
		e := r.Normalize(now, c.ttl)
		if e.Category == "" || e.Expired(now) {
			dropped++
			continue
		}
		c.setLocked(c.warm, name, e)
		loaded++
	}
	if upgraded > 0 || dropped > 0 {
		c.dirty = true
	}
	c.mu.Unlock()

	c.log.Info("Loaded cached tool categories",
		"loaded", loaded,
		"upgraded", upgraded,
		"dropped", dropped,
	)
	return loaded, nil
}

// Flush persists the non-expired warm tier if it changed since the last flush.
// The dirty flag and pending counter are cleared whether or not the write
// succeeds; a failed flush is logged and returned but the data stays in memory
// for the next attempt.
func (c *Cache) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	pending := c.pending.Load()
	now := c.now()

	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		c.pending.Add(-pending)
		return nil
	}
	snapshot := make(map[string]domain.CacheEntry, len(c.warm))
	for name, e := range c.warm {
		if e.Expired(now) {
			c.deleteLocked(c.warm, name)
			continue
		}
		snapshot[name] = e
	}
	c.dirty = false
	c.mu.Unlock()
	c.pending.Add(-pending)

	if c.repo == nil {
		return nil
	}

	start := time.Now()
	if err := c.repo.Save(ctx, snapshot); err != nil {
		c.log.Error("Failed to flush category cache", "entries", len(snapshot), "error", err)
		return fmt.Errorf("flush category cache: %w", err)
	}
	c.log.Debug("Flushed category cache", "entries", len(snapshot), "took", time.Since(start))
	return nil
}

func (c *Cache) flushAsync() {
	c.asyncMu.Lock()
	defer c.asyncMu.Unlock()
	if c.closed || !c.flushing.CompareAndSwap(false, true) {
		return
	}
	c.flushWG.Add(1)
	go func() {
		defer c.flushWG.Done()
		defer c.flushing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), asyncFlushTimeout)
		defer cancel()
		_ = c.Flush(ctx)
	}()
}
