package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/toolfilter/internal/core/domain"
)

// CategoryRepo stores the warm cache tier in a single Redis hash, one field
// per tool. Records use the same JSON shape as the cache file.
type CategoryRepo struct {
	client *Client
	log    *slog.Logger
}

// NewCategoryRepo creates a Redis-backed category repository.
func NewCategoryRepo(client *Client, log *slog.Logger) *CategoryRepo {
	if log == nil {
		log = slog.Default()
	}
	return &CategoryRepo{
		client: client,
		log:    log.With("component", "redis_store"),
	}
}

// Load returns every record in the hash.
func (r *CategoryRepo) Load(ctx context.Context) (map[string]domain.Record, error) {
	fields, err := r.client.rdb.HGetAll(ctx, r.client.categoriesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}

	out := make(map[string]domain.Record, len(fields))
	for name, raw := range fields {
		var rec domain.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			r.log.Warn("Skipping unreadable cache record", "tool", name, "error", err)
			continue
		}
		out[name] = rec
	}
	return out, nil
}

// Save replaces the hash inside MULTI/EXEC so readers never observe a
// partially written state.
func (r *CategoryRepo) Save(ctx context.Context, entries map[string]domain.CacheEntry) error {
	values := make(map[string]any, len(entries))
	for name, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry %s: %w", name, err)
		}
		values[name] = string(data)
	}

	key := r.client.categoriesKey()
	_, err := r.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save categories: %w", err)
	}
	return nil
}
