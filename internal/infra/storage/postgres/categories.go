package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/toolfilter/internal/core/domain"
)

type categoryRow struct {
	ToolName   string  `db:"tool_name"`
	Category   string  `db:"category"`
	Confidence float64 `db:"confidence"`
	Source     string  `db:"source"`
	CreatedAt  int64   `db:"created_at"`
	TTLSeconds int64   `db:"ttl_seconds"`
}

func (r categoryRow) entry() domain.CacheEntry {
	return domain.CacheEntry{
		Category:   r.Category,
		Confidence: r.Confidence,
		Source:     domain.Source(r.Source),
		CreatedAt:  r.CreatedAt,
		TTLSeconds: r.TTLSeconds,
	}
}

// CategoryRepo implements storage.CategoryRepository using PostgreSQL.
type CategoryRepo struct {
	db *DB
}

// NewCategoryRepo creates a new PostgreSQL category repository.
func NewCategoryRepo(db *DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

// Load returns every stored entry.
func (r *CategoryRepo) Load(ctx context.Context) (map[string]domain.Record, error) {
	var rows []categoryRow
	query := `
		SELECT tool_name, category, confidence, source, created_at, ttl_seconds
		FROM tool_categories
	`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	out := make(map[string]domain.Record, len(rows))
	for _, row := range rows {
		out[row.ToolName] = domain.FullRecord(row.entry())
	}
	return out, nil
}

// Save upserts entries and removes rows not present, in one transaction.
func (r *CategoryRepo) Save(ctx context.Context, entries map[string]domain.CacheEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	names := make([]string, 0, len(entries))
	rows := make([]categoryRow, 0, len(entries))
	for name, e := range entries {
		names = append(names, name)
		rows = append(rows, categoryRow{
			ToolName:   name,
			Category:   e.Category,
			Confidence: e.Confidence,
			Source:     string(e.Source),
			CreatedAt:  e.CreatedAt,
			TTLSeconds: e.TTLSeconds,
		})
	}

	if len(rows) > 0 {
		upsert := `
			INSERT INTO tool_categories (tool_name, category, confidence, source, created_at, ttl_seconds)
			VALUES (:tool_name, :category, :confidence, :source, :created_at, :ttl_seconds)
			ON CONFLICT (tool_name) DO UPDATE SET
				category = EXCLUDED.category,
				confidence = EXCLUDED.confidence,
				source = EXCLUDED.source,
				created_at = EXCLUDED.created_at,
				ttl_seconds = EXCLUDED.ttl_seconds
		`
		if _, err := tx.NamedExecContext(ctx, upsert, rows); err != nil {
			return fmt.Errorf("failed to upsert categories: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tool_categories WHERE NOT (tool_name = ANY($1))`,
		pq.Array(names),
	); err != nil {
		return fmt.Errorf("failed to delete stale categories: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit categories: %w", err)
	}
	return nil
}

// DeleteExpired removes rows whose TTL elapsed before now and returns how many went.
func (r *CategoryRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tool_categories WHERE created_at + ttl_seconds <= $1`,
		now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired categories: %w", err)
	}
	return res.RowsAffected()
}

// Summary is one row of the stats listing.
type Summary struct {
	Category string `db:"category"`
	Source   string `db:"source"`
	Count    int64  `db:"count"`
}

// Summarize groups stored entries by category and source.
func (r *CategoryRepo) Summarize(ctx context.Context) ([]Summary, error) {
	var out []Summary
	query := `
		SELECT category, source, COUNT(*) AS count
		FROM tool_categories
		GROUP BY category, source
		ORDER BY category, source
	`
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to summarize categories: %w", err)
	}
	return out, nil
}
