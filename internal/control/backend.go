package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/toolfilter/internal/core/config"
	redisclient "github.com/vietddude/toolfilter/internal/infra/redis"
	"github.com/vietddude/toolfilter/internal/infra/storage"
	"github.com/vietddude/toolfilter/internal/infra/storage/file"
	"github.com/vietddude/toolfilter/internal/infra/storage/memory"
	"github.com/vietddude/toolfilter/internal/infra/storage/postgres"
)

// Backend is the persistent tier selected by cache.backend, plus the client
// connections it owns.
type Backend struct {
	Repo storage.CategoryRepository

	// Set only for the matching backend.
	DB       *postgres.DB
	Postgres *postgres.CategoryRepo
	Redis    *redisclient.Client
}

// OpenBackend connects to the configured cache backend. Postgres schemas are
// migrated before returning.
func OpenBackend(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*Backend, error) {
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Cache.Backend {
	case "file":
		log.Info("Using file cache storage", "path", cfg.Cache.Path)
		return &Backend{Repo: file.NewStore(cfg.Cache.Path, log)}, nil

	case "memory":
		log.Info("Using memory cache storage")
		return &Backend{Repo: memory.NewStore()}, nil

	case "redis":
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		log.Info("Using Redis cache storage")
		return &Backend{Repo: redisclient.NewCategoryRepo(client, log), Redis: client}, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("Using PostgreSQL cache storage")
		repo := postgres.NewCategoryRepo(db)
		return &Backend{Repo: repo, DB: db, Postgres: repo}, nil

	default:
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownBackend, cfg.Cache.Backend)
	}
}

// Close releases backend connections.
func (b *Backend) Close() {
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			slog.Warn("Failed to close Redis", "error", err)
		}
	}
	if b.DB != nil {
		if err := b.DB.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
}
