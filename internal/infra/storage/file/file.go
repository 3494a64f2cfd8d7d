// Package file persists the warm cache tier as a JSON document on local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vietddude/toolfilter/internal/core/domain"
)

// Store reads and writes a JSON object mapping tool name to cache record.
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so readers only ever see a complete document.
type Store struct {
	path string
	log  *slog.Logger

	mu     sync.Mutex // serializes Save
	rename func(oldpath, newpath string) error
}

// NewStore creates a store for path. The directory is created on first Save.
func NewStore(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		path:   path,
		log:    log.With("component", "file_store", "path", path),
		rename: os.Rename,
	}
}

// Path returns the target file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the document. A missing file yields an empty map. Records that
// cannot be decoded are skipped.
func (s *Store) Load(ctx context.Context) (map[string]domain.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("No cache file yet, starting cold")
		return map[string]domain.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse cache file: %w", err)
	}

	out := make(map[string]domain.Record, len(raw))
	for name, msg := range raw {
		var r domain.Record
		if err := json.Unmarshal(msg, &r); err != nil {
			s.log.Warn("Skipping unreadable cache record", "tool", name, "error", err)
			continue
		}
		out[name] = r
	}
	return out, nil
}

// Save writes entries atomically.
func (s *Store) Save(ctx context.Context, entries map[string]domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := s.rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("rename cache file: %w", err)
	}

	s.log.Debug("Cache file written", "entries", len(entries))
	return nil
}
