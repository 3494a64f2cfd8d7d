package memory

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/toolfilter/internal/core/domain"
)

func TestStore_SaveReplacesContents(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.Seed(map[string]domain.Record{"old_tool": domain.LegacyRecord("files")})

	now := time.Unix(1_700_000_000, 0)
	entry := domain.NewCacheEntry("search", domain.ClassifierConfidence, domain.SourceClassifier, time.Hour, now)
	if err := s.Save(ctx, map[string]domain.CacheEntry{"web_search": entry}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := got["old_tool"]; ok {
		t.Error("Save should replace previous contents")
	}
	if e := got["web_search"].Normalize(now, time.Hour); e != entry {
		t.Errorf("entry = %+v, want %+v", e, entry)
	}
	if s.Saves() != 1 {
		t.Errorf("saves = %d, want 1", s.Saves())
	}
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStore()
	if err := s.Save(ctx, nil); err == nil {
		t.Error("expected error for cancelled context")
	}
	if _, err := s.Load(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
