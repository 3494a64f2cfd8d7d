package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/toolfilter/internal/core/domain"
)

func entry(cat string) domain.CacheEntry {
	return domain.NewCacheEntry(cat, 0.9, domain.SourceClassifier, time.Hour, time.Unix(1_700_000_000, 0))
}

func TestStore_MissingFileIsColdStart(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope", "cache.json"), nil)

	records, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cache.json")
	s := NewStore(path, nil)

	require.NoError(t, s.Save(context.Background(), map[string]domain.CacheEntry{
		"a__tool": entry("web"),
	}))

	records, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Contains(t, records, "a__tool")
	assert.False(t, records["a__tool"].IsLegacy())
	assert.Equal(t, "web", records["a__tool"].Normalize(time.Now(), time.Hour).Category)

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	assert.Empty(t, leftovers, "temp files must not survive a successful save")
}

func TestStore_LegacyAndBrokenRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	doc := `{"old": "database", "bad": 42, "new": {"category":"web","confidence":1,"source":"pattern","createdAt":1,"ttlSeconds":10}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	records, err := NewStore(path, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.True(t, records["old"].IsLegacy())
	assert.False(t, records["new"].IsLegacy())
}

func TestStore_CrashBeforeRenameKeepsPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s := NewStore(path, nil)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, map[string]domain.CacheEntry{"first": entry("web")}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s.rename = func(string, string) error { return errors.New("simulated crash") }
	err = s.Save(ctx, map[string]domain.CacheEntry{"second": entry("search")})
	require.Error(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	records, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, records, "first")
	assert.NotContains(t, records, "second")
}
