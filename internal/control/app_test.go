package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/toolfilter/internal/core/config"
	"github.com/vietddude/toolfilter/internal/core/domain"
	"github.com/vietddude/toolfilter/internal/infra/storage"
)

func baseConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		Cache: config.CacheConfig{
			Backend: "file",
			Path:    filepath.Join(t.TempDir(), "tool-categories.json"),
		},
		Filtering: config.FilteringConfig{
			Enabled: config.Bool(true),
			Mode:    config.ModeCategory,
			CategoryFilter: config.CategoryFilter{
				Categories: []string{domain.CategoryDatabase},
			},
		},
	}
	cfg.ApplyDefaults()
	// Port 0 lets the health server bind any free port.
	cfg.Server.Port = 0
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestApp_LoadsDecidesAndPersists(t *testing.T) {
	cfg := baseConfig(t)
	require.NoError(t, os.WriteFile(cfg.Cache.Path, []byte(`{"inventory_lookup":"database"}`), 0o644))

	ctx := context.Background()
	app, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, app.Start(ctx))

	eng := app.Engine()
	assert.True(t, eng.ShouldInclude("inventory_lookup", "erp", domain.ToolDefinition{}))
	assert.False(t, eng.ShouldInclude("filesystem__read", "fs", domain.ToolDefinition{}))

	require.NoError(t, app.Stop(ctx))

	data, err := os.ReadFile(cfg.Cache.Path)
	require.NoError(t, err)

	var doc map[string]domain.CacheEntry
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Contains(t, doc, "inventory_lookup")
	assert.Equal(t, domain.CategoryDatabase, doc["inventory_lookup"].Category)
	assert.Equal(t, domain.LegacyConfidence, doc["inventory_lookup"].Confidence)
	assert.Equal(t, domain.SourceHeuristic, doc["inventory_lookup"].Source)
	assert.NotContains(t, doc, "filesystem__read", "pattern matches stay in the hot tier")
}

func TestApp_EnrichesThroughHTTPClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"label":"database"}`))
	}))
	defer srv.Close()

	cfg := baseConfig(t)
	cfg.Cache.Backend = "memory"
	cfg.Filtering.Enrichment = config.EnrichmentConfig{
		Enabled:          true,
		Classifier:       "http",
		DispatchInterval: time.Millisecond,
	}
	cfg.Classifier.HTTP.Endpoint = srv.URL
	cfg.ApplyDefaults()
	cfg.Server.Port = 0
	require.NoError(t, cfg.Validate())

	ctx := context.Background()
	app, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, app.Start(ctx))
	defer app.Stop(ctx)

	eng := app.Engine()
	def := domain.ToolDefinition{Description: "Look up stock levels"}
	assert.Equal(t, domain.CategoryOther, eng.ResolveCategory("stock_levels", "erp", def))

	assert.Eventually(t, func() bool {
		return eng.ResolveCategory("stock_levels", "erp", def) == domain.CategoryDatabase
	}, 2*time.Second, 10*time.Millisecond)

	e, ok := app.Cache().Get("stock_levels")
	require.True(t, ok)
	assert.Equal(t, domain.SourceClassifier, e.Source)
}

func TestApp_UnknownBackend(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Cache.Backend = "etcd"

	_, err := NewApp(context.Background(), cfg)
	require.ErrorIs(t, err, storage.ErrUnknownBackend)
}
