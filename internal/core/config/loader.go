package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/toolfilter/internal/category"
)

// Defaults applied by Load and by ApplyDefaults.
const (
	DefaultPort                = 8080
	DefaultAutoEnableThreshold = 1000
	DefaultMaxRetries          = 3
	DefaultBackoffBase         = time.Second
	DefaultMaxBackoff          = 30 * time.Second
	DefaultCallTimeout         = 5 * time.Second
	DefaultBreakerThreshold    = 5
	DefaultBreakerCooldown     = 60 * time.Second
	DefaultCacheTTL            = 24 * time.Hour
	DefaultConcurrency         = 5
	DefaultDispatchInterval    = 100 * time.Millisecond
	DefaultShutdownGrace       = 5 * time.Second
	DefaultFlushThreshold      = 10
	DefaultFlushInterval       = 30 * time.Second
	DefaultOpenAIModel         = "gpt-4o-mini"
	DefaultAnthropicModel      = "claude-3-haiku-20240307"
	DefaultAnthropicBaseURL    = "https://api.anthropic.com"
	cacheFileName              = "tool-categories.json"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills zero values.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = "file"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(StateDir(), cacheFileName)
	}
	if c.Cache.FlushThreshold == 0 {
		c.Cache.FlushThreshold = DefaultFlushThreshold
	}
	if c.Cache.FlushInterval == 0 {
		c.Cache.FlushInterval = DefaultFlushInterval
	}

	if c.Classifier.OpenAI.Model == "" {
		c.Classifier.OpenAI.Model = DefaultOpenAIModel
	}
	if c.Classifier.Anthropic.Model == "" {
		c.Classifier.Anthropic.Model = DefaultAnthropicModel
	}
	if c.Classifier.Anthropic.BaseURL == "" {
		c.Classifier.Anthropic.BaseURL = DefaultAnthropicBaseURL
	}
	if c.Classifier.Anthropic.Timeout == 0 {
		c.Classifier.Anthropic.Timeout = DefaultCallTimeout
	}
	if c.Classifier.HTTP.Timeout == 0 {
		c.Classifier.HTTP.Timeout = DefaultCallTimeout
	}

	c.Filtering.ApplyDefaults()
}

// Validate checks cross-section settings.
func (c *AppConfig) Validate() error {
	switch c.Cache.Backend {
	case "file", "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("cache.backend redis requires redis.url")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("cache.backend postgres requires database.url")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}

	if c.Filtering.Enrichment.Enabled {
		switch c.Filtering.Enrichment.Classifier {
		case "openai":
			if c.Classifier.OpenAI.APIKey == "" {
				return errors.New("classifier.openai.api_key is required")
			}
		case "anthropic":
			if c.Classifier.Anthropic.APIKey == "" {
				return errors.New("classifier.anthropic.api_key is required")
			}
		case "http":
			if c.Classifier.HTTP.Endpoint == "" {
				return errors.New("classifier.http.endpoint is required")
			}
		}
	}

	return c.Filtering.Validate()
}

// ApplyDefaults fills zero values in the filtering and enrichment settings.
func (f *FilteringConfig) ApplyDefaults() {
	if f.AutoEnableThreshold == 0 {
		f.AutoEnableThreshold = DefaultAutoEnableThreshold
	}

	e := &f.Enrichment
	if len(e.Labels) == 0 {
		e.Labels = category.Labels()
	}
	if e.MaxRetries == nil {
		e.MaxRetries = Int(DefaultMaxRetries)
	}
	if e.BackoffBase == 0 {
		e.BackoffBase = DefaultBackoffBase
	}
	if e.MaxBackoff == 0 {
		e.MaxBackoff = DefaultMaxBackoff
	}
	if e.CallTimeout == 0 {
		e.CallTimeout = DefaultCallTimeout
	}
	if e.BreakerThreshold == 0 {
		e.BreakerThreshold = DefaultBreakerThreshold
	}
	if e.BreakerCooldown == 0 {
		e.BreakerCooldown = DefaultBreakerCooldown
	}
	if e.CacheTTL == 0 {
		e.CacheTTL = DefaultCacheTTL
	}
	if e.Concurrency == 0 {
		e.Concurrency = DefaultConcurrency
	}
	if e.DispatchInterval == 0 {
		e.DispatchInterval = DefaultDispatchInterval
	}
	if e.ShutdownGrace == 0 {
		e.ShutdownGrace = DefaultShutdownGrace
	}
}

// Validate rejects structurally invalid filtering settings. Unknown modes are
// not rejected here; the engine includes everything for them and logs.
func (f FilteringConfig) Validate() error {
	if f.IsEnabled() && f.Mode == "" {
		return errors.New("filtering.mode is required when filtering is enabled")
	}
	if f.AutoEnableThreshold < 0 {
		return errors.New("filtering.auto_enable_threshold must not be negative")
	}
	for i, m := range f.CategoryFilter.CustomMappings {
		if m.Pattern == "" || m.Category == "" {
			return fmt.Errorf("filtering.category_filter.custom_mappings[%d]: pattern and category are required", i)
		}
	}

	e := f.Enrichment
	if !e.Enabled {
		return nil
	}
	switch e.Classifier {
	case "":
		return errors.New("filtering.enrichment.classifier is required when enrichment is enabled")
	case "openai", "anthropic", "http":
	default:
		return fmt.Errorf("unknown filtering.enrichment.classifier %q", e.Classifier)
	}
	if len(e.Labels) == 0 {
		return errors.New("filtering.enrichment.labels must not be empty")
	}
	if e.Retries() < 0 || e.Concurrency < 0 || e.BreakerThreshold < 0 {
		return errors.New("filtering.enrichment: negative limits are not allowed")
	}
	if e.CacheTTL < time.Second {
		return errors.New("filtering.enrichment.cache_ttl must be at least 1s")
	}
	return nil
}

// UnmarshalYAML accepts either a list of {pattern, category} or a mapping of
// pattern: category. Mapping form keeps document order.
func (m *Mappings) UnmarshalYAML(unmarshal func(any) error) error {
	var list []category.Mapping
	if err := unmarshal(&list); err == nil {
		*m = list
		return nil
	}

	var ms yaml.MapSlice
	if err := unmarshal(&ms); err != nil {
		return fmt.Errorf("custom_mappings: expected list or mapping: %w", err)
	}
	out := make(Mappings, 0, len(ms))
	for _, item := range ms {
		p, ok := item.Key.(string)
		if !ok {
			return fmt.Errorf("custom_mappings: pattern %v is not a string", item.Key)
		}
		c, ok := item.Value.(string)
		if !ok {
			return fmt.Errorf("custom_mappings: category for %q is not a string", p)
		}
		out = append(out, category.Mapping{Pattern: p, Category: c})
	}
	*m = out
	return nil
}

// StateDir returns the directory for persisted state, honoring XDG_STATE_HOME.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "toolfilter")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "toolfilter")
	}
	return filepath.Join(home, ".local", "state", "toolfilter")
}
