package config

import (
	"time"

	"github.com/vietddude/toolfilter/internal/category"
	redisclient "github.com/vietddude/toolfilter/internal/infra/redis"
	"github.com/vietddude/toolfilter/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Filtering  FilteringConfig    `yaml:"filtering"`
	Classifier ClassifierConfig   `yaml:"classifier"`
	Cache      CacheConfig        `yaml:"cache"`
	Redis      redisclient.Config `yaml:"redis"`
	Database   postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Mode selects how tools are filtered.
type Mode string

const (
	ModeStatic          Mode = "static"
	ModeServerAllowlist Mode = "server-allowlist"
	ModeCategory        Mode = "category"
	ModeHybrid          Mode = "hybrid"
	ModePromptBased     Mode = "prompt-based"
)

// ServerFilterMode selects allowlist or denylist semantics for server names.
type ServerFilterMode string

const (
	ServerAllowlist ServerFilterMode = "allowlist"
	ServerDenylist  ServerFilterMode = "denylist"
)

// FilteringConfig is the snapshot the engine decides against.
type FilteringConfig struct {
	// Enabled is nil when the user never set it; only then may filtering
	// switch itself on after AutoEnableThreshold distinct tools.
	Enabled             *bool            `yaml:"enabled"`
	Mode                Mode             `yaml:"mode"`
	ServerFilter        *ServerFilter    `yaml:"server_filter"`
	CategoryFilter      CategoryFilter   `yaml:"category_filter"`
	Enrichment          EnrichmentConfig `yaml:"enrichment"`
	AutoEnableThreshold int              `yaml:"auto_enable_threshold"`
}

// ServerFilter lists backend servers to allow or deny.
type ServerFilter struct {
	Mode    ServerFilterMode `yaml:"mode"`
	Servers []string         `yaml:"servers"`
}

// CategoryFilter lists allowed categories and user pattern overrides.
type CategoryFilter struct {
	Categories     []string `yaml:"categories"`
	CustomMappings Mappings `yaml:"custom_mappings"`
}

// EnrichmentConfig controls background classification.
type EnrichmentConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Classifier       string        `yaml:"classifier"` // openai, anthropic, http
	Labels           []string      `yaml:"labels"`
	MaxRetries       *int          `yaml:"max_retries"` // nil means default; 0 disables retries
	BackoffBase      time.Duration `yaml:"backoff_base"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	BreakerThreshold int           `yaml:"circuit_breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"circuit_breaker_cooldown"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	Concurrency      int           `yaml:"concurrency"`
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	ShutdownGrace    time.Duration `yaml:"shutdown_grace"`
}

// ClassifierConfig holds credentials for the supported classifier backends.
type ClassifierConfig struct {
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// OpenAIConfig configures the chat-completion classifier.
type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

// AnthropicConfig configures the messages API classifier.
type AnthropicConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// HTTPConfig configures the generic JSON classifier endpoint.
type HTTPConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CacheConfig selects and tunes the persistent tier.
type CacheConfig struct {
	Backend        string        `yaml:"backend"` // file, memory, redis, postgres
	Path           string        `yaml:"path"`
	FlushThreshold int           `yaml:"flush_threshold"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
}

// Mappings is an ordered list of custom pattern rules.
type Mappings []category.Mapping

// Rules returns the mappings as a plain slice.
func (m Mappings) Rules() []category.Mapping {
	return []category.Mapping(m)
}

// IsEnabled reports whether filtering is switched on.
func (f FilteringConfig) IsEnabled() bool {
	return f.Enabled != nil && *f.Enabled
}

// ExplicitlyConfigured reports whether the user set filtering.enabled.
func (f FilteringConfig) ExplicitlyConfigured() bool {
	return f.Enabled != nil
}

// Clone returns a deep copy so the caller can mutate it freely.
func (f FilteringConfig) Clone() FilteringConfig {
	out := f
	if f.Enabled != nil {
		v := *f.Enabled
		out.Enabled = &v
	}
	if f.ServerFilter != nil {
		sf := *f.ServerFilter
		sf.Servers = append([]string(nil), f.ServerFilter.Servers...)
		out.ServerFilter = &sf
	}
	out.CategoryFilter.Categories = append([]string(nil), f.CategoryFilter.Categories...)
	out.CategoryFilter.CustomMappings = append(Mappings(nil), f.CategoryFilter.CustomMappings...)
	out.Enrichment.Labels = append([]string(nil), f.Enrichment.Labels...)
	if f.Enrichment.MaxRetries != nil {
		v := *f.Enrichment.MaxRetries
		out.Enrichment.MaxRetries = &v
	}
	return out
}

// Bool returns a pointer to v, for building configs in code.
func Bool(v bool) *bool {
	return &v
}

// Int returns a pointer to v, for building configs in code.
func Int(v int) *int {
	return &v
}

// Retries returns the configured retry count, or DefaultMaxRetries when unset.
func (e EnrichmentConfig) Retries() int {
	if e.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *e.MaxRetries
}
