// Package engine decides which tools are exposed to a client.
//
// The decision path (ShouldInclude, ResolveCategory) is synchronous and never
// performs I/O; unknown tools are refined in the background by an
// enrichment.Enricher and later calls observe the refined category.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/toolfilter/internal/cache"
	"github.com/vietddude/toolfilter/internal/category"
	"github.com/vietddude/toolfilter/internal/category/pattern"
	"github.com/vietddude/toolfilter/internal/core/config"
	"github.com/vietddude/toolfilter/internal/enrichment"
	"github.com/vietddude/toolfilter/internal/enrichment/breaker"
	"github.com/vietddude/toolfilter/internal/enrichment/retry"
	"github.com/vietddude/toolfilter/internal/filter"
	"github.com/vietddude/toolfilter/internal/infra/classifier"
	"github.com/vietddude/toolfilter/internal/metrics"
)

// ErrNoClassifier is returned by New when enrichment is enabled without a classifier.
var ErrNoClassifier = errors.New("enrichment enabled but no classifier configured")

// Deps are the collaborators an Engine is built from. Only Cache is required.
type Deps struct {
	Cache      *cache.Cache
	Classifier classifier.Classifier
	Locker     enrichment.Locker
	Metrics    *metrics.Aggregator
	Log        *slog.Logger
	Now        func() time.Time
}

// state is the immutable view the decision path reads. Auto-enable swaps it.
type state struct {
	cfg        config.FilteringConfig
	servers    *filter.Set
	categories *filter.Set
}

func newState(cfg config.FilteringConfig) *state {
	s := &state{
		cfg:        cfg,
		servers:    filter.NewSet(),
		categories: filter.NewSet(cfg.CategoryFilter.Categories...),
	}
	if cfg.ServerFilter != nil {
		s.servers = filter.NewSet(cfg.ServerFilter.Servers...)
	}
	return s
}

// Engine is the filtering decision engine.
type Engine struct {
	state atomic.Pointer[state]

	cache    *cache.Cache
	table    *category.Table
	enricher *enrichment.Enricher
	agg      *metrics.Aggregator
	ttl      time.Duration
	now      func() time.Time
	log      *slog.Logger

	seen         *filter.Set
	autoEnabling atomic.Bool
	autoEnabled  atomic.Bool
	warnedModes  sync.Map
}

// New validates cfg and builds an engine. Configuration errors are the only
// errors it returns.
func New(cfg config.FilteringConfig, deps Deps) (*Engine, error) {
	cfg = cfg.Clone()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filtering config: %w", err)
	}
	if cfg.Enrichment.Enabled && deps.Classifier == nil {
		return nil, ErrNoClassifier
	}

	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewAggregator()
	}
	if deps.Cache == nil {
		deps.Cache = cache.New(nil, cache.Options{TTL: cfg.Enrichment.CacheTTL, Now: deps.Now, Log: deps.Log})
	}

	log := deps.Log.With("component", "engine")
	e := &Engine{
		cache: deps.Cache,
		table: category.NewTable(cfg.CategoryFilter.CustomMappings.Rules(), pattern.NewCache(deps.Log), deps.Log),
		agg:   deps.Metrics,
		ttl:   cfg.Enrichment.CacheTTL,
		now:   deps.Now,
		log:   log,
		seen:  filter.NewSet(),
	}
	e.state.Store(newState(cfg))

	if cfg.Enrichment.Enabled {
		ec := cfg.Enrichment
		brk := breaker.New(breaker.Config{Threshold: ec.BreakerThreshold, Cooldown: ec.BreakerCooldown})
		brk.OnStateChange(func(from, to breaker.State) {
			log.Warn("Classifier circuit breaker changed state", "from", from.String(), "to", to.String())
		})

		var opts []enrichment.Option
		if deps.Locker != nil {
			opts = append(opts, enrichment.WithLocker(deps.Locker))
		}
		e.enricher = enrichment.New(deps.Classifier, brk, e.cache, e.agg, enrichment.Config{
			Labels: ec.Labels,
			TTL:    ec.CacheTTL,
			Retry: retry.Config{
				MaxRetries:  ec.Retries(),
				BaseDelay:   ec.BackoffBase,
				MaxDelay:    ec.MaxBackoff,
				CallTimeout: ec.CallTimeout,
				Jitter:      retry.DefaultConfig.Jitter,
			},
			Queue: enrichment.QueueConfig{
				Concurrency: ec.Concurrency,
				Interval:    ec.DispatchInterval,
			},
		}, deps.Log, opts...)
	}

	log.Info("Filtering engine ready",
		"enabled", cfg.IsEnabled(),
		"mode", cfg.Mode,
		"enrichment", cfg.Enrichment.Enabled,
		"custom_mappings", len(cfg.CategoryFilter.CustomMappings),
	)
	return e, nil
}

// Config returns a copy of the configuration currently in effect.
func (e *Engine) Config() config.FilteringConfig {
	return e.state.Load().cfg.Clone()
}

// Breaker returns the classifier breaker, or nil when enrichment is disabled.
func (e *Engine) Breaker() *breaker.Breaker {
	if e.enricher == nil {
		return nil
	}
	return e.enricher.Breaker()
}

// Stats returns a freshly derived metrics snapshot.
func (e *Engine) Stats() metrics.Snapshot {
	st := e.state.Load()
	cs := e.cache.Stats()

	g := metrics.Gauges{
		Enabled:           st.cfg.IsEnabled(),
		Mode:              string(st.cfg.Mode),
		HotSize:           cs.HotSize,
		WarmSize:          cs.WarmSize,
		EstimatedBytes:    cs.EstimatedBytes,
		PendingWrites:     cs.PendingWrites,
		BreakerState:      breaker.Closed.String(),
		AllowedServers:    st.servers.Names(),
		AllowedCategories: st.categories.Names(),
	}
	if e.enricher != nil {
		bs := e.enricher.Breaker().Stats()
		g.BreakerState = bs.State.String()
		g.BreakerTrips = bs.Trips
		g.QueueDepth = e.enricher.Depth()
	}
	return e.agg.Snapshot(g)
}

// Shutdown drains enrichment within ctx and flushes the cache. The flush runs
// even when the drain times out.
func (e *Engine) Shutdown(ctx context.Context) error {
	var errs []error
	if e.enricher != nil {
		if err := e.enricher.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain enrichment: %w", err))
		}
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.cache.Wait(flushCtx); err != nil {
		errs = append(errs, fmt.Errorf("wait for background flush: %w", err))
	}
	if err := e.cache.Flush(flushCtx); err != nil {
		errs = append(errs, err)
	}

	e.log.Info("Filtering engine stopped")
	return errors.Join(errs...)
}
