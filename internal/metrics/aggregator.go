// Package metrics aggregates filtering, cache and classifier counters and
// mirrors them to Prometheus.
package metrics

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Aggregator collects counters from every component. All methods are safe for
// concurrent use and never block on I/O.
type Aggregator struct {
	checked  atomic.Int64
	filtered atomic.Int64

	hotHits    atomic.Int64
	hotMisses  atomic.Int64
	warmHits   atomic.Int64
	warmMisses atomic.Int64

	calls     atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	timeouts  atomic.Int64
	retries   atomic.Int64
	fallbacks atomic.Int64

	errMu        sync.Mutex
	errorsByType map[string]int64

	latencies *LatencyRing
}

// NewAggregator creates an aggregator with the default latency window.
func NewAggregator() *Aggregator {
	return &Aggregator{
		errorsByType: make(map[string]int64),
		latencies:    NewLatencyRing(DefaultLatencyWindow),
	}
}

// RecordDecision counts one filtering decision.
func (a *Aggregator) RecordDecision(included bool) {
	a.checked.Add(1)
	if included {
		DecisionsTotal.WithLabelValues("exposed").Inc()
		return
	}
	a.filtered.Add(1)
	DecisionsTotal.WithLabelValues("filtered").Inc()
}

// RecordHotLookup counts a hot-tier lookup.
func (a *Aggregator) RecordHotLookup(hit bool) {
	if hit {
		a.hotHits.Add(1)
		CacheLookupsTotal.WithLabelValues("hot", "hit").Inc()
		return
	}
	a.hotMisses.Add(1)
	CacheLookupsTotal.WithLabelValues("hot", "miss").Inc()
}

// RecordWarmLookup counts a warm-tier lookup.
func (a *Aggregator) RecordWarmLookup(hit bool) {
	if hit {
		a.warmHits.Add(1)
		CacheLookupsTotal.WithLabelValues("warm", "hit").Inc()
		return
	}
	a.warmMisses.Add(1)
	CacheLookupsTotal.WithLabelValues("warm", "miss").Inc()
}

// RecordClassifierSuccess counts a successful classifier call.
func (a *Aggregator) RecordClassifierSuccess(latency time.Duration) {
	a.calls.Add(1)
	a.successes.Add(1)
	a.latencies.Record(latency)
	ClassifierCallsTotal.WithLabelValues("success").Inc()
	ClassifierLatency.Observe(latency.Seconds())
}

// RecordClassifierFailure counts a failed classifier call. errType groups the
// failure for errorsByType; timeout marks deadline failures.
func (a *Aggregator) RecordClassifierFailure(latency time.Duration, errType string, timeout bool) {
	a.calls.Add(1)
	a.failures.Add(1)
	a.latencies.Record(latency)
	ClassifierLatency.Observe(latency.Seconds())

	outcome := "failure"
	if timeout {
		a.timeouts.Add(1)
		outcome = "timeout"
	}
	ClassifierCallsTotal.WithLabelValues(outcome).Inc()

	if errType == "" {
		errType = "unknown"
	}
	a.errMu.Lock()
	a.errorsByType[errType]++
	a.errMu.Unlock()
	ClassifierErrorsTotal.WithLabelValues(errType).Inc()
}

// RecordRetry counts one retry attempt.
func (a *Aggregator) RecordRetry() {
	a.retries.Add(1)
	ClassifierRetriesTotal.Inc()
}

// RecordFallback counts one fallback to the heuristic category.
func (a *Aggregator) RecordFallback() {
	a.fallbacks.Add(1)
	FallbacksTotal.Inc()
}

// Gauges are point-in-time values owned by other components.
type Gauges struct {
	Enabled           bool
	Mode              string
	HotSize           int
	WarmSize          int
	EstimatedBytes    int64
	PendingWrites     int64
	BreakerState      string
	BreakerTrips      int64
	QueueDepth        int64
	AllowedServers    []string
	AllowedCategories []string
}

// Snapshot is the full statistics view. Every figure is computed fresh.
type Snapshot struct {
	Enabled       bool    `json:"enabled"`
	Mode          string  `json:"mode"`
	TotalChecked  int64   `json:"totalChecked"`
	TotalFiltered int64   `json:"totalFiltered"`
	TotalExposed  int64   `json:"totalExposed"`
	FilterRate    float64 `json:"filterRate"`

	Cache      CacheSnapshot      `json:"cache"`
	Classifier ClassifierSnapshot `json:"classifier"`

	QueueDepth        int64    `json:"queueDepth"`
	AllowedServers    []string `json:"allowedServers"`
	AllowedCategories []string `json:"allowedCategories"`
}

// CacheSnapshot describes both cache tiers.
type CacheSnapshot struct {
	HotSize        int     `json:"hotSize"`
	HotHits        int64   `json:"hotHits"`
	HotMisses      int64   `json:"hotMisses"`
	HotHitRate     float64 `json:"hotHitRate"`
	WarmSize       int     `json:"warmSize"`
	WarmHits       int64   `json:"warmHits"`
	WarmMisses     int64   `json:"warmMisses"`
	WarmHitRate    float64 `json:"warmHitRate"`
	EstimatedBytes int64   `json:"estimatedBytes"`
	PendingWrites  int64   `json:"pendingWrites"`
}

// ClassifierSnapshot describes classifier traffic and resilience state.
type ClassifierSnapshot struct {
	TotalCalls   int64            `json:"totalCalls"`
	Successes    int64            `json:"successfulCalls"`
	Failures     int64            `json:"failedCalls"`
	Timeouts     int64            `json:"timeouts"`
	SuccessRate  float64          `json:"successRate"`
	Latency      LatencySummary   `json:"latency"`
	Retries      int64            `json:"totalRetries"`
	Fallbacks    int64            `json:"fallbacksUsed"`
	BreakerState string           `json:"circuitBreakerState"`
	BreakerTrips int64            `json:"circuitBreakerTrips"`
	ErrorsByType map[string]int64 `json:"errorsByType"`
}

// Snapshot derives the statistics view and refreshes the Prometheus gauges.
func (a *Aggregator) Snapshot(g Gauges) Snapshot {
	checked := a.checked.Load()
	filtered := a.filtered.Load()
	hotHits, hotMisses := a.hotHits.Load(), a.hotMisses.Load()
	warmHits, warmMisses := a.warmHits.Load(), a.warmMisses.Load()
	calls, successes := a.calls.Load(), a.successes.Load()

	a.errMu.Lock()
	errs := maps.Clone(a.errorsByType)
	a.errMu.Unlock()

	s := Snapshot{
		Enabled:       g.Enabled,
		Mode:          g.Mode,
		TotalChecked:  checked,
		TotalFiltered: filtered,
		TotalExposed:  checked - filtered,
		FilterRate:    ratio(filtered, checked),
		Cache: CacheSnapshot{
			HotSize:        g.HotSize,
			HotHits:        hotHits,
			HotMisses:      hotMisses,
			HotHitRate:     ratio(hotHits, hotHits+hotMisses),
			WarmSize:       g.WarmSize,
			WarmHits:       warmHits,
			WarmMisses:     warmMisses,
			WarmHitRate:    ratio(warmHits, warmHits+warmMisses),
			EstimatedBytes: g.EstimatedBytes,
			PendingWrites:  g.PendingWrites,
		},
		Classifier: ClassifierSnapshot{
			TotalCalls:   calls,
			Successes:    successes,
			Failures:     a.failures.Load(),
			Timeouts:     a.timeouts.Load(),
			SuccessRate:  ratio(successes, calls),
			Latency:      a.latencies.Summary(),
			Retries:      a.retries.Load(),
			Fallbacks:    a.fallbacks.Load(),
			BreakerState: g.BreakerState,
			BreakerTrips: g.BreakerTrips,
			ErrorsByType: errs,
		},
		QueueDepth:        g.QueueDepth,
		AllowedServers:    nonNil(g.AllowedServers),
		AllowedCategories: nonNil(g.AllowedCategories),
	}

	publish(s)
	return s
}

func publish(s Snapshot) {
	CacheEntries.WithLabelValues("hot").Set(float64(s.Cache.HotSize))
	CacheEntries.WithLabelValues("warm").Set(float64(s.Cache.WarmSize))
	EnrichmentQueueDepth.Set(float64(s.QueueDepth))
	CircuitBreakerTrips.Set(float64(s.Classifier.BreakerTrips))

	switch s.Classifier.BreakerState {
	case "open":
		CircuitBreakerState.Set(1)
	case "half-open":
		CircuitBreakerState.Set(2)
	default:
		CircuitBreakerState.Set(0)
	}
}

func ratio(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

func nonNil(s []string) []string {
	if len(s) == 0 {
		return []string{}
	}
	return append([]string(nil), s...)
}
