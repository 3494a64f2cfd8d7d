package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal tracks filtering decisions by outcome
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolfilter_decisions_total",
			Help: "Total number of tool filtering decisions",
		},
		[]string{"result"},
	)

	// CacheLookupsTotal tracks category cache lookups per tier
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolfilter_cache_lookups_total",
			Help: "Total number of category cache lookups",
		},
		[]string{"tier", "result"},
	)

	// CacheEntries tracks the number of entries per cache tier
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "toolfilter_cache_entries",
			Help: "Number of entries held per cache tier",
		},
		[]string{"tier"},
	)

	// ClassifierCallsTotal tracks classifier calls by outcome
	ClassifierCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolfilter_classifier_calls_total",
			Help: "Total number of classifier calls",
		},
		[]string{"outcome"},
	)

	// ClassifierErrorsTotal tracks classifier errors by type
	ClassifierErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolfilter_classifier_errors_total",
			Help: "Total number of classifier errors",
		},
		[]string{"error_type"},
	)

	// ClassifierRetriesTotal tracks retry attempts
	ClassifierRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toolfilter_classifier_retries_total",
			Help: "Total number of classifier retry attempts",
		},
	)

	// FallbacksTotal tracks enrichment tasks that fell back to the heuristic
	FallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toolfilter_heuristic_fallbacks_total",
			Help: "Total number of enrichment fallbacks to the heuristic category",
		},
	)

	// ClassifierLatency tracks classifier call latency
	ClassifierLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toolfilter_classifier_latency_seconds",
			Help:    "Classifier call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CircuitBreakerState is 0 closed, 1 open, 2 half-open
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolfilter_circuit_breaker_state",
			Help: "Classifier circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
	)

	// CircuitBreakerTrips tracks transitions into the open state
	CircuitBreakerTrips = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolfilter_circuit_breaker_trips",
			Help: "Number of times the classifier circuit breaker opened",
		},
	)

	// EnrichmentQueueDepth tracks pending plus in-flight enrichment tasks
	EnrichmentQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolfilter_enrichment_queue_depth",
			Help: "Pending and in-flight enrichment tasks",
		},
	)

	// DBConnectionPoolUsage tracks postgres pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolfilter_db_connection_pool_usage",
			Help: "Percentage of open connections in the postgres pool",
		},
	)
)
