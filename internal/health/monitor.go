package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/toolfilter/internal/metrics"
)

// pendingWritesLimit marks the cache degraded when this many writes have not
// reached the persistent store.
const pendingWritesLimit = 500

// StatsSource provides the engine statistics the monitor evaluates.
type StatsSource interface {
	Stats() metrics.Snapshot
}

// Check probes an external dependency such as the cache backend.
type Check func(ctx context.Context) error

// Monitor aggregates health status from the engine and its backends.
type Monitor struct {
	stats    StatsSource
	interval time.Duration

	mu         sync.Mutex
	checks     map[string]Check
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a new health monitor. Reports are reused for interval.
func NewMonitor(stats StatsSource, interval time.Duration) *Monitor {
	return &Monitor{
		stats:    stats,
		interval: interval,
		checks:   make(map[string]Check),
	}
}

// AddCheck registers a probe reported as its own component. A failing probe
// is critical.
func (m *Monitor) AddCheck(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
	m.lastReport = nil
}

// CheckHealth evaluates every component.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Backends are probed at most once per interval
	if m.lastReport != nil && time.Since(m.lastCheck) < m.interval {
		return *m.lastReport
	}

	snap := m.stats.Stats()
	report := Report{
		Status:     StatusHealthy,
		Components: make(map[string]ComponentHealth),
	}
	add := func(c ComponentHealth) {
		report.Components[c.Name] = c
		report.Status = worse(report.Status, c.Status)
	}

	add(enrichmentHealth(snap))
	add(cacheHealth(snap))

	for name, check := range m.checks {
		c := ComponentHealth{Name: name, Status: StatusHealthy}
		if err := check(ctx); err != nil {
			c.Status = StatusCritical
			c.Detail = err.Error()
		}
		add(c)
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}

func enrichmentHealth(snap metrics.Snapshot) ComponentHealth {
	c := ComponentHealth{Name: "enrichment", Status: StatusHealthy}
	switch snap.Classifier.BreakerState {
	case "open":
		c.Status = StatusDegraded
		c.Detail = "circuit breaker open, using heuristic fallback"
	case "half-open":
		c.Status = StatusDegraded
		c.Detail = "circuit breaker probing classifier"
	default:
		if snap.QueueDepth > 0 {
			c.Detail = fmt.Sprintf("%d tasks queued", snap.QueueDepth)
		}
	}
	return c
}

func cacheHealth(snap metrics.Snapshot) ComponentHealth {
	c := ComponentHealth{Name: "cache", Status: StatusHealthy}
	if snap.Cache.PendingWrites >= pendingWritesLimit {
		c.Status = StatusDegraded
		c.Detail = fmt.Sprintf("%d writes not yet persisted", snap.Cache.PendingWrites)
	}
	return c
}
