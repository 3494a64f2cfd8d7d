package metrics

import (
	"math"
	"slices"
	"sync"
	"time"
)

// DefaultLatencyWindow is the number of samples kept for percentiles.
const DefaultLatencyWindow = 1000

// LatencyRing keeps the most recent latency samples in a fixed-size ring.
type LatencyRing struct {
	mu      sync.RWMutex
	samples []time.Duration
	next    int
	full    bool
}

// NewLatencyRing creates a ring holding up to size samples.
func NewLatencyRing(size int) *LatencyRing {
	if size <= 0 {
		size = DefaultLatencyWindow
	}
	return &LatencyRing{samples: make([]time.Duration, size)}
}

// Record adds a sample, overwriting the oldest once the ring is full.
func (r *LatencyRing) Record(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples[r.next] = d
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
}

// Len returns the number of samples held.
func (r *LatencyRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

func (r *LatencyRing) lenLocked() int {
	if r.full {
		return len(r.samples)
	}
	return r.next
}

// LatencySummary is derived from the ring at one instant.
type LatencySummary struct {
	Count   int           `json:"count"`
	Average time.Duration `json:"average"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
}

// Summary computes average and nearest-rank p95/p99 over the held samples.
func (r *LatencyRing) Summary() LatencySummary {
	r.mu.RLock()
	n := r.lenLocked()
	sorted := make([]time.Duration, n)
	copy(sorted, r.samples[:n])
	r.mu.RUnlock()

	if n == 0 {
		return LatencySummary{}
	}

	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return LatencySummary{
		Count:   n,
		Average: total / time.Duration(n),
		P95:     nearestRank(sorted, 95),
		P99:     nearestRank(sorted, 99),
	}
}

// nearestRank returns the smallest sample such that at least p percent of
// samples are less than or equal to it. sorted must be ascending and non-empty.
func nearestRank(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
