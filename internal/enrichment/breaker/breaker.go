// Package breaker implements the circuit breaker guarding classifier calls.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by callers that short-circuit while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the breaker state.
type State int

const (
	// Closed lets calls through and counts consecutive failures.
	Closed State = iota
	// Open rejects calls until the cooldown has elapsed.
	Open
	// HalfOpen lets exactly one trial call through.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a Breaker.
type Config struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	// Default: 5
	Threshold int

	// Cooldown is how long the breaker stays open before a trial call.
	// Default: 60s
	Cooldown time.Duration
}

// DefaultConfig returns the default breaker settings.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Cooldown:  60 * time.Second,
	}
}

// Breaker is a consecutive-failure circuit breaker. Every transition happens
// under one mutex so concurrent failure reports cannot open it twice.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
	trips               int64
	onChange            func(from, to State)
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// OnStateChange registers a callback invoked (outside the lock) on every transition.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Allow reports whether a call may proceed. An open breaker whose cooldown has
// elapsed moves to half-open and admits a single trial call; further calls are
// rejected until that trial reports its outcome.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	from := b.state
	allowed := false

	switch b.state {
	case Closed:
		allowed = true
	case Open:
		if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
			b.state = HalfOpen
			b.trialInFlight = true
			allowed = true
		}
	case HalfOpen:
		if !b.trialInFlight {
			b.trialInFlight = true
			allowed = true
		}
	}

	to, cb := b.state, b.onChange
	b.mu.Unlock()

	notify(cb, from, to)
	return allowed
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	from := b.state
	b.state = Closed
	b.consecutiveFailures = 0
	b.trialInFlight = false
	cb := b.onChange
	b.mu.Unlock()

	notify(cb, from, Closed)
}

// RecordFailure counts a failed call. Failures reported while open are
// ignored so the counter does not inflate.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	from := b.state

	switch b.state {
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.Threshold {
			b.tripLocked()
		}
	case HalfOpen:
		b.consecutiveFailures++
		b.tripLocked()
	case Open:
	}

	to, cb := b.state, b.onChange
	b.mu.Unlock()

	notify(cb, from, to)
}

func (b *Breaker) tripLocked() {
	b.state = Open
	b.openedAt = b.now()
	b.trialInFlight = false
	b.trips++
}

func notify(cb func(from, to State), from, to State) {
	if cb != nil && from != to {
		cb(from, to)
	}
}

// State returns the current state without evaluating the cooldown.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a snapshot of the breaker.
type Stats struct {
	State               State
	ConsecutiveFailures int
	Threshold           int
	Cooldown            time.Duration
	OpenedAt            time.Time // zero unless the breaker has opened
	Trips               int64
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		Threshold:           b.cfg.Threshold,
		Cooldown:            b.cfg.Cooldown,
		OpenedAt:            b.openedAt,
		Trips:               b.trips,
	}
}
