package enrichment

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/toolfilter/internal/cache"
	"github.com/vietddude/toolfilter/internal/core/domain"
	"github.com/vietddude/toolfilter/internal/enrichment/breaker"
	"github.com/vietddude/toolfilter/internal/enrichment/retry"
	"github.com/vietddude/toolfilter/internal/metrics"
)

type stubClassifier struct {
	calls atomic.Int64
	delay time.Duration
	label string
	err   error
}

func (s *stubClassifier) Name() string { return "stub" }

func (s *stubClassifier) Classify(ctx context.Context, name string, def domain.ToolDefinition, labels []string) (string, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.err != nil {
		return "", s.err
	}
	return s.label, nil
}

type stubLocker struct {
	mu     sync.Mutex
	held   map[string]bool
	denied bool
}

func (l *stubLocker) TryLock(ctx context.Context, tool string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied || l.held[tool] {
		return false, nil
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	l.held[tool] = true
	return true, nil
}

func (l *stubLocker) Unlock(ctx context.Context, tool string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, tool)
	return nil
}

func testConfig() Config {
	return Config{
		TTL:   time.Hour,
		Retry: retry.Config{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, CallTimeout: time.Second},
		Queue: QueueConfig{Concurrency: 2, Interval: time.Millisecond},
	}
}

func newTestEnricher(t *testing.T, cls *stubClassifier, brk *breaker.Breaker, opts ...Option) (*Enricher, *cache.Cache, *metrics.Aggregator) {
	t.Helper()
	if brk == nil {
		brk = breaker.New(breaker.DefaultConfig())
	}
	c := cache.New(nil, cache.Options{TTL: time.Hour})
	agg := metrics.NewAggregator()
	e := New(cls, brk, c, agg, testConfig(), nil, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e, c, agg
}

func TestEnricher_WritesClassifierResult(t *testing.T) {
	cls := &stubClassifier{label: "web"}
	e, c, _ := newTestEnricher(t, cls, nil)

	e.Submit("mystery_tool", domain.ToolDefinition{})

	require.Eventually(t, func() bool {
		_, ok := c.Warm("mystery_tool")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	entry, _ := c.Warm("mystery_tool")
	assert.Equal(t, "web", entry.Category)
	assert.Equal(t, domain.SourceClassifier, entry.Source)
	assert.Equal(t, domain.ClassifierConfidence, entry.Confidence)
}

func TestEnricher_LabelOutsideCandidatesBecomesOther(t *testing.T) {
	cls := &stubClassifier{label: "cooking"}
	e, c, _ := newTestEnricher(t, cls, nil)

	e.Submit("bake", domain.ToolDefinition{})

	require.Eventually(t, func() bool {
		_, ok := c.Warm("bake")
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	entry, _ := c.Warm("bake")
	assert.Equal(t, domain.CategoryOther, entry.Category)
}

func TestEnricher_FallbackStaysHot(t *testing.T) {
	cls := &stubClassifier{err: &retry.StatusError{Code: 401}}
	e, c, agg := newTestEnricher(t, cls, nil)

	e.Submit("mystery_reader", domain.ToolDefinition{Description: "Read a file from disk"})

	require.Eventually(t, func() bool {
		_, ok := c.Hot("mystery_reader")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	entry, _ := c.Hot("mystery_reader")
	assert.Equal(t, domain.CategoryFilesystem, entry.Category)
	assert.Equal(t, domain.SourceHeuristic, entry.Source)
	_, inWarm := c.Warm("mystery_reader")
	assert.False(t, inWarm, "fallbacks are not persisted")

	snap := agg.Snapshot(metrics.Gauges{})
	assert.Equal(t, int64(1), snap.Classifier.Fallbacks)
	assert.Equal(t, int64(1), snap.Classifier.Failures)
}

func TestEnricher_BreakerShortCircuits(t *testing.T) {
	cls := &stubClassifier{err: &retry.StatusError{Code: 500}}
	brk := breaker.New(breaker.Config{Threshold: 2, Cooldown: time.Hour})
	e, c, _ := newTestEnricher(t, cls, brk)

	for _, name := range []string{"t1", "t2", "t3", "t4"} {
		e.Submit(name, domain.ToolDefinition{})
		require.Eventually(t, func() bool {
			_, ok := c.Hot(name)
			return ok
		}, 2*time.Second, 5*time.Millisecond)
	}

	assert.Equal(t, breaker.Open, brk.State())
	assert.Equal(t, int64(2), cls.calls.Load(), "open breaker must not call the classifier")
}

func TestEnricher_ExhaustedRetriesCountOnceAgainstBreaker(t *testing.T) {
	cls := &stubClassifier{err: &retry.StatusError{Code: 503}}
	brk := breaker.New(breaker.Config{Threshold: 5, Cooldown: time.Hour})
	c := cache.New(nil, cache.Options{TTL: time.Hour})
	cfg := testConfig()
	cfg.Retry.MaxRetries = 4
	e := New(cls, brk, c, metrics.NewAggregator(), cfg, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})

	e.Submit("flaky_tool", domain.ToolDefinition{})
	require.Eventually(t, func() bool {
		_, ok := c.Hot("flaky_tool")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(5), cls.calls.Load())
	assert.Equal(t, breaker.Closed, brk.State())
	assert.Equal(t, 1, brk.Stats().ConsecutiveFailures)
}

type panicClassifier struct {
	calls atomic.Int64
}

func (p *panicClassifier) Name() string { return "panic" }

func (p *panicClassifier) Classify(ctx context.Context, name string, def domain.ToolDefinition, labels []string) (string, error) {
	p.calls.Add(1)
	panic("classifier exploded")
}

func TestEnricher_PanicReleasesHalfOpenTrial(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	brk := breaker.New(breaker.Config{Threshold: 1, Cooldown: time.Minute}).WithClock(clock)
	brk.RecordFailure()
	require.Equal(t, breaker.Open, brk.State())
	advance(time.Minute)

	cls := &panicClassifier{}
	c := cache.New(nil, cache.Options{TTL: time.Hour})
	e := New(cls, brk, c, metrics.NewAggregator(), testConfig(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})

	e.Submit("volatile_tool", domain.ToolDefinition{})
	require.Eventually(t, func() bool {
		return cls.calls.Load() == 1 && e.Depth() == 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, breaker.Open, brk.State(), "a panicking trial must reopen the breaker")
	assert.Equal(t, int64(2), brk.Stats().Trips)

	advance(time.Minute)
	assert.True(t, brk.Allow(), "the next cooldown admits a new trial")
}

func TestEnricher_PrecheckSkipsClassifier(t *testing.T) {
	cls := &stubClassifier{label: "web"}
	e, c, _ := newTestEnricher(t, cls, nil)

	c.Put("known", domain.NewCacheEntry("database", 0.9, domain.SourceClassifier, time.Hour, time.Now()))
	e.Submit("known", domain.ToolDefinition{})

	require.Eventually(t, func() bool { return e.Depth() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), cls.calls.Load())
	entry, _ := c.Warm("known")
	assert.Equal(t, "database", entry.Category)
}

func TestEnricher_LockHeldElsewhere(t *testing.T) {
	cls := &stubClassifier{label: "web"}
	e, c, _ := newTestEnricher(t, cls, nil, WithLocker(&stubLocker{denied: true}))

	e.Submit("shared_tool", domain.ToolDefinition{})

	require.Eventually(t, func() bool { return e.Depth() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), cls.calls.Load())
	_, ok := c.Get("shared_tool")
	assert.False(t, ok)
}

func TestEnricher_DuplicateSubmissionsCoalesce(t *testing.T) {
	cls := &stubClassifier{label: "web", delay: 50 * time.Millisecond}
	e, c, _ := newTestEnricher(t, cls, nil, WithLocker(&stubLocker{}))

	e.Submit("dup", domain.ToolDefinition{})
	e.Submit("dup", domain.ToolDefinition{})

	require.Eventually(t, func() bool {
		_, ok := c.Warm("dup")
		return ok && e.Depth() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), cls.calls.Load())
}

func TestEnricher_ShutdownWithinGrace(t *testing.T) {
	cls := &stubClassifier{label: "web", delay: 10 * time.Millisecond}
	e, _, _ := newTestEnricher(t, cls, nil)

	for i := 0; i < 3; i++ {
		e.Submit("tool", domain.ToolDefinition{})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, e.Shutdown(ctx))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(0), e.Depth())
}
