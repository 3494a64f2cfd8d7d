package enrichment

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/toolfilter/internal/core/domain"
)

func task(name string) domain.EnrichmentTask {
	return domain.NewEnrichmentTask(name, domain.ToolDefinition{})
}

func waitResult(t *testing.T, ch <-chan Result) (Result, bool) {
	t.Helper()
	select {
	case r, ok := <-ch:
		return r, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}, false
	}
}

func TestQueue_ConcurrencyCap(t *testing.T) {
	var running, peak atomic.Int64
	process := func(ctx context.Context, tk domain.EnrichmentTask) Result {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return Result{Task: tk}
	}

	q := NewQueue(QueueConfig{Concurrency: 2, Interval: time.Millisecond}, process, nil, nil)
	defer q.Shutdown(context.Background())

	var outs []<-chan Result
	for i := 0; i < 8; i++ {
		outs = append(outs, q.Enqueue(task("tool")))
	}
	for _, out := range outs {
		_, ok := waitResult(t, out)
		require.True(t, ok)
	}

	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Equal(t, int64(0), q.Depth())
}

func TestQueue_DispatchInterval(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time
	process := func(ctx context.Context, tk domain.EnrichmentTask) Result {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return Result{Task: tk}
	}

	interval := 40 * time.Millisecond
	q := NewQueue(QueueConfig{Concurrency: 5, Interval: interval}, process, nil, nil)
	defer q.Shutdown(context.Background())

	var outs []<-chan Result
	for i := 0; i < 4; i++ {
		outs = append(outs, q.Enqueue(task("tool")))
	}
	for _, out := range outs {
		waitResult(t, out)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 4)
	total := starts[len(starts)-1].Sub(starts[0])
	assert.GreaterOrEqual(t, total, 3*interval-15*time.Millisecond, "dispatches must be spaced by the interval")
}

func TestQueue_PrecheckSkipsProcessing(t *testing.T) {
	var processed atomic.Int64
	process := func(ctx context.Context, tk domain.EnrichmentTask) Result {
		processed.Add(1)
		return Result{Task: tk}
	}
	precheck := func(tk domain.EnrichmentTask) (Result, bool) {
		if tk.ToolName == "known" {
			return Result{Task: tk, Cached: true}, true
		}
		return Result{}, false
	}

	q := NewQueue(QueueConfig{Concurrency: 1, Interval: time.Millisecond}, process, precheck, nil)
	defer q.Shutdown(context.Background())

	r, ok := waitResult(t, q.Enqueue(task("known")))
	require.True(t, ok)
	assert.True(t, r.Cached)

	r, ok = waitResult(t, q.Enqueue(task("unknown")))
	require.True(t, ok)
	assert.False(t, r.Cached)
	assert.Equal(t, int64(1), processed.Load())
}

func TestQueue_ShutdownAbandonsPending(t *testing.T) {
	process := func(ctx context.Context, tk domain.EnrichmentTask) Result {
		return Result{Task: tk}
	}
	// One dispatch per hour: only the first task leaves the queue.
	q := NewQueue(QueueConfig{Concurrency: 5, Interval: time.Hour}, process, nil, nil)

	first := q.Enqueue(task("a"))
	_, ok := waitResult(t, first)
	require.True(t, ok)

	second := q.Enqueue(task("b"))
	third := q.Enqueue(task("c"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))

	_, ok = waitResult(t, second)
	assert.False(t, ok, "pending task must be abandoned")
	_, ok = waitResult(t, third)
	assert.False(t, ok)
	assert.Equal(t, int64(0), q.Depth())

	r, ok := waitResult(t, q.Enqueue(task("late")))
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, ErrQueueClosed)
}

func TestQueue_ShutdownGraceCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	process := func(ctx context.Context, tk domain.EnrichmentTask) Result {
		close(started)
		<-ctx.Done()
		return Result{Task: tk, Err: ctx.Err()}
	}
	q := NewQueue(QueueConfig{Concurrency: 1, Interval: time.Millisecond}, process, nil, nil)

	out := q.Enqueue(task("slow"))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := q.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r, ok := waitResult(t, out)
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, context.Canceled)
}

func TestQueue_RecoversPanics(t *testing.T) {
	process := func(ctx context.Context, tk domain.EnrichmentTask) Result {
		panic("boom")
	}
	q := NewQueue(QueueConfig{Concurrency: 1, Interval: time.Millisecond}, process, nil, nil)
	defer q.Shutdown(context.Background())

	r, ok := waitResult(t, q.Enqueue(task("x")))
	require.True(t, ok)
	assert.Error(t, r.Err)
}
