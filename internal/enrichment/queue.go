// Package enrichment classifies unknown tools in the background and writes the
// results back into the category cache.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/vietddude/toolfilter/internal/core/domain"
)

// ErrQueueClosed is reported for tasks enqueued after Shutdown.
var ErrQueueClosed = errors.New("enrichment queue closed")

// Result is the outcome of one enrichment task.
type Result struct {
	Task  domain.EnrichmentTask
	Entry domain.CacheEntry
	// Cached is set when the cache already had an entry at dispatch time.
	Cached bool
	// Skipped is set when another replica holds the lock for this tool.
	Skipped bool
	// Fallback is set when Entry came from the heuristic instead of the classifier.
	Fallback bool
	Err      error
}

// Processor runs one task to completion.
type Processor func(ctx context.Context, task domain.EnrichmentTask) Result

// Precheck short-circuits a task right before dispatch.
type Precheck func(task domain.EnrichmentTask) (Result, bool)

// QueueConfig caps how fast tasks leave the queue.
type QueueConfig struct {
	// Concurrency is the maximum number of tasks running at once.
	Concurrency int
	// Interval is the minimum spacing between two dispatches.
	Interval time.Duration
}

// DefaultQueueConfig returns the enrichment defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Concurrency: 5,
		Interval:    100 * time.Millisecond,
	}
}

type queued struct {
	task domain.EnrichmentTask
	out  chan Result
}

// Queue is an unbounded FIFO drained by a single dispatcher. A task is
// dispatched only when a worker slot is free and Interval has passed since
// the previous dispatch.
type Queue struct {
	process  Processor
	precheck Precheck
	limiter  *rate.Limiter
	workers  *pool.Pool
	slots    chan struct{}
	log      *slog.Logger

	mu      sync.Mutex
	pending []queued
	closed  bool
	notify  chan struct{}

	depth atomic.Int64

	dispatchCtx    context.Context
	cancelDispatch context.CancelFunc
	workCtx        context.Context
	cancelWork     context.CancelFunc
	dispatchDone   chan struct{}
}

// NewQueue creates a queue and starts its dispatcher.
func NewQueue(cfg QueueConfig, process Processor, precheck Precheck, log *slog.Logger) *Queue {
	def := DefaultQueueConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if log == nil {
		log = slog.Default()
	}

	q := &Queue{
		process:      process,
		precheck:     precheck,
		limiter:      rate.NewLimiter(rate.Every(cfg.Interval), 1),
		workers:      pool.New().WithMaxGoroutines(cfg.Concurrency),
		slots:        make(chan struct{}, cfg.Concurrency),
		log:          log.With("component", "enrichment-queue"),
		notify:       make(chan struct{}, 1),
		dispatchDone: make(chan struct{}),
	}
	q.dispatchCtx, q.cancelDispatch = context.WithCancel(context.Background())
	q.workCtx, q.cancelWork = context.WithCancel(context.Background())

	go q.run()
	return q
}

// Enqueue adds a task without blocking. The returned channel yields exactly
// one Result, or is closed empty if the task is abandoned at shutdown.
func (q *Queue) Enqueue(task domain.EnrichmentTask) <-chan Result {
	out := make(chan Result, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		out <- Result{Task: task, Err: ErrQueueClosed}
		close(out)
		return out
	}
	q.pending = append(q.pending, queued{task: task, out: out})
	q.depth.Add(1)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return out
}

// Depth is the number of pending plus in-flight tasks.
func (q *Queue) Depth() int64 {
	return q.depth.Load()
}

func (q *Queue) run() {
	defer close(q.dispatchDone)

	for {
		item, ok := q.next()
		if !ok {
			return
		}

		select {
		case q.slots <- struct{}{}:
		case <-q.dispatchCtx.Done():
			q.abandon(item)
			return
		}
		if err := q.limiter.Wait(q.dispatchCtx); err != nil {
			<-q.slots
			q.abandon(item)
			return
		}

		if q.precheck != nil {
			if r, hit := q.precheck(item.task); hit {
				<-q.slots
				q.finish(item, r)
				continue
			}
		}

		q.workers.Go(func() {
			defer func() { <-q.slots }()
			q.finish(item, q.safeProcess(item.task))
		})
	}
}

func (q *Queue) next() (queued, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			item := q.pending[0]
			q.pending[0] = queued{}
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-q.dispatchCtx.Done():
			return queued{}, false
		}
	}
}

func (q *Queue) safeProcess(task domain.EnrichmentTask) (r Result) {
	defer func() {
		if rec := recover(); rec != nil {
			q.log.Error("Enrichment task panicked", "task", task.ID, "tool", task.ToolName, "panic", rec)
			r = Result{Task: task, Err: fmt.Errorf("enrichment panic: %v", rec)}
		}
	}()
	return q.process(q.workCtx, task)
}

func (q *Queue) finish(item queued, r Result) {
	item.out <- r
	close(item.out)
	q.depth.Add(-1)
}

func (q *Queue) abandon(item queued) {
	close(item.out)
	q.depth.Add(-1)
}

// Shutdown stops accepting tasks, abandons those not yet dispatched and waits
// for in-flight tasks until ctx is done. In-flight tasks still running at
// that point have their context cancelled.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.cancelDispatch()
	<-q.dispatchDone

	q.mu.Lock()
	abandoned := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, item := range abandoned {
		q.abandon(item)
	}
	if len(abandoned) > 0 {
		q.log.Info("Abandoned pending enrichment tasks", "count", len(abandoned))
	}

	done := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancelWork()
		return nil
	case <-ctx.Done():
		q.log.Warn("Shutdown grace elapsed, cancelling in-flight enrichment", "in_flight", q.depth.Load())
		q.cancelWork()
		return ctx.Err()
	}
}
