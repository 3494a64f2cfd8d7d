package enrichment

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"

	"github.com/vietddude/toolfilter/internal/cache"
	"github.com/vietddude/toolfilter/internal/category"
	"github.com/vietddude/toolfilter/internal/core/domain"
	"github.com/vietddude/toolfilter/internal/enrichment/breaker"
	"github.com/vietddude/toolfilter/internal/enrichment/retry"
	"github.com/vietddude/toolfilter/internal/infra/classifier"
	"github.com/vietddude/toolfilter/internal/metrics"
)

const defaultLockTTL = time.Minute

// Locker serializes classification of one tool across replicas.
type Locker interface {
	TryLock(ctx context.Context, tool string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, tool string) error
}

// Config tunes an Enricher.
type Config struct {
	Labels  []string
	TTL     time.Duration
	Retry   retry.Config
	Queue   QueueConfig
	LockTTL time.Duration
}

// Enricher owns the background path: queue, retry, breaker, classifier and
// the cache write-back.
type Enricher struct {
	cfg        Config
	classifier classifier.Classifier
	breaker    *breaker.Breaker
	cache      *cache.Cache
	agg        *metrics.Aggregator
	locker     Locker
	queue      *Queue
	group      singleflight.Group
	writers    conc.WaitGroup
	now        func() time.Time
	log        *slog.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithLocker enables cross-replica dedupe.
func WithLocker(l Locker) Option {
	return func(e *Enricher) { e.locker = l }
}

// WithClock replaces the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) { e.now = now }
}

// New creates an Enricher and starts its queue.
func New(cls classifier.Classifier, brk *breaker.Breaker, c *cache.Cache, agg *metrics.Aggregator, cfg Config, log *slog.Logger, opts ...Option) *Enricher {
	if len(cfg.Labels) == 0 {
		cfg.Labels = category.Labels()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = domain.DefaultTTL
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if log == nil {
		log = slog.Default()
	}

	e := &Enricher{
		cfg:        cfg,
		classifier: cls,
		breaker:    brk,
		cache:      c,
		agg:        agg,
		now:        time.Now,
		log:        log.With("component", "enrichment"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.queue = NewQueue(cfg.Queue, e.process, e.precheck, log)
	return e
}

// Submit enqueues name for classification. It never blocks; the result is
// consumed only by the cache writer.
func (e *Enricher) Submit(name string, def domain.ToolDefinition) {
	task := domain.NewEnrichmentTask(name, def)
	out := e.queue.Enqueue(task)
	e.writers.Go(func() {
		if r, ok := <-out; ok {
			e.write(r)
		}
	})
}

// Depth is the number of pending plus in-flight tasks.
func (e *Enricher) Depth() int64 {
	return e.queue.Depth()
}

// Breaker exposes the breaker for stats and health.
func (e *Enricher) Breaker() *breaker.Breaker {
	return e.breaker
}

// Shutdown drains the queue within ctx and waits for pending write-backs.
func (e *Enricher) Shutdown(ctx context.Context) error {
	err := e.queue.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		e.writers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (e *Enricher) precheck(task domain.EnrichmentTask) (Result, bool) {
	if entry, ok := e.cache.Warm(task.ToolName); ok {
		return Result{Task: task, Entry: entry, Cached: true}, true
	}
	return Result{}, false
}

func (e *Enricher) process(ctx context.Context, task domain.EnrichmentTask) Result {
	v, _, shared := e.group.Do(task.ToolName, func() (any, error) {
		return e.classify(ctx, task), nil
	})
	r := v.(Result)
	if shared && r.Task.ID != task.ID {
		// Another task for the same tool produced this result; it owns the write.
		return Result{Task: task, Entry: r.Entry, Cached: true}
	}
	return r
}

func (e *Enricher) classify(ctx context.Context, task domain.EnrichmentTask) Result {
	log := e.log.With("task", task.ID, "tool", task.ToolName)

	if e.locker != nil {
		locked, err := e.locker.TryLock(ctx, task.ToolName, e.cfg.LockTTL)
		switch {
		case err != nil:
			log.Warn("Failed to take enrichment lock, continuing", "error", err)
		case !locked:
			log.Debug("Tool is being classified elsewhere")
			return Result{Task: task, Skipped: true}
		default:
			defer func() {
				if err := e.locker.Unlock(context.Background(), task.ToolName); err != nil {
					log.Warn("Failed to release enrichment lock", "error", err)
				}
			}()
		}
	}

	hooks := retry.Hooks{
		OnRetry: func(attempt int, delay time.Duration, err error) {
			e.agg.RecordRetry()
			log.Debug("Retrying classifier call", "attempt", attempt, "delay", delay, "error", err)
		},
	}

	// The breaker sees one outcome per task: success, exhausted retries or a
	// permanent error. Allow is still checked per attempt so an open breaker
	// cuts retries short.
	var attempted, settled bool
	defer func() {
		if !settled && attempted {
			// Classify panicked; release a half-open trial.
			e.breaker.RecordFailure()
		}
	}()

	label, err := retry.Do(ctx, e.cfg.Retry, hooks, func(ctx context.Context) (string, error) {
		if !e.breaker.Allow() {
			return "", retry.MarkPermanent(breaker.ErrCircuitOpen)
		}
		attempted = true

		start := time.Now()
		label, err := e.classifier.Classify(ctx, task.ToolName, task.Definition, e.cfg.Labels)
		latency := time.Since(start)
		if err != nil {
			e.agg.RecordClassifierFailure(latency, retry.ErrorType(err), retry.IsTimeout(err))
			return "", err
		}
		e.agg.RecordClassifierSuccess(latency)
		return label, nil
	})
	settled = true

	switch {
	case err == nil:
		e.breaker.RecordSuccess()
	case attempted:
		e.breaker.RecordFailure()
	}
	if err != nil {
		return e.fallback(task, err, log)
	}

	if !category.IsLabel(label, e.cfg.Labels) {
		label = domain.CategoryOther
	}
	log.Debug("Classified tool", "category", label, "queued_for", time.Since(task.EnqueuedAt))
	return Result{
		Task:  task,
		Entry: domain.NewCacheEntry(label, domain.ClassifierConfidence, domain.SourceClassifier, e.cfg.TTL, e.now()),
	}
}

func (e *Enricher) fallback(task domain.EnrichmentTask, cause error, log *slog.Logger) Result {
	e.agg.RecordFallback()

	cat, ok := category.Guess(task.ToolName, task.Definition)
	if !ok || !category.IsLabel(cat, e.cfg.Labels) {
		cat = domain.CategoryOther
	}
	log.Warn("Classification failed, using fallback category", "category", cat, "error", cause)

	return Result{
		Task:     task,
		Entry:    domain.NewCacheEntry(cat, domain.HeuristicConfidence, domain.SourceHeuristic, e.cfg.TTL, e.now()),
		Fallback: true,
		Err:      cause,
	}
}

// write applies a result to the cache. Classifier results go to both tiers;
// fallbacks stay in the hot tier so they are retried after a restart.
func (e *Enricher) write(r Result) {
	switch {
	case r.Cached, r.Skipped, r.Entry.Category == "":
		return
	case r.Fallback:
		e.cache.PutHot(r.Task.ToolName, r.Entry)
	default:
		e.cache.Put(r.Task.ToolName, r.Entry)
	}
}
