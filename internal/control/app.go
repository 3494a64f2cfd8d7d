// Package control wires the filtering engine to its cache backend, classifier,
// background workers and health endpoints.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/toolfilter/internal/cache"
	"github.com/vietddude/toolfilter/internal/core/config"
	"github.com/vietddude/toolfilter/internal/core/worker"
	"github.com/vietddude/toolfilter/internal/engine"
	"github.com/vietddude/toolfilter/internal/health"
	"github.com/vietddude/toolfilter/internal/infra/classifier"
)

const (
	healthInterval = 5 * time.Second
	stopTimeout    = 5 * time.Second
)

// App is the main application struct that manages the engine lifecycle.
type App struct {
	cfg          *config.AppConfig
	engine       *engine.Engine
	cache        *cache.Cache
	flusher      *worker.Flusher
	healthMon    *health.Monitor
	healthServer *health.Server
	grpcServer   *health.GRPCServer
	backend      *Backend
	log          *slog.Logger

	cancel context.CancelFunc
	group  errgroup.Group
}

// NewApp creates a new App with all dependencies initialized. cfg must
// already carry defaults (config.Load applies them).
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	log := slog.Default()
	a := &App{cfg: cfg, log: log}

	// 1. Initialize Storage
	backend, err := OpenBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.backend = backend

	c := cache.New(backend.Repo, cache.Options{
		FlushThreshold: cfg.Cache.FlushThreshold,
		TTL:            cfg.Filtering.Enrichment.CacheTTL,
		Log:            log,
	})
	if _, err := c.Load(ctx); err != nil {
		log.Warn("Failed to load category cache, starting cold", "backend", cfg.Cache.Backend, "error", err)
	}
	a.cache = c

	// 2. Initialize Classifier
	deps := engine.Deps{Cache: c, Log: log}
	if cfg.Filtering.Enrichment.Enabled {
		cls, err := classifier.New(cfg.Filtering.Enrichment.Classifier, cfg.Classifier, log)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to init classifier: %w", err)
		}
		deps.Classifier = cls
	}
	if backend.Redis != nil {
		deps.Locker = backend.Redis
	}

	// 3. Initialize Engine
	eng, err := engine.New(cfg.Filtering, deps)
	if err != nil {
		backend.Close()
		return nil, err
	}
	a.engine = eng

	// 4. Initialize Workers and Health
	var expirer worker.Expirer
	if backend.Postgres != nil {
		expirer = backend.Postgres
	}
	a.flusher = worker.NewFlusher(c, expirer, cfg.Cache.FlushInterval, log)

	a.healthMon = health.NewMonitor(eng, healthInterval)
	if backend.DB != nil {
		a.healthMon.AddCheck("postgres", backend.DB.Health)
	}
	if backend.Redis != nil {
		a.healthMon.AddCheck("redis", backend.Redis.Ping)
	}
	a.healthServer = health.NewServer(a.healthMon, eng, cfg.Server.Port)
	if cfg.Server.GRPCPort > 0 {
		a.grpcServer = health.NewGRPCServer(a.healthMon, cfg.Server.GRPCPort, log)
	}

	return a, nil
}

// Engine returns the filtering engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Cache returns the category cache.
func (a *App) Cache() *cache.Cache {
	return a.cache
}

// Start starts the background workers and the health endpoints.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	// Start Health Server
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.grpcServer != nil {
		go func() {
			if err := a.grpcServer.Start(); err != nil {
				a.log.Error("gRPC health server failed", "error", err)
			}
		}()
		a.group.Go(func() error {
			a.grpcServer.Run(ctx, healthInterval)
			return nil
		})
	}

	// Start DB Metrics Collector
	if a.backend.DB != nil {
		a.backend.DB.StartMetricsCollector(ctx)
	}

	a.group.Go(func() error {
		a.flusher.Start(ctx)
		return nil
	})

	a.log.Info("Tool filter started",
		"port", a.cfg.Server.Port,
		"grpc_port", a.cfg.Server.GRPCPort,
		"backend", a.cfg.Cache.Backend,
	)
	return nil
}

// Stop stops the flusher, drains enrichment within the configured grace
// period, flushes the cache and releases backend connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping tool filter...")

	if a.cancel != nil {
		a.cancel()
	}
	_ = a.group.Wait()

	var errs []error

	graceCtx, cancel := context.WithTimeout(ctx, a.cfg.Filtering.Enrichment.ShutdownGrace)
	if err := a.engine.Shutdown(graceCtx); err != nil {
		errs = append(errs, err)
	}
	cancel()

	// Stop Health Endpoints
	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer stopCancel()
	if err := a.healthServer.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop health server: %w", err))
	}
	if a.grpcServer != nil {
		a.grpcServer.Stop()
	}

	a.backend.Close()
	return errors.Join(errs...)
}
