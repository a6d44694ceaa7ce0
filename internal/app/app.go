// Package app assembles the scoring service: an HTTP intake surface, a
// worker pool draining the submission queue, and the wiring between them.
// Everything here is transport and lifecycle; the scoring itself lives in
// internal/pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cadence/internal/health"
	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/pipeline"
	"github.com/MrWong99/cadence/internal/store"
)

// shutdownTimeout bounds the graceful HTTP drain on exit.
const shutdownTimeout = 10 * time.Second

// Config holds the runtime settings of the service.
type Config struct {
	// ListenAddr is the HTTP listen address (e.g., ":8080").
	ListenAddr string

	// Workers is the number of concurrent scoring workers. Values below 1
	// are treated as 1.
	Workers int

	// PollInterval is how long an idle worker waits before polling the
	// queue again. Zero means one second.
	PollInterval time.Duration

	// AudioDir is where uploaded recordings are stored.
	AudioDir string
}

// App runs the scoring service.
type App struct {
	cfg      Config
	store    store.Store
	pipeline *pipeline.Pipeline
	metrics  *observe.Metrics
	log      *slog.Logger
}

// Option is a functional option for App.
type Option func(*App)

// WithMetrics overrides the package-default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) {
		a.metrics = m
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) {
		a.log = log
	}
}

// New constructs the service around a store and a pipeline.
func New(cfg Config, st store.Store, p *pipeline.Pipeline, opts ...Option) *App {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	a := &App{
		cfg:      cfg,
		store:    st,
		pipeline: p,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Run starts the HTTP server and the worker pool and blocks until ctx is
// cancelled or a component fails. Submissions stuck in processing from a
// previous unclean shutdown are failed before any worker starts.
func (a *App) Run(ctx context.Context) error {
	recovered, err := a.store.RecoverStale(ctx)
	if err != nil {
		return fmt.Errorf("app: recover stale submissions: %w", err)
	}
	if recovered > 0 {
		a.log.Warn("failed stale submissions from previous run", "count", recovered)
	}

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http server listening", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	for i := 0; i < a.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			a.runWorker(ctx, worker)
			return nil
		})
	}

	return g.Wait()
}

// healthHandler builds the liveness/readiness handler. Readiness probes the
// store with a cheap list call.
func (a *App) healthHandler() *health.Handler {
	return health.New(health.Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			_, err := a.store.ListRecent(ctx, 1)
			return err
		},
	})
}
