package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/cadence/internal/store"
)

// runWorker drains the queue until ctx is cancelled. An empty queue is not
// an error; the worker just sleeps for the poll interval.
func (a *App) runWorker(ctx context.Context, id int) {
	log := a.log.With("worker", id)
	log.Debug("worker started")

	for {
		sub, err := a.store.ClaimNext(ctx)
		switch {
		case errors.Is(err, store.ErrNoneQueued):
			select {
			case <-ctx.Done():
				log.Debug("worker stopped")
				return
			case <-time.After(a.cfg.PollInterval):
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				log.Debug("worker stopped")
				return
			}
			log.Error("claim next submission", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.cfg.PollInterval):
			}
			continue
		}

		a.metrics.QueueDepth.Add(ctx, -1)
		a.processOne(ctx, sub, log)

		if ctx.Err() != nil {
			log.Debug("worker stopped")
			return
		}
	}
}

// processOne scores one claimed submission and records its outcome. The
// store update runs on a fresh context so that an in-flight result is still
// persisted during shutdown.
func (a *App) processOne(ctx context.Context, sub *store.Submission, log *slog.Logger) {
	a.metrics.ActiveWorkers.Add(ctx, 1)
	defer a.metrics.ActiveWorkers.Add(ctx, -1)

	started := time.Now()
	res, err := a.pipeline.Process(ctx, sub)
	a.metrics.PipelineDuration.Record(ctx, time.Since(started).Seconds())

	persistCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err != nil {
		a.recordOutcome(ctx, "failed")
		if ferr := a.store.Fail(persistCtx, sub.ID, err.Error(), nil); ferr != nil {
			log.Error("persist failure", "submission", sub.ID, "error", ferr)
		}
		return
	}

	for i, attempt := range res.Meta.Attempts {
		a.metrics.RecordEngineAttempt(ctx, attempt.Engine, attempt.Duration, failureStage(attempt.Error))
		if i > 0 {
			a.metrics.EngineFallbacks.Add(ctx, 1, metric.WithAttributes(
				attribute.String("from", res.Meta.Attempts[i-1].Engine),
				attribute.String("to", attempt.Engine),
			))
		}
	}

	if res.Error != "" {
		// The failure document still carries the attempt trail and probe
		// metrics; keep it for audit.
		a.recordOutcome(ctx, "failed")
		if ferr := a.store.Fail(persistCtx, sub.ID, res.Error, res); ferr != nil {
			log.Error("persist failure", "submission", sub.ID, "error", ferr)
		}
		return
	}

	a.recordOutcome(ctx, "completed")
	a.metrics.OverallScore.Record(ctx, res.Dimensions.Overall)
	if cerr := a.store.Complete(persistCtx, sub.ID, res); cerr != nil {
		log.Error("persist result", "submission", sub.ID, "error", cerr)
	}
}

func (a *App) recordOutcome(ctx context.Context, status string) {
	a.metrics.Submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

// failureStage maps an attempt error to a coarse stage label for the error
// counter. Attempt errors are engine failures rendered as strings, so the
// label is just "engine" when present.
func failureStage(attemptErr string) string {
	if attemptErr == "" {
		return ""
	}
	return "engine"
}
