// Package router selects a scoring engine for each submission and walks a
// fallback chain when engines fail. Every invocation is recorded so the
// result document can show exactly which engines were tried and why.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/MrWong99/cadence/internal/engine"
	"github.com/MrWong99/cadence/internal/score"
)

// ErrAllEnginesFailed is wrapped by the terminal routing error.
var ErrAllEnginesFailed = errors.New("all scoring engines failed")

// Degraded-audio thresholds. Audio failing any of them routes straight to
// the heuristic engine, which copes better with unusable input than the
// network engines do.
const (
	MinUsableDuration = 2.5
	MaxUsableSilence  = 0.6
	MinUsableRMSdB    = -35.0
)

// DefaultRerouteRatio is the missing-word ratio above which a
// non-heuristic result triggers one re-route to the heuristic engine.
const DefaultRerouteRatio = 0.25

// DefaultPreference is the engine order tried for clean audio when the
// submission names no engine.
var DefaultPreference = []engine.Kind{
	engine.KindCloudSpeechA,
	engine.KindForcedAlignment,
	engine.KindCloudSpeechB,
	engine.KindJudge,
	engine.KindHeuristic,
}

// DefaultChains are the per-kind fallback chains, walked in order after the
// selected engine fails. The heuristic engine anchors every chain.
var DefaultChains = map[engine.Kind][]engine.Kind{
	engine.KindCloudSpeechA:    {engine.KindCloudSpeechB, engine.KindForcedAlignment, engine.KindHeuristic},
	engine.KindCloudSpeechB:    {engine.KindForcedAlignment, engine.KindHeuristic},
	engine.KindForcedAlignment: {engine.KindJudge, engine.KindHeuristic},
	engine.KindJudge:           {engine.KindForcedAlignment, engine.KindHeuristic},
	engine.KindHeuristic:       {engine.KindJudge},
}

// Router picks engines and drives fallback.
type Router struct {
	registry     *engine.Registry
	preference   []engine.Kind
	chains       map[engine.Kind][]engine.Kind
	rerouteRatio float64
	log          *slog.Logger
}

// Option is a functional option for Router.
type Option func(*Router)

// WithPreference overrides the default engine preference order.
func WithPreference(order []engine.Kind) Option {
	return func(r *Router) {
		if len(order) > 0 {
			r.preference = order
		}
	}
}

// WithChains overrides the default fallback chains. Kinds absent from the
// map keep their default chain.
func WithChains(chains map[engine.Kind][]engine.Kind) Option {
	return func(r *Router) {
		for kind, chain := range chains {
			r.chains[kind] = chain
		}
	}
}

// WithRerouteThreshold overrides [DefaultRerouteRatio]. Values outside
// (0, 1] are ignored.
func WithRerouteThreshold(ratio float64) Option {
	return func(r *Router) {
		if ratio > 0 && ratio <= 1 {
			r.rerouteRatio = ratio
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Router) {
		r.log = log
	}
}

// New constructs a Router over the given registry.
func New(registry *engine.Registry, opts ...Option) *Router {
	r := &Router{
		registry:     registry,
		preference:   DefaultPreference,
		chains:       make(map[engine.Kind][]engine.Kind, len(DefaultChains)),
		rerouteRatio: DefaultRerouteRatio,
		log:          slog.Default(),
	}
	for kind, chain := range DefaultChains {
		r.chains[kind] = chain
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Select picks the engine to try first. An explicit, registered kind always
// wins. Degraded audio goes straight to the heuristic engine. Otherwise the
// first registered kind in preference order is chosen.
func (r *Router) Select(req engine.Request, explicit engine.Kind) engine.Kind {
	if explicit != "" && r.registry.Has(explicit) {
		return explicit
	}
	if Degraded(req.Quality) && r.registry.Has(engine.KindHeuristic) {
		return engine.KindHeuristic
	}
	for _, kind := range r.preference {
		if r.registry.Has(kind) {
			return kind
		}
	}
	return engine.KindHeuristic
}

// Degraded reports whether the probed audio is too poor for the network
// engines to be worth their cost.
func Degraded(q score.Quality) bool {
	return q.Duration < MinUsableDuration ||
		q.SilenceRatio > MaxUsableSilence ||
		q.RMSdB < MinUsableRMSdB
}

// Route scores the request, falling back along the selected engine's chain
// until an engine succeeds. Every invocation is recorded in the returned
// attempts, in order. A success whose missing-word ratio is implausibly
// high on a non-heuristic engine triggers one re-route to the heuristic
// engine. When every candidate fails, the returned error names all
// attempted kinds and wraps [ErrAllEnginesFailed].
func (r *Router) Route(ctx context.Context, req engine.Request, explicit engine.Kind) (*engine.Result, []score.Attempt, error) {
	first := r.Select(req, explicit)
	order := append([]engine.Kind{first}, r.chains[first]...)

	var attempts []score.Attempt
	tried := make(map[engine.Kind]bool, len(order))

	for _, kind := range order {
		if tried[kind] || !r.registry.Has(kind) {
			continue
		}
		tried[kind] = true

		res, attempt := r.run(ctx, kind, req)
		attempts = append(attempts, attempt)
		if attempt.Error != "" {
			r.log.Warn("scoring engine failed",
				"engine", kind,
				"error", attempt.Error)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if kind != engine.KindHeuristic &&
			missingRatio(res.Words) > r.rerouteRatio &&
			r.registry.Has(engine.KindHeuristic) {
			r.log.Info("re-routing to heuristic engine",
				"engine", kind,
				"missing_ratio", missingRatio(res.Words))
			hres, hattempt := r.run(ctx, engine.KindHeuristic, req)
			attempts = append(attempts, hattempt)
			if hattempt.Error == "" {
				return hres, attempts, nil
			}
		}
		return res, attempts, nil
	}

	names := make([]string, len(attempts))
	for i, a := range attempts {
		names[i] = a.Engine
	}
	return nil, attempts, fmt.Errorf("router: %w (tried %s)",
		ErrAllEnginesFailed, strings.Join(names, ", "))
}

// run invokes one engine, converting panics into failures so a buggy engine
// can never take the worker down.
func (r *Router) run(ctx context.Context, kind engine.Kind, req engine.Request) (res *engine.Result, attempt score.Attempt) {
	start := time.Now()
	attempt.Engine = string(kind)

	defer func() {
		attempt.Duration = time.Since(start).Seconds()
		if rec := recover(); rec != nil {
			r.log.Error("scoring engine panicked",
				"engine", kind,
				"panic", rec,
				"stack", string(debug.Stack()))
			res = nil
			attempt.Error = fmt.Sprintf("panic: %v", rec)
		}
	}()

	eng, err := r.registry.Get(kind)
	if err != nil {
		attempt.Error = err.Error()
		return nil, attempt
	}

	res, err = eng.Score(ctx, req)
	if err != nil {
		attempt.Error = err.Error()
		return nil, attempt
	}
	if res == nil {
		attempt.Error = "engine returned no result"
		return nil, attempt
	}
	return res, attempt
}

func missingRatio(words []score.Word) float64 {
	if len(words) == 0 {
		return 0
	}
	missing := 0
	for i := range words {
		if words[i].Status == score.StatusMissing {
			missing++
		}
	}
	return float64(missing) / float64(len(words))
}
