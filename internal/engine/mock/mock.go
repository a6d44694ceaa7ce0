// Package mock provides an in-memory mock implementation of
// [engine.ScoringEngine] for use in unit tests.
//
// The mock records every Score call and allows the test to configure return
// values via exported fields. It is safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cadence/internal/engine"
)

// Compile-time interface assertion.
var _ engine.ScoringEngine = (*ScoringEngine)(nil)

// ScoringEngine is a mock implementation of [engine.ScoringEngine].
type ScoringEngine struct {
	// EngineKind is returned by [ScoringEngine.Kind].
	EngineKind engine.Kind

	// ScoreResult is returned by [ScoringEngine.Score] when ScoreFunc is nil.
	ScoreResult *engine.Result

	// ScoreError is returned by [ScoringEngine.Score] when ScoreFunc is nil.
	ScoreError error

	// ScoreFunc, if set, overrides ScoreResult/ScoreError entirely.
	ScoreFunc func(ctx context.Context, req engine.Request) (*engine.Result, error)

	// CloseError is returned by [ScoringEngine.Close].
	CloseError error

	mu         sync.Mutex
	scoreCalls []engine.Request
	closeCalls int
}

// Kind implements engine.ScoringEngine.
func (e *ScoringEngine) Kind() engine.Kind {
	return e.EngineKind
}

// Score implements engine.ScoringEngine.
func (e *ScoringEngine) Score(ctx context.Context, req engine.Request) (*engine.Result, error) {
	e.mu.Lock()
	e.scoreCalls = append(e.scoreCalls, req)
	e.mu.Unlock()

	if e.ScoreFunc != nil {
		return e.ScoreFunc(ctx, req)
	}
	if e.ScoreError != nil {
		return nil, e.ScoreError
	}
	return e.ScoreResult, nil
}

// Close implements engine.ScoringEngine.
func (e *ScoringEngine) Close() error {
	e.mu.Lock()
	e.closeCalls++
	e.mu.Unlock()
	return e.CloseError
}

// ScoreCalls returns a copy of all recorded Score requests.
func (e *ScoringEngine) ScoreCalls() []engine.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.Request, len(e.scoreCalls))
	copy(out, e.scoreCalls)
	return out
}

// CloseCalls returns how many times Close has been called.
func (e *ScoringEngine) CloseCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeCalls
}
