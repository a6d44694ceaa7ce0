// Package engine defines the ScoringEngine interface and its supporting types.
//
// A ScoringEngine turns one recorded reading attempt into per-word scores: it
// receives the audio clip and the reference script, produces a timed word
// sequence aligned against the script, and (optionally) native dimension
// scores computed by the backing service. The router composes engines into
// fallback chains so a failing or degraded primary is bypassed transparently.
//
// Implementations are provided by sibling packages (forced, cloudspeech,
// judge, heuristic). The interface is intentionally narrow so that routing
// and normalization remain engine-agnostic.
//
// This package lives under internal/ because it encapsulates
// application-private scoring logic and is not intended to be imported by
// external code.
package engine

import (
	"context"
	"fmt"

	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/internal/score/align"
	"github.com/MrWong99/cadence/pkg/audio"
)

// Kind identifies a scoring engine implementation.
type Kind string

const (
	// KindForcedAlignment is the self-hosted forced-alignment service. It
	// yields phoneme-level timings and goodness-of-pronunciation scores.
	KindForcedAlignment Kind = "forced-alignment"

	// KindCloudSpeechA is the primary cloud pronunciation-assessment API,
	// reached over a streaming websocket.
	KindCloudSpeechA Kind = "cloud-speech-a"

	// KindCloudSpeechB is the secondary cloud pronunciation-assessment API.
	KindCloudSpeechB Kind = "cloud-speech-b"

	// KindJudge scores with a local transcription skeleton refined by a
	// multimodal language model acting as a pronunciation judge.
	KindJudge Kind = "multimodal-judge"

	// KindHeuristic is the always-available engine of last resort. It never
	// fails: with no usable transcription it synthesizes a plausible timeline
	// from the script alone.
	KindHeuristic Kind = "fallback-heuristic"
)

// Known reports whether k names a registered engine kind.
func (k Kind) Known() bool {
	switch k {
	case KindForcedAlignment, KindCloudSpeechA, KindCloudSpeechB, KindJudge, KindHeuristic:
		return true
	}
	return false
}

// Request bundles everything an engine needs to score one attempt.
type Request struct {
	// Clip is the decoded recording, already resampled to the rate the
	// pipeline operates at.
	Clip *audio.Clip

	// Script is the raw reference text the learner was asked to read.
	Script string

	// Tokens is the tokenized script. Engines score one word per token, in
	// order, and must not reorder or drop tokens.
	Tokens []align.Token

	// Language is a BCP 47 tag, e.g. "en-US". Empty means engine default.
	Language string

	// Quality carries the audio probe findings so engines can adapt (e.g.
	// skip silence, refuse clipped input).
	Quality score.Quality
}

// Result is a successful engine response, before normalization.
type Result struct {
	// Kind names the engine that produced the result.
	Kind Kind

	// Words has exactly one entry per request token, in script order. Words
	// the engine could not locate in the audio carry StatusMissing and no
	// timing.
	Words []score.Word

	// Extras are recognized words that match no script token, in hypothesis
	// order.
	Extras []string

	// Native holds dimension scores computed by the backing service itself.
	// Nil means the engine only produced word-level output and the pipeline
	// should derive all dimensions locally.
	Native *score.Dimensions

	// Calibrated reports whether the engine already applied score
	// calibration; the pipeline will not calibrate again.
	Calibrated bool
}

// Failure describes an unrecoverable engine error. The router uses Stage to
// decide whether retrying the same engine could help before moving down the
// fallback chain.
type Failure struct {
	// Kind names the failing engine.
	Kind Kind

	// Stage is the pipeline stage that failed, e.g. "transcribe", "connect",
	// "parse".
	Stage string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("engine %s: %s: %v", f.Kind, f.Stage, f.Err)
}

// Unwrap returns the underlying cause for use with errors.Is / errors.As.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Fail wraps err as a *Failure for the given engine kind and stage.
func Fail(kind Kind, stage string, err error) *Failure {
	return &Failure{Kind: kind, Stage: stage, Err: err}
}

// ScoringEngine scores one reading attempt against its reference script.
//
// Score must honor context cancellation: a cancelled ctx aborts any in-flight
// network call and returns ctx.Err (usually wrapped in a [Failure]).
//
// Implementations must be safe for concurrent use; the worker pool issues
// concurrent Score calls against shared engine instances.
type ScoringEngine interface {
	// Kind returns the engine's stable identifier.
	Kind() Kind

	// Score produces per-word results for the given request. On failure the
	// returned error is a *Failure so the router can attribute and classify
	// it. Engines must never return a partial Result together with an error.
	Score(ctx context.Context, req Request) (*Result, error)

	// Close releases any underlying resources (connections, model handles).
	// Safe to call multiple times.
	Close() error
}
