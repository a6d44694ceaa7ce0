// Package asr defines the Provider interface for batch speech recognition.
//
// Scoring does not need streaming: each submission is a complete recording,
// so the interface is a single blocking call that returns the hypothesis as
// timed words. The hypothesis is only ever used as a skeleton of word
// timings and a rough transcript, never as the authoritative text; the
// reference script always wins.
//
// Implementations must be safe for concurrent use; the worker pool may
// score several submissions at once against one shared provider.
package asr

import (
	"context"

	"github.com/MrWong99/cadence/pkg/audio"
)

// WordHyp is one recognised word with timing.
type WordHyp struct {
	// Text is the recognised word, already trimmed of surrounding
	// whitespace but otherwise as the recogniser produced it.
	Text string

	// Start and End are offsets into the clip in seconds.
	Start float64
	End   float64

	// Confidence is the recogniser's word confidence in [0, 1], or 0 when
	// the backend does not report one.
	Confidence float64
}

// Hypothesis is the result of transcribing a clip.
type Hypothesis struct {
	// Text is the full transcript.
	Text string

	// Words holds per-word detail in temporal order.
	Words []WordHyp
}

// Provider is the abstraction over any batch ASR backend.
type Provider interface {
	// Transcribe recognises the full clip and returns the hypothesis.
	// It blocks until recognition completes or ctx is cancelled.
	Transcribe(ctx context.Context, clip *audio.Clip, language string) (*Hypothesis, error)

	// Close releases any resources held by the provider (loaded models,
	// connections). Safe to call multiple times.
	Close() error
}
