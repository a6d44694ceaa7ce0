// Package llm defines the language-model provider interface used for
// pronunciation judging and feedback phrasing.
package llm

import "context"

// Request describes a single completion request.
//
// Providers that cannot honor JSONOnly natively should still return plain
// text; callers are expected to tolerate surrounding prose when parsing.
type Request struct {
	// System is the system prompt. Empty means no system message.
	System string
	// Prompt is the user message.
	Prompt string
	// Temperature of 0 means provider default.
	Temperature float64
	// MaxTokens of 0 means provider default.
	MaxTokens int
	// JSONOnly asks the model to emit a single JSON object.
	JSONOnly bool
	// Audio is an optional encoded audio attachment for audio-capable
	// models. Providers without audio input ignore it.
	Audio []byte
	// AudioFormat names the Audio encoding, e.g. "wav". Required when
	// Audio is set.
	AudioFormat string
}

// Provider is a minimal text-completion interface.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Complete returns the model's text response for the given request.
	Complete(ctx context.Context, req Request) (string, error)

	// Close releases any underlying resources.
	Close() error
}
