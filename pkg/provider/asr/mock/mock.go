// Package mock provides a scriptable asr.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/asr"
)

// Compile-time assertion.
var _ asr.Provider = (*Provider)(nil)

// Provider is a mock asr.Provider. Set Hypothesis/Err before use, or
// install a TranscribeFunc for per-call behaviour.
type Provider struct {
	mu sync.Mutex

	// Hypothesis is returned by Transcribe when TranscribeFunc is nil.
	Hypothesis *asr.Hypothesis

	// Err, when non-nil, is returned by Transcribe.
	Err error

	// TranscribeFunc, when set, fully overrides Transcribe.
	TranscribeFunc func(ctx context.Context, clip *audio.Clip, language string) (*asr.Hypothesis, error)

	// Calls counts Transcribe invocations.
	Calls int
}

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip, language string) (*asr.Hypothesis, error) {
	p.mu.Lock()
	p.Calls++
	fn := p.TranscribeFunc
	hyp, err := p.Hypothesis, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, clip, language)
	}
	if err != nil {
		return nil, err
	}
	if hyp == nil {
		return &asr.Hypothesis{}, nil
	}
	return hyp, nil
}

// Close implements asr.Provider.
func (p *Provider) Close() error { return nil }

// Words is a convenience constructor for a hypothesis of evenly spaced
// words starting at start, each dur seconds long with gap seconds between.
func Words(start, dur, gap float64, texts ...string) *asr.Hypothesis {
	h := &asr.Hypothesis{}
	t := start
	for _, text := range texts {
		h.Words = append(h.Words, asr.WordHyp{Text: text, Start: t, End: t + dur})
		t += dur + gap
	}
	for i, w := range h.Words {
		if i > 0 {
			h.Text += " "
		}
		h.Text += w.Text
	}
	return h
}
