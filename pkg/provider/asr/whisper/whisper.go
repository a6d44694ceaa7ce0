// Package whisper provides an asr.Provider backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all calls;
// each Transcribe creates its own whisper context, so concurrent
// transcriptions do not interfere.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/asr"
)

// whisperSampleRate is the only sample rate whisper.cpp accepts.
const whisperSampleRate = 16000

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default language code for transcription (e.g.,
// "en", "de"). Defaults to "en". A non-empty language argument to
// Transcribe overrides this.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// Provider implements asr.Provider using a locally loaded whisper.cpp model.
type Provider struct {
	model    whisperlib.Model
	language string
}

// New loads the whisper.cpp model from modelPath. The caller must call
// Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &Provider{model: model, language: "en"}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the loaded model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs batch inference over the full clip. The clip must be
// 16 kHz mono; other rates return an error rather than silently degrading
// recognition quality.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip, language string) (*asr.Hypothesis, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if clip.SampleRate != whisperSampleRate {
		return nil, fmt.Errorf("whisper: clip sample rate %d Hz, need %d Hz", clip.SampleRate, whisperSampleRate)
	}

	// Each context is not thread-safe, but the model can be shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := language
	if lang == "" {
		lang = p.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("whisper: set language %q: %w", lang, err)
	}

	if err := wctx.Process(clip.Samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	hyp := &asr.Hypothesis{}
	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("whisper: cancelled mid-decode: %w", err)
		}
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		hyp.Words = append(hyp.Words, segmentWords(text, segment.Start.Seconds(), segment.End.Seconds())...)
	}
	hyp.Text = strings.Join(parts, " ")
	return hyp, nil
}

// segmentWords distributes a segment's time span evenly across its words.
// whisper.cpp segment boundaries are reliable; within-segment word timing
// is approximated proportionally to word length.
func segmentWords(text string, start, end float64) []asr.WordHyp {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	total := 0
	for _, f := range fields {
		total += len(f)
	}
	span := end - start
	if span <= 0 || total == 0 {
		// Degenerate timing: stack the words at the segment start.
		out := make([]asr.WordHyp, len(fields))
		for i, f := range fields {
			out[i] = asr.WordHyp{Text: f, Start: start, End: start}
		}
		return out
	}

	out := make([]asr.WordHyp, 0, len(fields))
	cursor := start
	for _, f := range fields {
		dur := span * float64(len(f)) / float64(total)
		out = append(out, asr.WordHyp{
			Text:  f,
			Start: cursor,
			End:   cursor + dur,
		})
		cursor += dur
	}
	return out
}
