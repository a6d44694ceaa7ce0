// Package pipeline turns one stored submission into a full result document.
// It owns everything between raw audio bytes and the persisted JSON: engine
// routing happens in internal/router, but the probe, the dimension
// normalization, the derived signals, and the learner feedback all come
// together here.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/cadence/internal/advice"
	"github.com/MrWong99/cadence/internal/engine"
	"github.com/MrWong99/cadence/internal/router"
	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/internal/score/align"
	"github.com/MrWong99/cadence/internal/score/analyze"
	"github.com/MrWong99/cadence/internal/score/normalize"
	"github.com/MrWong99/cadence/internal/score/probe"
	"github.com/MrWong99/cadence/internal/score/signals"
	"github.com/MrWong99/cadence/internal/store"
	"github.com/MrWong99/cadence/pkg/audio"
)

// Pipeline scores submissions end to end.
type Pipeline struct {
	router  *router.Router
	advisor *advice.Advisor
	log     *slog.Logger
}

// Option is a functional option for Pipeline.
type Option func(*Pipeline)

// WithAdvisor installs a feedback advisor. Without one, results carry no
// feedback lines.
func WithAdvisor(a *advice.Advisor) Option {
	return func(p *Pipeline) {
		p.advisor = a
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// New constructs a Pipeline around a router.
func New(r *router.Router, opts ...Option) *Pipeline {
	p := &Pipeline{
		router: r,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process scores one submission. The returned error covers infrastructure
// problems only (unreadable or undecodable audio); when every engine fails,
// Process returns a result document with Error populated, zero scores, and
// the full attempt trail in its meta.
func (p *Pipeline) Process(ctx context.Context, sub *store.Submission) (*score.Result, error) {
	started := time.Now()

	f, err := os.Open(sub.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open audio: %w", err)
	}
	defer f.Close()

	clip, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("pipeline: decode audio: %w", err)
	}

	return p.process(ctx, sub, clip, started), nil
}

// ProcessClip scores an already decoded clip. The one-shot CLI path uses
// this directly.
func (p *Pipeline) ProcessClip(ctx context.Context, sub *store.Submission, clip *audio.Clip) *score.Result {
	return p.process(ctx, sub, clip, time.Now())
}

func (p *Pipeline) process(ctx context.Context, sub *store.Submission, clip *audio.Clip, started time.Time) *score.Result {
	quality := probe.Analyze(clip)
	tokens := align.Tokenize(sub.Script)

	req := engine.Request{
		Clip:     clip,
		Script:   sub.Script,
		Tokens:   tokens,
		Language: sub.Language,
		Quality:  quality,
	}

	res, attempts, err := p.router.Route(ctx, req, engine.Kind(sub.Engine))

	out := &score.Result{
		Meta: score.Meta{
			SubmissionID: sub.ID,
			Attempts:     attempts,
			Quality:      quality,
			ScoredAt:     started,
		},
	}
	if err != nil {
		out.Error = err.Error()
		out.Meta.Elapsed = time.Since(started).Seconds()
		p.log.Error("scoring failed",
			"submission", sub.ID,
			"attempts", len(attempts),
			"error", err)
		return out
	}

	out.Meta.Engine = string(res.Kind)
	out.Meta.Calibrated = res.Calibrated
	out.Words = res.Words
	out.Extras = res.Extras

	out.Dimensions = p.dimensions(res, tokens, clip, quality)
	out.Signals = signals.Extract(out.Words, tokens, clip)
	out.Analysis = analyze.Summarize(out.Words, out.Extras)

	if p.advisor != nil {
		out.Feedback = p.advisor.Feedback(ctx, out)
	}

	out.Meta.Elapsed = time.Since(started).Seconds()
	p.log.Info("submission scored",
		"submission", sub.ID,
		"engine", res.Kind,
		"overall", out.Dimensions.Overall,
		"attempts", len(attempts),
		"elapsed", out.Meta.Elapsed)
	return out
}

// dimensions builds the final dimension scores. Engine-native values win
// where the engine supplied them; the rest is computed from the word list
// and the waveform. Completeness and overall are always computed here so
// that every result uses the same coverage rule and weighting.
func (p *Pipeline) dimensions(res *engine.Result, tokens []align.Token, clip *audio.Clip, q score.Quality) score.Dimensions {
	var d score.Dimensions

	if res.Native != nil && res.Native.Accuracy > 0 {
		d.Accuracy = normalize.Clamp(res.Native.Accuracy)
	} else {
		d.Accuracy = normalize.Accuracy(res.Words)
	}

	if res.Native != nil && res.Native.Fluency > 0 {
		d.Fluency = normalize.Clamp(res.Native.Fluency)
	} else {
		d.Fluency = normalize.Fluency(res.Words, clip.Seconds())
	}

	if res.Native != nil && res.Native.Prosody > 0 {
		d.Prosody = normalize.Clamp(res.Native.Prosody)
	} else {
		voiced := audio.VoicedFrames(audio.PitchContour(clip, audio.DefaultFrameSec, audio.DefaultHopSec))
		energies := audio.FrameEnergies(clip, audio.DefaultFrameSec, audio.DefaultHopSec)
		d.Prosody = normalize.Prosody(voiced, energies, q)
	}

	d.Completeness = normalize.Completeness(align.Texts(tokens), credited(res.Words))
	d.Overall = normalize.Overall(d)
	return d
}

// credited returns the normalized text of every word the learner actually
// produced.
func credited(words []score.Word) []string {
	out := make([]string, 0, len(words))
	for i := range words {
		if words[i].Status == score.StatusMissing {
			continue
		}
		out = append(out, align.Normalize(words[i].Text))
	}
	return out
}
