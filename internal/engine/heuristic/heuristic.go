// Package heuristic implements the engine of last resort. It needs no
// network: with a local ASR provider it aligns the hypothesis against the
// script, and without one it synthesizes a script-shaped timeline across the
// probed speech region. It never fails, which makes it the terminal anchor of
// every fallback chain.
package heuristic

import (
	"context"
	"log/slog"

	"github.com/MrWong99/cadence/internal/engine"
	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/internal/score/align"
	"github.com/MrWong99/cadence/internal/score/probe"
	"github.com/MrWong99/cadence/pkg/provider/asr"
)

// Synthesized timelines carry deliberately conservative scores. Clean audio
// earns the benefit of the doubt at the low end of the good band; degraded
// audio does not.
const (
	synthScoreClean    = 72.0
	synthScoreDegraded = 55.0
)

var _ engine.ScoringEngine = (*Engine)(nil)

// Engine is the fallback-heuristic scoring engine.
type Engine struct {
	asr asr.Provider
	log *slog.Logger
}

// Option is a functional option for Engine.
type Option func(*Engine)

// WithASR attaches a local speech recognizer. Without one the engine always
// synthesizes its timeline.
func WithASR(p asr.Provider) Option {
	return func(e *Engine) {
		e.asr = p
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New constructs the heuristic engine.
func New(opts ...Option) *Engine {
	e := &Engine{log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Kind implements engine.ScoringEngine.
func (e *Engine) Kind() engine.Kind {
	return engine.KindHeuristic
}

// Score implements engine.ScoringEngine. It only fails on context
// cancellation; every audio problem degrades to a synthesized timeline
// instead of an error.
func (e *Engine) Score(ctx context.Context, req engine.Request) (*engine.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Fail(engine.KindHeuristic, "start", err)
	}

	if len(req.Tokens) == 0 {
		return &engine.Result{Kind: engine.KindHeuristic}, nil
	}

	if e.asr != nil {
		hyp, err := e.asr.Transcribe(ctx, req.Clip, req.Language)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, engine.Fail(engine.KindHeuristic, "transcribe", ctxErr)
			}
			e.log.Warn("heuristic: transcription failed, synthesizing timeline", "error", err)
		case len(hyp.Words) > 0:
			return e.fromHypothesis(req, hyp), nil
		default:
			e.log.Debug("heuristic: empty transcription, synthesizing timeline")
		}
	}

	return e.synthesize(req), nil
}

// Close implements engine.ScoringEngine. The ASR provider is shared and
// closed by its owner.
func (e *Engine) Close() error {
	return nil
}

// fromHypothesis aligns the recognized words against the script and takes
// word timings from the hypothesis.
func (e *Engine) fromHypothesis(req engine.Request, hyp *asr.Hypothesis) *engine.Result {
	hypTexts := make([]string, 0, len(hyp.Words))
	hypWords := make([]asr.WordHyp, 0, len(hyp.Words))
	for _, w := range hyp.Words {
		norm := align.Normalize(w.Text)
		if norm == "" {
			continue
		}
		hypTexts = append(hypTexts, norm)
		hypWords = append(hypWords, w)
	}

	res := align.Align(align.Texts(req.Tokens), hypTexts)

	words := make([]score.Word, len(res.Words))
	for i, aw := range res.Words {
		word := score.Word{Text: req.Tokens[i].Raw}
		if aw.Op == align.OpDelete {
			word.Status = score.StatusMissing
		} else {
			hw := hypWords[aw.HypIndex]
			word.Start = hw.Start
			word.End = hw.End
			word.Score = aw.Score
			word.Status = score.StatusFor(aw.Score)
		}
		words[i] = word
	}
	score.PlaceMissing(words)

	return &engine.Result{
		Kind:   engine.KindHeuristic,
		Words:  words,
		Extras: res.Extras,
	}
}

// synthesize spreads the script tokens across the probed speech region with
// durations proportional to word length. Scores come from the audio probe:
// plausible speech gets a cautious passing score, degraded audio a weak one.
func (e *Engine) synthesize(req engine.Request) *engine.Result {
	start, end := probe.SpeechBounds(req.Clip)
	if end <= start {
		// Nothing resembling speech. Every word is missing.
		words := make([]score.Word, len(req.Tokens))
		for i, tok := range req.Tokens {
			words[i] = score.Word{Text: tok.Raw, Status: score.StatusMissing}
		}
		return &engine.Result{Kind: engine.KindHeuristic, Words: words}
	}

	base := synthScoreClean
	if degraded(req.Quality) {
		base = synthScoreDegraded
	}

	totalLen := 0
	for _, tok := range req.Tokens {
		totalLen += len(tok.Text)
	}
	if totalLen == 0 {
		totalLen = len(req.Tokens)
	}

	span := end - start
	words := make([]score.Word, len(req.Tokens))
	cursor := start
	for i, tok := range req.Tokens {
		frac := float64(len(tok.Text)) / float64(totalLen)
		if len(tok.Text) == 0 {
			frac = 1.0 / float64(totalLen)
		}
		dur := span * frac
		words[i] = score.Word{
			Text:   tok.Raw,
			Start:  cursor,
			End:    cursor + dur,
			Score:  base,
			Status: score.StatusFor(base),
		}
		cursor += dur
	}
	// Pin the last word to the region end to absorb rounding drift.
	words[len(words)-1].End = end

	return &engine.Result{Kind: engine.KindHeuristic, Words: words}
}

// degraded mirrors the router's degraded-audio heuristics.
func degraded(q score.Quality) bool {
	return q.Duration < 2.5 || q.SilenceRatio > 0.6 || q.RMSdB < -35
}
