// Package judge implements the multimodal-judge scoring engine: a local ASR
// pass builds a timed word skeleton, then a language model acting as a
// pronunciation judge refines the per-word quality. Model verdicts are
// merged back onto the skeleton and calibrated once.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/cadence/internal/engine"
	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/internal/score/align"
	"github.com/MrWong99/cadence/internal/score/fusion"
	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/asr"
	"github.com/MrWong99/cadence/pkg/provider/llm"
)

const systemPrompt = `You are a pronunciation assessment judge for language learners reading a known script aloud. You receive the learner's recording, the reference script, and the words a speech recognizer heard, with timings. For every recognized word, rate how well it was pronounced on a 0-100 scale and note the main issue if any.`

const judgeTemperature = 0.2

var _ engine.ScoringEngine = (*Engine)(nil)

// Engine is the multimodal-judge scoring engine.
type Engine struct {
	asr asr.Provider
	llm llm.Provider
	log *slog.Logger

	calTrigger float64
	calTarget  float64
}

// Option is a functional option for Engine.
type Option func(*Engine)

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithCalibration overrides the adaptive calibration trigger and target.
// Zero values keep the fusion package defaults.
func WithCalibration(trigger, target float64) Option {
	return func(e *Engine) {
		e.calTrigger = trigger
		e.calTarget = target
	}
}

// New constructs a judge engine. Both providers are required.
func New(asrProvider asr.Provider, llmProvider llm.Provider, opts ...Option) (*Engine, error) {
	if asrProvider == nil {
		return nil, fmt.Errorf("judge: asr provider must not be nil")
	}
	if llmProvider == nil {
		return nil, fmt.Errorf("judge: llm provider must not be nil")
	}
	e := &Engine{asr: asrProvider, llm: llmProvider, log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Kind implements engine.ScoringEngine.
func (e *Engine) Kind() engine.Kind {
	return engine.KindJudge
}

// Score implements engine.ScoringEngine.
func (e *Engine) Score(ctx context.Context, req engine.Request) (*engine.Result, error) {
	hyp, err := e.asr.Transcribe(ctx, req.Clip, req.Language)
	if err != nil {
		return nil, engine.Fail(engine.KindJudge, "transcribe", err)
	}
	if len(hyp.Words) == 0 {
		return nil, engine.Fail(engine.KindJudge, "transcribe", errors.New("empty transcription"))
	}

	skeleton, extras := buildSkeleton(req.Tokens, hyp)

	llmReq := llm.Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(req.Script, skeleton),
		Temperature: judgeTemperature,
		JSONOnly:    true,
	}
	if req.Clip != nil {
		llmReq.Audio = audio.EncodeWAV(req.Clip)
		llmReq.AudioFormat = "wav"
	}

	reply, err := e.llm.Complete(ctx, llmReq)
	if err != nil {
		return nil, engine.Fail(engine.KindJudge, "judge", err)
	}

	judgments, err := parseJudgments(reply)
	if err != nil {
		return nil, engine.Fail(engine.KindJudge, "parse", err)
	}
	e.log.Debug("judge verdicts parsed", "judgments", len(judgments), "words", len(skeleton))

	words := fusion.Merge(skeleton, judgments)
	calibrated := fusion.Calibrate(words, e.calTrigger, e.calTarget)

	return &engine.Result{
		Kind:       engine.KindJudge,
		Words:      words,
		Extras:     extras,
		Calibrated: calibrated,
	}, nil
}

// Close implements engine.ScoringEngine. Providers are shared and closed by
// their owner.
func (e *Engine) Close() error {
	return nil
}

// buildSkeleton aligns the hypothesis against the script and takes timings
// from the recognized words.
func buildSkeleton(tokens []align.Token, hyp *asr.Hypothesis) ([]score.Word, []string) {
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

	res := align.Align(align.Texts(tokens), hypTexts)

	words := make([]score.Word, len(res.Words))
	for i, aw := range res.Words {
		word := score.Word{Text: tokens[i].Raw}
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
	return words, res.Extras
}

// buildPrompt renders the script and the timed skeleton into the judge
// prompt. The expected reply shape is spelled out so parsing can be strict.
func buildPrompt(script string, skeleton []score.Word) string {
	var b strings.Builder
	b.WriteString("Reference script:\n")
	b.WriteString(script)
	b.WriteString("\n\nRecognized words (script order):\n")
	for _, w := range skeleton {
		if w.Status == score.StatusMissing {
			fmt.Fprintf(&b, "- %q: not heard\n", w.Text)
			continue
		}
		fmt.Fprintf(&b, "- %q: %.2fs-%.2fs\n", w.Text, w.Start, w.End)
	}
	b.WriteString("\nReply with JSON: {\"judgments\":[{\"word\":\"...\",\"quality\":0-100,\"issue\":\"...\"}]} ")
	b.WriteString("covering each word that was heard. Omit words that were not heard.")
	return b.String()
}

// parseJudgments extracts the judgments array from the model reply. The
// reply must contain exactly one JSON object; prose around it is tolerated,
// malformed JSON is not.
func parseJudgments(reply string) ([]fusion.Judgment, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in judge reply")
	}

	var doc struct {
		Judgments []fusion.Judgment `json:"judgments"`
	}
	dec := json.NewDecoder(strings.NewReader(reply[start : end+1]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode judge reply: %w", err)
	}
	if len(doc.Judgments) == 0 {
		return nil, fmt.Errorf("judge reply carries no judgments")
	}
	for i, j := range doc.Judgments {
		if j.Word == "" {
			return nil, fmt.Errorf("judgment %d has no word", i)
		}
		if j.Quality < 0 || j.Quality > 100 {
			return nil, fmt.Errorf("judgment %d quality %v out of range", i, j.Quality)
		}
	}
	return doc.Judgments, nil
}
