// Package advice renders learner-facing feedback lines from a scored
// result. The baseline is deterministic template text per dimension band;
// an optional language-model phraser can rewrite the lines in a friendlier
// register, falling back to the templates whenever the model misbehaves.
package advice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/pkg/provider/llm"
)

// maxListedWords bounds how many problem words one feedback line names.
const maxListedWords = 3

const phraserSystem = `You rewrite reading-practice feedback for language learners. Keep every factual point, keep the order, one line per input line, plain encouraging tone, no emoji.`

// Advisor builds feedback lines.
type Advisor struct {
	phraser llm.Provider
	log     *slog.Logger
}

// Option is a functional option for Advisor.
type Option func(*Advisor)

// WithPhraser installs a language model that rewrites the template lines.
func WithPhraser(p llm.Provider) Option {
	return func(a *Advisor) {
		a.phraser = p
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Advisor) {
		a.log = log
	}
}

// New constructs an Advisor.
func New(opts ...Option) *Advisor {
	a := &Advisor{log: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Feedback renders feedback for res. It never fails; with a phraser
// configured the rewrite is best-effort.
func (a *Advisor) Feedback(ctx context.Context, res *score.Result) []string {
	lines := templateLines(res)
	if a.phraser == nil || len(lines) == 0 {
		return lines
	}

	phrased, err := a.rephrase(ctx, lines)
	if err != nil {
		a.log.Warn("feedback phrasing failed, keeping templates", "error", err)
		return lines
	}
	return phrased
}

// templateLines derives one line per dimension plus analysis specifics.
func templateLines(res *score.Result) []string {
	var lines []string
	d := res.Dimensions

	switch {
	case d.Accuracy >= score.GoodThreshold:
		lines = append(lines, "Your pronunciation is clear and accurate overall.")
	case d.Accuracy >= score.WeakThreshold:
		lines = append(lines, "Your pronunciation is understandable, but several words need work.")
	default:
		lines = append(lines, "Many words were hard to recognise; slow down and focus on each word's sounds.")
	}
	if words := listWords(res.Analysis.WeakWords); words != "" {
		lines = append(lines, fmt.Sprintf("Practise these words in particular: %s.", words))
	}
	if words := listWords(res.Analysis.MissingWords); words != "" {
		lines = append(lines, fmt.Sprintf("Some words were skipped, for example %s. Read every word, even small ones.", words))
	}

	switch {
	case d.Fluency >= score.GoodThreshold:
		lines = append(lines, "Your reading pace is steady and natural.")
	case d.Fluency >= score.WeakThreshold:
		lines = append(lines, "Your pace is uneven; try to keep a steady rhythm without long stops.")
	default:
		lines = append(lines, "Long pauses broke up the reading. Practise the sentence a few times, then read it in one go.")
	}

	switch {
	case d.Completeness >= score.GoodThreshold:
		// Reading everything is the expectation, not an achievement; no line.
	case d.Completeness >= score.WeakThreshold:
		lines = append(lines, "Part of the text was left out. Make sure you read the whole passage.")
	default:
		lines = append(lines, "Most of the text was not read. Try the full passage from the beginning.")
	}

	switch {
	case d.Prosody >= score.GoodThreshold:
		lines = append(lines, "Nice expression - your intonation follows the meaning of the text.")
	case d.Prosody >= score.WeakThreshold:
		lines = append(lines, "Your reading sounds a little flat; let your voice rise and fall with the sentences.")
	default:
		lines = append(lines, "Work on expression: stress the important words and drop your voice at full stops.")
	}

	return lines
}

// rephrase asks the model for one rewritten line per template line.
func (a *Advisor) rephrase(ctx context.Context, lines []string) ([]string, error) {
	reply, err := a.phraser.Complete(ctx, llm.Request{
		System:      phraserSystem,
		Prompt:      strings.Join(lines, "\n"),
		Temperature: 0.6,
	})
	if err != nil {
		return nil, err
	}

	var out []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	if len(out) != len(lines) {
		return nil, fmt.Errorf("phraser returned %d lines for %d inputs", len(out), len(lines))
	}
	return out, nil
}

func listWords(words []string) string {
	if len(words) == 0 {
		return ""
	}
	if len(words) > maxListedWords {
		words = words[:maxListedWords]
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = fmt.Sprintf("%q", w)
	}
	return strings.Join(quoted, ", ")
}
