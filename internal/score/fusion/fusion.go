// Package fusion combines a timing skeleton (word boundaries from an ASR
// pass) with per-word quality judgments (from the multimodal judge) into a
// single scored word sequence, and applies the adaptive calibration pass
// for judges that score systematically low.
package fusion

import (
	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/internal/score/align"
	"github.com/MrWong99/cadence/internal/score/normalize"
)

// Judgment is one per-word verdict from the judge model.
type Judgment struct {
	// Word is the judged word as the model echoed it.
	Word string `json:"word"`

	// Quality is the model's 0-100 pronunciation quality.
	Quality float64 `json:"quality"`

	// Issue is an optional short description of the main problem.
	Issue string `json:"issue,omitempty"`
}

// Default calibration parameters. When the mean of non-missing, non-zero
// word scores falls below the trigger, the whole set is shifted up so the
// mean lands on the target. Applied at most once per result.
const (
	DefaultCalibrationTrigger = 60.0
	DefaultCalibrationTarget  = 68.0
)

// Merge overlays judged qualities onto the skeleton words. Skeleton and
// judgment word sequences are aligned by edit script, so a judge that
// dropped or duplicated a word still lands its verdicts on the right
// skeleton positions. Unjudged skeleton words keep their skeleton score.
// The returned slice is a copy; the skeleton is not modified.
func Merge(skeleton []score.Word, judgments []Judgment) []score.Word {
	merged := make([]score.Word, len(skeleton))
	copy(merged, skeleton)
	if len(judgments) == 0 {
		return merged
	}

	ref := make([]string, len(skeleton))
	for i := range skeleton {
		ref[i] = align.Normalize(skeleton[i].Text)
	}
	hyp := make([]string, len(judgments))
	for i := range judgments {
		hyp[i] = align.Normalize(judgments[i].Word)
	}

	res := align.Align(ref, hyp)
	for i, aw := range res.Words {
		if aw.Op == align.OpDelete || aw.HypIndex < 0 {
			continue
		}
		if merged[i].Status == score.StatusMissing {
			// A judge cannot conjure timing for a word nobody spoke.
			continue
		}
		j := judgments[aw.HypIndex]
		merged[i].Score = normalize.Clamp(j.Quality)
		merged[i].Status = score.StatusFor(merged[i].Score)
		if j.Issue != "" {
			merged[i].Diagnosis = j.Issue
		}
	}
	return merged
}

// Calibrate lifts an implausibly harsh result set: when the mean of
// non-missing, non-zero scores is below trigger, every such score gets the
// same additive boost that moves the mean onto target, capped at 100 per
// word, and status tags are re-derived. The shift preserves the relative
// ordering of the words; a 50 stays better than a 20 after the boost.
// Zero trigger or target selects [DefaultCalibrationTrigger] and
// [DefaultCalibrationTarget]. Returns whether the boost was applied;
// callers must not apply it twice to the same result.
func Calibrate(words []score.Word, trigger, target float64) bool {
	if trigger <= 0 {
		trigger = DefaultCalibrationTrigger
	}
	if target <= 0 {
		target = DefaultCalibrationTarget
	}

	var sum float64
	n := 0
	for i := range words {
		if words[i].Status == score.StatusMissing || words[i].Score == 0 {
			continue
		}
		sum += words[i].Score
		n++
	}
	if n == 0 {
		return false
	}
	mean := sum / float64(n)
	if mean >= trigger {
		return false
	}

	boost := target - mean
	for i := range words {
		if words[i].Status == score.StatusMissing || words[i].Score == 0 {
			continue
		}
		words[i].Score += boost
		if words[i].Score > 100 {
			words[i].Score = 100
		}
	}
	normalize.Retag(words)
	return true
}
