package fusion

import (
	"math"
	"testing"

	"github.com/MrWong99/cadence/internal/score"
)

func skeleton() []score.Word {
	return []score.Word{
		{Text: "the", Start: 0.0, End: 0.2, Score: 95, Status: score.StatusGood},
		{Text: "quick", Start: 0.25, End: 0.6, Score: 95, Status: score.StatusGood},
		{Text: "fox", Status: score.StatusMissing},
		{Text: "jumps", Start: 0.9, End: 1.3, Score: 95, Status: score.StatusGood},
	}
}

func TestMergeOverlaysJudgments(t *testing.T) {
	t.Parallel()

	judged := Merge(skeleton(), []Judgment{
		{Word: "the", Quality: 88},
		{Word: "quick", Quality: 45},
		{Word: "jumps", Quality: 91},
	})

	if judged[0].Score != 88 || judged[0].Status != score.StatusGood {
		t.Errorf("word 0 = %+v, want score 88 good", judged[0])
	}
	if judged[1].Score != 45 || judged[1].Status != score.StatusWeak {
		t.Errorf("word 1 = %+v, want score 45 weak", judged[1])
	}
	// Timing comes from the skeleton, untouched.
	if judged[1].Start != 0.25 || judged[1].End != 0.6 {
		t.Errorf("word 1 timing changed: %+v", judged[1])
	}
}

func TestMergeKeepsMissingMissing(t *testing.T) {
	t.Parallel()

	// The judge hallucinated a verdict for the missing word.
	judged := Merge(skeleton(), []Judgment{
		{Word: "the", Quality: 90},
		{Word: "quick", Quality: 90},
		{Word: "fox", Quality: 85},
		{Word: "jumps", Quality: 90},
	})

	if judged[2].Status != score.StatusMissing || judged[2].Score != 0 {
		t.Errorf("missing word resurrected: %+v", judged[2])
	}
}

func TestMergeSurvivesDroppedJudgments(t *testing.T) {
	t.Parallel()

	// Judge returned fewer verdicts than skeleton words.
	judged := Merge(skeleton(), []Judgment{
		{Word: "the", Quality: 80},
		{Word: "jumps", Quality: 70},
	})

	if judged[0].Score != 80 {
		t.Errorf("word 0 score = %f, want 80", judged[0].Score)
	}
	// Unjudged word keeps its skeleton score.
	if judged[1].Score != 95 {
		t.Errorf("word 1 score = %f, want skeleton 95", judged[1].Score)
	}
	if judged[3].Score != 70 {
		t.Errorf("word 3 score = %f, want 70", judged[3].Score)
	}
}

func TestMergeDoesNotModifySkeleton(t *testing.T) {
	t.Parallel()

	sk := skeleton()
	Merge(sk, []Judgment{{Word: "the", Quality: 10}})
	if sk[0].Score != 95 {
		t.Errorf("skeleton mutated: %+v", sk[0])
	}
}

func TestMergeCarriesDiagnosis(t *testing.T) {
	t.Parallel()

	judged := Merge(skeleton(), []Judgment{
		{Word: "the", Quality: 88},
		{Word: "quick", Quality: 45, Issue: "vowel reduced to schwa"},
		{Word: "jumps", Quality: 91},
	})

	if judged[1].Diagnosis != "vowel reduced to schwa" {
		t.Errorf("word 1 diagnosis = %q, want the judge's note", judged[1].Diagnosis)
	}
	if judged[0].Diagnosis != "" || judged[3].Diagnosis != "" {
		t.Errorf("clean words picked up a diagnosis: %+v / %+v", judged[0], judged[3])
	}
}

func TestCalibrateShiftsHarshResults(t *testing.T) {
	t.Parallel()

	words := []score.Word{
		{Text: "a", Score: 40, Status: score.StatusWeak},
		{Text: "b", Score: 50, Status: score.StatusWeak},
		{Text: "c", Score: 55, Status: score.StatusWeak},
		{Text: "d", Status: score.StatusMissing},
	}

	if !Calibrate(words, 0, 0) {
		t.Fatal("Calibrate = false, want boost (mean < 60)")
	}

	// One uniform shift moves the mean onto the target.
	mean := (words[0].Score + words[1].Score + words[2].Score) / 3
	if math.Abs(mean-DefaultCalibrationTarget) > 1e-9 {
		t.Errorf("boosted mean = %f, want %f", mean, DefaultCalibrationTarget)
	}
	for i := 0; i < 3; i++ {
		if words[i].Status != score.StatusFor(words[i].Score) {
			t.Errorf("word %d status %q not re-derived", i, words[i].Status)
		}
	}
	if words[3].Status != score.StatusMissing || words[3].Score != 0 {
		t.Errorf("missing word touched: %+v", words[3])
	}
}

func TestCalibratePreservesOrdering(t *testing.T) {
	t.Parallel()

	words := []score.Word{
		{Text: "a", Score: 20, Status: score.StatusPoor},
		{Text: "b", Score: 50, Status: score.StatusWeak},
	}

	if !Calibrate(words, 0, 0) {
		t.Fatal("Calibrate = false, want boost (mean 35)")
	}
	// Mean 35 gets a +33 shift: the better word stays better by the same
	// margin instead of collapsing onto a floor.
	if math.Abs(words[0].Score-53) > 1e-9 || math.Abs(words[1].Score-83) > 1e-9 {
		t.Errorf("scores = %f, %f, want 53, 83", words[0].Score, words[1].Score)
	}
}

func TestCalibrateCapsAtHundred(t *testing.T) {
	t.Parallel()

	words := []score.Word{
		{Text: "a", Score: 10, Status: score.StatusPoor},
		{Text: "b", Score: 95, Status: score.StatusGood},
	}

	if !Calibrate(words, 0, 0) {
		t.Fatal("Calibrate = false, want boost (mean 52.5)")
	}
	if math.Abs(words[0].Score-25.5) > 1e-9 {
		t.Errorf("word 0 score = %f, want 25.5", words[0].Score)
	}
	if words[1].Score != 100 {
		t.Errorf("word 1 score = %f, want capped at 100", words[1].Score)
	}
}

func TestCalibrateCustomTriggerAndTarget(t *testing.T) {
	t.Parallel()

	words := []score.Word{
		{Text: "a", Score: 70, Status: score.StatusGood},
		{Text: "b", Score: 74, Status: score.StatusGood},
	}
	if Calibrate(words, 0, 0) {
		t.Fatal("default trigger boosted a mean of 72")
	}
	if !Calibrate(words, 80, 85) {
		t.Fatal("raised trigger did not boost a mean of 72")
	}
	mean := (words[0].Score + words[1].Score) / 2
	if math.Abs(mean-85) > 1e-9 {
		t.Errorf("boosted mean = %f, want custom target 85", mean)
	}
}

func TestCalibrateLeavesPlausibleResults(t *testing.T) {
	t.Parallel()

	words := []score.Word{
		{Text: "a", Score: 85, Status: score.StatusGood},
		{Text: "b", Score: 60, Status: score.StatusWeak},
	}
	if Calibrate(words, 0, 0) {
		t.Error("Calibrate boosted a plausible result")
	}
	if words[0].Score != 85 || words[1].Score != 60 {
		t.Errorf("scores changed: %+v", words)
	}
}

func TestCalibrateSecondPassIsNoop(t *testing.T) {
	t.Parallel()

	words := []score.Word{
		{Text: "a", Score: 30, Status: score.StatusPoor},
		{Text: "b", Score: 35, Status: score.StatusPoor},
	}
	if !Calibrate(words, 0, 0) {
		t.Fatal("first Calibrate should boost")
	}
	// The shift lands the mean on the target, which clears the trigger,
	// so a second pass reports no boost.
	if Calibrate(words, 0, 0) {
		t.Error("second Calibrate boosted again")
	}
}

func TestCalibrateIgnoresZeroScores(t *testing.T) {
	t.Parallel()

	words := []score.Word{
		{Text: "a", Score: 0, Status: score.StatusPoor},
		{Text: "b", Score: 90, Status: score.StatusGood},
	}
	if Calibrate(words, 0, 0) {
		t.Error("zero scores must not drag the mean below the trigger")
	}
	if words[0].Score != 0 {
		t.Errorf("zero score boosted: %f", words[0].Score)
	}
}
