// Package score defines the shared domain types for reading-assessment
// results: per-word and per-phoneme units, dimension scores, audio quality
// metrics, and the persisted result document.
//
// All scores live on a single 0-100 scale regardless of which engine
// produced them; the mapping from engine-native values happens in
// internal/score/normalize.
package score

import "time"

// Status classifies a scored unit by quality band.
type Status string

const (
	// StatusGood marks a unit scored at or above the good threshold.
	StatusGood Status = "good"

	// StatusWeak marks a unit in the weak band.
	StatusWeak Status = "weak"

	// StatusPoor marks a unit below the weak threshold.
	StatusPoor Status = "poor"

	// StatusMissing marks a reference unit with no corresponding speech.
	// Missing units carry no timing and score 0.
	StatusMissing Status = "missing"
)

// Tagging thresholds on the shared 0-100 scale.
const (
	GoodThreshold = 70.0
	WeakThreshold = 40.0
)

// StatusFor maps a score to its quality band. It never returns
// [StatusMissing]; missing is a structural property of the unit, not a
// function of its score.
func StatusFor(s float64) Status {
	switch {
	case s >= GoodThreshold:
		return StatusGood
	case s >= WeakThreshold:
		return StatusWeak
	default:
		return StatusPoor
	}
}

// Phoneme is a scored phoneme inside a word.
type Phoneme struct {
	// Symbol is the phone label in the engine's native symbol set
	// (IPA or ARPAbet depending on the engine).
	Symbol string `json:"symbol"`

	Score  float64 `json:"score"`
	Status Status  `json:"status"`
}

// Word is one scored unit of the reference script. The alignment layer
// guarantees exactly one Word per reference token, in script order, with
// Text always taken from the script (never from the recogniser).
type Word struct {
	Text string `json:"text"`

	// Start and End are offsets into the recording in seconds. Missing
	// words carry a zero-length span placed by [PlaceMissing], keeping the
	// sequence time-ordered.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	Score  float64 `json:"score"`
	Status Status  `json:"status"`

	// Phonemes holds per-phone detail when the engine provides it.
	Phonemes []Phoneme `json:"phonemes,omitempty"`

	// Hesitation marks an unusually long gap before this word inside a
	// sentence.
	Hesitation bool `json:"hesitation,omitempty"`

	// Stress is the estimated prominence of the word as spoken, in [0, 1].
	Stress float64 `json:"stress,omitempty"`

	// ExpectedStress is the prominence the word would normally carry,
	// from the lexical heuristic, in [0, 1].
	ExpectedStress float64 `json:"expected_stress,omitempty"`

	// Stressed marks words whose spoken prominence crosses the stress
	// threshold.
	Stressed bool `json:"stressed,omitempty"`

	// Diagnosis is the judge's short note on the main problem with this
	// word, empty for most words.
	Diagnosis string `json:"diagnosis,omitempty"`
}

// Timed reports whether the word has usable timing.
func (w *Word) Timed() bool {
	return w.Status != StatusMissing && w.End > w.Start
}

// PlaceMissing gives every missing word a zero-length span at a time cursor
// that advances through the sequence, seeded from the last spoken word's
// end. The result stays time-ordered even when the reading broke off and
// the trailing script words were never spoken.
func PlaceMissing(words []Word) {
	cursor := 0.0
	for i := range words {
		if words[i].Status == StatusMissing {
			words[i].Start = cursor
			words[i].End = cursor
			continue
		}
		if words[i].End > cursor {
			cursor = words[i].End
		}
	}
}

// Dimensions holds the four dimension scores plus the weighted overall.
type Dimensions struct {
	Accuracy     float64 `json:"accuracy"`
	Fluency      float64 `json:"fluency"`
	Completeness float64 `json:"completeness"`
	Prosody      float64 `json:"prosody"`
	Overall      float64 `json:"overall"`
}

// Quality holds the waveform metrics produced by the audio quality probe.
type Quality struct {
	Duration      float64 `json:"duration"`
	SilenceRatio  float64 `json:"silence_ratio"`
	RMSdB         float64 `json:"rms_db"`
	ClippingRatio float64 `json:"clipping_ratio"`
	SampleRate    int     `json:"sample_rate"`
}

// Pause is a classified inter-word pause event.
type Pause struct {
	// After is the index of the word the pause follows.
	After int     `json:"after"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Class is one of "good", "missed", "bad", "optional".
	Class string `json:"class"`
}

// Pause classes.
const (
	PauseGood     = "good"     // pause taken at punctuation
	PauseMissed   = "missed"   // punctuation read through without pausing
	PauseBad      = "bad"      // long pause with no punctuation
	PauseOptional = "optional" // mid-range pause, neither rewarded nor penalised
)

// Linking marks two adjacent words read as one connected unit.
type Linking struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// PacePoint is one sample of the reading speed trend.
type PacePoint struct {
	// Time is the window midpoint in seconds.
	Time float64 `json:"time"`

	// WPM is the words-per-minute rate inside the window.
	WPM float64 `json:"wpm"`
}

// Signals bundles the derived prosodic and temporal signals.
type Signals struct {
	Pauses   []Pause     `json:"pauses,omitempty"`
	Linkings []Linking   `json:"linkings,omitempty"`
	Pace     []PacePoint `json:"pace,omitempty"`
}

// WeakPhoneme is a phoneme ranked by how poorly it was produced across the
// whole reading.
type WeakPhoneme struct {
	Symbol    string  `json:"symbol"`
	MeanScore float64 `json:"mean_score"`
	Count     int     `json:"count"`
}

// Confusion is a likely phoneme substitution pattern.
type Confusion struct {
	Expected string `json:"expected"`
	Observed string `json:"observed"`
	Count    int    `json:"count"`
}

// CompletenessStats summarises script coverage.
type CompletenessStats struct {
	Expected int `json:"expected"`
	Credited int `json:"credited"`
	Missing  int `json:"missing"`
}

// Summary is the analysis block of a result document.
type Summary struct {
	WeakWords    []string          `json:"weak_words,omitempty"`
	MissingWords []string          `json:"missing_words,omitempty"`
	WeakPhonemes []WeakPhoneme     `json:"weak_phonemes,omitempty"`
	Confusions   []Confusion       `json:"confusions,omitempty"`
	Hesitations  []int             `json:"hesitations,omitempty"`
	Completeness CompletenessStats `json:"completeness"`
}

// Attempt records one engine invocation made while scoring a submission,
// in invocation order.
type Attempt struct {
	Engine   string  `json:"engine"`
	Duration float64 `json:"duration"`
	Error    string  `json:"error,omitempty"`
}

// Meta describes how a result was produced.
type Meta struct {
	SubmissionID string    `json:"submission_id"`
	Engine       string    `json:"engine,omitempty"`
	Attempts     []Attempt `json:"attempts,omitempty"`
	Calibrated   bool      `json:"calibrated,omitempty"`
	Quality      Quality   `json:"quality"`
	Elapsed      float64   `json:"elapsed"`
	ScoredAt     time.Time `json:"scored_at"`
}

// Result is the full per-submission result document persisted as JSON.
type Result struct {
	Meta       Meta       `json:"meta"`
	Dimensions Dimensions `json:"scores"`
	Words      []Word     `json:"words,omitempty"`

	// Extras lists recognised words that do not correspond to any script
	// token. They never contribute to any score.
	Extras []string `json:"extras,omitempty"`

	Signals  Signals  `json:"signals"`
	Analysis Summary  `json:"analysis"`
	Feedback []string `json:"feedback,omitempty"`

	// Error is set when scoring failed terminally; all score fields are
	// zero in that case.
	Error string `json:"error,omitempty"`
}
