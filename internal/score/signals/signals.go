// Package signals derives the secondary reading signals from a scored,
// timed word sequence: pause events classified against script punctuation,
// word linking, the pace trend, sentence stress, and hesitation markers.
//
// All functions take the word slice as produced by the engines (one unit
// per script token, in order) together with the script tokens from
// internal/score/align, so punctuation and sentence boundaries are always
// available without re-parsing the script.
package signals

import (
	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/internal/score/align"
	"github.com/MrWong99/cadence/pkg/audio"
)

// Pause classification thresholds in seconds.
const (
	punctuatedPauseMin = 0.25 // a real pause at punctuation
	badPauseMin        = 0.60 // long pause with no punctuation
	optionalPauseMin   = 0.30 // lower edge of the neutral band
)

// linkingMaxGap is the largest inter-word gap still counted as linking.
const linkingMaxGap = 0.03

// Pace trend geometry.
const (
	paceWindowSec = 2.0
	paceStepSec   = 0.5
)

// hesitationGap is the pre-word silence (seconds) inside a sentence that
// marks a hesitation.
const hesitationGap = 0.6

// Stress scoring parameters.
const (
	stressPitchWeight  = 0.6
	stressEnergyWeight = 0.4
	stressThreshold    = 0.6

	// Lexical fallback prominence when acoustics are unusable.
	functionWordProminence = 0.3
	contentWordProminence  = 0.8
	boundaryBoost          = 0.15
)

// Pauses classifies every inter-word gap between consecutive timed words.
// A gap at punctuation of at least 0.25 s is a good pause; punctuation read
// through without a gap is a missed pause; an unpunctuated gap of 0.6 s or
// more is a bad pause; unpunctuated gaps between 0.3 and 0.6 s are
// optional. Shorter gaps produce no event.
func Pauses(words []score.Word, tokens []align.Token) []score.Pause {
	var pauses []score.Pause
	prev := -1
	for i := range words {
		if !words[i].Timed() {
			continue
		}
		if prev >= 0 {
			gap := words[i].Start - words[prev].End
			punctuated := prev < len(tokens) && tokens[prev].Trailing != ""

			var class string
			switch {
			case punctuated && gap >= punctuatedPauseMin:
				class = score.PauseGood
			case punctuated:
				class = score.PauseMissed
			case gap >= badPauseMin:
				class = score.PauseBad
			case gap >= optionalPauseMin:
				class = score.PauseOptional
			}
			if class != "" {
				pauses = append(pauses, score.Pause{
					After: prev,
					Start: words[prev].End,
					End:   words[i].Start,
					Class: class,
				})
			}
		}
		prev = i
	}
	return pauses
}

// Linkings finds consecutive timed words read as one connected unit: the
// gap between them is under 0.03 s or they overlap.
func Linkings(words []score.Word) []score.Linking {
	var links []score.Linking
	prev := -1
	for i := range words {
		if !words[i].Timed() {
			continue
		}
		if prev >= 0 && words[i].Start-words[prev].End < linkingMaxGap {
			links = append(links, score.Linking{From: prev, To: i})
		}
		prev = i
	}
	return links
}

// PaceTrend samples the local reading speed with a 2.0 s window advanced in
// 0.5 s steps. A word belongs to a window when its midpoint falls inside
// it; missing words never contribute. The reported time is the window
// midpoint.
func PaceTrend(words []score.Word) []score.PacePoint {
	type mid struct{ t float64 }
	var mids []mid
	var last float64
	for i := range words {
		if !words[i].Timed() {
			continue
		}
		m := (words[i].Start + words[i].End) / 2
		mids = append(mids, mid{t: m})
		if words[i].End > last {
			last = words[i].End
		}
	}
	if len(mids) == 0 {
		return nil
	}

	var trend []score.PacePoint
	for start := 0.0; start+paceWindowSec <= last+paceStepSec; start += paceStepSec {
		end := start + paceWindowSec
		count := 0
		for _, m := range mids {
			if m.t >= start && m.t < end {
				count++
			}
		}
		trend = append(trend, score.PacePoint{
			Time: start + paceWindowSec/2,
			WPM:  float64(count) / paceWindowSec * 60.0,
		})
	}
	return trend
}

// MarkHesitations flags words preceded by an unusually long silence inside
// a sentence. Sentence-initial words are exempt: a pause before a new
// sentence is phrasing, not hesitation.
func MarkHesitations(words []score.Word, tokens []align.Token) {
	prev := -1
	for i := range words {
		if !words[i].Timed() {
			continue
		}
		if prev >= 0 && i < len(tokens) && !tokens[i].SentenceStart {
			if words[i].Start-words[prev].End >= hesitationGap {
				words[i].Hesitation = true
			}
		}
		prev = i
	}
}

// MarkStress annotates each word with its spoken and expected prominence.
// When the clip yields usable pitch and energy, spoken prominence is
// 0.6*pitchZ + 0.4*energyZ clipped to [0, 1]; without acoustics it falls
// back to the lexical expectation of 0.3 for function words and 0.8 for
// content words, with a boost at sentence boundaries. Words whose spoken
// prominence reaches 0.6 are flagged stressed.
func MarkStress(words []score.Word, tokens []align.Token, clip *audio.Clip) {
	expected := lexicalProminence(words, tokens)
	spoken := acousticProminence(words, clip)
	if spoken == nil {
		spoken = expected
	}
	for i := range words {
		if !words[i].Timed() {
			continue
		}
		words[i].Stress = spoken[i]
		words[i].ExpectedStress = expected[i]
		if spoken[i] >= stressThreshold {
			words[i].Stressed = true
		}
	}
}

// acousticProminence computes per-word prominence from pitch and energy
// z-scores, or nil when the clip has too little voicing to normalise.
func acousticProminence(words []score.Word, clip *audio.Clip) []float64 {
	if clip == nil || len(clip.Samples) == 0 {
		return nil
	}

	pitchMeans := make([]float64, len(words))
	energyMeans := make([]float64, len(words))
	var pitchPop, energyPop []float64

	for i := range words {
		if !words[i].Timed() {
			continue
		}
		sub := clip.Slice(words[i].Start, words[i].End)
		voiced := audio.VoicedFrames(audio.PitchContour(sub, audio.DefaultFrameSec, audio.DefaultHopSec))
		if len(voiced) > 0 {
			pitchMeans[i] = stat.Mean(voiced, nil)
			pitchPop = append(pitchPop, pitchMeans[i])
		}
		energyMeans[i] = sub.RMS()
		if energyMeans[i] > 0 {
			energyPop = append(energyPop, energyMeans[i])
		}
	}
	// Z-scores need a population to normalise against.
	if len(pitchPop) < 3 || len(energyPop) < 3 {
		return nil
	}

	pMean, pStd := stat.MeanStdDev(pitchPop, nil)
	eMean, eStd := stat.MeanStdDev(energyPop, nil)
	if pStd == 0 || eStd == 0 {
		return nil
	}

	out := make([]float64, len(words))
	for i := range words {
		if !words[i].Timed() {
			continue
		}
		var pz, ez float64
		if pitchMeans[i] > 0 {
			pz = (pitchMeans[i] - pMean) / pStd
		}
		ez = (energyMeans[i] - eMean) / eStd
		v := stressPitchWeight*pz + stressEnergyWeight*ez
		// Shift from z-space into [0, 1]: one standard deviation above
		// the mean saturates.
		v = (v + 1) / 2
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[i] = v
	}
	return out
}

// functionWords are the closed-class words that rarely carry stress.
var functionWords = map[string]bool{
	"a": true, "an": true, "the": true,
	"of": true, "to": true, "in": true, "on": true, "at": true, "by": true,
	"for": true, "with": true, "from": true, "as": true,
	"and": true, "or": true, "but": true, "nor": true, "so": true,
	"is": true, "am": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "it": true, "its": true,
	"he": true, "she": true, "they": true, "we": true, "you": true, "i": true,
	"his": true, "her": true, "their": true, "our": true, "your": true, "my": true,
	"that": true, "this": true, "these": true, "those": true,
	"do": true, "does": true, "did": true, "has": true, "have": true, "had": true,
	"not": true, "no": true, "if": true, "than": true, "then": true,
}

func lexicalProminence(words []score.Word, tokens []align.Token) []float64 {
	out := make([]float64, len(words))
	for i := range words {
		p := contentWordProminence
		if functionWords[align.Normalize(words[i].Text)] {
			p = functionWordProminence
		}
		if i < len(tokens) && (tokens[i].SentenceStart || tokens[i].SentenceEnd) {
			p += boundaryBoost
		}
		if p > 1 {
			p = 1
		}
		out[i] = p
	}
	return out
}

// Extract runs the full signal pass: pauses, linkings, and pace trend, plus
// in-place hesitation and stress annotation on words.
func Extract(words []score.Word, tokens []align.Token, clip *audio.Clip) score.Signals {
	MarkHesitations(words, tokens)
	MarkStress(words, tokens, clip)
	return score.Signals{
		Pauses:   Pauses(words, tokens),
		Linkings: Linkings(words),
		Pace:     PaceTrend(words),
	}
}
