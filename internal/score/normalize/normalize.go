// Package normalize maps engine-native measurements onto the shared 0-100
// score scale and combines dimension scores into the weighted overall.
// Everything here is a pure function of its inputs; engines and the
// pipeline both call into this package so that a 75 means the same thing no
// matter which engine produced it.
package normalize

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/cadence/internal/score"
)

// GOP logistic mapping defaults. A goodness-of-pronunciation value equal to
// Center maps to exactly 50.
const (
	DefaultGOPSlope  = 1.5
	DefaultGOPCenter = -4.0
)

// Overall dimension weights. They sum to 1. Completeness is weighted low
// on purpose: omissions already drag down accuracy and fluency, so a high
// completeness weight would punish them twice.
const (
	WeightAccuracy     = 0.55
	WeightFluency      = 0.25
	WeightProsody      = 0.15
	WeightCompleteness = 0.05
)

// Articulation-rate constants (words per minute) for the fluency curve.
const (
	idealLowWPM  = 80.0
	idealHighWPM = 120.0
	okLowWPM     = 60.0
	okHighWPM    = 150.0
	hardLowWPM   = 40.0
	hardHighWPM  = 180.0

	idealFluency = 98.0
)

// Long-pause penalty parameters.
const (
	longPauseSec    = 1.2
	pausePenaltyCap = 30.0
)

// Signal-level and silence bands for the prosody score. Normal read speech
// sits between roughly -25 and -8 dBFS with little dead air.
const (
	quietRMSdB        = -25.0
	lowRMSdB          = -20.0
	loudRMSdB         = -8.0
	mildSilenceRatio  = 0.2
	heavySilenceRatio = 0.3
)

// GOP converts a raw goodness-of-pronunciation log-likelihood into a 0-100
// score through a logistic curve: 100 / (1 + exp(-slope * (gop - center))).
func GOP(gop, slope, center float64) float64 {
	return 100.0 / (1.0 + math.Exp(-slope*(gop-center)))
}

// Accuracy is the mean score of non-missing words, or 0 when every word is
// missing.
func Accuracy(words []score.Word) float64 {
	var sum float64
	n := 0
	for i := range words {
		if words[i].Status == score.StatusMissing {
			continue
		}
		sum += words[i].Score
		n++
	}
	if n == 0 {
		return 0
	}
	return Clamp(sum / float64(n))
}

// Fluency scores the reading rate and pause discipline. Rate is computed
// over spoken (timed) words against the speech span; the score peaks near
// 98 inside 80-120 WPM, decays linearly toward the 60/150 WPM band, falls
// harder outside 40/180, and loses up to 30 points for pauses longer than
// 1.2 s.
func Fluency(words []score.Word, totalDur float64) float64 {
	timed := timedWords(words)
	if len(timed) == 0 || totalDur <= 0 {
		return 0
	}

	span := timed[len(timed)-1].End - timed[0].Start
	if span <= 0 {
		span = totalDur
	}
	wpm := float64(len(timed)) / span * 60.0

	base := rateScore(wpm)

	// Long-pause penalty: proportional to both how many and how long.
	var penalty float64
	for i := 1; i < len(timed); i++ {
		gap := timed[i].Start - timed[i-1].End
		if gap > longPauseSec {
			penalty += 5 + 4*(gap-longPauseSec)
		}
	}
	if penalty > pausePenaltyCap {
		penalty = pausePenaltyCap
	}

	return Clamp(base - penalty)
}

// rateScore maps words-per-minute onto the fluency base score.
func rateScore(wpm float64) float64 {
	switch {
	case wpm >= idealLowWPM && wpm <= idealHighWPM:
		return idealFluency
	case wpm >= okLowWPM && wpm < idealLowWPM:
		// 60 WPM → 70, rising linearly to 98 at 80 WPM.
		return 70 + (wpm-okLowWPM)/(idealLowWPM-okLowWPM)*(idealFluency-70)
	case wpm > idealHighWPM && wpm <= okHighWPM:
		return 70 + (okHighWPM-wpm)/(okHighWPM-idealHighWPM)*(idealFluency-70)
	case wpm >= hardLowWPM && wpm < okLowWPM:
		return 40 + (wpm-hardLowWPM)/(okLowWPM-hardLowWPM)*30
	case wpm > okHighWPM && wpm <= hardHighWPM:
		return 40 + (hardHighWPM-wpm)/(hardHighWPM-okHighWPM)*30
	default:
		return 25
	}
}

// Prosody scores intonation liveliness from the voiced pitch contour,
// frame energies, and the probe's waveform metrics. Baseline 88 for
// natural variation; monotone pitch, flat energy, an out-of-band signal
// level, and a high silence ratio each deduct.
func Prosody(voicedPitch, energies []float64, q score.Quality) float64 {
	if len(voicedPitch) == 0 {
		// No voiced speech at all.
		return 0
	}

	base := 88.0

	mean, std := stat.MeanStdDev(voicedPitch, nil)
	if mean > 0 {
		// Coefficient of variation of F0. Natural read speech sits
		// around 0.1-0.3; near-zero is monotone.
		cv := std / mean
		switch {
		case cv < 0.03:
			base -= 30
		case cv < 0.08:
			base -= 15 * (0.08 - cv) / 0.05
		case cv > 0.45:
			// Erratic pitch, usually tracking noise.
			base -= 10
		}
	}

	if len(energies) > 1 {
		eMean, eStd := stat.MeanStdDev(energies, nil)
		if eMean > 0 && eStd/eMean < 0.10 {
			base -= 10
		}
	}

	// A whisper-quiet or blown-out recording cannot carry intonation, and
	// a mostly silent one is halting rather than expressive.
	switch {
	case q.RMSdB < quietRMSdB:
		base -= 10
	case q.RMSdB < lowRMSdB:
		base -= 5
	}
	if q.RMSdB > loudRMSdB {
		base -= 5
	}
	switch {
	case q.SilenceRatio > heavySilenceRatio:
		base -= 10
	case q.SilenceRatio > mildSilenceRatio:
		base -= 5
	}

	return Clamp(base)
}

// Completeness is the count-aware coverage of the script: the multiset
// intersection of script tokens and credited tokens, over the script
// length. Reading "the" once when the script has it three times earns one
// credit, not three.
func Completeness(scriptTokens, credited []string) float64 {
	if len(scriptTokens) == 0 {
		return 0
	}
	counts := make(map[string]int, len(scriptTokens))
	for _, tok := range scriptTokens {
		counts[tok]++
	}
	hit := 0
	for _, tok := range credited {
		if counts[tok] > 0 {
			counts[tok]--
			hit++
		}
	}
	return Clamp(float64(hit) / float64(len(scriptTokens)) * 100.0)
}

// Overall combines the four dimensions with the standard weights, clamps to
// [0, 100], and rounds to one decimal place.
func Overall(d score.Dimensions) float64 {
	v := WeightAccuracy*d.Accuracy +
		WeightFluency*d.Fluency +
		WeightProsody*d.Prosody +
		WeightCompleteness*d.Completeness
	return Round1(Clamp(v))
}

// Clamp restricts v to [0, 100].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Retag recomputes every non-missing word's status from its score.
func Retag(words []score.Word) {
	for i := range words {
		if words[i].Status == score.StatusMissing {
			continue
		}
		words[i].Status = score.StatusFor(words[i].Score)
	}
}

func timedWords(words []score.Word) []score.Word {
	out := make([]score.Word, 0, len(words))
	for i := range words {
		if words[i].Timed() {
			out = append(out, words[i])
		}
	}
	return out
}
