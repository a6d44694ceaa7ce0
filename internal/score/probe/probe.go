// Package probe analyses the raw waveform of a submission before any engine
// runs. Its [Quality] metrics feed the router's degraded-audio heuristics
// and are persisted in the result document so graders can see why a
// particular engine was chosen.
package probe

import (
	"gonum.org/v1/gonum/floats"

	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/pkg/audio"
)

const (
	// silenceEnergy is the frame RMS below which a frame counts as silent.
	silenceEnergy = 0.01

	// clippingLevel is the absolute sample value above which a sample
	// counts as clipped.
	clippingLevel = 0.99
)

// Analyze computes the quality metrics for a clip: total duration, silence
// ratio over 25 ms frames on a 10 ms hop, RMS level in dBFS, and the ratio
// of clipped samples.
func Analyze(clip *audio.Clip) score.Quality {
	q := score.Quality{
		Duration:   clip.Seconds(),
		RMSdB:      clip.RMSdB(),
		SampleRate: clip.SampleRate,
	}

	energies := audio.FrameEnergies(clip, audio.DefaultFrameSec, audio.DefaultHopSec)
	if len(energies) > 0 {
		silent := 0
		for _, e := range energies {
			if e < silenceEnergy {
				silent++
			}
		}
		q.SilenceRatio = float64(silent) / float64(len(energies))
	}

	if len(clip.Samples) > 0 {
		clipped := 0
		for _, s := range clip.Samples {
			if s > clippingLevel || s < -clippingLevel {
				clipped++
			}
		}
		q.ClippingRatio = float64(clipped) / float64(len(clip.Samples))
	}

	return q
}

// SpeechBounds returns the start and end (in seconds) of the region that
// contains speech, trimming leading and trailing silent frames. For an
// entirely silent clip it returns (0, 0).
func SpeechBounds(clip *audio.Clip) (start, end float64) {
	energies := audio.FrameEnergies(clip, audio.DefaultFrameSec, audio.DefaultHopSec)
	if len(energies) == 0 {
		return 0, 0
	}
	if floats.Max(energies) < silenceEnergy {
		return 0, 0
	}

	first, last := -1, -1
	for i, e := range energies {
		if e >= silenceEnergy {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	start = float64(first) * audio.DefaultHopSec
	end = float64(last)*audio.DefaultHopSec + audio.DefaultFrameSec
	if max := clip.Seconds(); end > max {
		end = max
	}
	return start, end
}
