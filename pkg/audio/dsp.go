package audio

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Default analysis frame geometry: 25 ms frames on a 10 ms hop. These match
// the windows used by the quality probe and the stress extractor.
const (
	DefaultFrameSec = 0.025
	DefaultHopSec   = 0.010
)

// Pitch estimation search band in Hz. Covers typical speaking voices,
// including children reading aloud.
const (
	pitchMinHz = 50.0
	pitchMaxHz = 400.0
)

// voicingThreshold is the minimum normalised autocorrelation peak for a
// frame to be considered voiced.
const voicingThreshold = 0.30

// FrameEnergies returns the RMS energy of consecutive frames of frameSec
// length advanced by hopSec. The final partial frame is included when it is
// at least half a frame long.
func FrameEnergies(c *Clip, frameSec, hopSec float64) []float64 {
	frame := int(frameSec * float64(c.SampleRate))
	hop := int(hopSec * float64(c.SampleRate))
	if frame <= 0 || hop <= 0 || len(c.Samples) == 0 {
		return nil
	}

	var energies []float64
	for start := 0; start < len(c.Samples); start += hop {
		end := start + frame
		if end > len(c.Samples) {
			if len(c.Samples)-start < frame/2 {
				break
			}
			end = len(c.Samples)
		}
		var sum float64
		for _, s := range c.Samples[start:end] {
			sum += float64(s) * float64(s)
		}
		energies = append(energies, math.Sqrt(sum/float64(end-start)))
	}
	return energies
}

// PitchContour estimates the fundamental frequency of each analysis frame
// using normalised autocorrelation restricted to the 50-400 Hz band.
// Unvoiced or too-quiet frames are reported as 0. Frame geometry matches
// [FrameEnergies] so the two contours line up index for index.
func PitchContour(c *Clip, frameSec, hopSec float64) []float64 {
	frame := int(frameSec * float64(c.SampleRate))
	hop := int(hopSec * float64(c.SampleRate))
	if frame <= 0 || hop <= 0 || len(c.Samples) < frame {
		return nil
	}

	minLag := int(float64(c.SampleRate) / pitchMaxHz)
	maxLag := int(float64(c.SampleRate) / pitchMinHz)
	if maxLag >= frame {
		maxLag = frame - 1
	}
	if minLag < 1 {
		minLag = 1
	}

	buf := make([]float64, frame)
	var contour []float64
	for start := 0; start+frame <= len(c.Samples); start += hop {
		for i := 0; i < frame; i++ {
			buf[i] = float64(c.Samples[start+i])
		}
		contour = append(contour, framePitch(buf, c.SampleRate, minLag, maxLag))
	}
	return contour
}

// framePitch returns the F0 estimate for one zero-mean-adjusted frame, or 0
// when the frame is unvoiced.
func framePitch(frame []float64, sampleRate, minLag, maxLag int) float64 {
	// Remove DC so low-frequency offset does not masquerade as periodicity.
	mean := floats.Sum(frame) / float64(len(frame))
	for i := range frame {
		frame[i] -= mean
	}

	energy := floats.Dot(frame, frame)
	if energy < 1e-6 {
		return 0
	}

	bestLag, bestCorr := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		corr := floats.Dot(frame[:len(frame)-lag], frame[lag:]) / energy
		if corr > bestCorr {
			bestCorr, bestLag = corr, lag
		}
	}
	if bestLag == 0 || bestCorr < voicingThreshold {
		return 0
	}
	return float64(sampleRate) / float64(bestLag)
}

// VoicedFrames filters a pitch contour down to its non-zero entries.
func VoicedFrames(contour []float64) []float64 {
	voiced := make([]float64, 0, len(contour))
	for _, f := range contour {
		if f > 0 {
			voiced = append(voiced, f)
		}
	}
	return voiced
}
