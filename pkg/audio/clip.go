// Package audio provides the decoded-audio types and the small amount of
// signal processing the scoring pipeline needs: WAV decoding, frame energy
// extraction, and fundamental-frequency estimation.
//
// A [Clip] is immutable once constructed; all analysis functions treat the
// sample slice as read-only, so a single Clip may be shared across engines
// and goroutines without synchronisation.
package audio

import (
	"math"
	"time"
)

// Clip holds decoded mono audio samples in the range [-1, 1].
type Clip struct {
	// Samples are mono float32 samples. Stereo sources are downmixed at
	// decode time.
	Samples []float32

	// SampleRate is the sample rate in Hz (e.g., 16000).
	SampleRate int
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Seconds returns the clip length in seconds as a float64.
func (c *Clip) Seconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Slice returns a sub-clip covering [start, end) in seconds. Out-of-range
// bounds are clamped; an inverted range yields an empty clip. The returned
// clip shares the underlying sample array.
func (c *Clip) Slice(start, end float64) *Clip {
	lo := int(start * float64(c.SampleRate))
	hi := int(end * float64(c.SampleRate))
	if lo < 0 {
		lo = 0
	}
	if hi > len(c.Samples) {
		hi = len(c.Samples)
	}
	if lo >= hi {
		return &Clip{Samples: nil, SampleRate: c.SampleRate}
	}
	return &Clip{Samples: c.Samples[lo:hi], SampleRate: c.SampleRate}
}

// RMS returns the root-mean-square amplitude of the clip, in linear scale.
// Returns 0 for an empty clip.
func (c *Clip) RMS() float64 {
	if len(c.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range c.Samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(c.Samples)))
}

// RMSdB returns the RMS level in dBFS. Digital silence maps to -120 dB
// rather than -Inf so the value stays comparable and serialisable.
func (c *Clip) RMSdB() float64 {
	rms := c.RMS()
	if rms <= 0 {
		return -120
	}
	db := 20 * math.Log10(rms)
	if db < -120 {
		return -120
	}
	return db
}
