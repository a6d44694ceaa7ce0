package audio

import (
	"math"
	"testing"
)

func TestPitchContourSineTone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		freq float64
	}{
		{"low voice", 110},
		{"mid voice", 220},
		{"high voice", 330},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clip := sineClip(tt.freq, 0.5, 16000, 0.5)
			contour := PitchContour(clip, DefaultFrameSec, DefaultHopSec)
			if len(contour) == 0 {
				t.Fatal("empty contour")
			}
			voiced := VoicedFrames(contour)
			if len(voiced) == 0 {
				t.Fatal("no voiced frames for a pure tone")
			}
			var sum float64
			for _, f := range voiced {
				sum += f
			}
			mean := sum / float64(len(voiced))
			// Autocorrelation lag quantisation allows a few percent error.
			if math.Abs(mean-tt.freq)/tt.freq > 0.06 {
				t.Errorf("mean F0 = %.1f Hz, want ~%.1f Hz", mean, tt.freq)
			}
		})
	}
}

func TestPitchContourSilenceIsUnvoiced(t *testing.T) {
	t.Parallel()

	clip := &Clip{Samples: make([]float32, 8000), SampleRate: 16000}
	contour := PitchContour(clip, DefaultFrameSec, DefaultHopSec)
	for i, f := range contour {
		if f != 0 {
			t.Fatalf("frame %d: F0 = %f, want 0 for silence", i, f)
		}
	}
}

func TestFrameEnergies(t *testing.T) {
	t.Parallel()

	clip := sineClip(200, 0.2, 16000, 0.5)
	energies := FrameEnergies(clip, DefaultFrameSec, DefaultHopSec)
	if len(energies) == 0 {
		t.Fatal("no frames")
	}
	// RMS of a 0.5-amplitude sine is 0.5/sqrt(2) ~ 0.354.
	for i, e := range energies {
		if math.Abs(e-0.354) > 0.05 {
			t.Errorf("frame %d energy = %f, want ~0.354", i, e)
		}
	}
}
