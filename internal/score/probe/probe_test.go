package probe

import (
	"math"
	"testing"

	"github.com/MrWong99/cadence/pkg/audio"
)

// toneClip builds a clip that is silent except for a tone burst covering
// [from, to) seconds.
func toneClip(durSec, from, to float64, sampleRate int) *audio.Clip {
	samples := make([]float32, int(durSec*float64(sampleRate)))
	lo := int(from * float64(sampleRate))
	hi := int(to * float64(sampleRate))
	for i := lo; i < hi && i < len(samples); i++ {
		samples[i] = float32(0.4 * math.Sin(2*math.Pi*220*float64(i)/float64(sampleRate)))
	}
	return &audio.Clip{Samples: samples, SampleRate: sampleRate}
}

func TestAnalyzeSilenceRatio(t *testing.T) {
	t.Parallel()

	// 2 s clip, speech only in the first second: silence ratio ~0.5.
	clip := toneClip(2.0, 0, 1.0, 16000)
	q := Analyze(clip)

	if math.Abs(q.Duration-2.0) > 0.01 {
		t.Errorf("Duration = %f, want ~2.0", q.Duration)
	}
	if q.SilenceRatio < 0.4 || q.SilenceRatio > 0.6 {
		t.Errorf("SilenceRatio = %f, want ~0.5", q.SilenceRatio)
	}
	if q.ClippingRatio != 0 {
		t.Errorf("ClippingRatio = %f, want 0", q.ClippingRatio)
	}
}

func TestAnalyzeClipping(t *testing.T) {
	t.Parallel()

	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = 1.0
	}
	q := Analyze(&audio.Clip{Samples: samples, SampleRate: 16000})
	if q.ClippingRatio != 1.0 {
		t.Errorf("ClippingRatio = %f, want 1.0", q.ClippingRatio)
	}
}

func TestAnalyzeAllSilent(t *testing.T) {
	t.Parallel()

	q := Analyze(&audio.Clip{Samples: make([]float32, 16000), SampleRate: 16000})
	if q.SilenceRatio != 1.0 {
		t.Errorf("SilenceRatio = %f, want 1.0", q.SilenceRatio)
	}
	if q.RMSdB != -120 {
		t.Errorf("RMSdB = %f, want -120", q.RMSdB)
	}
}

func TestSpeechBounds(t *testing.T) {
	t.Parallel()

	clip := toneClip(3.0, 1.0, 2.0, 16000)
	start, end := SpeechBounds(clip)
	if math.Abs(start-1.0) > 0.05 {
		t.Errorf("start = %f, want ~1.0", start)
	}
	if math.Abs(end-2.0) > 0.05 {
		t.Errorf("end = %f, want ~2.0", end)
	}
}

func TestSpeechBoundsSilent(t *testing.T) {
	t.Parallel()

	start, end := SpeechBounds(&audio.Clip{Samples: make([]float32, 16000), SampleRate: 16000})
	if start != 0 || end != 0 {
		t.Errorf("bounds = (%f, %f), want (0, 0)", start, end)
	}
}
