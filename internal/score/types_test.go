package score

import "testing"

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  Status
	}{
		{95, StatusGood},
		{70, StatusGood},
		{69.9, StatusWeak},
		{40, StatusWeak},
		{39.9, StatusPoor},
		{0, StatusPoor},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.score); got != tt.want {
			t.Errorf("StatusFor(%f) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestPlaceMissing(t *testing.T) {
	t.Parallel()

	words := []Word{
		{Text: "the", Start: 0.0, End: 0.3, Status: StatusGood},
		{Text: "quick", Status: StatusMissing},
		{Text: "fox", Start: 0.9, End: 1.3, Status: StatusGood},
		{Text: "jumps", Status: StatusMissing},
		{Text: "high", Status: StatusMissing},
	}

	PlaceMissing(words)

	// An interior omission sits at the end of the last spoken word.
	if words[1].Start != 0.3 || words[1].End != 0.3 {
		t.Errorf("interior missing span = [%f, %f], want [0.3, 0.3]", words[1].Start, words[1].End)
	}
	// Trailing omissions all land at the final spoken offset.
	for _, i := range []int{3, 4} {
		if words[i].Start != 1.3 || words[i].End != 1.3 {
			t.Errorf("trailing missing word %d span = [%f, %f], want [1.3, 1.3]", i, words[i].Start, words[i].End)
		}
	}
	// Zero-length spans never count as usable timing.
	if words[1].Timed() || words[3].Timed() {
		t.Error("missing word reports Timed() = true")
	}
	if words[2].Start != 0.9 || words[2].End != 1.3 {
		t.Errorf("spoken word moved: %+v", words[2])
	}
}
