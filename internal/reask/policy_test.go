package reask

import "testing"

var params = Params{
	MinRerankScore:      0.4,
	ContextTopK:         4,
	MinCitationCoverage: 0.6,
}

func TestShouldReask_EmptyScoresAlwaysReask(t *testing.T) {
	for _, used := range []int{0, 1, 4, 100} {
		if !ShouldReask(nil, used, "", params) {
			t.Errorf("empty scores with %d used chunks must force re-ask", used)
		}
		if !ShouldReask([]float64{}, used, "[cited]", params) {
			t.Errorf("empty scores must force re-ask even with citation markers")
		}
	}
}

func TestShouldReask_ConfidentAnswerAccepted(t *testing.T) {
	scores := []float64{1.0, 1.0, 1.0, 1.0}
	if ShouldReask(scores, 4, "Answer with a citation [Doc 1].", params) {
		t.Error("perfect scores at full coverage with markers must be accepted")
	}
}

func TestShouldReask_LowMeanScore(t *testing.T) {
	scores := []float64{0.3, 0.3, 0.3}
	if !ShouldReask(scores, 4, "[cited]", params) {
		t.Error("mean below threshold must force re-ask")
	}
}

func TestShouldReask_MeanAtThresholdAccepted(t *testing.T) {
	scores := []float64{0.4, 0.4}
	if ShouldReask(scores, 4, "[cited]", params) {
		t.Error("mean equal to threshold must be accepted")
	}
}

func TestShouldReask_MissingCitationMarker(t *testing.T) {
	scores := []float64{0.9, 0.9}
	tests := []struct {
		name   string
		answer string
		reask  bool
	}{
		{"no brackets", "confident but uncited answer", true},
		{"only opening", "half [marker", true},
		{"only closing", "half marker]", true},
		{"both brackets", "cited [1] answer", false},
		{"brackets anywhere", "] backwards [", false}, // coarse check, order not inspected
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldReask(scores, 4, tt.answer, params); got != tt.reask {
				t.Errorf("ShouldReask(%q) = %v, expected %v", tt.answer, got, tt.reask)
			}
		})
	}
}

func TestShouldReask_CoverageThreshold(t *testing.T) {
	scores := []float64{0.9, 0.9}

	// ceil(4 * 0.6) = 3
	if !ShouldReask(scores, 2, "[cited]", params) {
		t.Error("2 used chunks is below the coverage threshold of 3")
	}
	if ShouldReask(scores, 3, "[cited]", params) {
		t.Error("3 used chunks meets the coverage threshold")
	}
}

func TestCoverageThreshold(t *testing.T) {
	tests := []struct {
		name     string
		topK     int
		coverage float64
		want     int
	}{
		{"default", 4, 0.6, 3},
		{"rounds up", 5, 0.5, 3},
		{"minimum one", 0, 0.6, 1},
		{"zero coverage", 4, 0, 1},
		{"full coverage", 4, 1.0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Params{ContextTopK: tt.topK, MinCitationCoverage: tt.coverage}
			if got := CoverageThreshold(p); got != tt.want {
				t.Errorf("CoverageThreshold(%d, %.1f) = %d, expected %d", tt.topK, tt.coverage, got, tt.want)
			}
		})
	}
}

func TestNarrowedChunks(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{4, 3},
		{2, 1},
		{1, 1},
		{0, 1},
	}

	for _, tt := range tests {
		if got := NarrowedChunks(tt.in); got != tt.want {
			t.Errorf("NarrowedChunks(%d) = %d, expected %d", tt.in, got, tt.want)
		}
	}
}
