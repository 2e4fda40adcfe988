package steps

import (
	"math"
	"strings"
	"testing"
)

func TestAddTrackStraightLineSteps(t *testing.T) {
	// Straight line, 0.5 µm/frame: step at lag τ is 0.5τ, angles all 0°.
	x := []float64{0, 0.5, 1.0, 1.5, 2.0}
	y := []float64{0, 0, 0, 0, 0}

	var tb Table
	tb.AddTrack("ctrl_1", x, y, 2)

	byLag := tb.StepsByLag("ctrl_1")
	if len(byLag[1]) != 4 || len(byLag[2]) != 3 {
		t.Fatalf("unexpected step counts: lag1=%d lag2=%d", len(byLag[1]), len(byLag[2]))
	}
	for _, s := range byLag[1] {
		if math.Abs(s-0.5) > 1e-12 {
			t.Errorf("lag-1 step = %g, want 0.5", s)
		}
	}
	for _, s := range byLag[2] {
		if math.Abs(s-1.0) > 1e-12 {
			t.Errorf("lag-2 step = %g, want 1.0", s)
		}
	}

	for _, a := range tb.Angles {
		if math.Abs(a.AngleDeg) > 1e-9 {
			t.Errorf("straight line turning angle = %g°, want 0", a.AngleDeg)
		}
	}
}

func TestAddTrackRightAngleTurn(t *testing.T) {
	// Right-angle path: (0,0) → (1,0) → (1,1).
	x := []float64{0, 1, 1}
	y := []float64{0, 0, 1}

	var tb Table
	tb.AddTrack("g", x, y, 1)

	if len(tb.Angles) != 1 {
		t.Fatalf("expected 1 angle, got %d", len(tb.Angles))
	}
	if math.Abs(tb.Angles[0].AngleDeg-90) > 1e-9 {
		t.Errorf("angle = %g°, want 90", tb.Angles[0].AngleDeg)
	}
}

func TestAddTrackReversalIs180(t *testing.T) {
	x := []float64{0, 1, 0}
	y := []float64{0, 0, 0}

	var tb Table
	tb.AddTrack("g", x, y, 1)
	if len(tb.Angles) != 1 {
		t.Fatalf("expected 1 angle, got %d", len(tb.Angles))
	}
	if math.Abs(tb.Angles[0].AngleDeg-180) > 1e-9 {
		t.Errorf("angle = %g°, want 180", tb.Angles[0].AngleDeg)
	}
}

func TestAddTrackSkipsZeroDisplacements(t *testing.T) {
	// Middle displacement has zero length; no direction, no angle.
	x := []float64{0, 1, 1}
	y := []float64{0, 0, 0}
	// displacements: (1,0) then (0,0)

	var tb Table
	tb.AddTrack("g", x, y, 1)
	if len(tb.Angles) != 0 {
		t.Errorf("expected no angles for zero-length displacement, got %d", len(tb.Angles))
	}
}

func TestAddTrackLagSemanticsMatchMSD(t *testing.T) {
	// Same clamping rule as the MSD computer: max lag = N-1.
	x := []float64{0, 1, 2}
	y := []float64{0, 0, 0}

	var tb Table
	tb.AddTrack("g", x, y, 10)
	byLag := tb.StepsByLag("g")
	if len(byLag) != 2 {
		t.Errorf("expected lags 1..2 only, got %d lags", len(byLag))
	}
}

func TestWriteStepsFormat(t *testing.T) {
	var tb Table
	tb.Steps = []StepRow{{Group: "ctrl", Tlag: 1, StepSize: 0.25}}

	var sb strings.Builder
	if err := tb.WriteSteps(&sb); err != nil {
		t.Fatal(err)
	}
	got := sb.String()
	want := "group\ttlag\tstep_size\nctrl\t1\t0.25\n"
	if got != want {
		t.Errorf("WriteSteps output %q, want %q", got, want)
	}
}

func TestMergeAndGroups(t *testing.T) {
	var a, b Table
	a.AddTrack("ctrl_1", []float64{0, 1}, []float64{0, 0}, 1)
	b.AddTrack("drug_1", []float64{0, 2}, []float64{0, 0}, 1)

	a.Merge(&b)
	groups := a.Groups()
	if len(groups) != 2 || groups[0] != "ctrl_1" || groups[1] != "drug_1" {
		t.Errorf("unexpected groups: %v", groups)
	}
}
