// Package steps derives per-lag step-size and turning-angle distributions
// from track positions. It shares the position-index lag convention with
// the msd package so the two derived quantities stay comparable; no
// fitting happens here, only aggregation into long-form tables consumed by
// the distributional analyses downstream.
package steps

import (
	"fmt"
	"io"
	"math"
)

// StepRow is one long-form step-size observation: the Euclidean
// displacement magnitude (µm) between positions tlag apart, tagged with a
// caller-supplied group label.
type StepRow struct {
	Group    string
	Tlag     int
	StepSize float64
}

// AngleRow is one long-form turning-angle observation: the angle (degrees,
// [0, 180]) between successive displacement vectors at the same lag.
type AngleRow struct {
	Group    string
	Tlag     int
	AngleDeg float64
}

// Table accumulates step and angle rows across the tracks of a replicate.
type Table struct {
	Steps  []StepRow
	Angles []AngleRow
}

// AddTrack appends the step sizes and turning angles of one track for
// every lag 1..min(maxLag, N−1). Positions are parallel x/y slices in
// micrometres, ordered by frame.
func (tb *Table) AddTrack(group string, x, y []float64, maxLag int) {
	n := len(x)
	if n < 2 || maxLag < 1 {
		return
	}
	if maxLag > n-1 {
		maxLag = n - 1
	}

	for lag := 1; lag <= maxLag; lag++ {
		for i := 0; i+lag < n; i++ {
			dx := x[i+lag] - x[i]
			dy := y[i+lag] - y[i]
			tb.Steps = append(tb.Steps, StepRow{
				Group:    group,
				Tlag:     lag,
				StepSize: math.Hypot(dx, dy),
			})
		}

		// Turning angle between the displacement starting at i and the
		// one starting at i+lag. Zero-length displacements carry no
		// direction and are skipped.
		for i := 0; i+2*lag < n; i++ {
			ux := x[i+lag] - x[i]
			uy := y[i+lag] - y[i]
			vx := x[i+2*lag] - x[i+lag]
			vy := y[i+2*lag] - y[i+lag]
			nu := math.Hypot(ux, uy)
			nv := math.Hypot(vx, vy)
			if nu == 0 || nv == 0 {
				continue
			}
			cos := (ux*vx + uy*vy) / (nu * nv)
			if cos > 1 {
				cos = 1
			} else if cos < -1 {
				cos = -1
			}
			tb.Angles = append(tb.Angles, AngleRow{
				Group:    group,
				Tlag:     lag,
				AngleDeg: math.Acos(cos) * 180 / math.Pi,
			})
		}
	}
}

// Merge appends the rows of another table, preserving order.
func (tb *Table) Merge(other *Table) {
	tb.Steps = append(tb.Steps, other.Steps...)
	tb.Angles = append(tb.Angles, other.Angles...)
}

// StepsByLag returns the step sizes of one group keyed by lag.
func (tb *Table) StepsByLag(group string) map[int][]float64 {
	out := make(map[int][]float64)
	for _, r := range tb.Steps {
		if r.Group == group {
			out[r.Tlag] = append(out[r.Tlag], r.StepSize)
		}
	}
	return out
}

// Groups returns the distinct group labels in first-seen order.
func (tb *Table) Groups() []string {
	seen := make(map[string]bool)
	var groups []string
	for _, r := range tb.Steps {
		if !seen[r.Group] {
			seen[r.Group] = true
			groups = append(groups, r.Group)
		}
	}
	return groups
}

// WriteSteps writes the step table in the tab-delimited long form expected
// by the step-size analysis: header "group\ttlag\tstep_size".
func (tb *Table) WriteSteps(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "group\ttlag\tstep_size"); err != nil {
		return err
	}
	for _, r := range tb.Steps {
		if _, err := fmt.Fprintf(w, "%s\t%d\t%.9g\n", r.Group, r.Tlag, r.StepSize); err != nil {
			return err
		}
	}
	return nil
}

// WriteAngles writes the angle table as "group\ttlag\tangle_deg".
func (tb *Table) WriteAngles(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "group\ttlag\tangle_deg"); err != nil {
		return err
	}
	for _, r := range tb.Angles {
		if _, err := fmt.Fprintf(w, "%s\t%d\t%.9g\n", r.Group, r.Tlag, r.AngleDeg); err != nil {
			return err
		}
	}
	return nil
}
