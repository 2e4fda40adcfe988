// Package results aggregates per-track fit outcomes into replicate tables,
// pools them into per-condition ensembles and renders the CSV outputs
// consumed downstream.
package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/tracklab/sptfit/internal/fit"
)

// FitRow is one fitted track: identity, grouping labels and the diffusion
// descriptors. Rows are immutable once created.
type FitRow struct {
	TrackID   string
	Condition string
	Replicate string
	D         float64
	Alpha     float64
	R2        float64
	Method    fit.Method
}

// ReplicateTable collects the fit rows of one replicate together with the
// diagnostic counts that distinguish "no tracks met the length threshold"
// from "tracks present but fits failed". Failed fits never appear in Rows.
type ReplicateTable struct {
	Condition string
	Replicate string
	Rows      []FitRow

	TracksTotal int // tracks read from the file, before any exclusion
	ShortTracks int // excluded before fitting (below minimum length)
	FailedFits  int // fewer than 2 usable lag points even for the fallback
}

// Add records a fit result for a track. Failed fits increment the failure
// count and are excluded from the table. Row order follows insertion
// order, which the engine keeps sorted by track ID, so repeat runs of the
// same input produce byte-identical tables.
func (t *ReplicateTable) Add(trackID string, res fit.Result) {
	if res.Method == fit.MethodFailed {
		t.FailedFits++
		return
	}
	t.Rows = append(t.Rows, FitRow{
		TrackID:   trackID,
		Condition: t.Condition,
		Replicate: t.Replicate,
		D:         res.D,
		Alpha:     res.Alpha,
		R2:        res.R2,
		Method:    res.Method,
	})
}

// WriteCSV renders the replicate table as msd_results.csv.
func (t *ReplicateTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"track_id", "condition", "D_fit", "alpha_fit", "r2_fit", "fit_method"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range t.Rows {
		record := []string{
			r.TrackID,
			r.Condition,
			formatFloat(r.D),
			formatFloat(r.Alpha),
			formatFloat(r.R2),
			string(r.Method),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row for track %s: %w", r.TrackID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatFloat renders a value for CSV output. The −Inf R² sentinel is
// written literally so a reader can distinguish it from data corruption.
func formatFloat(v float64) string {
	if math.IsInf(v, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', 9, 64)
}

// Ensemble is the pool of fit rows for one condition across replicates.
type Ensemble struct {
	Condition string
	Rows      []FitRow
}

// PoolByCondition concatenates replicate tables per condition. Ensembles
// come back sorted by condition name and rows keep replicate order, so
// pooling is deterministic.
func PoolByCondition(tables []*ReplicateTable) []Ensemble {
	byCondition := make(map[string][]FitRow)
	for _, t := range tables {
		byCondition[t.Condition] = append(byCondition[t.Condition], t.Rows...)
	}

	conditions := make([]string, 0, len(byCondition))
	for c := range byCondition {
		conditions = append(conditions, c)
	}
	sort.Strings(conditions)

	out := make([]Ensemble, 0, len(conditions))
	for _, c := range conditions {
		out = append(out, Ensemble{Condition: c, Rows: byCondition[c]})
	}
	return out
}

// Filter returns the subset of rows within the D and α bounds, inclusive.
func (e Ensemble) Filter(dMin, dMax, alphaMin, alphaMax float64) Ensemble {
	filtered := Ensemble{Condition: e.Condition}
	for _, r := range e.Rows {
		if r.D >= dMin && r.D <= dMax && r.Alpha >= alphaMin && r.Alpha <= alphaMax {
			filtered.Rows = append(filtered.Rows, r)
		}
	}
	return filtered
}

// DValues returns the diffusion coefficients of the ensemble.
func (e Ensemble) DValues() []float64 {
	out := make([]float64, len(e.Rows))
	for i, r := range e.Rows {
		out[i] = r.D
	}
	return out
}

// AlphaValues returns the anomalous exponents of the ensemble.
func (e Ensemble) AlphaValues() []float64 {
	out := make([]float64, len(e.Rows))
	for i, r := range e.Rows {
		out[i] = r.Alpha
	}
	return out
}

// WriteCSV renders the pooled ensemble in the same column layout as a
// replicate table.
func (e Ensemble) WriteCSV(w io.Writer) error {
	t := ReplicateTable{Condition: e.Condition, Rows: e.Rows}
	return t.WriteCSV(w)
}

// MedianD is the median diffusion coefficient of one replicate, used for
// the per-condition replicate-median comparison.
type MedianD struct {
	Condition string
	Replicate string
	Median    float64
}

// ReplicateMedians computes the median D of each replicate table after
// applying the D filter bounds. Replicates whose filtered table is empty
// are skipped.
func ReplicateMedians(tables []*ReplicateTable, dMin, dMax float64) []MedianD {
	var out []MedianD
	for _, t := range tables {
		var ds []float64
		for _, r := range t.Rows {
			if r.D >= dMin && r.D <= dMax {
				ds = append(ds, r.D)
			}
		}
		if len(ds) == 0 {
			continue
		}
		sort.Float64s(ds)
		var median float64
		n := len(ds)
		if n%2 == 1 {
			median = ds[n/2]
		} else {
			median = (ds[n/2-1] + ds[n/2]) / 2
		}
		out = append(out, MedianD{Condition: t.Condition, Replicate: t.Replicate, Median: median})
	}
	return out
}
