package report

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklab/sptfit/internal/fit"
	"github.com/tracklab/sptfit/internal/results"
	"github.com/tracklab/sptfit/internal/stats"
)

func testCurves() []MSDCurve {
	return []MSDCurve{
		{Condition: "ctrl", LagTimes: []float64{0.01, 0.02, 0.03}, Values: []float64{0.004, 0.008, 0.012}},
		{Condition: "drug", LagTimes: []float64{0.01, 0.02, 0.03}, Values: []float64{0.002, 0.004, 0.006}},
	}
}

func TestPlotterSaveMSDCurves(t *testing.T) {
	pl, err := NewPlotter(t.TempDir())
	require.NoError(t, err)

	file, err := pl.SaveMSDCurves(testCurves())
	require.NoError(t, err)

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestPlotterSaveHistogram(t *testing.T) {
	pl, err := NewPlotter(t.TempDir())
	require.NoError(t, err)

	values := []float64{0.1, 0.2, 0.2, 0.3, 0.5, 0.8, 1.1}
	file, err := pl.SaveHistogram("ctrl", "D", "D (µm²/s)", values, 10)
	require.NoError(t, err)
	assert.FileExists(t, file)

	_, err = pl.SaveHistogram("ctrl", "D", "D (µm²/s)", nil, 10)
	assert.Error(t, err)
}

func TestPlotterSaveStepKDE(t *testing.T) {
	pl, err := NewPlotter(t.TempDir())
	require.NoError(t, err)

	curves := []KDECurve{
		{Condition: "ctrl", X: []float64{0, 0.1, 0.2}, Density: []float64{0.5, 1.2, 0.4}, Alpha2: 0.08},
	}
	file, err := pl.SaveStepKDE(1, curves)
	require.NoError(t, err)
	assert.FileExists(t, file)
	assert.Contains(t, file, "step_kde_tlag_01")
}

func TestPlotterSaveReplicateMedians(t *testing.T) {
	pl, err := NewPlotter(t.TempDir())
	require.NoError(t, err)

	medians := []results.MedianD{
		{Condition: "ctrl", Replicate: "ctrl_1", Median: 0.4},
		{Condition: "ctrl", Replicate: "ctrl_2", Median: 0.5},
		{Condition: "drug", Replicate: "drug_1", Median: 0.2},
	}
	file, err := pl.SaveReplicateMedians(medians)
	require.NoError(t, err)
	assert.FileExists(t, file)
}

func TestPlotterSaveKSPValues(t *testing.T) {
	pl, err := NewPlotter(t.TempDir())
	require.NoError(t, err)

	rows := []KSByLag{
		{Tlag: 1, Result: stats.KSResult{Statistic: 0.4, PValue: 0.02}},
		{Tlag: 2, Result: stats.KSResult{Statistic: 0.3, PValue: 0.11}},
	}
	file, err := pl.SaveKSPValues("ctrl", "drug", rows)
	require.NoError(t, err)
	assert.FileExists(t, file)
}

func TestHTMLReportRender(t *testing.T) {
	rep := &HTMLReport{
		Title:     "sptfit report",
		MSDCurves: testCurves(),
		Ensembles: []results.Ensemble{
			{Condition: "ctrl", Rows: []results.FitRow{
				{TrackID: "1", Condition: "ctrl", D: 0.5, Alpha: 0.9, Method: fit.MethodPowerLaw},
			}},
		},
		Medians: []results.MedianD{
			{Condition: "ctrl", Replicate: "ctrl_1", Median: 0.4},
		},
		Comparisons: []Comparison{
			{CondA: "ctrl", CondB: "drug",
				KS:  stats.KSResult{Statistic: 0.4, PValue: 0.03},
				MWU: stats.MWUResult{U: 12, PValue: 0.008}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, rep.Render(&buf))

	html := buf.String()
	assert.True(t, strings.Contains(html, "Ensemble MSD"))
	assert.True(t, strings.Contains(html, "ctrl"))
	assert.True(t, strings.Contains(html, "Condition comparisons"))
}

func TestHTMLReportSave(t *testing.T) {
	rep := &HTMLReport{Title: "sptfit report", MSDCurves: testCurves()}
	file, err := rep.Save(t.TempDir())
	require.NoError(t, err)
	assert.FileExists(t, file)
}
