// Package engine orchestrates a full analysis run: discover replicate
// trajectory files, fan each one out to a fitting pool, then aggregate
// the per-replicate tables into ensembles, comparisons and figures.
package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tracklab/sptfit/internal/config"
	"github.com/tracklab/sptfit/internal/fit"
	"github.com/tracklab/sptfit/internal/msd"
	"github.com/tracklab/sptfit/internal/report"
	"github.com/tracklab/sptfit/internal/results"
	"github.com/tracklab/sptfit/internal/resultsdb"
	"github.com/tracklab/sptfit/internal/stats"
	"github.com/tracklab/sptfit/internal/steps"
	"github.com/tracklab/sptfit/internal/trackstore"
)

// Engine runs the analysis pipeline. DB is optional; when set, run
// headers and fit tables are persisted for later comparison.
type Engine struct {
	Params config.Params
	Log    *log.Logger
	DB     *resultsdb.DB
}

// RunSummary reports what a run produced.
type RunSummary struct {
	RunID      string
	Replicates []*results.ReplicateTable
	Ensembles  []results.Ensemble
	Skipped    []string
	PlotFiles  []string
	ReportFile string
}

func (e *Engine) logf(format string, args ...interface{}) {
	l := e.Log
	if l == nil {
		l = log.Default()
	}
	l.Printf(format, args...)
}

// ProcessReplicate analyses one trajectory file: build tracks, compute
// per-track MSD series in parallel, fit each series, and accumulate the
// step-size/angle table. The returned slices follow sorted track order,
// so output is deterministic regardless of worker count.
func (e *Engine) ProcessReplicate(rep Replicate) (*results.ReplicateTable, *steps.Table, []msd.Series, error) {
	points, err := trackstore.ReadTrajectoryFile(rep.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read %s: %w", rep.Path, err)
	}

	store := trackstore.Build(points, e.Params.MinTrackLength, e.Params.MicronsPerPixel)
	if store.DuplicatePoints > 0 {
		e.logf("replicate %s: discarded %d duplicate (track, frame) points", rep.Name, store.DuplicatePoints)
	}

	workers := e.Params.EffectiveThreads()
	series := msd.ComputeAll(store.Tracks, e.Params.TlagCutoff, workers)

	fitOpts := fit.DefaultOptions()
	fits := make([]fit.Result, len(series))
	var wg sync.WaitGroup
	idxCh := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				fits[i] = fit.Fit(series[i].LagTimes(e.Params.TimeStepSecs), series[i].Values, fitOpts)
			}
		}()
	}
	for i := range series {
		idxCh <- i
	}
	close(idxCh)
	wg.Wait()

	table := &results.ReplicateTable{
		Condition:   rep.Condition,
		Replicate:   rep.Name,
		TracksTotal: len(store.Tracks) + store.ShortTracks,
		ShortTracks: store.ShortTracks,
	}
	stepTable := &steps.Table{}
	for i, tr := range store.Tracks {
		table.Add(tr.ID, fits[i])
		stepTable.AddTrack(rep.Condition, tr.X, tr.Y, e.Params.TlagCutoff)
	}

	e.logf("replicate %s: %d tracks fitted, %d short, %d failed",
		rep.Name, len(table.Rows), table.ShortTracks, table.FailedFits)
	return table, stepTable, series, nil
}

type replicateResult struct {
	rep    Replicate
	table  *results.ReplicateTable
	steps  *steps.Table
	series []msd.Series
	err    error
}

// Run executes the pipeline over every replicate in workDir and writes
// all outputs under outDir.
func (e *Engine) Run(workDir, outDir string) (*RunSummary, error) {
	if err := e.Params.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	reps, skipped, err := DiscoverReplicates(workDir)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		e.logf("skipping empty trajectory file %s", s)
	}
	if len(reps) == 0 {
		return nil, fmt.Errorf("no trajectory files found in %s", workDir)
	}
	e.logf("found %d replicates in %s", len(reps), workDir)

	// Fan replicates out to Jobs workers. Results land in an indexed
	// slice so replicate order is stable.
	resultsByIdx := make([]replicateResult, len(reps))
	var wg sync.WaitGroup
	idxCh := make(chan int)
	jobs := e.Params.Jobs
	if jobs < 1 {
		jobs = 1
	}
	for w := 0; w < jobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				rep := reps[i]
				table, stepTable, series, err := e.ProcessReplicate(rep)
				resultsByIdx[i] = replicateResult{rep: rep, table: table, steps: stepTable, series: series, err: err}
			}
		}()
	}
	for i := range reps {
		idxCh <- i
	}
	close(idxCh)
	wg.Wait()

	var tables []*results.ReplicateTable
	mergedSteps := &steps.Table{}
	seriesByCondition := make(map[string][]msd.Series)
	for _, r := range resultsByIdx {
		if r.err != nil {
			return nil, fmt.Errorf("replicate %s: %w", r.rep.Name, r.err)
		}
		tables = append(tables, r.table)
		mergedSteps.Merge(r.steps)
		seriesByCondition[r.rep.Condition] = append(seriesByCondition[r.rep.Condition], r.series...)

		if err := writeReplicateCSV(outDir, r.rep.Name, r.table); err != nil {
			return nil, err
		}
	}

	summary := &RunSummary{Replicates: tables, Skipped: skipped}

	// Pool per condition and apply the ensemble filters.
	pooled := results.PoolByCondition(tables)
	filtered := make([]results.Ensemble, 0, len(pooled))
	for _, ens := range pooled {
		f := ens.Filter(e.Params.FilterDMin, e.Params.FilterDMax, e.Params.FilterAlphaMin, e.Params.FilterAlphaMax)
		e.logf("condition %s: %d of %d tracks pass filters", ens.Condition, len(f.Rows), len(ens.Rows))
		filtered = append(filtered, f)
		if err := writeEnsembleCSV(outDir, f); err != nil {
			return nil, err
		}
	}
	summary.Ensembles = filtered

	if err := writeStepTables(outDir, mergedSteps); err != nil {
		return nil, err
	}

	curves := ensembleMSDCurves(seriesByCondition, e.Params.TimeStepSecs)
	medians := results.ReplicateMedians(tables, e.Params.FilterDMin, e.Params.FilterDMax)
	comparisons := compareConditions(filtered)

	plotFiles, err := e.renderPlots(outDir, curves, filtered, medians, mergedSteps)
	if err != nil {
		return nil, err
	}
	summary.PlotFiles = plotFiles

	htmlReport := &report.HTMLReport{
		Title:       "Single-particle tracking report",
		MSDCurves:   curves,
		Ensembles:   filtered,
		Medians:     medians,
		Comparisons: comparisons,
	}
	reportFile, err := htmlReport.Save(outDir)
	if err != nil {
		return nil, err
	}
	summary.ReportFile = reportFile

	if err := e.writeRunParams(outDir, workDir, summary); err != nil {
		return nil, err
	}

	if e.DB != nil {
		run := resultsdb.NewRun(workDir, e.Params)
		if err := e.DB.InsertRun(run); err != nil {
			return nil, err
		}
		for _, t := range tables {
			if err := e.DB.InsertReplicateTable(run.RunID, t); err != nil {
				return nil, err
			}
		}
		summary.RunID = run.RunID
		e.logf("persisted run %s (%d replicates)", run.RunID, len(tables))
	}

	return summary, nil
}

// ensembleMSDCurves averages per-track MSD values per condition, weighted
// by the displacement count behind each lag.
func ensembleMSDCurves(byCondition map[string][]msd.Series, timeStepSecs float64) []report.MSDCurve {
	conditions := make([]string, 0, len(byCondition))
	for c := range byCondition {
		conditions = append(conditions, c)
	}
	sort.Strings(conditions)

	var curves []report.MSDCurve
	for _, cond := range conditions {
		var maxLen int
		for _, s := range byCondition[cond] {
			if s.Len() > maxLen {
				maxLen = s.Len()
			}
		}
		if maxLen == 0 {
			continue
		}
		sums := make([]float64, maxLen)
		counts := make([]float64, maxLen)
		for _, s := range byCondition[cond] {
			for i := range s.Lags {
				w := float64(s.Counts[i])
				sums[i] += s.Values[i] * w
				counts[i] += w
			}
		}
		curve := report.MSDCurve{Condition: cond}
		for i := 0; i < maxLen; i++ {
			if counts[i] == 0 {
				continue
			}
			curve.LagTimes = append(curve.LagTimes, float64(i+1)*timeStepSecs)
			curve.Values = append(curve.Values, sums[i]/counts[i])
		}
		curves = append(curves, curve)
	}
	return curves
}

// compareConditions runs KS and Mann-Whitney U tests on the filtered D
// distributions of every condition pair, in sorted pair order.
func compareConditions(ensembles []results.Ensemble) []report.Comparison {
	var out []report.Comparison
	for i := 0; i < len(ensembles); i++ {
		for j := i + 1; j < len(ensembles); j++ {
			a, b := ensembles[i], ensembles[j]
			if len(a.Rows) == 0 || len(b.Rows) == 0 {
				continue
			}
			out = append(out, report.Comparison{
				CondA: a.Condition,
				CondB: b.Condition,
				KS:    stats.KolmogorovSmirnov(a.DValues(), b.DValues()),
				MWU:   stats.MannWhitneyU(a.DValues(), b.DValues()),
			})
		}
	}
	return out
}

func (e *Engine) renderPlots(outDir string, curves []report.MSDCurve, ensembles []results.Ensemble, medians []results.MedianD, stepTable *steps.Table) ([]string, error) {
	pl, err := report.NewPlotter(filepath.Join(outDir, "plots"))
	if err != nil {
		return nil, err
	}

	var files []string
	if len(curves) > 0 {
		f, err := pl.SaveMSDCurves(curves)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	for _, ens := range ensembles {
		if len(ens.Rows) == 0 {
			continue
		}
		// D spans decades, so the histogram is binned in log10 space.
		logD := make([]float64, 0, len(ens.Rows))
		for _, d := range ens.DValues() {
			if d > 0 {
				logD = append(logD, math.Log10(d))
			}
		}
		if len(logD) == 0 {
			continue
		}
		f, err := pl.SaveHistogram(ens.Condition, "D", "log10 D (µm²/s)", logD, 30)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		f, err = pl.SaveHistogram(ens.Condition, "alpha", "alpha", ens.AlphaValues(), 30)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	if len(medians) > 0 {
		f, err := pl.SaveReplicateMedians(medians)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	stepFiles, err := e.renderStepPlots(pl, stepTable)
	if err != nil {
		return nil, err
	}
	files = append(files, stepFiles...)
	return files, nil
}

// renderStepPlots produces per-lag step-size KDE figures and, for each
// condition pair, the KS p-value trace across lags.
func (e *Engine) renderStepPlots(pl *report.Plotter, stepTable *steps.Table) ([]string, error) {
	groups := stepTable.Groups()
	if len(groups) == 0 {
		return nil, nil
	}

	byGroup := make(map[string]map[int][]float64, len(groups))
	for _, g := range groups {
		byGroup[g] = stepTable.StepsByLag(g)
	}

	var files []string
	for tlag := 1; tlag <= e.Params.TlagCutoff; tlag++ {
		var curves []report.KDECurve
		maxStep := 0.0
		for _, g := range groups {
			for _, s := range byGroup[g][tlag] {
				if s > maxStep {
					maxStep = s
				}
			}
		}
		if maxStep == 0 {
			continue
		}
		grid := make([]float64, 256)
		for i := range grid {
			grid[i] = maxStep * 1.05 * float64(i) / float64(len(grid)-1)
		}
		for _, g := range groups {
			sample := byGroup[g][tlag]
			if len(sample) < 2 {
				continue
			}
			curves = append(curves, report.KDECurve{
				Condition: g,
				X:         grid,
				Density:   stats.GaussianKDE(sample, grid),
				Alpha2:    stats.Alpha2(sample),
			})
		}
		if len(curves) == 0 {
			continue
		}
		f, err := pl.SaveStepKDE(tlag, curves)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			var rows []report.KSByLag
			for tlag := 1; tlag <= e.Params.TlagCutoff; tlag++ {
				a := byGroup[groups[i]][tlag]
				b := byGroup[groups[j]][tlag]
				if len(a) == 0 || len(b) == 0 {
					continue
				}
				rows = append(rows, report.KSByLag{Tlag: tlag, Result: stats.KolmogorovSmirnov(a, b)})
			}
			if len(rows) == 0 {
				continue
			}
			f, err := pl.SaveKSPValues(groups[i], groups[j], rows)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}
	return files, nil
}

func writeReplicateCSV(outDir, name string, table *results.ReplicateTable) error {
	path := filepath.Join(outDir, fmt.Sprintf("%s_msd_results.csv", name))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := table.WriteCSV(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeEnsembleCSV(outDir string, ens results.Ensemble) error {
	path := filepath.Join(outDir, fmt.Sprintf("ensemble_%s_msd_results.csv", ens.Condition))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := ens.WriteCSV(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeStepTables(outDir string, tb *steps.Table) error {
	stepsPath := filepath.Join(outDir, "all_data_step_sizes.txt")
	f, err := os.Create(stepsPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", stepsPath, err)
	}
	defer f.Close()
	if err := tb.WriteSteps(f); err != nil {
		return fmt.Errorf("write %s: %w", stepsPath, err)
	}

	anglesPath := filepath.Join(outDir, "all_data_angles.txt")
	g, err := os.Create(anglesPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", anglesPath, err)
	}
	defer g.Close()
	if err := tb.WriteAngles(g); err != nil {
		return fmt.Errorf("write %s: %w", anglesPath, err)
	}
	return nil
}

// writeRunParams records the effective parameters and per-replicate
// counts alongside the outputs, so a results directory is
// self-describing.
func (e *Engine) writeRunParams(outDir, workDir string, summary *RunSummary) error {
	type replicateInfo struct {
		Replicate   string `json:"replicate"`
		Condition   string `json:"condition"`
		TracksTotal int    `json:"tracks_total"`
		ShortTracks int    `json:"short_tracks"`
		FailedFits  int    `json:"failed_fits"`
	}
	doc := struct {
		WorkDir    string          `json:"work_dir"`
		Params     config.Params   `json:"params"`
		Skipped    []string        `json:"skipped_files,omitempty"`
		Replicates []replicateInfo `json:"replicates"`
	}{WorkDir: workDir, Params: e.Params, Skipped: summary.Skipped}
	for _, t := range summary.Replicates {
		doc.Replicates = append(doc.Replicates, replicateInfo{
			Replicate:   t.Replicate,
			Condition:   t.Condition,
			TracksTotal: t.TracksTotal,
			ShortTracks: t.ShortTracks,
			FailedFits:  t.FailedFits,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run params: %w", err)
	}
	path := filepath.Join(outDir, "run_params.json")
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write run params: %w", err)
	}
	return nil
}
