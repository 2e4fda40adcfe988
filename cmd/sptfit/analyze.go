package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tracklab/sptfit/internal/config"
	"github.com/tracklab/sptfit/internal/engine"
	"github.com/tracklab/sptfit/internal/resultsdb"
)

var (
	flagParamsFile string
	flagOutDir     string
	flagDBPath     string

	flagTimeStep    float64
	flagMicronPerPx float64
	flagMinTrackLen int
	flagTlagCutoff  int
	flagDMin        float64
	flagDMax        float64
	flagAlphaMin    float64
	flagAlphaMax    float64
	flagJobs        int
	flagThreads     int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <work-dir>",
	Short: "Analyse every Traj_*.csv replicate in a directory",
	Long: `Analyze discovers Traj_*.csv files in <work-dir>, fits a diffusion
model to every track, and writes per-replicate result tables, pooled
ensemble tables, step-size statistics, figures and an HTML report into
the output directory.

Example:
  sptfit analyze ./experiment1 --out ./experiment1/results
  sptfit analyze ./experiment1 --params params.json --db results.db`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&flagParamsFile, "params", "", "JSON params file; flags override its values")
	f.StringVar(&flagOutDir, "out", "", "output directory (default: <work-dir>/results)")
	f.StringVar(&flagDBPath, "db", "", "optional SQLite database to persist run results")

	defaults := config.DefaultParams()
	f.Float64Var(&flagTimeStep, "time-step", defaults.TimeStepSecs, "acquisition interval between frames (seconds)")
	f.Float64Var(&flagMicronPerPx, "micron-per-px", defaults.MicronsPerPixel, "pixel size in micrometres")
	f.IntVar(&flagMinTrackLen, "min-track-len", defaults.MinTrackLength, "minimum frames per analysed track")
	f.IntVar(&flagTlagCutoff, "tlag-cutoff", defaults.TlagCutoff, "maximum lag (frame-steps) for MSD and fitting")
	f.Float64Var(&flagDMin, "min-d", defaults.FilterDMin, "ensemble filter: minimum D")
	f.Float64Var(&flagDMax, "max-d", defaults.FilterDMax, "ensemble filter: maximum D")
	f.Float64Var(&flagAlphaMin, "min-alpha", defaults.FilterAlphaMin, "ensemble filter: minimum alpha")
	f.Float64Var(&flagAlphaMax, "max-alpha", defaults.FilterAlphaMax, "ensemble filter: maximum alpha")
	f.IntVar(&flagJobs, "jobs", defaults.Jobs, "replicates processed concurrently")
	f.IntVar(&flagThreads, "threads", 0, "per-replicate track workers (0 = derive from CPU count)")
}

// buildParams layers the params file (if any) over the defaults, then
// explicitly-set flags over both.
func buildParams(cmd *cobra.Command) (config.Params, error) {
	p := config.DefaultParams()
	if flagParamsFile != "" {
		loaded, err := config.LoadParams(flagParamsFile)
		if err != nil {
			return config.Params{}, err
		}
		p = loaded
	}

	set := map[string]func(){
		"time-step":     func() { p.TimeStepSecs = flagTimeStep },
		"micron-per-px": func() { p.MicronsPerPixel = flagMicronPerPx },
		"min-track-len": func() { p.MinTrackLength = flagMinTrackLen },
		"tlag-cutoff":   func() { p.TlagCutoff = flagTlagCutoff },
		"min-d":         func() { p.FilterDMin = flagDMin },
		"max-d":         func() { p.FilterDMax = flagDMax },
		"min-alpha":     func() { p.FilterAlphaMin = flagAlphaMin },
		"max-alpha":     func() { p.FilterAlphaMax = flagAlphaMax },
		"jobs":          func() { p.Jobs = flagJobs },
		"threads":       func() { p.ThreadsPerReplicate = flagThreads },
	}
	for name, apply := range set {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}

	if err := p.Validate(); err != nil {
		return config.Params{}, err
	}
	return p, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	workDir := args[0]
	if info, err := os.Stat(workDir); err != nil || !info.IsDir() {
		return fmt.Errorf("work dir %s is not a directory", workDir)
	}

	params, err := buildParams(cmd)
	if err != nil {
		return err
	}

	outDir := flagOutDir
	if outDir == "" {
		outDir = filepath.Join(workDir, "results")
	}

	e := &engine.Engine{
		Params: params,
		Log:    log.New(os.Stderr, "sptfit: ", log.LstdFlags),
	}
	if flagDBPath != "" {
		db, err := resultsdb.Open(flagDBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		e.DB = db
	}

	summary, err := e.Run(workDir, outDir)
	if err != nil {
		return err
	}

	fmt.Printf("analysed %d replicates, %d conditions\n", len(summary.Replicates), len(summary.Ensembles))
	for _, t := range summary.Replicates {
		fmt.Printf("  %-20s %4d fitted  %4d short  %4d failed\n",
			t.Replicate, len(t.Rows), t.ShortTracks, t.FailedFits)
	}
	fmt.Printf("report: %s\n", summary.ReportFile)
	if summary.RunID != "" {
		fmt.Printf("run id: %s\n", summary.RunID)
	}
	return nil
}
