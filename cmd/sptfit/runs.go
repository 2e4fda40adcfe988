package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracklab/sptfit/internal/resultsdb"
)

var (
	flagRunsDB  string
	flagRunID   string
	flagRunJSON bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs or show one run's replicate summary",
	Long: `Runs inspects a results database produced by "analyze --db".
Without --run it lists run headers; with --run it prints the stored
per-replicate counts for that run.

Example:
  sptfit runs --db results.db
  sptfit runs --db results.db --run run_5f2b...`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().StringVar(&flagRunsDB, "db", "", "SQLite results database (required)")
	runsCmd.Flags().StringVar(&flagRunID, "run", "", "show replicate stats for one run id")
	runsCmd.Flags().BoolVar(&flagRunJSON, "json", false, "output as JSON")
	runsCmd.MarkFlagRequired("db")
}

func runRuns(cmd *cobra.Command, args []string) error {
	db, err := resultsdb.Open(flagRunsDB)
	if err != nil {
		return err
	}
	defer db.Close()

	if flagRunID != "" {
		return showRun(db, flagRunID)
	}
	return listRuns(db)
}

func listRuns(db *resultsdb.DB) error {
	runs, err := db.ListRuns()
	if err != nil {
		return err
	}
	if flagRunJSON {
		out, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal runs: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tWORK DIR")
	for _, r := range runs {
		started := time.Unix(0, r.StartedUnixNanos).Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.RunID, started, r.WorkDir)
	}
	return w.Flush()
}

func showRun(db *resultsdb.DB, runID string) error {
	stats, err := db.GetReplicateStats(runID)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		return fmt.Errorf("no replicates stored for run %s", runID)
	}
	if flagRunJSON {
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal stats: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPLICATE\tCONDITION\tTRACKS\tSHORT\tFAILED")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
			s.Replicate, s.Condition, s.TracksTotal, s.ShortTracks, s.FailedFits)
	}
	return w.Flush()
}
