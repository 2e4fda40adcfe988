// Package resultsdb persists analysis runs and their fit results to
// SQLite so repeated runs over the same data can be compared later.
// Schema changes are managed with golang-migrate over the embedded
// migration files.
package resultsdb

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tracklab/sptfit/internal/config"
	"github.com/tracklab/sptfit/internal/results"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the results database handle.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the results database at path and applies any
// pending migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Run identifies one invocation of the analysis engine.
type Run struct {
	RunID            string
	StartedUnixNanos int64
	WorkDir          string
	Params           config.Params
}

// NewRun creates a Run record with a fresh identifier.
func NewRun(workDir string, params config.Params) Run {
	return Run{
		RunID:            fmt.Sprintf("run_%s", uuid.NewString()),
		StartedUnixNanos: time.Now().UnixNano(),
		WorkDir:          workDir,
		Params:           params,
	}
}

// InsertRun stores a run header.
func (db *DB) InsertRun(run Run) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO analysis_runs (run_id, started_unix_nanos, work_dir, params_json)
		VALUES (?, ?, ?, ?)
	`, run.RunID, run.StartedUnixNanos, run.WorkDir, string(paramsJSON))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns stored run headers, newest first.
func (db *DB) ListRuns() ([]Run, error) {
	rows, err := db.Query(`
		SELECT run_id, started_unix_nanos, work_dir, params_json
		FROM analysis_runs
		ORDER BY started_unix_nanos DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var paramsJSON string
		if err := rows.Scan(&r.RunID, &r.StartedUnixNanos, &r.WorkDir, &paramsJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
			return nil, fmt.Errorf("parse params for run %s: %w", r.RunID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// InsertReplicateTable stores one replicate's fit rows and diagnostic
// counts inside a single transaction.
func (db *DB) InsertReplicateTable(runID string, table *results.ReplicateTable) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin replicate tx: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO replicate_stats (run_id, replicate, condition, tracks_total, short_tracks, failed_fits)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, table.Replicate, table.Condition, table.TracksTotal, table.ShortTracks, table.FailedFits)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert replicate stats for %s: %w", table.Replicate, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO fit_results (run_id, replicate, condition, track_id, d_fit, alpha_fit, r2_fit, fit_method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare fit insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range table.Rows {
		if _, err := stmt.Exec(runID, r.Replicate, r.Condition, r.TrackID, r.D, r.Alpha, nullIfInf(r.R2), string(r.Method)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert fit row for track %s: %w", r.TrackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replicate tx: %w", err)
	}
	return nil
}

// GetFitRows returns the stored fit rows of a run, ordered by replicate
// then track id.
func (db *DB) GetFitRows(runID string) ([]results.FitRow, error) {
	rows, err := db.Query(`
		SELECT replicate, condition, track_id, d_fit, alpha_fit, r2_fit, fit_method
		FROM fit_results
		WHERE run_id = ?
		ORDER BY replicate, track_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query fit rows: %w", err)
	}
	defer rows.Close()

	var out []results.FitRow
	for rows.Next() {
		var r results.FitRow
		var r2 sql.NullFloat64
		var method string
		if err := rows.Scan(&r.Replicate, &r.Condition, &r.TrackID, &r.D, &r.Alpha, &r2, &method); err != nil {
			return nil, fmt.Errorf("scan fit row: %w", err)
		}
		r.Method = methodFromString(method)
		if r2.Valid {
			r.R2 = r2.Float64
		} else {
			r.R2 = negInf
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fit rows: %w", err)
	}
	return out, nil
}

// ReplicateStats holds the per-replicate diagnostic counts of a run.
type ReplicateStats struct {
	Replicate   string
	Condition   string
	TracksTotal int
	ShortTracks int
	FailedFits  int
}

// GetReplicateStats returns the diagnostic counts of a run, ordered by
// replicate.
func (db *DB) GetReplicateStats(runID string) ([]ReplicateStats, error) {
	rows, err := db.Query(`
		SELECT replicate, condition, tracks_total, short_tracks, failed_fits
		FROM replicate_stats
		WHERE run_id = ?
		ORDER BY replicate
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query replicate stats: %w", err)
	}
	defer rows.Close()

	var out []ReplicateStats
	for rows.Next() {
		var s ReplicateStats
		if err := rows.Scan(&s.Replicate, &s.Condition, &s.TracksTotal, &s.ShortTracks, &s.FailedFits); err != nil {
			return nil, fmt.Errorf("scan replicate stats: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replicate stats: %w", err)
	}
	return out, nil
}
