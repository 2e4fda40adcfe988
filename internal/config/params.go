// Package config defines the immutable analysis parameters shared by every
// stage of the pipeline. A Params value is constructed once per run
// (from flags or a JSON file), validated, and passed by value into each
// component; no package reads ambient state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Params holds the analysis configuration for one run.
type Params struct {
	// TimeStepSecs is the acquisition interval between frames (seconds/frame).
	TimeStepSecs float64 `json:"time_step_secs"`

	// MicronsPerPixel converts raw pixel coordinates to micrometres at
	// ingestion. Set to 1.0 when positions arrive already converted.
	MicronsPerPixel float64 `json:"microns_per_pixel"`

	// MinTrackLength is the minimum number of recorded frames a track must
	// have to be analysed. Shorter tracks are excluded before fitting and
	// counted per replicate.
	MinTrackLength int `json:"min_track_length"`

	// TlagCutoff is the maximum lag (in frame-steps) used for MSD
	// computation and fitting.
	TlagCutoff int `json:"tlag_cutoff"`

	// Ensemble filter bounds applied when pooling replicate results.
	FilterDMin     float64 `json:"filter_d_min"`
	FilterDMax     float64 `json:"filter_d_max"`
	FilterAlphaMin float64 `json:"filter_alpha_min"`
	FilterAlphaMax float64 `json:"filter_alpha_max"`

	// Jobs is the number of replicates processed concurrently.
	// ThreadsPerReplicate bounds the per-track worker pool inside one
	// replicate; the two multiply, so tune them together. Zero means
	// "derive from Jobs and the CPU count".
	Jobs                int `json:"jobs"`
	ThreadsPerReplicate int `json:"threads_per_replicate"`
}

// DefaultParams returns the canonical defaults: 10 ms frames, 0.11 µm/px,
// 11-frame minimum track length, lag cutoff 10, D ∈ [0.001, 2.0] and
// α ∈ [0, 2.0] ensemble filters.
func DefaultParams() Params {
	return Params{
		TimeStepSecs:    0.010,
		MicronsPerPixel: 0.11,
		MinTrackLength:  11,
		TlagCutoff:      10,
		FilterDMin:      0.001,
		FilterDMax:      2.0,
		FilterAlphaMin:  0.0,
		FilterAlphaMax:  2.0,
		Jobs:            runtime.NumCPU(),
	}
}

// LoadParams reads a JSON params file over the defaults, so partial files
// are safe: any field omitted from the JSON keeps its default value.
func LoadParams(path string) (Params, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Params{}, fmt.Errorf("params file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Params{}, fmt.Errorf("read params file: %w", err)
	}

	p := DefaultParams()
	if err := json.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("parse params JSON %s: %w", cleanPath, err)
	}

	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("invalid params in %s: %w", cleanPath, err)
	}
	return p, nil
}

// EffectiveThreads returns the per-replicate worker count, deriving a value
// from the CPU count when ThreadsPerReplicate is zero so that
// Jobs × threads does not oversubscribe the machine.
func (p Params) EffectiveThreads() int {
	if p.ThreadsPerReplicate > 0 {
		return p.ThreadsPerReplicate
	}
	jobs := p.Jobs
	if jobs < 1 {
		jobs = 1
	}
	threads := runtime.NumCPU() / jobs
	if threads < 1 {
		threads = 1
	}
	return threads
}

// Validate checks that the configuration values are usable.
func (p Params) Validate() error {
	if p.TimeStepSecs <= 0 {
		return fmt.Errorf("time_step_secs must be positive, got %g", p.TimeStepSecs)
	}
	if p.MicronsPerPixel <= 0 {
		return fmt.Errorf("microns_per_pixel must be positive, got %g", p.MicronsPerPixel)
	}
	if p.MinTrackLength < 2 {
		return fmt.Errorf("min_track_length must be at least 2, got %d", p.MinTrackLength)
	}
	if p.TlagCutoff < 1 {
		return fmt.Errorf("tlag_cutoff must be at least 1, got %d", p.TlagCutoff)
	}
	if p.FilterDMin > p.FilterDMax {
		return fmt.Errorf("filter_d_min %g exceeds filter_d_max %g", p.FilterDMin, p.FilterDMax)
	}
	if p.FilterAlphaMin > p.FilterAlphaMax {
		return fmt.Errorf("filter_alpha_min %g exceeds filter_alpha_max %g", p.FilterAlphaMin, p.FilterAlphaMax)
	}
	if p.Jobs < 0 || p.ThreadsPerReplicate < 0 {
		return fmt.Errorf("jobs and threads_per_replicate must be non-negative")
	}
	return nil
}
