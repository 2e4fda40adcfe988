package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklab/sptfit/internal/config"
)

func TestBuildParamsDefaults(t *testing.T) {
	p, err := buildParams(analyzeCmd)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultParams().TimeStepSecs, p.TimeStepSecs)
	assert.Equal(t, config.DefaultParams().MinTrackLength, p.MinTrackLength)
}

func TestBuildParamsFlagOverridesFile(t *testing.T) {
	dir := t.TempDir()
	paramsPath := filepath.Join(dir, "params.json")
	require.NoError(t, os.WriteFile(paramsPath, []byte(`{"time_step_secs": 0.05, "tlag_cutoff": 5}`), 0644))

	flagParamsFile = paramsPath
	t.Cleanup(func() {
		flagParamsFile = ""
		analyzeCmd.Flags().Set("tlag-cutoff", "10")
	})

	require.NoError(t, analyzeCmd.Flags().Set("tlag-cutoff", "7"))

	p, err := buildParams(analyzeCmd)
	require.NoError(t, err)

	// File value survives where no flag was set; the explicit flag wins.
	assert.Equal(t, 0.05, p.TimeStepSecs)
	assert.Equal(t, 7, p.TlagCutoff)
}
