package main

import (
	"github.com/spf13/cobra"

	"github.com/tracklab/sptfit/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "sptfit",
	Short:   "sptfit converts particle trajectories into diffusion descriptors",
	Version: version.String(),
	Long: `sptfit reads per-frame particle trajectories (Traj_*.csv), computes
mean squared displacement curves per track, fits a power-law diffusion
model to each, and aggregates the fits into per-replicate tables,
per-condition ensembles, comparison statistics and figures.`,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(runsCmd)
}
