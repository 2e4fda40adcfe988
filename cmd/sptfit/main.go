// sptfit analyses single-particle tracking trajectories: per-track MSD
// curves, diffusion fits, ensemble pooling and condition comparison.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
