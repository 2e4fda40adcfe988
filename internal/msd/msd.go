// Package msd computes mean-squared-displacement series for particle
// tracks. Compute is a pure function over position slices so callers can
// parallelise freely; ComputeAll runs the per-track loop across a bounded
// worker pool. This is the hottest loop in the pipeline — it runs once per
// track per replicate over tens of thousands of tracks — so the kernel is
// written as flat slice arithmetic with a single allocation per series.
package msd

import (
	"sync"

	"github.com/tracklab/sptfit/internal/trackstore"
)

// Series is the MSD curve of one track: for each recorded lag τ (in
// frame-steps), the mean squared displacement over all valid start
// positions and the number of displacement pairs averaged. Lags with zero
// valid pairs are omitted, never recorded as zero.
type Series struct {
	Lags   []int
	Values []float64 // µm²
	Counts []int
}

// Len returns the number of recorded lags.
func (s Series) Len() int { return len(s.Lags) }

// LagTimes converts the frame-step lags to seconds using the acquisition
// time step. The returned slice aligns with Values.
func (s Series) LagTimes(timeStepSecs float64) []float64 {
	times := make([]float64, len(s.Lags))
	for i, lag := range s.Lags {
		times[i] = float64(lag) * timeStepSecs
	}
	return times
}

// Compute returns the MSD series for a track whose positions are given as
// parallel x/y slices in micrometres, for lags 1..min(maxLag, N−1).
//
// Lag pairing is by position within the ordered sequence, not by literal
// frame-number arithmetic: when frames are missing, a lag of τ means "τ
// recorded positions apart". Callers needing elapsed-time lags must
// resample to a regular grid first.
func Compute(x, y []float64, maxLag int) Series {
	n := len(x)
	if n < 2 || maxLag < 1 {
		return Series{}
	}
	if maxLag > n-1 {
		maxLag = n - 1
	}

	s := Series{
		Lags:   make([]int, 0, maxLag),
		Values: make([]float64, 0, maxLag),
		Counts: make([]int, 0, maxLag),
	}
	for lag := 1; lag <= maxLag; lag++ {
		count := n - lag
		var sum float64
		for i := 0; i < count; i++ {
			dx := x[i+lag] - x[i]
			dy := y[i+lag] - y[i]
			sum += dx*dx + dy*dy
		}
		s.Lags = append(s.Lags, lag)
		s.Values = append(s.Values, sum/float64(count))
		s.Counts = append(s.Counts, count)
	}
	return s
}

// ComputeAll computes MSD series for every track using up to workers
// goroutines. The result slice is indexed identically to tracks, so the
// output order is deterministic regardless of scheduling.
func ComputeAll(tracks []trackstore.Track, maxLag, workers int) []Series {
	out := make([]Series, len(tracks))
	if len(tracks) == 0 {
		return out
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(tracks) {
		workers = len(tracks)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				t := &tracks[idx]
				out[idx] = Compute(t.X, t.Y, maxLag)
			}
		}()
	}
	for idx := range tracks {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()
	return out
}
