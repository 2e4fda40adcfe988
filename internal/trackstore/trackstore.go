// Package trackstore normalises raw single-particle trajectory rows into
// frame-ordered, unit-converted tracks ready for displacement analysis.
package trackstore

import (
	"sort"
	"strconv"
)

// RawPoint is one localisation as it arrives from a trajectory file:
// pixel coordinates tagged with a track label and a frame index.
type RawPoint struct {
	TrackID string
	Frame   int
	X       float64 // pixels
	Y       float64 // pixels
}

// Track is an ordered series of positions for one particle. Frames are
// strictly increasing but need not be contiguous; X and Y are in
// micrometres after the ingestion-time pixel conversion.
type Track struct {
	ID     string
	Frames []int
	X      []float64 // micrometres
	Y      []float64 // micrometres
}

// Len returns the number of recorded positions.
func (t *Track) Len() int { return len(t.Frames) }

// Store holds the analysable tracks of one replicate plus ingestion
// diagnostics. Tracks are ordered by ID (numerically when every label
// parses as an integer, lexically otherwise) so downstream output is
// deterministic.
type Store struct {
	Tracks []Track

	// ShortTracks counts tracks rejected for having fewer recorded frames
	// than the configured minimum. They never reach the fitting stage.
	ShortTracks int

	// DuplicatePoints counts raw rows discarded by the duplicate policy.
	DuplicatePoints int
}

// Build groups raw points by track label, orders each group by frame and
// converts positions to micrometres. Tracks with fewer than minTrackLen
// recorded frames are dropped and counted.
//
// Duplicate (track_id, frame) pairs keep the first occurrence in file
// order; later duplicates are discarded and counted. Averaging duplicates
// would silently change the displacement statistics, so it is deliberately
// not done.
func Build(points []RawPoint, minTrackLen int, micronsPerPixel float64) *Store {
	type indexed struct {
		RawPoint
		order int // position in the input, for the keep-first policy
	}

	groups := make(map[string][]indexed)
	for i, p := range points {
		groups[p.TrackID] = append(groups[p.TrackID], indexed{RawPoint: p, order: i})
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sortTrackIDs(ids)

	store := &Store{}
	for _, id := range ids {
		g := groups[id]
		sort.Slice(g, func(a, b int) bool {
			if g[a].Frame != g[b].Frame {
				return g[a].Frame < g[b].Frame
			}
			return g[a].order < g[b].order
		})

		track := Track{
			ID:     id,
			Frames: make([]int, 0, len(g)),
			X:      make([]float64, 0, len(g)),
			Y:      make([]float64, 0, len(g)),
		}
		lastFrame := -1
		first := true
		for _, p := range g {
			if !first && p.Frame == lastFrame {
				store.DuplicatePoints++
				continue
			}
			track.Frames = append(track.Frames, p.Frame)
			track.X = append(track.X, p.X*micronsPerPixel)
			track.Y = append(track.Y, p.Y*micronsPerPixel)
			lastFrame = p.Frame
			first = false
		}

		if track.Len() < minTrackLen {
			store.ShortTracks++
			continue
		}
		store.Tracks = append(store.Tracks, track)
	}
	return store
}

// sortTrackIDs orders labels numerically when every label is an integer
// (the common case for tracker output) and lexically otherwise.
func sortTrackIDs(ids []string) {
	numeric := make(map[string]int, len(ids))
	allNumeric := true
	for _, id := range ids {
		n, err := strconv.Atoi(id)
		if err != nil {
			allNumeric = false
			break
		}
		numeric[id] = n
	}
	if allNumeric {
		sort.Slice(ids, func(a, b int) bool { return numeric[ids[a]] < numeric[ids[b]] })
		return
	}
	sort.Strings(ids)
}
