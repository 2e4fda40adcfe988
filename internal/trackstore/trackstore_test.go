package trackstore

import (
	"strings"
	"testing"
)

func TestBuildGroupsAndSortsByFrame(t *testing.T) {
	points := []RawPoint{
		{TrackID: "2", Frame: 1, X: 10, Y: 20},
		{TrackID: "1", Frame: 3, X: 3, Y: 3},
		{TrackID: "1", Frame: 1, X: 1, Y: 1},
		{TrackID: "1", Frame: 2, X: 2, Y: 2},
		{TrackID: "2", Frame: 0, X: 5, Y: 5},
	}

	store := Build(points, 2, 1.0)
	if len(store.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(store.Tracks))
	}

	// Numeric ID ordering: "1" before "2".
	if store.Tracks[0].ID != "1" || store.Tracks[1].ID != "2" {
		t.Fatalf("unexpected track order: %s, %s", store.Tracks[0].ID, store.Tracks[1].ID)
	}

	tr := store.Tracks[0]
	for i := 1; i < tr.Len(); i++ {
		if tr.Frames[i] <= tr.Frames[i-1] {
			t.Errorf("frames not strictly increasing: %v", tr.Frames)
		}
	}
	if tr.X[0] != 1 || tr.X[1] != 2 || tr.X[2] != 3 {
		t.Errorf("positions not sorted with frames: %v", tr.X)
	}
}

func TestBuildAppliesPixelScale(t *testing.T) {
	points := []RawPoint{
		{TrackID: "1", Frame: 0, X: 10, Y: 20},
		{TrackID: "1", Frame: 1, X: 30, Y: 40},
	}
	store := Build(points, 2, 0.11)
	tr := store.Tracks[0]
	if got, want := tr.X[0], 10*0.11; got != want {
		t.Errorf("X[0] = %g, want %g", got, want)
	}
	if got, want := tr.Y[1], 40*0.11; got != want {
		t.Errorf("Y[1] = %g, want %g", got, want)
	}
}

func TestBuildRejectsShortTracks(t *testing.T) {
	points := []RawPoint{
		{TrackID: "1", Frame: 0}, {TrackID: "1", Frame: 1}, {TrackID: "1", Frame: 2},
		{TrackID: "2", Frame: 0}, {TrackID: "2", Frame: 1},
	}
	store := Build(points, 3, 1.0)
	if len(store.Tracks) != 1 {
		t.Fatalf("expected 1 surviving track, got %d", len(store.Tracks))
	}
	if store.Tracks[0].ID != "1" {
		t.Errorf("wrong track survived: %s", store.Tracks[0].ID)
	}
	if store.ShortTracks != 1 {
		t.Errorf("expected 1 short track counted, got %d", store.ShortTracks)
	}
}

func TestBuildDuplicateFramesKeepFirst(t *testing.T) {
	points := []RawPoint{
		{TrackID: "1", Frame: 0, X: 1},
		{TrackID: "1", Frame: 1, X: 2},
		{TrackID: "1", Frame: 1, X: 99}, // duplicate, must be discarded
		{TrackID: "1", Frame: 2, X: 3},
	}
	store := Build(points, 2, 1.0)
	tr := store.Tracks[0]
	if tr.Len() != 3 {
		t.Fatalf("expected 3 points after dedup, got %d", tr.Len())
	}
	if tr.X[1] != 2 {
		t.Errorf("duplicate policy must keep first occurrence, got X=%g", tr.X[1])
	}
	if store.DuplicatePoints != 1 {
		t.Errorf("expected 1 duplicate counted, got %d", store.DuplicatePoints)
	}
}

func TestBuildNonNumericIDsSortLexically(t *testing.T) {
	points := []RawPoint{
		{TrackID: "b", Frame: 0}, {TrackID: "b", Frame: 1},
		{TrackID: "a", Frame: 0}, {TrackID: "a", Frame: 1},
	}
	store := Build(points, 2, 1.0)
	if store.Tracks[0].ID != "a" || store.Tracks[1].ID != "b" {
		t.Errorf("unexpected order: %s, %s", store.Tracks[0].ID, store.Tracks[1].ID)
	}
}

func TestReadTrajectoriesMosaicHeader(t *testing.T) {
	data := "Trajectory,Frame,x,y\n1,0,1.5,2.5\n1,1,1.6,2.6\n"
	points, err := ReadTrajectories(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadTrajectories failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].TrackID != "1" || points[0].Frame != 0 || points[0].X != 1.5 {
		t.Errorf("unexpected first point: %+v", points[0])
	}
}

func TestReadTrajectoriesFloatFrames(t *testing.T) {
	data := "track_id,frame,x,y\n7,3.0,0.1,0.2\n"
	points, err := ReadTrajectories(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadTrajectories failed: %v", err)
	}
	if points[0].Frame != 3 {
		t.Errorf("expected frame 3, got %d", points[0].Frame)
	}
}

func TestReadTrajectoriesMissingColumnFails(t *testing.T) {
	data := "Trajectory,Frame,x\n1,0,1.5\n"
	if _, err := ReadTrajectories(strings.NewReader(data)); err == nil {
		t.Fatal("expected schema error for missing y column")
	}
}

func TestReadTrajectoriesBadValueFails(t *testing.T) {
	data := "Trajectory,Frame,x,y\n1,zero,1.5,2.5\n"
	if _, err := ReadTrajectories(strings.NewReader(data)); err == nil {
		t.Fatal("expected error for non-integer frame")
	}
}
