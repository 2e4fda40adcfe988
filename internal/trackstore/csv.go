package trackstore

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Column aliases accepted in trajectory file headers, matched
// case-insensitively. Mosaic exports use "Trajectory"/"Frame"; other
// trackers emit "track_id"/"frame".
var (
	trackIDAliases = []string{"trajectory", "track_id", "track"}
	frameAliases   = []string{"frame", "frame_index"}
	xAliases       = []string{"x"}
	yAliases       = []string{"y"}
)

// ReadTrajectoryFile parses one replicate's trajectory CSV into raw points.
// A missing required column is a schema mismatch and fails the whole
// replicate; the returned error carries the file identity so the caller
// can act on it.
func ReadTrajectoryFile(path string) ([]RawPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trajectory file: %w", err)
	}
	defer f.Close()

	points, err := ReadTrajectories(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return points, nil
}

// ReadTrajectories parses trajectory CSV rows from r. The first record is
// the header; required columns are track id, frame, x and y (see the alias
// lists above). Extra columns are ignored.
func ReadTrajectories(r io.Reader) ([]RawPoint, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty trajectory file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idCol, err := findColumn(header, trackIDAliases, "track id")
	if err != nil {
		return nil, err
	}
	frameCol, err := findColumn(header, frameAliases, "frame")
	if err != nil {
		return nil, err
	}
	xCol, err := findColumn(header, xAliases, "x")
	if err != nil {
		return nil, err
	}
	yCol, err := findColumn(header, yAliases, "y")
	if err != nil {
		return nil, err
	}

	var points []RawPoint
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		id := strings.TrimSpace(record[idCol])
		if id == "" {
			return nil, fmt.Errorf("line %d: empty track id", line)
		}

		// Frame indices are sometimes exported as floats ("3.0").
		frameRaw := strings.TrimSpace(record[frameCol])
		frame, err := strconv.Atoi(frameRaw)
		if err != nil {
			ff, ferr := strconv.ParseFloat(frameRaw, 64)
			if ferr != nil || ff != float64(int(ff)) {
				return nil, fmt.Errorf("line %d: invalid frame %q", line, frameRaw)
			}
			frame = int(ff)
		}

		x, err := strconv.ParseFloat(strings.TrimSpace(record[xCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid x %q", line, record[xCol])
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(record[yCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid y %q", line, record[yCol])
		}

		points = append(points, RawPoint{TrackID: id, Frame: frame, X: x, Y: y})
	}
	return points, nil
}

func findColumn(header []string, aliases []string, name string) (int, error) {
	for i, col := range header {
		c := strings.ToLower(strings.TrimSpace(col))
		for _, alias := range aliases {
			if c == alias {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("missing required column %q (accepted names: %s)", name, strings.Join(aliases, ", "))
}
