package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/tracklab/sptfit/internal/security"
)

// Replicate is one trajectory file queued for analysis. Name is the file
// stem without the Traj_ prefix; Condition is Name without its trailing
// replicate number, so "cellA_1" and "cellA_2" pool into "cellA".
type Replicate struct {
	Name      string
	Condition string
	Path      string
}

var replicateSuffix = regexp.MustCompile(`_[0-9]+$`)

// ConditionOf strips the trailing replicate number from a replicate name.
// Names without one are their own condition.
func ConditionOf(name string) string {
	return replicateSuffix.ReplaceAllString(name, "")
}

// DiscoverReplicates lists the Traj_*.csv files in dir, sorted by name.
// Empty files are skipped so a truncated export cannot stall a run.
func DiscoverReplicates(dir string) ([]Replicate, []string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "Traj_*.csv"))
	if err != nil {
		return nil, nil, fmt.Errorf("glob trajectory files: %w", err)
	}
	sort.Strings(matches)

	var reps []Replicate
	var skipped []string
	for _, path := range matches {
		if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
			return nil, nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() == 0 {
			skipped = append(skipped, path)
			continue
		}
		base := filepath.Base(path)
		name := strings.TrimSuffix(strings.TrimPrefix(base, "Traj_"), ".csv")
		reps = append(reps, Replicate{
			Name:      name,
			Condition: ConditionOf(name),
			Path:      path,
		})
	}
	return reps, skipped, nil
}
