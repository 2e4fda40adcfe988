// Package security validates user-supplied filesystem paths.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory rejects file paths that resolve outside
// safeDir. Symlinked components are resolved first, so a link pointing
// out of the directory cannot smuggle a foreign file into a run.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("resolve path %s: %w", filePath, err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("resolve directory %s: %w", safeDir, err)
	}

	canonicalPath := resolveSymlinks(absPath)
	canonicalSafeDir := resolveSymlinks(absSafeDir)

	rel, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside directory %s", filePath, safeDir)
	}
	return nil
}

// resolveSymlinks canonicalises path. When the path itself does not
// exist yet, the nearest existing ancestor is resolved instead so a
// symlinked parent directory is still detected.
func resolveSymlinks(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	check := absPath
	for {
		parent := filepath.Dir(check)
		if parent == check {
			return absPath
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, relErr := filepath.Rel(parent, absPath)
			if relErr != nil {
				return absPath
			}
			return filepath.Join(resolved, rel)
		}
		check = parent
	}
}
