package security

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	dir := t.TempDir()
	inside := filepath.Join(dir, "Traj_a_1.csv")
	if err := os.WriteFile(inside, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := ValidatePathWithinDirectory(inside, dir); err != nil {
		t.Errorf("path inside directory rejected: %v", err)
	}

	if err := ValidatePathWithinDirectory(filepath.Join(dir, "..", "escape.csv"), dir); err == nil {
		t.Error("traversal path accepted")
	}

	if err := ValidatePathWithinDirectory("/etc/passwd", dir); err == nil {
		t.Error("absolute foreign path accepted")
	}
}

func TestValidatePathNonexistentInside(t *testing.T) {
	dir := t.TempDir()
	if err := ValidatePathWithinDirectory(filepath.Join(dir, "not_yet.csv"), dir); err != nil {
		t.Errorf("nonexistent path inside directory rejected: %v", err)
	}
}

func TestValidatePathSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink semantics differ on windows")
	}
	dir := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(dir, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	if err := ValidatePathWithinDirectory(filepath.Join(link, "file.csv"), dir); err == nil {
		t.Error("symlink escaping the directory accepted")
	}
}
