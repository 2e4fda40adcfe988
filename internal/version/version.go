// Package version holds build metadata stamped via -ldflags.
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the version with commit and build time when stamped.
func String() string {
	s := Version
	if GitSHA != "unknown" {
		s += " (" + GitSHA
		if BuildTime != "unknown" {
			s += ", " + BuildTime
		}
		s += ")"
	}
	return s
}
