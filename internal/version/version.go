// Package version carries build metadata injected at link time.
package version

// Set via -ldflags "-X github.com/zapdesk/zapdesk/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
)

// String renders the version with its commit when one was injected.
func String() string {
	if Commit == "unknown" || Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
