package buildinfo

import "fmt"

// These values are overridden at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("vbridged version=%s commit=%s built=%s", Version, Commit, Date)
}
