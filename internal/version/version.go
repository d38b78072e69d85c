package version

import (
	"fmt"
	"runtime"
)

// Build metadata, set with -ldflags "-X btc-short-alerts/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the metadata as printed by `btcwatcher version`.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s\ngo: %s\n", Version, Commit, BuildDate, runtime.Version())
}
