// Package common carries the pieces every stratlab binary shares: logger
// setup, environment loading, the monitoring endpoint, and small flag
// parsing helpers.
package common

import (
	"fmt"
	"runtime"
)

// Build metadata, overridden at build time via -ldflags.
var (
	Version     = "1.0.0"
	BuildCommit = "dev"
	BuildDate   = "unknown"
)

// PrintVersion writes the version lines for an app's -version flag.
func PrintVersion(appName string) {
	fmt.Printf("%s v%s\n", appName, Version)
	fmt.Printf("Build: %s (%s)\n", BuildCommit, BuildDate)
	fmt.Printf("Go: %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
