// Package version reports build information for vaultrag.
package version

import (
	"fmt"
	"runtime"
)

// Version is set at build time:
//
//	go build -ldflags "-X github.com/Aman-CERP/vaultrag/pkg/version.Version=1.2.3"
var Version = "dev"

// Build metadata, also set via -ldflags.
var (
	Commit = "unknown"
	Date   = "unknown"

	// GoVersion is read at runtime.
	GoVersion = runtime.Version()
)

// BuildInfo is the JSON form of the version.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// String returns the one-line version banner.
func String() string {
	return fmt.Sprintf("vaultrag %s (commit %s, built %s, %s %s/%s)",
		Version, Commit, Date, GoVersion, runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version.
func Short() string {
	return Version
}

// GetInfo returns structured build information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// UserAgent identifies vaultrag in outgoing HTTP requests.
func UserAgent() string {
	return "vaultrag/" + Version
}
