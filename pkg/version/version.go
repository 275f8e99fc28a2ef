// Package version reports the respimg build version stamped at link time:
//
//	go build -ldflags "-X github.com/lucas-albers-lz4/respimg/pkg/version.Version=v1.2.0+g0e1f115"
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Version and Commit are overwritten by the linker.
var (
	Version = "dev"
	Commit  = ""
)

// Short returns the core semantic version, e.g. "1.2.0" for "v1.2.0+g0e1f115".
func Short() string {
	return parseVersionString(Version)
}

// String returns a one-line description of the running binary.
func String() string {
	commit := Commit
	if commit == "" {
		commit = vcsRevision()
	}
	if commit == "" {
		return fmt.Sprintf("respimg %s", Short())
	}
	return fmt.Sprintf("respimg %s (%s)", Short(), commit)
}

// parseVersionString removes a leading 'v' and any build metadata suffix
// starting with '+'.
func parseVersionString(versionStr string) string {
	parsed := strings.TrimSpace(versionStr)
	parsed = strings.TrimPrefix(parsed, "v")
	parsed, _, _ = strings.Cut(parsed, "+")
	return parsed
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return ""
}
