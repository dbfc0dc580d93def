package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const (
	Major = 0
	Minor = 3
	Patch = 0
)

// PreRelease may be set at link time with
// -ldflags "-X github.com/companyzero/audiohal/internal/version.PreRelease=rc1".
var PreRelease = "pre"

// BuildMetadata may be set at link time. When empty, the vcs revision recorded
// by the go tool is used (if available).
var BuildMetadata = ""

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var rev string
	var dirty bool
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
			if len(rev) > 12 {
				rev = rev[:12]
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev != "" && dirty {
		rev += ".dirty"
	}
	return rev
}

// String returns the semver version string of the software.
func String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", Major, Minor, Patch)
	if PreRelease != "" {
		b.WriteString("-")
		b.WriteString(PreRelease)
	}
	meta := BuildMetadata
	if meta == "" {
		meta = vcsRevision()
	}
	if meta != "" {
		b.WriteString("+")
		b.WriteString(meta)
	}
	return b.String()
}
