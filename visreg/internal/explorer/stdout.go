package explorer

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/charmbracelet/x/ansi"
)

var (
	portRe    = regexp.MustCompile(`\b(?:localhost|0\.0\.0\.0|127\.0\.0\.1):(\d+)\b`)
	versionRe = regexp.MustCompile(`(?i)\bstorybook\s+v?(\d+\.\d+\.\d+)`)
	semverRe  = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)
)

// ParsePort extracts the listening port from one line of server output.
// Colour codes are ignored.
func ParsePort(line string) (int, bool) {
	m := portRe.FindStringSubmatch(ansi.Strip(line))
	if m == nil {
		return 0, false
	}
	port, err := strconv.Atoi(m[1])
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

// ParseVersion extracts "x.y.z" from a "Storybook x.y.z" banner line.
func ParseVersion(line string) (string, bool) {
	m := versionRe.FindStringSubmatch(ansi.Strip(line))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// MajorVersion returns the major component of the first x.y.z in version.
func MajorVersion(version string) (int, error) {
	m := semverRe.FindStringSubmatch(version)
	if m == nil {
		return 0, fmt.Errorf("%w: cannot parse %q", ErrUnsupportedVersion, version)
	}
	return strconv.Atoi(m[1])
}
