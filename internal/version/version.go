// Package version reports the build version baked into the binary and
// compares it against the version the engine advertises.
package version

import (
	"fmt"
	"regexp"
	"strings"
)

// Overridden at build time via -ldflags "-X ...internal/version.version=".
var version = "dev"

// String reports the version of the running binary.
func String() string {
	return version
}

// ForTesting swaps the build version and returns a restore func. Not safe
// for concurrent use.
func ForTesting(v string) func() {
	prev := version
	version = v
	return func() { version = prev }
}

// Display adds the conventional "v" prefix to release versions. Sentinels
// like "dev" and the empty string pass through untouched.
func Display(v string) string {
	if v == "" || v == "dev" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// describeSuffix is the "-N-gHASH" tail git describe appends past a tag.
var describeSuffix = regexp.MustCompile(`-\d+-g[0-9a-f]+$`)

// canonical reduces a version to its comparable core, dropping the "v"
// prefix and any git-describe tail so "v0.3.0-5-gabcdef" equals "0.3.0".
func canonical(v string) string {
	return describeSuffix.ReplaceAllString(strings.TrimPrefix(v, "v"), "")
}

// isRelease reports whether v names a tagged release. Development builds
// and the tag-less "0.0.0" fallback are never worth comparing.
func isRelease(v string) bool {
	switch v {
	case "", "dev", "0.0.0":
		return false
	}
	return true
}

// MismatchWarning returns a warning line when the engine runs a different
// release than this binary, or "" when they agree or when either side is
// not a release build.
func MismatchWarning(engineVersion string) string {
	local := version
	if !isRelease(local) || !isRelease(engineVersion) {
		return ""
	}
	if canonical(local) == canonical(engineVersion) {
		return ""
	}
	return fmt.Sprintf(
		"WARNING: matrx %s is talking to engine %s; restart the engine or reinstall to align the two",
		Display(local), Display(engineVersion),
	)
}
