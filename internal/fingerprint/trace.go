package fingerprint

import (
	"regexp"
	"strings"
)

// frameRe matches "at <frame> (<file>:<line>:<col>)" trace lines, with
// or without the enclosing frame name and parentheses.
var frameRe = regexp.MustCompile(`^\s*at\s+(?:[^()]*\()?([^():\s]+):(\d+):(\d+)\)?`)

var sourceRootMarkers = []string{"/src/", "/app/", "/lib/"}

var dependencyMarkers = []string{"node_modules/", "vendor/", "pkg/mod/"}

// FirstFrame extracts the file and line of the first stack-trace line
// that looks like a frame. Both are empty when the trace is empty or no
// line matches; the fingerprint is then computed without location, just
// coarser.
func FirstFrame(trace string) (file, line string) {
	if trace == "" {
		return "", ""
	}
	for ln := range strings.Lines(trace) {
		m := frameRe.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		return CleanFramePath(m[1]), m[2]
	}
	return "", ""
}

// CleanFramePath makes a frame's file path stable across machines and
// deployments: a path through a dependency directory collapses to
// "[dependency]/<package>", and everything up to and including the
// rightmost source-root marker is stripped.
func CleanFramePath(path string) string {
	if pkg, ok := dependencyPackage(path); ok {
		return "[dependency]/" + pkg
	}
	cut := -1
	width := 0
	for _, marker := range sourceRootMarkers {
		if idx := strings.LastIndex(path, marker); idx > cut {
			cut = idx
			width = len(marker)
		}
	}
	if cut >= 0 {
		return path[cut+width:]
	}
	return path
}

func dependencyPackage(path string) (string, bool) {
	for _, marker := range dependencyMarkers {
		idx := strings.LastIndex(path, marker)
		if idx < 0 {
			continue
		}
		segs := strings.Split(path[idx+len(marker):], "/")
		pkg := segs[0]
		// Scoped npm packages keep their second segment.
		if strings.HasPrefix(pkg, "@") && len(segs) > 1 {
			pkg += "/" + segs[1]
		}
		return pkg, true
	}
	return "", false
}
