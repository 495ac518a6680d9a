// Package pathutil provides the normalized-path predicates the engine relies
// on. Every component compares project-relative paths through Normalize so
// that Windows and POSIX inputs agree on a single forward-slash form.
package pathutil

import (
	"path/filepath"
	"strings"
)

// Normalize converts a project-relative path into canonical form:
// backslashes become forward slashes, a leading "./" is dropped, duplicate
// slashes collapse, and any trailing slash is removed. Absolute paths and
// ".." segments are left intact for callers to reject.
func Normalize(p string) string {
	b := make([]rune, 0, len(p))
	skipDotSlash := false
	for i, r := range p {
		if i == 0 && r == '.' && len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
			skipDotSlash = true
			continue
		}
		if r == '\\' {
			r = '/'
		}
		if skipDotSlash && r == '/' {
			skipDotSlash = false
			continue
		}
		if r == '/' && len(b) > 0 && b[len(b)-1] == '/' {
			continue
		}
		b = append(b, r)
	}
	out := string(b)
	if len(out) > 1 {
		out = strings.TrimSuffix(out, "/")
	}
	return out
}

// HasDirPrefix reports whether path starts with dir as a whole path segment
// sequence from the root. It is a segment-wise prefix test, never a substring
// test: HasDirPrefix("reports/sales_data_summary.csv", "_data") is false,
// while HasDirPrefix("_data/export.csv", "_data") is true.
//
// dir may be given with or without a trailing slash; both inputs are
// normalized before comparison.
func HasDirPrefix(path, dir string) bool {
	p := Normalize(path)
	d := Normalize(dir)
	if d == "" || d == "." {
		return false
	}
	if p == d {
		return true
	}
	return strings.HasPrefix(p, d+"/")
}

// UnderAny reports whether path lies under any of the given directory
// prefixes (per HasDirPrefix).
func UnderAny(path string, dirs []string) bool {
	for _, d := range dirs {
		if HasDirPrefix(path, d) {
			return true
		}
	}
	return false
}

// TopSegment returns the first path segment of a normalized relative path,
// or "" when the path has no directory component.
func TopSegment(p string) string {
	n := Normalize(p)
	if i := strings.IndexByte(n, '/'); i >= 0 {
		return n[:i]
	}
	return ""
}

// RelFrom returns a clean, forward-slash relative path from base to target.
// It keeps internal paths stable across OSes.
func RelFrom(base, target string) (string, error) {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	return strings.TrimPrefix(rel, "./"), nil
}

// IsClean reports whether a normalized relative path is safe to join under a
// root: non-empty, not absolute, and free of ".." segments.
func IsClean(p string) bool {
	n := Normalize(p)
	if n == "" || strings.HasPrefix(n, "/") || filepath.IsAbs(n) {
		return false
	}
	for _, seg := range strings.Split(n, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}
