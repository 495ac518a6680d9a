package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"deepclean/internal/pathutil"
)

// Validate performs structural and semantic checks on a loaded manifest.
// It is not a JSON-Schema validator; it checks the constraints that
// commonly catch a damaged or hand-edited manifest:
//
//   - Version must match a known format version.
//   - Each entry's paths must be normalized, relative, and free of "..".
//   - ContentFingerprint, if present, must be 64 lowercase hex chars.
//   - Status must be one of the known stages.
//   - No duplicate OriginalRelPath keys.
//   - Entries must be sorted by key (the serialized order is part of the
//     determinism contract).
//
// Issues are aggregated into a single error so the operator sees the full
// picture at once.
func Validate(m *Manifest) error {
	var errs errlist

	if m.Version < 1 || m.Version > FormatVersion {
		errs.add("manifest.version %d is not supported (expected 1..%d)", m.Version, FormatVersion)
	}

	seen := make(map[string]struct{}, len(m.Entries))
	for i, e := range m.Entries {
		prefix := fmt.Sprintf("entries[%d] (%s)", i, e.OriginalRelPath)

		checkRelPath(&errs, prefix+": original_relative_path", e.OriginalRelPath)
		checkRelPath(&errs, prefix+": stored_relative_path", e.StoredRelPath)

		if _, dup := seen[e.OriginalRelPath]; dup {
			errs.add("%s: duplicate original_relative_path", prefix)
		} else if e.OriginalRelPath != "" {
			seen[e.OriginalRelPath] = struct{}{}
		}

		if e.ContentFingerprint != "" && !reHex64.MatchString(e.ContentFingerprint) {
			errs.add("%s: content_fingerprint must be 64 lowercase hex chars, got %q", prefix, e.ContentFingerprint)
		}
		if !e.Status.Valid() {
			errs.add("%s: unknown status %q", prefix, e.Status)
		}
		if e.SizeBytes < 0 {
			errs.add("%s: size_bytes must be >= 0 (got %d)", prefix, e.SizeBytes)
		}
	}

	if !isSortedByKey(m.Entries) {
		errs.add("entries must be sorted by original_relative_path")
	}

	return errs.err()
}

func checkRelPath(errs *errlist, what, p string) {
	if p == "" {
		errs.add("%s must be non-empty", what)
		return
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		errs.add("%s must be relative, got %q", what, p)
	}
	if strings.Contains(p, `\`) {
		errs.add("%s must use forward slashes ('/'), found backslash in %q", what, p)
	}
	if !pathutil.IsClean(p) {
		errs.add("%s must not contain '..' segments (got %q)", what, p)
	}
}

var reHex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

func isSortedByKey(entries []Entry) bool {
	return sort.SliceIsSorted(entries, func(i, j int) bool {
		return entries[i].OriginalRelPath < entries[j].OriginalRelPath
	})
}

// errlist aggregates multiple validation issues into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(e.msgs, "\n"))
}
