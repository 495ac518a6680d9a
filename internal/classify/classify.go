package classify

import (
	"path/filepath"
	"strings"

	"deepclean/internal/pathutil"
	"deepclean/internal/scan"
)

// Skip reasons, one counter each. Every excluded file increments exactly
// one of these.
const (
	ReasonAlreadyMoved    = "already_moved"
	ReasonSourceCode      = "source_code"
	ReasonProtectedConfig = "protected_config"
	ReasonExternalDir     = "external_dir"
)

// Classify partitions heavy files into moveable candidates and skip-reason
// counts. Exclusion rules apply in precedence order, first match wins:
//
//  1. already relocated (exact match on normalized relative path)
//  2. protected source-code extension
//  3. protected base name (case-insensitive)
//  4. path starts with an external-dir prefix (whole-segment prefix test,
//     never a substring test)
//
// alreadyRelocated keys must be normalized relative paths; the manifest's
// RelocatedSet already satisfies this.
func Classify(heavy []scan.HeavyFile, alreadyRelocated map[string]struct{}, rules Rules) (moveable []scan.HeavyFile, skipped map[string]int) {
	skipped = map[string]int{}
	for _, hf := range heavy {
		rel := pathutil.Normalize(hf.RelPath)
		switch {
		case contains(alreadyRelocated, rel):
			skipped[ReasonAlreadyMoved]++
		case isSet(rules.SourceExts, strings.ToLower(filepath.Ext(rel))):
			skipped[ReasonSourceCode]++
		case isSet(rules.ProtectedNames, strings.ToLower(filepath.Base(rel))):
			skipped[ReasonProtectedConfig]++
		case pathutil.UnderAny(rel, rules.ExternalDirs):
			skipped[ReasonExternalDir]++
		default:
			hf.RelPath = rel
			moveable = append(moveable, hf)
		}
	}
	return moveable, skipped
}

func contains(set map[string]struct{}, k string) bool {
	_, ok := set[k]
	return ok
}

func isSet(set map[string]struct{}, k string) bool {
	if k == "" {
		return false
	}
	_, ok := set[k]
	return ok
}
