// Package diffutil renders unified diffs for restore conflict reports,
// using github.com/pmezard/go-difflib/difflib for classic ---/+++ output.
package diffutil

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

const defaultContext = 3

// Unified renders a unified diff of expected vs found content. Names label
// the two sides in the header, typically "<file> (recorded)" and
// "<file> (on disk)".
func Unified(aName, bName, a, b string) string {
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(a),
		B:        splitLinesKeepNL(b),
		FromFile: aName,
		ToFile:   bName,
		Context:  defaultContext,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil || s == "" {
		return fmt.Sprintf("--- %s\n+++ %s\n(contents differ)\n", aName, bName)
	}
	return s
}

// Conflict renders the mismatch between the text a patch record expects at
// a line range and the text actually present there.
func Conflict(file string, startLine, endLine int, expected, found string) string {
	header := fmt.Sprintf("%s:%d", file, startLine)
	if endLine > startLine {
		header = fmt.Sprintf("%s:%d-%d", file, startLine, endLine)
	}
	return header + "\n" + Unified(file+" (recorded)", file+" (on disk)", expected+"\n", found+"\n")
}

func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}
