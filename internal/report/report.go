// Package report renders the end-of-run summary box printed after every
// mode, styled with lipgloss.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Summary aggregates the counters every mode ends with. Zero-valued
// sections are omitted from the rendering.
type Summary struct {
	Project string
	Mode    string
	DryRun  bool

	FilesScanned int
	TotalTokens  int64
	SkipCounts   map[string]int // classification reason -> count
	Moveable     int

	Moved     int
	Skipped   int // already relocated on a previous run
	Patched   int // source files rewritten
	Rewrites  int // individual call sites rewritten
	Symlinked int

	Restored int
	Reverted int

	Orphans   []string
	Conflicts []string
	Errors    []string
}

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle = lipgloss.NewStyle().Faint(true).Width(18)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// Render produces the summary box.
func Render(s Summary) string {
	title := fmt.Sprintf("deepclean %s %s", s.Mode, s.Project)
	if s.DryRun {
		title += " (dry run)"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	row := func(label string, format string, args ...any) {
		b.WriteString(labelStyle.Render(label))
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\n")
	}

	if s.FilesScanned > 0 {
		row("scanned", "%d files, ~%d tokens", s.FilesScanned, s.TotalTokens)
	}
	if len(s.SkipCounts) > 0 {
		reasons := make([]string, 0, len(s.SkipCounts))
		for r := range s.SkipCounts {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		parts := make([]string, 0, len(reasons))
		for _, r := range reasons {
			parts = append(parts, fmt.Sprintf("%s=%d", r, s.SkipCounts[r]))
		}
		row("skipped", "%s", strings.Join(parts, " "))
	}
	if s.Moveable > 0 {
		row("moveable", "%d", s.Moveable)
	}
	if s.Moved > 0 || s.Skipped > 0 {
		row("moved", "%d (%d already relocated)", s.Moved, s.Skipped)
	}
	if s.Patched > 0 || s.Rewrites > 0 {
		row("patched", "%d files, %d call sites", s.Patched, s.Rewrites)
	}
	if s.Symlinked > 0 {
		row("symlinked", "%d", s.Symlinked)
	}
	if s.Restored > 0 || s.Reverted > 0 {
		row("restored", "%d files, %d rewrites undone", s.Restored, s.Reverted)
	}
	for _, o := range s.Orphans {
		b.WriteString(warnStyle.Render("orphan  " + o))
		b.WriteString("\n")
	}
	for _, c := range s.Conflicts {
		b.WriteString(errStyle.Render("conflict  " + c))
		b.WriteString("\n")
	}
	for _, e := range s.Errors {
		b.WriteString(errStyle.Render("error  " + e))
		b.WriteString("\n")
	}

	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
