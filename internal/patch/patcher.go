package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"deepclean/internal/bridge"
	"deepclean/internal/pathutil"
	"deepclean/internal/store"
)

// dataCalls are attribute calls whose first argument is a file path when
// literal: pandas readers and the sqlite connector.
var dataCalls = map[string]bool{
	"read_csv":     true,
	"read_json":    true,
	"read_excel":   true,
	"read_parquet": true,
	"read_pickle":  true,
	"read_table":   true,
	"connect":      true,
}

// FileError records a source file the patcher could not process.
type FileError struct {
	Path string
	Err  string
}

// Result is the outcome of patching one project.
type Result struct {
	// Records describe every rewrite, per file, with line numbers valid in
	// the patched files. They are the sole input to a later revert.
	Records []store.PatchRecord
	// Referenced holds the original relative paths that were reached by at
	// least one static rewrite.
	Referenced map[string]struct{}
	// Dynamic maps relocated top-level path prefixes to the dynamic
	// construction sites that mention them. These files cannot be patched
	// statically.
	Dynamic []DynamicRef
	// PatchedFiles counts files that were modified on disk.
	PatchedFiles int
	Failures     []FileError
}

// edit is a byte-span replacement inside one file. Replacements never
// contain newlines; a multi-line span collapses to one line.
type edit struct {
	start, end int
	repl       string
}

// Apply patches every source file in place. moved holds the normalized
// original relative paths of relocated files; only references to those are
// rewritten. Files that fail to lex are skipped and reported, never half
// written.
func Apply(projectRoot string, sourceFiles []string, moved map[string]struct{}) (Result, error) {
	res := Result{Referenced: make(map[string]struct{})}

	prefixes := topPrefixes(moved)

	for _, rel := range sourceFiles {
		if filepath.Base(rel) == bridge.FileName {
			continue
		}
		abs := filepath.Join(projectRoot, filepath.FromSlash(rel))
		src, err := os.ReadFile(abs)
		if err != nil {
			res.Failures = append(res.Failures, FileError{Path: rel, Err: err.Error()})
			continue
		}
		fr, err := patchSource(rel, string(src), moved)
		if err != nil {
			res.Failures = append(res.Failures, FileError{Path: rel, Err: err.Error()})
			continue
		}
		res.Dynamic = append(res.Dynamic, scanDynamic(rel, string(src), prefixes)...)
		if !fr.changed {
			continue
		}
		if err := writeFileAtomic(abs, []byte(fr.content)); err != nil {
			return res, fmt.Errorf("patch %s: %w", rel, err)
		}
		res.Records = append(res.Records, fr.records...)
		for p := range fr.referenced {
			res.Referenced[p] = struct{}{}
		}
		res.PatchedFiles++
	}
	sort.Slice(res.Dynamic, func(i, j int) bool {
		a, b := res.Dynamic[i], res.Dynamic[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
	return res, nil
}

// PreviewFile is a would-be rewrite of one source file, for dry runs.
type PreviewFile struct {
	Rel string
	Old string
	New string
}

// Preview computes what Apply would rewrite without touching any file.
func Preview(projectRoot string, sourceFiles []string, moved map[string]struct{}) ([]PreviewFile, []FileError) {
	var previews []PreviewFile
	var failures []FileError
	for _, rel := range sourceFiles {
		if filepath.Base(rel) == bridge.FileName {
			continue
		}
		src, err := os.ReadFile(filepath.Join(projectRoot, filepath.FromSlash(rel)))
		if err != nil {
			failures = append(failures, FileError{Path: rel, Err: err.Error()})
			continue
		}
		fr, err := patchSource(rel, string(src), moved)
		if err != nil {
			failures = append(failures, FileError{Path: rel, Err: err.Error()})
			continue
		}
		if fr.changed {
			previews = append(previews, PreviewFile{Rel: rel, Old: string(src), New: fr.content})
		}
	}
	return previews, failures
}

type fileResult struct {
	changed    bool
	content    string
	records    []store.PatchRecord
	referenced map[string]struct{}
}

// patchSource computes the rewritten content of a single file. It returns
// changed=false when nothing matched, including on re-runs over already
// patched files: a rewritten call no longer has a literal first argument,
// so it cannot match again.
func patchSource(rel, content string, moved map[string]struct{}) (fileResult, error) {
	toks, err := lexPython([]byte(content))
	if err != nil {
		return fileResult{}, err
	}

	edits, referenced := collectEdits(toks, moved)
	if len(edits) == 0 {
		return fileResult{changed: false}, nil
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	patched, records := applyEdits(rel, content, edits)

	if !hasImport(toks) {
		patched, records = insertImport(rel, patched, records)
	}
	return fileResult{changed: true, content: patched, records: records, referenced: referenced}, nil
}

// collectEdits walks the token stream for call sites whose path argument is
// fully literal and names a relocated file.
func collectEdits(toks []token, moved map[string]struct{}) ([]edit, map[string]struct{}) {
	var edits []edit
	referenced := make(map[string]struct{})

	note := func(e edit, key string) {
		edits = append(edits, e)
		referenced[key] = struct{}{}
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tokName {
			continue
		}

		// os.path.join("a", "b", ...) with every argument literal is
		// collapsed to a single resolver call covering the whole
		// expression.
		if t.isName("os") && hasSeq(toks, i+1, ".", "path", ".", "join", "(") {
			if e, key, end, ok := joinEdit(toks, i, moved); ok {
				note(e, key)
				i = end
			}
			continue
		}

		// Bare open(...) and Path(...). A preceding dot means a method
		// call on some object, which is not the builtin.
		if (t.isName("open") || t.isName("Path")) &&
			next(toks, i+1).isOp("(") &&
			!(i > 0 && toks[i-1].isOp(".")) {
			if e, key, ok := literalArgEdit(toks, i+2, moved); ok {
				note(e, key)
			}
			continue
		}

		// receiver.read_csv(...), sqlite3.connect(...), etc.
		if dataCalls[t.text] && i > 0 && toks[i-1].isOp(".") && next(toks, i+1).isOp("(") {
			if e, key, ok := literalArgEdit(toks, i+2, moved); ok {
				note(e, key)
			}
		}
	}
	return edits, referenced
}

// literalArgEdit matches a first argument that is exactly one plain string
// literal followed by ',' or ')'. The literal alone is replaced, leaving
// the surrounding call intact.
func literalArgEdit(toks []token, argIdx int, moved map[string]struct{}) (edit, string, bool) {
	if argIdx >= len(toks) {
		return edit{}, "", false
	}
	s := toks[argIdx]
	if !s.plainString() {
		return edit{}, "", false
	}
	after := next(toks, argIdx+1)
	if !after.isOp(",") && !after.isOp(")") {
		// adjacent-literal concatenation or an operator expression
		return edit{}, "", false
	}
	key := pathutil.Normalize(s.value)
	if _, ok := moved[key]; !ok {
		return edit{}, "", false
	}
	return edit{start: s.start, end: s.end, repl: resolverCall(key)}, key, true
}

// joinEdit matches os.path.join with all-literal arguments and replaces the
// entire call expression. Any non-literal argument or nested call bails.
func joinEdit(toks []token, osIdx int, moved map[string]struct{}) (edit, string, int, bool) {
	open := osIdx + 5 // os . path . join (
	var parts []string
	i := open + 1
	for i < len(toks) {
		t := toks[i]
		switch {
		case t.isOp(")"):
			if len(parts) == 0 {
				return edit{}, "", 0, false
			}
			key := pathutil.Normalize(strings.Join(parts, "/"))
			if _, ok := moved[key]; !ok {
				return edit{}, "", 0, false
			}
			e := edit{start: toks[osIdx].start, end: t.end, repl: resolverCall(key)}
			return e, key, i, true
		case t.plainString():
			parts = append(parts, t.value)
			i++
			if i < len(toks) && toks[i].isOp(",") {
				i++
			}
		default:
			return edit{}, "", 0, false
		}
	}
	return edit{}, "", 0, false
}

func resolverCall(key string) string {
	return fmt.Sprintf("get_path(%q)", key)
}

// applyEdits rewrites content and produces one record per run of edits
// sharing a line range. Line numbers in the records refer to the patched
// file, so the revert can verify before substituting.
func applyEdits(rel, content string, edits []edit) (string, []store.PatchRecord) {
	starts := lineStarts(content)

	type group struct {
		startLine, endLine int // 1-based, in the original file
		edits              []edit
	}
	var groups []group
	for _, e := range edits {
		sl := lineOf(starts, e.start)
		el := lineOf(starts, e.end-1)
		if n := len(groups); n > 0 && sl <= groups[n-1].endLine {
			g := &groups[n-1]
			g.edits = append(g.edits, e)
			if el > g.endLine {
				g.endLine = el
			}
			continue
		}
		groups = append(groups, group{startLine: sl, endLine: el, edits: []edit{e}})
	}

	var out strings.Builder
	var records []store.PatchRecord
	pos := 0
	delta := 0 // patched line number minus original line number
	for _, g := range groups {
		segStart := starts[g.startLine-1]
		segEnd := lineEnd(content, starts, g.endLine)
		out.WriteString(content[pos:segStart])

		oldText := content[segStart:segEnd]
		newText := replaceWithin(oldText, segStart, g.edits)
		out.WriteString(newText)
		pos = segEnd

		newLines := strings.Count(newText, "\n") + 1
		records = append(records, store.PatchRecord{
			SourceFile:   rel,
			StartLine:    g.startLine + delta,
			EndLine:      g.startLine + delta + newLines - 1,
			OriginalText: oldText,
			PatchedText:  newText,
		})
		oldLines := g.endLine - g.startLine + 1
		delta += newLines - oldLines
	}
	out.WriteString(content[pos:])
	return out.String(), records
}

func replaceWithin(seg string, base int, edits []edit) string {
	var b strings.Builder
	pos := 0
	for _, e := range edits {
		b.WriteString(seg[pos : e.start-base])
		b.WriteString(e.repl)
		pos = e.end - base
	}
	b.WriteString(seg[pos:])
	return b.String()
}

func hasImport(toks []token) bool {
	for i, t := range toks {
		if t.isName("from") && next(toks, i+1).isName("config_paths") &&
			next(toks, i+2).isName("import") && next(toks, i+3).isName("get_path") {
			return true
		}
	}
	return false
}

// insertImport places the resolver import after the module's shebang,
// docstring and existing import block, and shifts every record at or below
// the insertion point down one line. The import's record has an empty
// original text, which the revert interprets as "delete this line".
func insertImport(rel, content string, records []store.PatchRecord) (string, []store.PatchRecord) {
	lines := strings.SplitAfter(content, "\n")
	at := importInsertIndex(lines)

	var b strings.Builder
	for i, ln := range lines {
		if i == at {
			b.WriteString(bridge.ImportLine + "\n")
		}
		b.WriteString(ln)
	}
	if at >= len(lines) {
		b.WriteString(bridge.ImportLine + "\n")
	}

	insLine := at + 1
	for i := range records {
		if records[i].StartLine >= insLine {
			records[i].StartLine++
			records[i].EndLine++
		}
	}
	records = append(records, store.PatchRecord{
		SourceFile:  rel,
		StartLine:   insLine,
		EndLine:     insLine,
		PatchedText: bridge.ImportLine,
	})
	sort.Slice(records, func(i, j int) bool { return records[i].StartLine < records[j].StartLine })
	return b.String(), records
}

// importInsertIndex returns the 0-based line index at which to insert the
// import: after any shebang and encoding comment, past a leading module
// docstring, then past the contiguous import block.
func importInsertIndex(lines []string) int {
	i := 0
	for i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i]), "#") {
		i++
	}
	// module docstring, possibly multi-line
	if i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		for _, q := range []string{`"""`, "'''"} {
			if strings.HasPrefix(trimmed, q) {
				rest := trimmed[len(q):]
				if strings.Contains(rest, q) {
					i++
					break
				}
				i++
				for i < len(lines) && !strings.Contains(lines[i], q) {
					i++
				}
				if i < len(lines) {
					i++
				}
				break
			}
		}
	}
	// existing imports, allowing blank lines inside the block
	last := i
	for j := i; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from ") {
			last = j + 1
			continue
		}
		break
	}
	return last
}

func topPrefixes(moved map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for p := range moved {
		if seg := pathutil.TopSegment(p); seg != "" {
			out[seg] = struct{}{}
		}
	}
	return out
}

func next(toks []token, i int) token {
	if i < len(toks) {
		return toks[i]
	}
	return token{kind: tokOther}
}

func hasSeq(toks []token, i int, parts ...string) bool {
	for k, p := range parts {
		t := next(toks, i+k)
		switch {
		case t.isOp(p):
		case t.isName(p):
		default:
			return false
		}
	}
	return true
}

func lineStarts(s string) []int {
	starts := []int{0}
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' && i+1 < len(s) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineOf returns the 1-based line containing byte offset off.
func lineOf(starts []int, off int) int {
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if starts[mid] <= off {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}

// lineEnd returns the byte offset just past line (1-based), excluding its
// trailing newline.
func lineEnd(s string, starts []int, line int) int {
	if line < len(starts) {
		return starts[line] - 1
	}
	if strings.HasSuffix(s, "\n") {
		return len(s) - 1
	}
	return len(s)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
