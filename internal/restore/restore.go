// Package restore walks the pipeline backwards: it removes compatibility
// links, reverts recorded source rewrites, moves stored files back to their
// original locations and retires the manifest. Each entry is undone and
// persisted individually, so an interrupted restore resumes cleanly from
// where it stopped.
package restore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"deepclean/internal/bridge"
	"deepclean/internal/diffutil"
	"deepclean/internal/mover"
	"deepclean/internal/store"
	"deepclean/internal/symlink"
)

// Conflict is an entry that could not be restored automatically: either the
// patched text on disk no longer matches what was recorded (the file was
// edited since), or a real file occupies the entry's original location.
// Conflicting entries stay in the manifest untouched.
type Conflict struct {
	OriginalRelPath string
	Reason          string
	Diff            string // unified diff for patch conflicts, empty otherwise
}

// Result summarizes one restore pass.
type Result struct {
	Restored  []string // original relative paths moved back
	Reverted  int      // patch records undone
	Conflicts []Conflict
	Complete  bool // manifest empty afterwards, external tree retired
}

// Run restores every manifest entry. The manifest and patch set are
// persisted after each entry, never in bulk.
func Run(projectPath, externalRoot string, m *store.Manifest, ps *store.PatchSet) (Result, error) {
	var res Result

	keys := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		keys = append(keys, e.OriginalRelPath)
	}

	for _, key := range keys {
		e := m.Lookup(key)
		if e == nil {
			continue
		}
		before := len(ps.Records)
		conflict, err := restoreEntry(projectPath, externalRoot, *e, ps)
		if err != nil {
			return res, err
		}
		if conflict != nil {
			res.Conflicts = append(res.Conflicts, *conflict)
			continue
		}
		res.Reverted += before - len(ps.Records)

		if err := store.SavePatches(externalRoot, ps); err != nil {
			return res, fmt.Errorf("persisting patch records after %s: %w", key, err)
		}
		m.Remove(key)
		if err := store.Save(externalRoot, m); err != nil {
			return res, fmt.Errorf("persisting manifest after %s: %w", key, err)
		}
		res.Restored = append(res.Restored, key)
	}

	if len(m.Entries) == 0 {
		if err := bridge.Remove(projectPath); err != nil {
			return res, fmt.Errorf("removing path resolver: %w", err)
		}
		if err := store.Retire(externalRoot); err != nil {
			return res, err
		}
		res.Complete = true
	}
	return res, nil
}

// restoreEntry undoes one entry: link removal, source reverts, then the
// move back. A conflict leaves everything about the entry in place.
func restoreEntry(projectPath, externalRoot string, e store.Entry, ps *store.PatchSet) (*Conflict, error) {
	origin := filepath.Join(projectPath, filepath.FromSlash(e.OriginalRelPath))
	stored := filepath.Join(externalRoot, filepath.FromSlash(e.StoredRelPath))

	// The stored copy must exist before anything is undone.
	if _, err := os.Stat(stored); err != nil {
		if os.IsNotExist(err) {
			return &Conflict{
				OriginalRelPath: e.OriginalRelPath,
				Reason:          fmt.Sprintf("stored file %s is missing", e.StoredRelPath),
			}, nil
		}
		return nil, err
	}

	// Check the patch reverts are possible before touching anything.
	byFile := recordsFor(ps, e.OriginalRelPath)
	for file, recs := range byFile {
		if c, err := checkRevert(projectPath, file, recs, e.OriginalRelPath); err != nil {
			return nil, err
		} else if c != nil {
			return c, nil
		}
	}

	if slc, err := symlink.Remove(projectPath, e); err != nil {
		return nil, err
	} else if slc != nil {
		return &Conflict{
			OriginalRelPath: e.OriginalRelPath,
			Reason:          fmt.Sprintf("a real %s occupies the original location", slc.Occupant),
		}, nil
	}

	for _, file := range sortedKeys(byFile) {
		if err := revertFile(projectPath, file, byFile[file], ps); err != nil {
			return nil, err
		}
	}

	if _, err := os.Lstat(origin); err == nil {
		return &Conflict{
			OriginalRelPath: e.OriginalRelPath,
			Reason:          "original location is occupied",
		}, nil
	}
	if err := os.MkdirAll(filepath.Dir(origin), 0o755); err != nil {
		return nil, err
	}
	if err := mover.Transfer(stored, origin); err != nil {
		return nil, fmt.Errorf("moving %s back: %w", e.OriginalRelPath, err)
	}
	return nil, nil
}

// recordsFor collects the records whose rewrite references the entry,
// grouped by source file.
func recordsFor(ps *store.PatchSet, originalRel string) map[string][]store.PatchRecord {
	ref := fmt.Sprintf("get_path(%q)", originalRel)
	out := make(map[string][]store.PatchRecord)
	for _, r := range ps.Records {
		if strings.Contains(r.PatchedText, ref) {
			out[r.SourceFile] = append(out[r.SourceFile], r)
		}
	}
	return out
}

// checkRevert verifies every record's patched text is still present at its
// recorded lines. Any mismatch means the file was edited after patching;
// the revert for this entry is refused with a diff of the divergence.
func checkRevert(projectPath, file string, recs []store.PatchRecord, originalRel string) (*Conflict, error) {
	content, err := os.ReadFile(filepath.Join(projectPath, filepath.FromSlash(file)))
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(content), "\n")
	for _, r := range recs {
		if r.EndLine > len(lines) {
			return &Conflict{
				OriginalRelPath: originalRel,
				Reason:          fmt.Sprintf("%s: recorded lines %d-%d are gone", file, r.StartLine, r.EndLine),
			}, nil
		}
		got := strings.Join(lines[r.StartLine-1:r.EndLine], "\n")
		if got != r.PatchedText {
			return &Conflict{
				OriginalRelPath: originalRel,
				Reason:          fmt.Sprintf("%s was edited after patching", file),
				Diff:            diffutil.Conflict(file, r.StartLine, r.EndLine, r.PatchedText, got),
			}, nil
		}
	}
	return nil, nil
}

// revertFile substitutes original text back for each record, bottom-up so
// earlier line numbers stay valid, removes the records from the set and
// shifts the file's remaining records. When the file's last resolver
// reference goes, the import line goes with it.
func revertFile(projectPath, file string, recs []store.PatchRecord, ps *store.PatchSet) error {
	abs := filepath.Join(projectPath, filepath.FromSlash(file))
	content, err := os.ReadFile(abs)
	if err != nil {
		return err
	}
	lines := strings.Split(string(content), "\n")

	sort.Slice(recs, func(i, j int) bool { return recs[i].StartLine > recs[j].StartLine })
	for _, r := range recs {
		lines = spliceLines(lines, r.StartLine, r.EndLine, r.OriginalText)
	}

	dropRecords(ps, recs)
	adjustLines(ps, file, recs)

	// no resolver calls left in this file: drop the import line too
	if !fileHasResolverRecord(ps, file) {
		if imp := takeImportRecord(ps, file); imp != nil {
			lines = spliceLines(lines, imp.StartLine, imp.EndLine, imp.OriginalText)
			adjustLines(ps, file, []store.PatchRecord{*imp})
		}
	}

	return writeFileAtomic(abs, []byte(strings.Join(lines, "\n")))
}

// spliceLines replaces 1-based inclusive lines [start, end] with the lines
// of text; empty text removes the range.
func spliceLines(lines []string, start, end int, text string) []string {
	var repl []string
	if text != "" {
		repl = strings.Split(text, "\n")
	}
	out := make([]string, 0, len(lines)-(end-start+1)+len(repl))
	out = append(out, lines[:start-1]...)
	out = append(out, repl...)
	out = append(out, lines[end:]...)
	return out
}

func dropRecords(ps *store.PatchSet, recs []store.PatchRecord) {
	gone := make(map[string]bool, len(recs))
	for _, r := range recs {
		gone[recKey(r)] = true
	}
	kept := ps.Records[:0]
	for _, r := range ps.Records {
		if !gone[recKey(r)] {
			kept = append(kept, r)
		}
	}
	ps.Records = kept
}

func recKey(r store.PatchRecord) string {
	return fmt.Sprintf("%s:%d:%d", r.SourceFile, r.StartLine, r.EndLine)
}

// adjustLines shifts the file's surviving records to account for reverts
// above them changing the line count.
func adjustLines(ps *store.PatchSet, file string, reverted []store.PatchRecord) {
	for i := range ps.Records {
		r := &ps.Records[i]
		if r.SourceFile != file {
			continue
		}
		shift := 0
		for _, rv := range reverted {
			if rv.EndLine < r.StartLine {
				shift += textLines(rv.OriginalText) - (rv.EndLine - rv.StartLine + 1)
			}
		}
		r.StartLine += shift
		r.EndLine += shift
	}
}

func textLines(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}

func fileHasResolverRecord(ps *store.PatchSet, file string) bool {
	for _, r := range ps.Records {
		if r.SourceFile == file && r.OriginalText != "" {
			return true
		}
	}
	return false
}

// takeImportRecord removes and returns the file's import-insertion record.
func takeImportRecord(ps *store.PatchSet, file string) *store.PatchRecord {
	for i, r := range ps.Records {
		if r.SourceFile == file && r.OriginalText == "" {
			out := r
			ps.Records = append(ps.Records[:i], ps.Records[i+1:]...)
			return &out
		}
	}
	return nil
}

func sortedKeys(m map[string][]store.PatchRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
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
