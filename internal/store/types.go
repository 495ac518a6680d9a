// Package store owns the durable relocation truth: the manifest mapping
// original project-relative paths to their external storage locations, plus
// the patch records needed to revert source rewrites exactly.
//
// The manifest is the single source of truth for "is this file relocated".
// No component may infer relocation state by re-scanning the filesystem; the
// Mover is the only writer during forward operation and the Restorer is the
// only component allowed to delete entries.
package store

import "sort"

// FormatVersion is bumped whenever the on-disk manifest schema changes.
const FormatVersion = 1

// Status tracks how far an entry has progressed through the forward
// pipeline. Order matters: StatusMoved < StatusPatched < StatusSymlinked.
type Status string

const (
	StatusMoved     Status = "moved"
	StatusPatched   Status = "patched"
	StatusSymlinked Status = "symlinked"
)

// rank maps statuses onto the pipeline order for AtLeast comparisons.
func (s Status) rank() int {
	switch s {
	case StatusMoved:
		return 1
	case StatusPatched:
		return 2
	case StatusSymlinked:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return s.rank() > 0 }

// AtLeast reports whether s has reached at least stage other.
func (s Status) AtLeast(other Status) bool { return s.rank() >= other.rank() }

// Entry records one relocated file. OriginalRelPath is the sole identity:
// re-runs look entries up by this key, never by position or timestamp.
type Entry struct {
	OriginalRelPath    string `json:"original_relative_path"`
	StoredRelPath      string `json:"stored_relative_path"`
	SizeBytes          int64  `json:"size_bytes"`
	ContentFingerprint string `json:"content_fingerprint"`
	MovedAt            string `json:"moved_at"`
	Status             Status `json:"status"`
}

// Manifest is the ordered mapping of original relative path to Entry,
// persisted as a single JSON file inside the external storage tree.
type Manifest struct {
	Version int     `json:"version"`
	Project string  `json:"project"`
	Entries []Entry `json:"entries"`
}

// NewManifest returns an empty manifest for the named project.
func NewManifest(project string) *Manifest {
	return &Manifest{Version: FormatVersion, Project: project}
}

// Lookup returns the entry for an original relative path, or nil.
func (m *Manifest) Lookup(originalRel string) *Entry {
	for i := range m.Entries {
		if m.Entries[i].OriginalRelPath == originalRel {
			return &m.Entries[i]
		}
	}
	return nil
}

// Upsert inserts or replaces the entry keyed by OriginalRelPath and keeps
// the entry list ordered by key so repeated runs serialize identically.
func (m *Manifest) Upsert(e Entry) {
	if cur := m.Lookup(e.OriginalRelPath); cur != nil {
		*cur = e
		return
	}
	m.Entries = append(m.Entries, e)
	sort.Slice(m.Entries, func(i, j int) bool {
		return m.Entries[i].OriginalRelPath < m.Entries[j].OriginalRelPath
	})
}

// Remove deletes the entry keyed by originalRel. It reports whether an
// entry was removed.
func (m *Manifest) Remove(originalRel string) bool {
	for i := range m.Entries {
		if m.Entries[i].OriginalRelPath == originalRel {
			m.Entries = append(m.Entries[:i], m.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// RelocatedSet returns the set of original relative paths currently tracked.
func (m *Manifest) RelocatedSet() map[string]struct{} {
	out := make(map[string]struct{}, len(m.Entries))
	for _, e := range m.Entries {
		out[e.OriginalRelPath] = struct{}{}
	}
	return out
}

// PatchRecord retains one source rewrite so the Restorer can revert it
// exactly. StartLine/EndLine are 1-based inclusive line numbers in the
// patched file; OriginalText replaces PatchedText on revert. An insertion
// (the resolver import line) has empty OriginalText.
type PatchRecord struct {
	SourceFile   string `json:"source_file"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	OriginalText string `json:"original_text"`
	PatchedText  string `json:"patched_text"`
}

// PatchSet is the persisted collection of patch records for a project.
type PatchSet struct {
	Version int           `json:"version"`
	Records []PatchRecord `json:"records"`
}
