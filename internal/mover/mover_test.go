package mover

import (
	"os"
	"path/filepath"
	"testing"

	"deepclean/internal/scan"
	"deepclean/internal/store"
)

func seed(t *testing.T, root, rel, content string) scan.HeavyFile {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return scan.HeavyFile{
		AbsPath:         full,
		RelPath:         rel,
		SizeBytes:       int64(len(content)),
		EstimatedTokens: int64(len(content)) / 4,
		Category:        scan.CategoryData,
	}
}

func roots(t *testing.T) (project, external string) {
	t.Helper()
	base := t.TempDir()
	project = filepath.Join(base, "proj")
	if err := os.MkdirAll(project, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return project, filepath.Join(base, "proj_data")
}

func TestMoveAllMovesAndPersistsPerFile(t *testing.T) {
	project, external := roots(t)
	a := seed(t, project, "data/users.json", "users")
	b := seed(t, project, "data/products.json", "products")
	m := store.NewManifest("proj")

	res, err := MoveAll(project, external, []scan.HeavyFile{a, b}, m)
	if err != nil {
		t.Fatalf("MoveAll: %v", err)
	}
	if len(res.Moved) != 2 || len(res.Failed) != 0 {
		t.Fatalf("unexpected result: %#v", res)
	}
	for _, e := range m.Entries {
		stored := filepath.Join(external, filepath.FromSlash(e.StoredRelPath))
		if _, err := os.Stat(stored); err != nil {
			t.Fatalf("stored file missing for %s: %v", e.OriginalRelPath, err)
		}
		if e.Status != store.StatusMoved || len(e.ContentFingerprint) != 64 {
			t.Fatalf("bad entry: %#v", e)
		}
	}
	if _, err := os.Stat(a.AbsPath); !os.IsNotExist(err) {
		t.Fatalf("original should be gone after move")
	}
	// Persisted: a fresh load sees both entries.
	loaded, err := store.Load(external)
	if err != nil || loaded == nil || len(loaded.Entries) != 2 {
		t.Fatalf("manifest not persisted: %v %#v", err, loaded)
	}
}

func TestMoveAllIsIdempotent(t *testing.T) {
	project, external := roots(t)
	a := seed(t, project, "data/users.json", "users")
	m := store.NewManifest("proj")

	if _, err := MoveAll(project, external, []scan.HeavyFile{a}, m); err != nil {
		t.Fatalf("first MoveAll: %v", err)
	}
	res, err := MoveAll(project, external, []scan.HeavyFile{a}, m)
	if err != nil {
		t.Fatalf("second MoveAll: %v", err)
	}
	if len(res.Moved) != 0 || res.Skipped != 1 {
		t.Fatalf("re-run must skip moved entries: %#v", res)
	}
	if len(m.Entries) != 1 {
		t.Fatalf("duplicate entries after re-run: %#v", m.Entries)
	}
}

func TestMoveAllResumesAfterPartialRun(t *testing.T) {
	project, external := roots(t)
	a := seed(t, project, "data/a.json", "aaaa")
	b := seed(t, project, "data/b.json", "bbbb")
	m := store.NewManifest("proj")

	// Interrupted run: only a was processed.
	if _, err := MoveAll(project, external, []scan.HeavyFile{a}, m); err != nil {
		t.Fatalf("partial MoveAll: %v", err)
	}

	// Re-run with the full candidate list resumes at b.
	resumed, err := store.Load(external)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	res, err := MoveAll(project, external, []scan.HeavyFile{a, b}, resumed)
	if err != nil {
		t.Fatalf("resumed MoveAll: %v", err)
	}
	if res.Skipped != 1 || len(res.Moved) != 1 || res.Moved[0].OriginalRelPath != "data/b.json" {
		t.Fatalf("resume mismatch: %#v", res)
	}
	if len(resumed.Entries) != 2 {
		t.Fatalf("entries after resume: %#v", resumed.Entries)
	}
}

func TestMoveAllReportsOrphans(t *testing.T) {
	project, external := roots(t)
	orphan := filepath.Join(external, "data", "stray.json")
	if err := os.MkdirAll(filepath.Dir(orphan), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(orphan, []byte("stray"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := store.NewManifest("proj")
	res, err := MoveAll(project, external, nil, m)
	if err != nil {
		t.Fatalf("MoveAll: %v", err)
	}
	if len(res.Orphans) != 1 || res.Orphans[0] != "data/stray.json" {
		t.Fatalf("orphan detection mismatch: %#v", res.Orphans)
	}
	if _, err := os.Stat(orphan); err != nil {
		t.Fatalf("orphan must be left untouched: %v", err)
	}
}

func TestMoveAllCollisionGetsDisambiguator(t *testing.T) {
	project, external := roots(t)
	a := seed(t, project, "data/report.csv", "fresh")
	squatter := filepath.Join(external, "data", "data", "report.csv")
	if err := os.MkdirAll(filepath.Dir(squatter), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(squatter, []byte("old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := store.NewManifest("proj")
	res, err := MoveAll(project, external, []scan.HeavyFile{a}, m)
	if err != nil {
		t.Fatalf("MoveAll: %v", err)
	}
	if len(res.Moved) != 1 {
		t.Fatalf("move failed: %#v", res)
	}
	e := m.Lookup("data/report.csv")
	if e == nil || e.StoredRelPath == "data/data/report.csv" {
		t.Fatalf("collision should have been disambiguated: %#v", e)
	}
	if got, _ := os.ReadFile(squatter); string(got) != "old" {
		t.Fatalf("existing file must never be overwritten")
	}
	moved, err := os.ReadFile(filepath.Join(external, filepath.FromSlash(e.StoredRelPath)))
	if err != nil || string(moved) != "fresh" {
		t.Fatalf("moved content mismatch: %v %q", err, moved)
	}
}

func TestPlanDoesNotTouchDisk(t *testing.T) {
	project, external := roots(t)
	a := seed(t, project, "data/users.json", "users")
	m := store.NewManifest("proj")

	plan := Plan(external, []scan.HeavyFile{a}, m)
	if len(plan) != 1 || plan[0].StoredRelPath != "data/data/users.json" {
		t.Fatalf("plan mismatch: %#v", plan)
	}
	if _, err := os.Stat(a.AbsPath); err != nil {
		t.Fatalf("dry run must not move files: %v", err)
	}
	if _, err := os.Stat(external); !os.IsNotExist(err) {
		t.Fatalf("dry run must not create the external tree")
	}
}
