package bridge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"deepclean/internal/store"
)

func manifest() *store.Manifest {
	m := store.NewManifest("proj")
	m.Upsert(store.Entry{
		OriginalRelPath: "data/users.json",
		StoredRelPath:   "data/data/users.json",
		Status:          store.StatusMoved,
	})
	m.Upsert(store.Entry{
		OriginalRelPath: "logs/app.log",
		StoredRelPath:   "logs/logs/app.log",
		Status:          store.StatusMoved,
	})
	return m
}

func TestRenderIsDeterministicAndOrdered(t *testing.T) {
	m := manifest()
	a := Render(m)
	b := Render(m)
	if a != b {
		t.Fatalf("render must be deterministic")
	}
	di := strings.Index(a, `"data/users.json"`)
	li := strings.Index(a, `"logs/app.log"`)
	if di < 0 || li < 0 || di > li {
		t.Fatalf("mappings missing or unordered:\n%s", a)
	}
	if !strings.Contains(a, "def get_path(original):") {
		t.Fatalf("resolver operation missing:\n%s", a)
	}
	if !strings.Contains(a, `EXTERNAL_DATA = PROJECT_ROOT.parent / "proj_data"`) {
		t.Fatalf("external root wiring missing:\n%s", a)
	}
}

func TestGenerateWriteAndRewriteStable(t *testing.T) {
	dir := t.TempDir()
	m := manifest()
	if err := Generate(dir, m); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	path := filepath.Join(dir, FileName)
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := Generate(dir, m); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	second, _ := os.ReadFile(path)
	if string(first) != string(second) {
		t.Fatalf("regeneration changed bytes")
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	if err := Remove(t.TempDir()); err != nil {
		t.Fatalf("Remove on missing bridge: %v", err)
	}
}
