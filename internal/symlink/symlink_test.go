package symlink

import (
	"os"
	"path/filepath"
	"testing"

	"deepclean/internal/store"
)

func entry(orig, stored string) store.Entry {
	return store.Entry{OriginalRelPath: orig, StoredRelPath: stored, Status: store.StatusPatched}
}

func setup(t *testing.T) (string, string) {
	t.Helper()
	base := t.TempDir()
	project := filepath.Join(base, "webapp")
	external := filepath.Join(base, "webapp_data")
	for _, d := range []string{project, filepath.Join(external, "data")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(external, "data", "users.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	return project, external
}

func TestEnsureCreatesAndRepeats(t *testing.T) {
	project, external := setup(t)
	entries := []store.Entry{entry("data/users.json", "data/users.json")}

	res, err := Ensure(project, external, entries)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if res.Created != 1 || res.Existing != 0 {
		t.Fatalf("first pass: %+v", res)
	}

	link := filepath.Join(project, "data", "users.json")
	dest, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if want := filepath.Join(external, "data", "users.json"); dest != want {
		t.Fatalf("link target = %q, want %q", dest, want)
	}
	// reading through the link reaches the stored file
	if b, err := os.ReadFile(link); err != nil || string(b) != "{}" {
		t.Fatalf("read through link: %q %v", b, err)
	}

	res, err = Ensure(project, external, entries)
	if err != nil {
		t.Fatalf("Ensure again: %v", err)
	}
	if res.Created != 0 || res.Existing != 1 {
		t.Fatalf("second pass: %+v", res)
	}
}

func TestEnsureReportsRealFileConflict(t *testing.T) {
	project, external := setup(t)
	origin := filepath.Join(project, "data", "users.json")
	if err := os.MkdirAll(filepath.Dir(origin), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(origin, []byte("squatter"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Ensure(project, external, []store.Entry{entry("data/users.json", "data/users.json")})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(res.Conflicts) != 1 || res.Created != 0 {
		t.Fatalf("want one conflict, got %+v", res)
	}
	// the occupant is untouched
	if b, _ := os.ReadFile(origin); string(b) != "squatter" {
		t.Fatalf("occupant was modified: %q", b)
	}
}

func TestEnsureReplacesStaleLink(t *testing.T) {
	project, external := setup(t)
	origin := filepath.Join(project, "data", "users.json")
	if err := os.MkdirAll(filepath.Dir(origin), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(external, "data", "elsewhere.json"), origin); err != nil {
		t.Fatal(err)
	}

	res, err := Ensure(project, external, []store.Entry{entry("data/users.json", "data/users.json")})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("stale link not replaced: %+v", res)
	}
	dest, _ := os.Readlink(origin)
	if want := filepath.Join(external, "data", "users.json"); dest != want {
		t.Fatalf("link target = %q, want %q", dest, want)
	}
}

func TestRemove(t *testing.T) {
	project, external := setup(t)
	e := entry("data/users.json", "data/users.json")
	if _, err := Ensure(project, external, []store.Entry{e}); err != nil {
		t.Fatal(err)
	}

	conflict, err := Remove(project, e)
	if err != nil || conflict != nil {
		t.Fatalf("Remove: %v %v", conflict, err)
	}
	if _, err := os.Lstat(filepath.Join(project, "data", "users.json")); !os.IsNotExist(err) {
		t.Fatalf("link still present")
	}

	// removing again is a no-op
	if conflict, err := Remove(project, e); err != nil || conflict != nil {
		t.Fatalf("second Remove: %v %v", conflict, err)
	}

	// a real file is reported, not deleted
	origin := filepath.Join(project, "data", "users.json")
	if err := os.WriteFile(origin, []byte("real"), 0o644); err != nil {
		t.Fatal(err)
	}
	conflict, err = Remove(project, e)
	if err != nil {
		t.Fatalf("Remove over real file: %v", err)
	}
	if conflict == nil || conflict.Occupant != "file" {
		t.Fatalf("want file conflict, got %v", conflict)
	}
	if b, _ := os.ReadFile(origin); string(b) != "real" {
		t.Fatalf("real file was modified: %q", b)
	}
}
