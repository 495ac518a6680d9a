package scan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, root, rel string, size int) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(strings.Repeat("x", size)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestProjectFindsHeavyFilesSortedBySize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data/users.json", 8000)
	writeFile(t, root, "logs/app.log", 12000)
	writeFile(t, root, "small.json", 10)
	writeFile(t, root, "app.py", 200)
	writeFile(t, root, ".git/objects/blob", 90000)
	writeFile(t, root, "node_modules/pkg/index.js", 90000)

	res, err := Project(root, 1000)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if len(res.HeavyFiles) != 2 {
		t.Fatalf("heavy files mismatch: %#v", res.HeavyFiles)
	}
	if res.HeavyFiles[0].RelPath != "logs/app.log" || res.HeavyFiles[1].RelPath != "data/users.json" {
		t.Fatalf("not sorted heaviest first: %#v", res.HeavyFiles)
	}
	if res.HeavyFiles[0].Category != CategoryLogs || res.HeavyFiles[1].Category != CategoryData {
		t.Fatalf("category mismatch: %#v", res.HeavyFiles)
	}
	if len(res.SourceFiles) != 1 || res.SourceFiles[0] != "app.py" {
		t.Fatalf("source files mismatch: %#v", res.SourceFiles)
	}
}

func TestEstimateTokensBinaryIsZero(t *testing.T) {
	if EstimateTokens("img/logo.png", 40000) != 0 {
		t.Fatalf("binary files must weigh nothing")
	}
	if EstimateTokens("data/users.json", 4000) != 1000 {
		t.Fatalf("text estimate should be size/4")
	}
}

func TestGarbagePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "old/app.py.bak", 100)
	writeFile(t, root, "logs/app.log.1", 100)
	writeFile(t, root, ".DS_Store", 10)
	writeFile(t, root, "main.py", 100)
	writeFile(t, root, "notes.txt", 100)

	got, err := Garbage(root)
	if err != nil {
		t.Fatalf("Garbage: %v", err)
	}
	var rels []string
	for _, g := range got {
		rels = append(rels, g.RelPath)
		if g.Category != CategoryGarbage {
			t.Fatalf("garbage category mismatch: %#v", g)
		}
	}
	want := []string{".DS_Store", "logs/app.log.1", "old/app.py.bak"}
	if len(rels) != len(want) {
		t.Fatalf("garbage mismatch: got %v want %v", rels, want)
	}
	for i := range want {
		if rels[i] != want[i] {
			t.Fatalf("garbage mismatch: got %v want %v", rels, want)
		}
	}
}
