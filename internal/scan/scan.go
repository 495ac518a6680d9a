package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Directories never descended into. The external storage subtrees are not
// listed here: a _data/-style prefix inside the project is the Classifier's
// concern, not the walker's.
var skipDirs = map[string]struct{}{
	".git": {}, ".svn": {}, ".hg": {},
	".idea": {}, ".vscode": {}, ".cursor": {},
	"venv": {}, ".venv": {}, "env": {},
	"node_modules": {},
	"__pycache__":  {}, ".pytest_cache": {}, ".mypy_cache": {}, ".ruff_cache": {},
	"dist": {}, "build": {},
}

// Extensions treated as opaque binary: they carry no token weight and are
// never candidates for relocation through this pipeline.
var binaryExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".ico": {}, ".webp": {},
	".mp3": {}, ".mp4": {}, ".wav": {}, ".avi": {}, ".mov": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".rar": {}, ".7z": {}, ".bz2": {},
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".pyc": {}, ".pyo": {}, ".pyd": {},
}

var dataExts = map[string]struct{}{
	".json": {}, ".jsonl": {}, ".csv": {}, ".yaml": {}, ".yml": {}, ".xml": {},
	".sqlite": {}, ".sqlite3": {}, ".db": {}, ".parquet": {},
}

// Categorize maps a relative path onto its external subtree.
func Categorize(relPath string) Category {
	base := strings.ToLower(filepath.Base(relPath))
	ext := strings.ToLower(filepath.Ext(base))
	switch {
	case ext == ".log" || strings.Contains(base, ".log."):
		return CategoryLogs
	case isGarbageName(base):
		return CategoryGarbage
	case ext == "" && strings.Contains(base, "log"):
		return CategoryLogs
	default:
		if _, ok := dataExts[ext]; ok {
			return CategoryData
		}
		return CategoryData
	}
}

// EstimateTokens approximates token weight as size/4 for text files, the
// same heuristic the reading tools this engine optimizes for tend to use.
// Binary files weigh nothing.
func EstimateTokens(relPath string, size int64) int64 {
	ext := strings.ToLower(filepath.Ext(relPath))
	if _, bin := binaryExts[ext]; bin {
		return 0
	}
	return size / 4
}

type walkState struct {
	root      string
	threshold int64
	res       Result
}

// Project walks the project tree and returns every file whose estimated
// token weight meets threshold, heaviest first, along with the patchable
// source files seen on the way. The walk is deterministic: results are
// sorted, symlinks are not followed, and the skip set is fixed.
func Project(projectPath string, threshold int64) (Result, error) {
	root, err := filepath.Abs(projectPath)
	if err != nil {
		return Result{}, err
	}
	ws := &walkState{root: root, threshold: threshold, res: Result{ProjectPath: root}}
	if err := filepath.WalkDir(root, ws.visit); err != nil {
		return ws.res, err
	}
	sort.Slice(ws.res.HeavyFiles, func(i, j int) bool {
		a, b := ws.res.HeavyFiles[i], ws.res.HeavyFiles[j]
		if a.EstimatedTokens != b.EstimatedTokens {
			return a.EstimatedTokens > b.EstimatedTokens
		}
		return a.RelPath < b.RelPath
	})
	sort.Strings(ws.res.SourceFiles)
	return ws.res, nil
}

func (ws *walkState) visit(path string, d fs.DirEntry, err error) error {
	if err != nil {
		ws.res.Errors = append(ws.res.Errors, path+": "+err.Error())
		return nil
	}
	rel, ok := ws.relative(path)
	if !ok {
		return nil
	}
	if d.IsDir() {
		if rel == "." {
			return nil
		}
		base := filepath.Base(rel)
		if _, skip := skipDirs[base]; skip {
			return filepath.SkipDir
		}
		if strings.HasPrefix(base, ".") && base != ".github" {
			return filepath.SkipDir
		}
		return nil
	}
	if d.Type()&fs.ModeSymlink != 0 {
		return nil
	}
	info, err := d.Info()
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}

	ws.res.FilesScanned++
	if strings.HasSuffix(rel, ".py") {
		ws.res.SourceFiles = append(ws.res.SourceFiles, rel)
	}

	tokens := EstimateTokens(rel, info.Size())
	ws.res.TotalTokens += tokens
	// binary files weigh zero tokens but still count by raw size
	weight := tokens
	if weight == 0 {
		weight = info.Size() / 4
	}
	if weight < ws.threshold {
		return nil
	}
	ws.res.HeavyFiles = append(ws.res.HeavyFiles, HeavyFile{
		AbsPath:         path,
		RelPath:         rel,
		SizeBytes:       info.Size(),
		EstimatedTokens: tokens,
		Category:        Categorize(rel),
	})
	return nil
}

func (ws *walkState) relative(path string) (string, bool) {
	rel, err := filepath.Rel(ws.root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}
