package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Garbage name patterns: temp/backup droppings, rotated logs, editor swap
// files, and OS junk. Matched against the lowercase base name.
var garbageSuffixes = []string{
	".tmp", ".temp", ".bak", ".old", ".backup", ".cache",
	".swp", ".swo", "~",
}

var garbageNames = map[string]struct{}{
	".ds_store": {}, "thumbs.db": {}, "desktop.ini": {},
}

func isGarbageName(base string) bool {
	b := strings.ToLower(base)
	if _, ok := garbageNames[b]; ok {
		return true
	}
	for _, suf := range garbageSuffixes {
		if strings.HasSuffix(b, suf) {
			return true
		}
	}
	// Rotated logs: app.log.1, app.log.old, ...
	if i := strings.Index(b, ".log."); i > 0 {
		return true
	}
	return false
}

// Garbage walks the project and returns droppings eligible for the
// external garbage/ subtree, with sizes, as HeavyFile records so they flow
// through the same mover and manifest as heavy data files.
func Garbage(projectPath string) ([]HeavyFile, error) {
	root, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, err
	}
	var out []HeavyFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			base := filepath.Base(rel)
			if _, skip := skipDirs[base]; skip && rel != "." {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !isGarbageName(filepath.Base(rel)) {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil || !info.Mode().IsRegular() {
			return nil
		}
		out = append(out, HeavyFile{
			AbsPath:         path,
			RelPath:         rel,
			SizeBytes:       info.Size(),
			EstimatedTokens: EstimateTokens(rel, info.Size()),
			Category:        CategoryGarbage,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out, nil
}
