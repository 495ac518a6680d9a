package mover

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"deepclean/internal/store"
)

// FindOrphans walks the external category subtrees and returns the
// relative paths of files no manifest entry references. Orphans are the
// signature of a crash between a physical move and its manifest persist;
// they are reported and left untouched, never silently adopted or
// re-moved.
func FindOrphans(externalRoot string, m *store.Manifest) ([]string, error) {
	if _, err := os.Stat(externalRoot); os.IsNotExist(err) {
		return nil, nil
	}

	referenced := make(map[string]struct{}, len(m.Entries))
	for _, e := range m.Entries {
		referenced[e.StoredRelPath] = struct{}{}
	}

	var orphans []string
	for _, cat := range store.CategoryDirs {
		catDir := filepath.Join(externalRoot, cat)
		err := filepath.WalkDir(catDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			rel, rerr := filepath.Rel(externalRoot, path)
			if rerr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if _, ok := referenced[rel]; !ok {
				orphans = append(orphans, rel)
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	sort.Strings(orphans)
	return orphans, nil
}
