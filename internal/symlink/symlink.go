// Package symlink plants compatibility links inside the project tree for
// relocated files whose references could not be rewritten statically. A link
// at the file's original location points at its stored copy, so runtime
// path construction keeps working.
package symlink

import (
	"fmt"
	"os"
	"path/filepath"

	"deepclean/internal/store"
)

// Conflict reports an original path that is occupied by a real file or
// directory. The occupant is never overwritten; this is an inconsistency
// between the manifest and the project tree that needs a human.
type Conflict struct {
	OriginalRelPath string
	Occupant        string // "file" or "dir"
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: a real %s occupies the original location", c.OriginalRelPath, c.Occupant)
}

// Result summarizes one synthesis pass.
type Result struct {
	Created   int
	Existing  int // correct links already in place
	Conflicts []Conflict
}

// Ensure creates a symlink at each entry's original location pointing to
// its stored file. Entries already linked correctly are counted and left
// alone, so re-runs are no-ops.
func Ensure(projectPath, externalRoot string, entries []store.Entry) (Result, error) {
	var res Result
	for _, e := range entries {
		origin := filepath.Join(projectPath, filepath.FromSlash(e.OriginalRelPath))
		target := filepath.Join(externalRoot, filepath.FromSlash(e.StoredRelPath))

		fi, err := os.Lstat(origin)
		switch {
		case err == nil && fi.Mode()&os.ModeSymlink != 0:
			dest, rerr := os.Readlink(origin)
			if rerr == nil && dest == target {
				res.Existing++
				continue
			}
			// stale link, likely from an earlier layout; replace it
			if rerr := os.Remove(origin); rerr != nil {
				return res, fmt.Errorf("replace stale link %s: %w", e.OriginalRelPath, rerr)
			}
		case err == nil && fi.IsDir():
			res.Conflicts = append(res.Conflicts, Conflict{OriginalRelPath: e.OriginalRelPath, Occupant: "dir"})
			continue
		case err == nil:
			res.Conflicts = append(res.Conflicts, Conflict{OriginalRelPath: e.OriginalRelPath, Occupant: "file"})
			continue
		case !os.IsNotExist(err):
			return res, fmt.Errorf("lstat %s: %w", e.OriginalRelPath, err)
		}

		if err := os.MkdirAll(filepath.Dir(origin), 0o755); err != nil {
			return res, fmt.Errorf("mkdir for %s: %w", e.OriginalRelPath, err)
		}
		if err := os.Symlink(target, origin); err != nil {
			return res, fmt.Errorf("symlink %s: %w", e.OriginalRelPath, err)
		}
		res.Created++
	}
	return res, nil
}

// Remove deletes the compatibility link for one entry. A missing link is
// fine; a real file at the original location is left in place and reported
// as a conflict so the restore can surface it.
func Remove(projectPath string, e store.Entry) (conflict *Conflict, err error) {
	origin := filepath.Join(projectPath, filepath.FromSlash(e.OriginalRelPath))
	fi, err := os.Lstat(origin)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		occ := "file"
		if fi.IsDir() {
			occ = "dir"
		}
		return &Conflict{OriginalRelPath: e.OriginalRelPath, Occupant: occ}, nil
	}
	return nil, os.Remove(origin)
}
