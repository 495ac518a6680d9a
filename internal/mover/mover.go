// Package mover physically relocates eligible files into the external
// storage tree, one at a time, persisting the manifest after every single
// move so a crash leaves at most one file unaccounted for. That file is
// detected on the next run as an orphaned external file rather than
// silently re-moved.
package mover

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deepclean/internal/scan"
	"deepclean/internal/store"
)

// FileError records one per-file failure. A single failed move never
// aborts the batch.
type FileError struct {
	Path string
	Err  string
}

// Result summarizes one mover pass.
type Result struct {
	Moved   []store.Entry
	Skipped int // entries already at status >= moved (idempotent re-run)
	Failed  []FileError
	Orphans []string // external files with no manifest entry, left untouched
}

// MoveAll relocates the moveable files beneath externalRoot, preserving
// each file's relative directory structure under its category subtree.
// The manifest is mutated in place and persisted after each successful
// move.
func MoveAll(projectRoot, externalRoot string, moveable []scan.HeavyFile, m *store.Manifest) (Result, error) {
	var res Result

	orphans, err := FindOrphans(externalRoot, m)
	if err != nil {
		return res, err
	}
	res.Orphans = orphans

	if len(moveable) == 0 {
		return res, nil
	}
	if err := store.EnsureExternalTree(externalRoot); err != nil {
		return res, err
	}

	for _, hf := range moveable {
		if cur := m.Lookup(hf.RelPath); cur != nil && cur.Status.AtLeast(store.StatusMoved) {
			res.Skipped++
			continue
		}

		storedRel := destFor(externalRoot, hf)
		dest := filepath.Join(externalRoot, filepath.FromSlash(storedRel))

		fingerprint, err := sha256File(hf.AbsPath)
		if err != nil {
			res.Failed = append(res.Failed, FileError{Path: hf.RelPath, Err: err.Error()})
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			res.Failed = append(res.Failed, FileError{Path: hf.RelPath, Err: err.Error()})
			continue
		}
		if err := Transfer(hf.AbsPath, dest); err != nil {
			res.Failed = append(res.Failed, FileError{Path: hf.RelPath, Err: err.Error()})
			continue
		}

		entry := store.Entry{
			OriginalRelPath:    hf.RelPath,
			StoredRelPath:      storedRel,
			SizeBytes:          hf.SizeBytes,
			ContentFingerprint: fingerprint,
			MovedAt:            time.Now().UTC().Format(time.RFC3339),
			Status:             store.StatusMoved,
		}
		m.Upsert(entry)
		if err := store.Save(externalRoot, m); err != nil {
			// The file is already at its destination; failing to persist
			// here must stop the batch, or a crash would widen the gap
			// between disk and manifest beyond one file.
			return res, fmt.Errorf("persisting manifest after moving %s: %w", hf.RelPath, err)
		}
		res.Moved = append(res.Moved, entry)
	}
	return res, nil
}

// destFor computes the stored relative path for a candidate: its category
// subtree plus the original relative path. A destination that already
// exists on disk (an orphan or an unrelated collision, either way not ours
// to overwrite) gets a disambiguator suffix derived from the
// original path rather than being overwritten.
func destFor(externalRoot string, hf scan.HeavyFile) string {
	rel := string(hf.Category) + "/" + hf.RelPath
	full := filepath.Join(externalRoot, filepath.FromSlash(rel))
	if _, err := os.Lstat(full); err == nil {
		rel = suffixed(rel, pathKey(hf.RelPath))
	}
	return rel
}

// suffixed inserts "-<key>" before the extension of the final segment.
func suffixed(rel, key string) string {
	ext := filepath.Ext(rel)
	return strings.TrimSuffix(rel, ext) + "-" + key + ext
}

// pathKey returns a short, stable identifier for a relative path.
func pathKey(rel string) string {
	sum := sha256.Sum256([]byte(rel))
	return hex.EncodeToString(sum[:])[:12]
}

// Transfer renames src to dst, falling back to copy+remove when the rename
// fails (typically a cross-device link error between the project volume
// and the external tree). The restore path uses it in the other direction.
func Transfer(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

// sha256File computes a hex-encoded sha256 for the file at path.
func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
