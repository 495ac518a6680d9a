package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrCorrupt marks an unreadable or structurally invalid manifest. It is
// fatal for the whole run: silently starting a fresh manifest could re-move
// already-relocated files and destroy restore capability.
var ErrCorrupt = errors.New("manifest corrupt")

// ErrLocked is returned when another invocation holds the project lock.
var ErrLocked = errors.New("project is locked by another deepclean invocation")

// Load reads the manifest from the external tree. A missing file returns
// (nil, nil) so callers can treat it as "not yet optimized" without
// branching on errors. Unparseable or invalid content returns ErrCorrupt.
func Load(externalRoot string) (*Manifest, error) {
	b, err := os.ReadFile(ManifestPath(externalRoot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, ManifestPath(externalRoot), err)
	}
	if err := Validate(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &m, nil
}

// Save writes the manifest atomically. The write goes to a temporary file
// in the same directory, then renames over the final path so readers never
// observe a partially-written manifest. The Mover calls this after every
// individual move; that incremental persistence is what bounds the blast
// radius of a crash to a single file.
func Save(externalRoot string, m *Manifest) error {
	if err := os.MkdirAll(externalRoot, 0o755); err != nil {
		return err
	}
	return writeJSONAtomic(ManifestPath(externalRoot), m)
}

// Retire removes the manifest file after a completed restore.
func Retire(externalRoot string) error {
	err := os.Remove(ManifestPath(externalRoot))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// LoadPatches reads the persisted patch records. Missing file means no
// patches were applied.
func LoadPatches(externalRoot string) (*PatchSet, error) {
	b, err := os.ReadFile(PatchesPath(externalRoot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &PatchSet{Version: FormatVersion}, nil
		}
		return nil, err
	}
	var ps PatchSet
	if err := json.Unmarshal(b, &ps); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, PatchesPath(externalRoot), err)
	}
	return &ps, nil
}

// SavePatches persists the patch records atomically. An empty set removes
// the file.
func SavePatches(externalRoot string, ps *PatchSet) error {
	if len(ps.Records) == 0 {
		err := os.Remove(PatchesPath(externalRoot))
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return writeJSONAtomic(PatchesPath(externalRoot), ps)
}

// AcquireLock takes the single-writer advisory lock for the external tree.
// Only one engine invocation may run against a given project at a time.
func AcquireLock(externalRoot string) (release func(), err error) {
	if err := os.MkdirAll(externalRoot, 0o755); err != nil {
		return nil, err
	}
	path := LockPath(externalRoot)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w (lock file %s; remove it if no other run is active)", ErrLocked, path)
		}
		return nil, err
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	_ = f.Close()
	return func() { _ = os.Remove(path) }, nil
}

// writeJSONAtomic encodes v as indented JSON into a temp file next to path
// and renames it into place.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
