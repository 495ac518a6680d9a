// Package bridge generates the path-resolver artifact patched source code
// calls at runtime: a config_paths.py module in the project root mapping
// original relative paths to their relocated locations.
//
// The artifact's external contract (module name, get_path signature) is
// stable across engine versions, since patched source files embed direct
// calls to it. The file is regenerated whenever the manifest changes
// meaningfully and is never hand-edited.
package bridge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"deepclean/internal/store"
)

// FileName is the bridge module's name inside the project root.
const FileName = "config_paths.py"

// ImportLine is the declaration the Source Patcher inserts, once per
// patched file.
const ImportLine = "from config_paths import get_path"

// Generate writes the bridge module for the manifest. Output is
// deterministic for a given manifest (entries are already ordered by key),
// so repeated runs leave identical bytes and the forward pipeline stays
// idempotent at the tree level.
func Generate(projectRoot string, m *store.Manifest) error {
	content := Render(m)
	path := filepath.Join(projectRoot, FileName)

	// Skip the write when nothing changed; keeps mtimes stable on re-runs.
	if cur, err := os.ReadFile(path); err == nil && string(cur) == content {
		return nil
	}

	f, err := os.CreateTemp(projectRoot, ".tmp-"+FileName+"-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.WriteString(content); err != nil {
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

// Remove deletes the bridge module, typically after a completed restore.
func Remove(projectRoot string) error {
	err := os.Remove(filepath.Join(projectRoot, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Render produces the bridge module source. Unmapped paths resolve against
// the project root, so unmoved files keep working unchanged and the bridge
// degrades gracefully when the manifest is absent or stale.
func Render(m *store.Manifest) string {
	var b strings.Builder
	b.WriteString(`"""Path resolver bridge generated by deepclean.

Maps original project-relative paths to their external storage locations.
Do not edit by hand: this module is regenerated whenever the relocation
manifest changes and removed when the project is restored.
"""
from pathlib import Path

PROJECT_ROOT = Path(__file__).resolve().parent
EXTERNAL_DATA = PROJECT_ROOT.parent / "`)
	b.WriteString(m.Project)
	b.WriteString(`_data"

FILES_MAP = {
`)
	for _, e := range m.Entries {
		fmt.Fprintf(&b, "    %q: EXTERNAL_DATA / %q,\n", e.OriginalRelPath, e.StoredRelPath)
	}
	b.WriteString(`}


def get_path(original):
    """Return the current location for an original relative path."""
    normalized = str(original).replace("\\", "/")
    while normalized.startswith("./"):
        normalized = normalized[2:]
    mapped = FILES_MAP.get(normalized)
    if mapped is not None:
        return mapped
    return PROJECT_ROOT / normalized


def is_relocated(original):
    """Report whether an original relative path has been moved externally."""
    normalized = str(original).replace("\\", "/")
    return normalized in FILES_MAP
`)
	return b.String()
}
