package store

import (
	"os"
	"path/filepath"
)

// Well-known names inside the external storage tree.
const (
	manifestFileName = "manifest.json"
	patchesFileName  = "patches.json"
	lockFileName     = ".lock"
)

// Category subtrees beneath the external root. Relocated files keep their
// original relative directory structure under one of these, by file role.
var CategoryDirs = []string{"data", "logs", "venvs", "garbage"}

// ExternalRoot resolves the external storage directory for a project:
// the sibling directory <project name>_data next to the project root.
func ExternalRoot(projectPath string) (string, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(abs), filepath.Base(abs)+"_data"), nil
}

// EnsureExternalTree creates the external root and its category subtrees.
func EnsureExternalTree(externalRoot string) error {
	for _, d := range CategoryDirs {
		if err := os.MkdirAll(filepath.Join(externalRoot, d), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ManifestPath returns the manifest location inside the external tree.
func ManifestPath(externalRoot string) string {
	return filepath.Join(externalRoot, manifestFileName)
}

// PatchesPath returns the patch record location inside the external tree.
func PatchesPath(externalRoot string) string {
	return filepath.Join(externalRoot, patchesFileName)
}

// LockPath returns the advisory lock location inside the external tree.
func LockPath(externalRoot string) string {
	return filepath.Join(externalRoot, lockFileName)
}

// ExternalExists reports whether the project has a manifest on disk.
func ExternalExists(externalRoot string) bool {
	_, err := os.Stat(ManifestPath(externalRoot))
	return err == nil
}
