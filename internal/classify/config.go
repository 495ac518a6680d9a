// Package classify decides which discovered heavy files are safe to
// relocate. Classification is pure: it never touches disk and returns an
// explicit skip-reason count map instead of mutating shared state.
package classify

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Rules holds the externally configurable exclusion sets. Defaults cover a
// typical Python-centric project; a .deepclean.env file in the project root
// or DEEPCLEAN_* environment variables override them.
type Rules struct {
	// SourceExts are protected source-code extensions (lowercase, with dot).
	SourceExts map[string]struct{}
	// ProtectedNames are base names that must never leave the project:
	// build manifests, dependency lock files, environment files,
	// assistant-instruction files, and the bridge module itself.
	// Compared case-insensitively.
	ProtectedNames map[string]struct{}
	// ExternalDirs are directory prefixes already belonging to external
	// storage trees. Compared as whole leading path segments.
	ExternalDirs []string
}

const (
	envFileName     = ".deepclean.env"
	envSourceExts   = "DEEPCLEAN_SOURCE_EXTS"
	envProtected    = "DEEPCLEAN_PROTECTED_NAMES"
	envExternalDirs = "DEEPCLEAN_EXTERNAL_DIRS"
)

func defaultRules() Rules {
	return Rules{
		SourceExts: toSet([]string{
			".py", ".go", ".js", ".jsx", ".ts", ".tsx", ".java", ".kt",
			".cs", ".rs", ".c", ".h", ".cpp", ".hpp", ".sh",
		}),
		ProtectedNames: toSet([]string{
			"main.py", "__init__.py", "__main__.py",
			"config.py", "settings.py", "constants.py",
			"requirements.txt", "pyproject.toml", "setup.py",
			"package.json", "package-lock.json", "go.mod", "go.sum",
			".env", ".env.example", ".gitignore",
			"readme.md", "claude.md", ".cursorrules",
			"config_paths.py",
		}),
		ExternalDirs: []string{"_data/", "_venvs/", "_artifacts/", "_logs/"},
	}
}

// LoadRules builds the rule set for a project: defaults, then an optional
// .deepclean.env in the project root, then process environment overrides.
// A missing env file is not an error.
func LoadRules(projectPath string) Rules {
	r := defaultRules()

	overlay := map[string]string{}
	if m, err := godotenv.Read(filepath.Join(projectPath, envFileName)); err == nil {
		for k, v := range m {
			overlay[k] = v
		}
	}
	for _, k := range []string{envSourceExts, envProtected, envExternalDirs} {
		if v := os.Getenv(k); v != "" {
			overlay[k] = v
		}
	}

	if v, ok := overlay[envSourceExts]; ok {
		r.SourceExts = toSet(splitCSV(v))
	}
	if v, ok := overlay[envProtected]; ok {
		r.ProtectedNames = toSet(splitCSV(v))
	}
	if v, ok := overlay[envExternalDirs]; ok {
		r.ExternalDirs = splitCSV(v)
	}
	return r
}

// splitCSV converts a comma-separated list into a slice, trimming blanks.
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toSet(list []string) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, v := range list {
		if v != "" {
			m[strings.ToLower(v)] = struct{}{}
		}
	}
	return m
}
