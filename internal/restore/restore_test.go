package restore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"deepclean/internal/bridge"
	"deepclean/internal/mover"
	"deepclean/internal/patch"
	"deepclean/internal/scan"
	"deepclean/internal/store"
	"deepclean/internal/symlink"
)

const appSource = `import os

def load():
    users = open("data/users.json")
    big = open("data/big.csv")
`

// forward runs the full pipeline by hand over a two-file project and
// returns everything restore needs.
func forward(t *testing.T) (project, external string, m *store.Manifest, ps *store.PatchSet) {
	t.Helper()
	base := t.TempDir()
	project = filepath.Join(base, "webapp")
	require.NoError(t, os.MkdirAll(filepath.Join(project, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(project, "data", "users.json"), []byte(`{"users": []}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(project, "data", "big.csv"), []byte("a,b\n1,2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(project, "app.py"), []byte(appSource), 0o644))

	external, err := store.ExternalRoot(project)
	require.NoError(t, err)
	m = store.NewManifest("webapp")

	moveable := []scan.HeavyFile{
		{AbsPath: filepath.Join(project, "data", "users.json"), RelPath: "data/users.json", SizeBytes: 13, Category: scan.CategoryData},
		{AbsPath: filepath.Join(project, "data", "big.csv"), RelPath: "data/big.csv", SizeBytes: 8, Category: scan.CategoryData},
	}
	mres, err := mover.MoveAll(project, external, moveable, m)
	require.NoError(t, err)
	require.Len(t, mres.Moved, 2)

	require.NoError(t, bridge.Generate(project, m))

	pres, err := patch.Apply(project, []string{"app.py"}, m.RelocatedSet())
	require.NoError(t, err)
	require.Equal(t, 1, pres.PatchedFiles)
	ps = &store.PatchSet{Version: store.FormatVersion, Records: pres.Records}
	require.NoError(t, store.SavePatches(external, ps))

	for _, e := range m.Entries {
		e.Status = store.StatusPatched
		m.Upsert(e)
	}
	_, err = symlink.Ensure(project, external, m.Entries)
	require.NoError(t, err)
	require.NoError(t, store.Save(external, m))
	return project, external, m, ps
}

func TestRunRoundTrip(t *testing.T) {
	project, external, m, ps := forward(t)

	res, err := Run(project, external, m, ps)
	require.NoError(t, err)
	require.Empty(t, res.Conflicts)
	require.ElementsMatch(t, []string{"data/big.csv", "data/users.json"}, res.Restored)
	require.True(t, res.Complete)

	// files are back and byte-identical
	b, err := os.ReadFile(filepath.Join(project, "data", "users.json"))
	require.NoError(t, err)
	require.Equal(t, `{"users": []}`, string(b))
	b, err = os.ReadFile(filepath.Join(project, "data", "big.csv"))
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", string(b))

	// source is byte-identical to the pre-patch original
	src, err := os.ReadFile(filepath.Join(project, "app.py"))
	require.NoError(t, err)
	require.Equal(t, appSource, string(src))

	// resolver, manifest and patch records are gone
	_, err = os.Stat(filepath.Join(project, bridge.FileName))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(store.ManifestPath(external))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(store.PatchesPath(external))
	require.True(t, os.IsNotExist(err))
}

func TestRunRefusesEditedPatchSite(t *testing.T) {
	project, external, m, ps := forward(t)

	// hand-edit one patched call site
	appPath := filepath.Join(project, "app.py")
	src, err := os.ReadFile(appPath)
	require.NoError(t, err)
	edited := strings.Replace(string(src),
		`open(get_path("data/users.json"))`,
		`open(get_path("data/users.json"), encoding="utf-8")`, 1)
	require.NotEqual(t, string(src), edited)
	require.NoError(t, os.WriteFile(appPath, []byte(edited), 0o644))

	res, err := Run(project, external, m, ps)
	require.NoError(t, err)

	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	require.Equal(t, "data/users.json", c.OriginalRelPath)
	require.Contains(t, c.Reason, "app.py")
	require.Contains(t, c.Diff, "-")
	require.Contains(t, c.Diff, `encoding="utf-8"`)

	// the other entry restored fine, the conflicted one stayed put
	require.Equal(t, []string{"data/big.csv"}, res.Restored)
	require.False(t, res.Complete)
	require.NotNil(t, m.Lookup("data/users.json"))
	require.Nil(t, m.Lookup("data/big.csv"))

	// edited file untouched, stored copy still external
	after, err := os.ReadFile(appPath)
	require.NoError(t, err)
	require.Contains(t, string(after), `encoding="utf-8"`)
	_, err = os.Stat(filepath.Join(external, "data", "data", "users.json"))
	require.NoError(t, err)
}

func TestRunReportsOccupiedOriginal(t *testing.T) {
	project, external, m, ps := forward(t)

	// a real file reappears where the symlink should be
	origin := filepath.Join(project, "data", "users.json")
	require.NoError(t, os.Remove(origin))
	require.NoError(t, os.WriteFile(origin, []byte("impostor"), 0o644))

	res, err := Run(project, external, m, ps)
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	require.Equal(t, "data/users.json", res.Conflicts[0].OriginalRelPath)

	// impostor untouched
	b, _ := os.ReadFile(origin)
	require.Equal(t, "impostor", string(b))
}

func TestRunIsResumable(t *testing.T) {
	project, external, m, ps := forward(t)

	// first pass restores everything; a second pass over the retired
	// state is a clean no-op
	_, err := Run(project, external, m, ps)
	require.NoError(t, err)

	m2, err := store.Load(external)
	require.NoError(t, err)
	require.Nil(t, m2)
}
