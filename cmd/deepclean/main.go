// Package main provides the deepclean CLI: it identifies heavyweight data
// files inside an AI-assisted project tree, relocates them to an external
// sibling directory, rewrites source references through a generated path
// resolver, plants symlinks for dynamically built paths, and can undo all
// of it byte for byte.
//
// Modes:
//   - REPORT  : deepclean <project_dir>              (analyze only, default)
//   - FIX     : deepclean -fix <project_dir>         (relocate + patch + link)
//   - FULL    : deepclean -full <project_dir>        (fix + garbage sweep)
//   - RESTORE : deepclean -restore <project_dir>     (undo everything)
//
// Exit codes: 0 clean run, 1 completed with per-file errors or conflicts,
// 2 fatal (bad arguments, unreadable project, corrupt manifest, lock held).
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"deepclean/internal/bridge"
	"deepclean/internal/classify"
	"deepclean/internal/diffutil"
	"deepclean/internal/mover"
	"deepclean/internal/patch"
	"deepclean/internal/pathutil"
	"deepclean/internal/report"
	"deepclean/internal/restore"
	"deepclean/internal/scan"
	"deepclean/internal/store"
	"deepclean/internal/symlink"
)

const defaultThreshold = 2000 // estimated tokens

// Config captures parsed CLI flags plus the positional project path.
type Config struct {
	reportIt  bool
	fix       bool
	full      bool
	restoreIt bool
	dryRun    bool
	threshold int64
	envFile   string
	project   string
}

func parseFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("deepclean", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  REPORT : %s <project_dir>\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "  FIX    : %s -fix <project_dir>\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "  FULL   : %s -full <project_dir>\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "  RESTORE: %s -restore <project_dir>\n", filepath.Base(os.Args[0]))
		fmt.Fprintln(os.Stderr, "\nFlags:")
		fs.PrintDefaults()
	}

	var cfg Config
	fs.BoolVar(&cfg.reportIt, "report", false, "analyze and report only (the default)")
	fs.BoolVar(&cfg.fix, "fix", false, "relocate heavy files, patch sources, plant symlinks")
	fs.BoolVar(&cfg.full, "full", false, "everything -fix does, plus the garbage sweep")
	fs.BoolVar(&cfg.restoreIt, "restore", false, "undo a previous run completely")
	fs.BoolVar(&cfg.dryRun, "dry-run", false, "show planned moves and patch diffs without changing anything")
	fs.Int64Var(&cfg.threshold, "threshold", 0, "heaviness threshold in estimated tokens (0 = DEEPCLEAN_THRESHOLD or 2000)")
	fs.StringVar(&cfg.envFile, "env", "", "load an additional env file before reading DEEPCLEAN_* settings")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return cfg, errors.New("exactly one <project_dir> is required")
	}
	cfg.project = filepath.Clean(fs.Arg(0))
	return cfg, nil
}

// selectMode resolves the mutually exclusive mode flags.
func selectMode(cfg Config) (string, error) {
	picked := 0
	mode := "report"
	for _, m := range []struct {
		on   bool
		name string
	}{{cfg.reportIt, "report"}, {cfg.fix, "fix"}, {cfg.full, "full"}, {cfg.restoreIt, "restore"}} {
		if m.on {
			picked++
			mode = m.name
		}
	}
	if picked > 1 {
		return "", errors.New("-fix, -full and -restore are mutually exclusive")
	}
	if mode == "restore" && cfg.dryRun {
		return "", errors.New("-dry-run does not combine with -restore")
	}
	return mode, nil
}

// resolveThreshold applies the flag, the environment, then the default.
func resolveThreshold(flagVal int64, env string) int64 {
	if flagVal > 0 {
		return flagVal
	}
	if env != "" {
		var v int64
		if _, err := fmt.Sscanf(env, "%d", &v); err == nil && v > 0 {
			return v
		}
	}
	return defaultThreshold
}

// releaseLock is swapped in once the advisory lock is held, so every exit
// path through fatal or finish releases it.
var releaseLock = func() {}

func fatal(args ...any) {
	releaseLock()
	fmt.Fprintln(os.Stderr, append([]any{"ERROR:"}, args...)...)
	os.Exit(2)
}

func finish(code int) {
	releaseLock()
	os.Exit(code)
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	mode, err := selectMode(cfg)
	if err != nil {
		fatal(err)
	}

	if cfg.envFile != "" {
		if err := godotenv.Load(cfg.envFile); err != nil {
			fatal("loading env file:", err)
		}
	}
	threshold := resolveThreshold(cfg.threshold, os.Getenv("DEEPCLEAN_THRESHOLD"))

	info, err := os.Stat(cfg.project)
	if err != nil || !info.IsDir() {
		fatal("project directory not readable:", cfg.project)
	}

	externalRoot, err := store.ExternalRoot(cfg.project)
	if err != nil {
		fatal(err)
	}

	// Mutating modes take the single-writer lock for the whole run.
	if mode != "report" && !cfg.dryRun {
		release, err := store.AcquireLock(externalRoot)
		if err != nil {
			if errors.Is(err, store.ErrLocked) {
				fatal("another deepclean run holds the lock for", externalRoot)
			}
			fatal(err)
		}
		releaseLock = release
	}

	// A corrupt manifest is never silently replaced: abort and report.
	m, err := store.Load(externalRoot)
	if err != nil {
		fatal(err)
	}
	if m == nil {
		abs, _ := filepath.Abs(cfg.project)
		m = store.NewManifest(filepath.Base(abs))
	}

	if mode == "restore" {
		finish(runRestore(cfg, externalRoot, m))
	}
	finish(runForward(cfg, mode, threshold, externalRoot, m))
}

// runForward covers report, dry-run, fix and full.
func runForward(cfg Config, mode string, threshold int64, externalRoot string, m *store.Manifest) int {
	sum := report.Summary{Project: m.Project, Mode: mode, DryRun: cfg.dryRun}

	scanned, err := scan.Project(cfg.project, threshold)
	if err != nil {
		fatal("scanning project:", err)
	}
	sum.FilesScanned = scanned.FilesScanned
	sum.TotalTokens = scanned.TotalTokens
	sum.Errors = append(sum.Errors, scanned.Errors...)

	rules := classify.LoadRules(cfg.project)
	moveable, skipped := classify.Classify(scanned.HeavyFiles, m.RelocatedSet(), rules)
	sum.SkipCounts = skipped
	sum.Moveable = len(moveable)

	if mode == "full" {
		garbage, err := scan.Garbage(cfg.project)
		if err != nil {
			fatal("garbage sweep:", err)
		}
		g, gskipped := classify.Classify(garbage, m.RelocatedSet(), rules)
		for r, n := range gskipped {
			sum.SkipCounts[r] += n
		}
		moveable = append(moveable, g...)
	}

	if mode == "report" || cfg.dryRun {
		if store.ExternalExists(externalRoot) {
			orphans, err := mover.FindOrphans(externalRoot, m)
			if err != nil {
				fatal(err)
			}
			sum.Orphans = orphans
		}
		for _, p := range mover.Plan(externalRoot, moveable, m) {
			fmt.Printf("move  %s -> %s\n", p.OriginalRelPath, p.StoredRelPath)
		}
		if cfg.dryRun {
			previews, failures := patch.Preview(cfg.project, scanned.SourceFiles, wouldRelocate(m, moveable))
			for _, f := range failures {
				sum.Errors = append(sum.Errors, f.Path+": "+f.Err)
			}
			for _, pv := range previews {
				fmt.Print(diffutil.Unified(pv.Rel, pv.Rel+" (patched)", pv.Old, pv.New))
			}
			sum.Patched = len(previews)
		}
		fmt.Println(report.Render(sum))
		return exitCode(sum)
	}

	// ---- move ---------------------------------------------------------------
	mres, err := mover.MoveAll(cfg.project, externalRoot, moveable, m)
	if err != nil {
		fatal(err)
	}
	sum.Moved = len(mres.Moved)
	sum.Skipped = mres.Skipped
	sum.Orphans = mres.Orphans
	for _, f := range mres.Failed {
		sum.Errors = append(sum.Errors, f.Path+": "+f.Err)
	}

	// ---- bridge -------------------------------------------------------------
	if len(m.Entries) > 0 {
		if err := bridge.Generate(cfg.project, m); err != nil {
			fatal("writing path resolver:", err)
		}
	}

	// ---- patch --------------------------------------------------------------
	pres, err := patch.Apply(cfg.project, scanned.SourceFiles, m.RelocatedSet())
	if err != nil {
		fatal(err)
	}
	sum.Patched = pres.PatchedFiles
	sum.Rewrites = len(pres.Records)
	for _, f := range pres.Failures {
		sum.Errors = append(sum.Errors, f.Path+": "+f.Err)
	}
	if len(pres.Records) > 0 {
		ps, err := store.LoadPatches(externalRoot)
		if err != nil {
			fatal(err)
		}
		ps.Records = append(ps.Records, pres.Records...)
		if err := store.SavePatches(externalRoot, ps); err != nil {
			fatal("persisting patch records:", err)
		}
	}
	if err := upgradeStatus(externalRoot, m, pres.Referenced, store.StatusPatched); err != nil {
		fatal(err)
	}

	// ---- symlink ------------------------------------------------------------
	linkable := linkCandidates(m, pres.Dynamic)
	if len(linkable) > 0 {
		sres, err := symlink.Ensure(cfg.project, externalRoot, linkable)
		if err != nil {
			fatal(err)
		}
		sum.Symlinked = sres.Created + sres.Existing
		for _, c := range sres.Conflicts {
			sum.Conflicts = append(sum.Conflicts, c.String())
		}
		linked := make(map[string]struct{}, len(linkable))
		for _, e := range linkable {
			linked[e.OriginalRelPath] = struct{}{}
		}
		for _, c := range sres.Conflicts {
			delete(linked, c.OriginalRelPath)
		}
		if err := upgradeStatus(externalRoot, m, linked, store.StatusSymlinked); err != nil {
			fatal(err)
		}
	}

	fmt.Println(report.Render(sum))
	return exitCode(sum)
}

// wouldRelocate extends the relocated set with the files a dry run would
// move, so the patch preview matches what -fix would rewrite.
func wouldRelocate(m *store.Manifest, moveable []scan.HeavyFile) map[string]struct{} {
	set := m.RelocatedSet()
	for _, hf := range moveable {
		set[hf.RelPath] = struct{}{}
	}
	return set
}

// upgradeStatus advances the named entries to at least status s and
// persists once if anything changed.
func upgradeStatus(externalRoot string, m *store.Manifest, keys map[string]struct{}, s store.Status) error {
	changed := false
	for k := range keys {
		e := m.Lookup(k)
		if e == nil || e.Status.AtLeast(s) {
			continue
		}
		e.Status = s
		m.Upsert(*e)
		changed = true
	}
	if !changed {
		return nil
	}
	return store.Save(externalRoot, m)
}

// linkCandidates picks the entries that need a compatibility symlink:
// those whose top-level directory shows up in dynamic path construction.
// Statically patched references go through the resolver instead, and
// entries nothing refers to need neither.
func linkCandidates(m *store.Manifest, dynamic []patch.DynamicRef) []store.Entry {
	prefixes := make(map[string]struct{}, len(dynamic))
	for _, d := range dynamic {
		prefixes[d.Prefix] = struct{}{}
	}
	var out []store.Entry
	for _, e := range m.Entries {
		if _, ok := prefixes[pathutil.TopSegment(e.OriginalRelPath)]; ok {
			out = append(out, e)
		} else if e.Status == store.StatusSymlinked {
			// linked on a previous run; keep the link healthy
			out = append(out, e)
		}
	}
	return out
}

func runRestore(cfg Config, externalRoot string, m *store.Manifest) int {
	sum := report.Summary{Project: m.Project, Mode: "restore"}

	if len(m.Entries) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to restore.")
		fmt.Println(report.Render(sum))
		return 0
	}
	ps, err := store.LoadPatches(externalRoot)
	if err != nil {
		fatal(err)
	}
	res, err := restore.Run(cfg.project, externalRoot, m, ps)
	if err != nil {
		fatal(err)
	}
	sum.Restored = len(res.Restored)
	sum.Reverted = res.Reverted
	for _, c := range res.Conflicts {
		sum.Conflicts = append(sum.Conflicts, c.OriginalRelPath+": "+c.Reason)
		if c.Diff != "" {
			fmt.Fprint(os.Stderr, c.Diff)
		}
	}
	fmt.Println(report.Render(sum))
	return exitCode(sum)
}

func exitCode(sum report.Summary) int {
	if len(sum.Errors) > 0 || len(sum.Conflicts) > 0 {
		return 1
	}
	return 0
}
