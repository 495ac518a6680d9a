package mover

import (
	"deepclean/internal/scan"
	"deepclean/internal/store"
)

// PlannedMove is one step of a dry run: where a candidate would land.
type PlannedMove struct {
	OriginalRelPath string
	StoredRelPath   string
	SizeBytes       int64
}

// Plan simulates MoveAll without touching disk or persisting the manifest.
// Candidates already at status >= moved are omitted, mirroring the
// idempotent skip of a real run.
func Plan(externalRoot string, moveable []scan.HeavyFile, m *store.Manifest) []PlannedMove {
	var out []PlannedMove
	for _, hf := range moveable {
		if cur := m.Lookup(hf.RelPath); cur != nil && cur.Status.AtLeast(store.StatusMoved) {
			continue
		}
		out = append(out, PlannedMove{
			OriginalRelPath: hf.RelPath,
			StoredRelPath:   destFor(externalRoot, hf),
			SizeBytes:       hf.SizeBytes,
		})
	}
	return out
}
