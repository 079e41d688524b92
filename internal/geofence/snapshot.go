package geofence

import (
	"sync/atomic"

	"fleettrack/internal/domain"
)

// entry pairs a geofence with its precomputed bounding box prefilter.
type entry struct {
	geofence *domain.Geofence
	box      boundingBox
}

// Snapshot is an immutable view of the active geofence set, safe to share
// across goroutines without locking (spec.md §4.5).
type Snapshot struct {
	entries []entry
}

func newSnapshot(geofences []*domain.Geofence) *Snapshot {
	entries := make([]entry, 0, len(geofences))
	for _, g := range geofences {
		if g.Disabled {
			continue
		}
		entries = append(entries, entry{geofence: g, box: buildBoundingBox(g)})
	}
	return &Snapshot{entries: entries}
}

// Membership reports, for every enabled geofence in the snapshot, whether p
// falls inside it. Geofences whose bounding box prefilter excludes p are
// reported as not-contained without running the precise containment check.
func (s *Snapshot) Membership(p domain.Point) map[string]bool {
	result := make(map[string]bool, len(s.entries))
	for _, e := range s.entries {
		if !e.box.contains(p) {
			result[e.geofence.ID] = false
			continue
		}
		result[e.geofence.ID] = Contains(e.geofence, p)
	}
	return result
}

// Geofences returns the snapshot's enabled geofences.
func (s *Snapshot) Geofences() []*domain.Geofence {
	out := make([]*domain.Geofence, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.geofence)
	}
	return out
}

// Index holds the current Snapshot behind an atomic pointer, so readers
// never block on a rebuild and a rebuild never blocks on readers — the old
// snapshot is simply dropped once its last reader releases it (spec.md
// §4.5).
type Index struct {
	current atomic.Pointer[Snapshot]
}

// NewIndex builds an empty index. Callers should Rebuild it before serving
// traffic.
func NewIndex() *Index {
	idx := &Index{}
	idx.current.Store(newSnapshot(nil))
	return idx
}

// Snapshot returns the currently active snapshot.
func (idx *Index) Snapshot() *Snapshot {
	return idx.current.Load()
}

// Rebuild atomically replaces the active snapshot with one built from
// geofences. Called on any create/update/delete.
func (idx *Index) Rebuild(geofences []*domain.Geofence) {
	idx.current.Store(newSnapshot(geofences))
}
