package geofence

import (
	"context"

	"fleettrack/internal/domain"
	"fleettrack/pkg/cache"
	"fleettrack/pkg/logger"
)

// Store is the narrow persistence read the loader needs. Implemented by
// internal/repository.
type Store interface {
	// Versions returns every enabled geofence's (name, version) pair —
	// cheap enough to call on every rebuild to decide whether the warm
	// cache snapshot is still current.
	Versions(ctx context.Context) (map[string]int64, error)
	ListEnabled(ctx context.Context) ([]*domain.Geofence, error)
}

// Loader builds a Snapshot via the warm cache when possible, falling back
// to the store on a cache miss (spec.md §4.5, grounded on
// pkg/cache.SnapshotCache's read-through pattern).
type Loader struct {
	store Store
	cache *cache.SnapshotCache
}

// NewLoader builds a Loader. snapshotCache may be nil to always read
// through to the store.
func NewLoader(store Store, snapshotCache *cache.SnapshotCache) *Loader {
	return &Loader{store: store, cache: snapshotCache}
}

// Load fetches the current geofence set and returns a ready-to-serve
// Snapshot.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	versions, err := l.store.Versions(ctx)
	if err != nil {
		return nil, err
	}
	setHash := cache.GeofenceSetHash(versions)

	if l.cache != nil && setHash != "" {
		if cached, found, err := l.cache.GetGeofenceSnapshot(ctx, setHash); err == nil && found {
			return newSnapshot(fromCached(cached)), nil
		}
	}

	geofences, err := l.store.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	if l.cache != nil && setHash != "" {
		if err := l.cache.SetGeofenceSnapshot(ctx, setHash, toCached(geofences)); err != nil {
			logger.Log.Warn("failed to warm geofence snapshot cache", "error", err)
		}
	}

	return newSnapshot(geofences), nil
}

func toCached(geofences []*domain.Geofence) []cache.CachedGeofence {
	out := make([]cache.CachedGeofence, 0, len(geofences))
	for _, g := range geofences {
		out = append(out, cache.CachedGeofence{
			ID:        g.ID,
			Name:      g.Name,
			Geometry:  string(g.Geometry),
			Polygon:   pointsToPairs(g.Polygon),
			CenterLat: g.Center.Lat,
			CenterLon: g.Center.Lon,
			RadiusM:   g.RadiusM,
			Polyline:  pointsToPairs(g.Polyline),
			BufferM:   g.BufferM,
		})
	}
	return out
}

func fromCached(cached []cache.CachedGeofence) []*domain.Geofence {
	out := make([]*domain.Geofence, 0, len(cached))
	for _, c := range cached {
		out = append(out, &domain.Geofence{
			ID:       c.ID,
			Name:     c.Name,
			Geometry: domain.GeometryType(c.Geometry),
			Polygon:  pairsToPoints(c.Polygon),
			Center:   domain.Point{Lat: c.CenterLat, Lon: c.CenterLon},
			RadiusM:  c.RadiusM,
			Polyline: pairsToPoints(c.Polyline),
			BufferM:  c.BufferM,
		})
	}
	return out
}

func pointsToPairs(points []domain.Point) [][2]float64 {
	if points == nil {
		return nil
	}
	out := make([][2]float64, len(points))
	for i, p := range points {
		out[i] = [2]float64{p.Lat, p.Lon}
	}
	return out
}

func pairsToPoints(pairs [][2]float64) []domain.Point {
	if pairs == nil {
		return nil
	}
	out := make([]domain.Point, len(pairs))
	for i, pr := range pairs {
		out[i] = domain.Point{Lat: pr[0], Lon: pr[1]}
	}
	return out
}
