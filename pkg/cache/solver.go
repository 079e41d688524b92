package cache

import (
	"context"
	"encoding/json"
	"time"
)

// SnapshotCache wraps the generic Cache with typed helpers for the two
// read-through paths the pipeline and geofence evaluator depend on: a
// device's last known position, and the warm geofence snapshot used to
// avoid a store round trip on every ingested frame.
type SnapshotCache struct {
	cache      Cache
	defaultTTL time.Duration
}

// CachedPosition is the subset of a position the pipeline needs to resume
// speed/course-derived event evaluation without a store read (spec.md §4.4
// step 2).
type CachedPosition struct {
	DeviceID   string    `json:"device_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKnots float64   `json:"speed_knots"`
	Course     float64   `json:"course"`
	FixTime    time.Time `json:"fix_time"`
	Ignition   bool      `json:"ignition"`
}

// CachedGeofence is the subset of a geofence needed for point-in-region
// evaluation, stripped of metadata not used by the hot path.
type CachedGeofence struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Geometry string  `json:"geometry"`
	Polygon  [][2]float64 `json:"polygon,omitempty"`
	CenterLat float64 `json:"center_lat,omitempty"`
	CenterLon float64 `json:"center_lon,omitempty"`
	RadiusM   float64 `json:"radius_m,omitempty"`
	Polyline  [][2]float64 `json:"polyline,omitempty"`
	BufferM   float64 `json:"buffer_m,omitempty"`
}

// geofenceSnapshotTTL is deliberately long: the snapshot is keyed by
// GeofenceSetHash, so a real change invalidates it by producing a
// different key rather than by expiry. The TTL only bounds how long an
// orphaned key (from a hash that will never recur) lingers.
const geofenceSnapshotTTL = 24 * time.Hour

// NewSnapshotCache creates a cache wrapper with the given default TTL for
// position entries.
func NewSnapshotCache(cache Cache, defaultTTL time.Duration) *SnapshotCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &SnapshotCache{
		cache:      cache,
		defaultTTL: defaultTTL,
	}
}

// GetPosition fetches a device's last known position.
func (sc *SnapshotCache) GetPosition(ctx context.Context, deviceID string) (*CachedPosition, bool, error) {
	data, err := sc.cache.Get(ctx, PositionKey(deviceID))
	if err != nil {
		if err == ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	var pos CachedPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		_ = sc.cache.Delete(ctx, PositionKey(deviceID)) //nolint:errcheck // best effort cleanup of a corrupt entry
		return nil, false, nil
	}
	return &pos, true, nil
}

// SetPosition stores a device's last known position for the pipeline's
// next frame.
func (sc *SnapshotCache) SetPosition(ctx context.Context, pos *CachedPosition, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = sc.defaultTTL
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return sc.cache.Set(ctx, PositionKey(pos.DeviceID), data, ttl)
}

// GetGeofenceSnapshot fetches the warm geofence set for a given set hash.
// A miss means the caller must rebuild the snapshot from the store and
// call SetGeofenceSnapshot.
func (sc *SnapshotCache) GetGeofenceSnapshot(ctx context.Context, setHash string) ([]CachedGeofence, bool, error) {
	data, err := sc.cache.Get(ctx, GeofenceSnapshotKey(setHash))
	if err != nil {
		if err == ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	var snapshot []CachedGeofence
	if err := json.Unmarshal(data, &snapshot); err != nil {
		_ = sc.cache.Delete(ctx, GeofenceSnapshotKey(setHash)) //nolint:errcheck // best effort cleanup
		return nil, false, nil
	}
	return snapshot, true, nil
}

// SetGeofenceSnapshot stores the warm geofence set. The caller invalidates
// by computing a new GeofenceSetHash whenever any geofence's Version
// changes, so a stale snapshot is never read back under the old key.
func (sc *SnapshotCache) SetGeofenceSnapshot(ctx context.Context, setHash string, snapshot []CachedGeofence) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return sc.cache.Set(ctx, GeofenceSnapshotKey(setHash), data, geofenceSnapshotTTL)
}

// InvalidatePosition removes a device's cached position, used when a
// device is deleted or reassigned.
func (sc *SnapshotCache) InvalidatePosition(ctx context.Context, deviceID string) error {
	return sc.cache.Delete(ctx, PositionKey(deviceID))
}
