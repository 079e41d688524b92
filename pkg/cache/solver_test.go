package cache

import (
	"context"
	"testing"
	"time"
)

func TestSnapshotCache_PositionSetGet(t *testing.T) {
	memCache := NewMemoryCache(nil)
	defer memCache.Close()

	snapshots := NewSnapshotCache(memCache, 5*time.Minute)
	ctx := context.Background()

	pos := &CachedPosition{
		DeviceID:   "dev-1",
		Latitude:   51.5,
		Longitude:  -0.12,
		SpeedKnots: 12.3,
		Course:     90,
		FixTime:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Ignition:   true,
	}

	if err := snapshots.SetPosition(ctx, pos, 0); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	got, found, err := snapshots.GetPosition(ctx, "dev-1")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if !found {
		t.Fatal("expected to find cached position")
	}
	if got.Latitude != pos.Latitude || got.Longitude != pos.Longitude {
		t.Errorf("expected coords %f,%f got %f,%f", pos.Latitude, pos.Longitude, got.Latitude, got.Longitude)
	}
	if !got.Ignition {
		t.Error("expected ignition true")
	}
}

func TestSnapshotCache_PositionGetNotFound(t *testing.T) {
	memCache := NewMemoryCache(nil)
	defer memCache.Close()

	snapshots := NewSnapshotCache(memCache, 5*time.Minute)
	ctx := context.Background()

	got, found, err := snapshots.GetPosition(ctx, "missing-device")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
	if got != nil {
		t.Error("expected nil result")
	}
}

func TestSnapshotCache_PositionInvalidate(t *testing.T) {
	memCache := NewMemoryCache(nil)
	defer memCache.Close()

	snapshots := NewSnapshotCache(memCache, 5*time.Minute)
	ctx := context.Background()

	pos := &CachedPosition{DeviceID: "dev-2", Latitude: 1, Longitude: 2}
	if err := snapshots.SetPosition(ctx, pos, 0); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	if err := snapshots.InvalidatePosition(ctx, "dev-2"); err != nil {
		t.Fatalf("failed to invalidate: %v", err)
	}

	_, found, _ := snapshots.GetPosition(ctx, "dev-2")
	if found {
		t.Error("expected position to be invalidated")
	}
}

func TestSnapshotCache_GeofenceSnapshotSetGet(t *testing.T) {
	memCache := NewMemoryCache(nil)
	defer memCache.Close()

	snapshots := NewSnapshotCache(memCache, 5*time.Minute)
	ctx := context.Background()

	hash := GeofenceSetHash(map[string]int64{"depot": 1, "yard": 3})
	fences := []CachedGeofence{
		{ID: "g1", Name: "depot", Geometry: "circle", CenterLat: 1, CenterLon: 2, RadiusM: 100},
		{ID: "g2", Name: "yard", Geometry: "polygon", Polygon: [][2]float64{{0, 0}, {0, 1}, {1, 1}}},
	}

	if err := snapshots.SetGeofenceSnapshot(ctx, hash, fences); err != nil {
		t.Fatalf("failed to set snapshot: %v", err)
	}

	got, found, err := snapshots.GetGeofenceSnapshot(ctx, hash)
	if err != nil {
		t.Fatalf("failed to get snapshot: %v", err)
	}
	if !found {
		t.Fatal("expected to find cached snapshot")
	}
	if len(got) != 2 {
		t.Errorf("expected 2 geofences, got %d", len(got))
	}
}

func TestSnapshotCache_GeofenceSnapshotMissOnHashChange(t *testing.T) {
	memCache := NewMemoryCache(nil)
	defer memCache.Close()

	snapshots := NewSnapshotCache(memCache, 5*time.Minute)
	ctx := context.Background()

	oldHash := GeofenceSetHash(map[string]int64{"depot": 1})
	newHash := GeofenceSetHash(map[string]int64{"depot": 2})

	if oldHash == newHash {
		t.Fatal("expected different hashes for different versions")
	}

	fences := []CachedGeofence{{ID: "g1", Name: "depot", Geometry: "circle", RadiusM: 50}}
	if err := snapshots.SetGeofenceSnapshot(ctx, oldHash, fences); err != nil {
		t.Fatalf("failed to set snapshot: %v", err)
	}

	_, found, err := snapshots.GetGeofenceSnapshot(ctx, newHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected miss after geofence version changed")
	}
}
