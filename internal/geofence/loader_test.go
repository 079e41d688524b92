package geofence

import (
	"context"
	"testing"

	"fleettrack/internal/domain"
	"fleettrack/pkg/cache"
)

type fakeStore struct {
	versions    map[string]int64
	geofences   []*domain.Geofence
	listCalls   int
	versionCall int
}

func (f *fakeStore) Versions(_ context.Context) (map[string]int64, error) {
	f.versionCall++
	return f.versions, nil
}

func (f *fakeStore) ListEnabled(_ context.Context) ([]*domain.Geofence, error) {
	f.listCalls++
	return f.geofences, nil
}

func TestLoader_CacheMissThenHit(t *testing.T) {
	store := &fakeStore{
		versions: map[string]int64{"depot": 1},
		geofences: []*domain.Geofence{{
			ID: "gf-1", Name: "depot", Geometry: domain.GeometryCircle,
			Center: domain.Point{Lat: 1, Lon: 2}, RadiusM: 100,
		}},
	}
	snapshotCache := cache.NewSnapshotCache(cache.NewMemoryCache(nil), 0)
	loader := NewLoader(store, snapshotCache)
	ctx := context.Background()

	snap, err := loader.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(snap.Geofences()) != 1 {
		t.Fatalf("expected 1 geofence, got %d", len(snap.Geofences()))
	}
	if store.listCalls != 1 {
		t.Fatalf("expected a store read on cache miss, got %d calls", store.listCalls)
	}

	// Second load with the same version set should hit the warm cache and
	// skip the store's full list read.
	if _, err := loader.Load(ctx); err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if store.listCalls != 1 {
		t.Errorf("expected cache hit to avoid a second store read, got %d calls", store.listCalls)
	}
}

func TestLoader_VersionChangeInvalidatesCache(t *testing.T) {
	store := &fakeStore{
		versions: map[string]int64{"depot": 1},
		geofences: []*domain.Geofence{{
			ID: "gf-1", Name: "depot", Geometry: domain.GeometryCircle,
			Center: domain.Point{Lat: 1, Lon: 2}, RadiusM: 100,
		}},
	}
	snapshotCache := cache.NewSnapshotCache(cache.NewMemoryCache(nil), 0)
	loader := NewLoader(store, snapshotCache)
	ctx := context.Background()

	if _, err := loader.Load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	store.versions = map[string]int64{"depot": 2}
	if _, err := loader.Load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if store.listCalls != 2 {
		t.Errorf("expected version bump to force a fresh store read, got %d calls", store.listCalls)
	}
}
