package geofence

import (
	"testing"

	"fleettrack/internal/domain"
)

func TestHaversineMeters_KnownDistance(t *testing.T) {
	// London to Paris, roughly 343 km.
	london := domain.Point{Lat: 51.5074, Lon: -0.1278}
	paris := domain.Point{Lat: 48.8566, Lon: 2.3522}

	d := HaversineMeters(london, paris)
	if d < 340000 || d > 346000 {
		t.Errorf("expected ~343km, got %fm", d)
	}
}

func TestContainsPolygon_InsideAndOutside(t *testing.T) {
	square := []domain.Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
		{Lat: 1, Lon: 1},
		{Lat: 1, Lon: 0},
	}

	if !ContainsPolygon(square, domain.Point{Lat: 0.5, Lon: 0.5}) {
		t.Error("expected center point to be inside")
	}
	if ContainsPolygon(square, domain.Point{Lat: 2, Lon: 2}) {
		t.Error("expected far point to be outside")
	}
}

func TestContainsPolygon_BoundaryCountsAsInside(t *testing.T) {
	square := []domain.Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
		{Lat: 1, Lon: 1},
		{Lat: 1, Lon: 0},
	}

	if !ContainsPolygon(square, domain.Point{Lat: 0, Lon: 0.5}) {
		t.Error("expected on-edge point to count as inside")
	}
}

func TestContainsCircle(t *testing.T) {
	center := domain.Point{Lat: 51.5074, Lon: -0.1278}
	near := domain.Point{Lat: 51.5080, Lon: -0.1278}
	far := domain.Point{Lat: 52.0, Lon: -0.1278}

	if !ContainsCircle(center, 1000, near) {
		t.Error("expected nearby point to be within radius")
	}
	if ContainsCircle(center, 1000, far) {
		t.Error("expected far point to be outside radius")
	}
}

func TestContainsPolyline(t *testing.T) {
	line := []domain.Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
	}

	onLine := domain.Point{Lat: 0, Lon: 0.5}
	far := domain.Point{Lat: 5, Lon: 0.5}

	if !ContainsPolyline(line, 50, onLine) {
		t.Error("expected point on the line to be within buffer")
	}
	if ContainsPolyline(line, 50, far) {
		t.Error("expected far point to be outside buffer")
	}
}
