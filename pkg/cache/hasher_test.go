package cache

import "testing"

func TestGeofenceSetHash(t *testing.T) {
	t.Run("empty set", func(t *testing.T) {
		hash := GeofenceSetHash(nil)
		if hash != "" {
			t.Errorf("GeofenceSetHash(nil) = %v, want empty string", hash)
		}
	})

	t.Run("same set produces same hash", func(t *testing.T) {
		v := map[string]int64{"home": 1, "warehouse": 3}

		hash1 := GeofenceSetHash(v)
		hash2 := GeofenceSetHash(v)

		if hash1 != hash2 {
			t.Errorf("same set should produce same hash: %v != %v", hash1, hash2)
		}
	})

	t.Run("different versions produce different hashes", func(t *testing.T) {
		v1 := map[string]int64{"home": 1}
		v2 := map[string]int64{"home": 2}

		if GeofenceSetHash(v1) == GeofenceSetHash(v2) {
			t.Error("different versions should produce different hashes")
		}
	})

	t.Run("map iteration order does not affect hash", func(t *testing.T) {
		v1 := map[string]int64{"a": 1, "b": 2, "c": 3}
		v2 := map[string]int64{"c": 3, "a": 1, "b": 2}

		if GeofenceSetHash(v1) != GeofenceSetHash(v2) {
			t.Error("key order should not affect hash")
		}
	})
}

func TestPositionKey(t *testing.T) {
	if got := PositionKey("907126119"); got != "position:907126119" {
		t.Errorf("PositionKey() = %v, want position:907126119", got)
	}
}

func TestDeviceSummaryKey(t *testing.T) {
	if got := DeviceSummaryKey("907126119"); got != "device:907126119:summary" {
		t.Errorf("DeviceSummaryKey() = %v, want device:907126119:summary", got)
	}
}

func TestGeofenceSnapshotKey(t *testing.T) {
	if got := GeofenceSnapshotKey("abc123"); got != "geofence:snapshot:abc123" {
		t.Errorf("GeofenceSnapshotKey() = %v, want geofence:snapshot:abc123", got)
	}
}

func TestQuickHash(t *testing.T) {
	data := []byte("test data")
	hash := QuickHash(data)

	if len(hash) != 64 { // SHA256 hex = 64 chars
		t.Errorf("QuickHash length = %d, want 64", len(hash))
	}

	hash2 := QuickHash(data)
	if hash != hash2 {
		t.Error("same data should produce same hash")
	}
}

func TestShortHash(t *testing.T) {
	data := []byte("test data")
	hash := ShortHash(data)

	if len(hash) != 16 {
		t.Errorf("ShortHash length = %d, want 16", len(hash))
	}
}
