package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// GeofenceSetHash computes a deterministic hash over a set of geofence
// (name, version) pairs, used as a cache-busting key for the warm geofence
// snapshot cache: any create/update/delete changes the hash.
func GeofenceSetHash(versions map[string]int64) string {
	if len(versions) == 0 {
		return ""
	}

	names := make([]string, 0, len(versions))
	for name := range versions {
		names = append(names, name)
	}
	sort.Strings(names)

	var data []byte
	for _, name := range names {
		data = append(data, []byte(fmt.Sprintf("g:%s:%d;", name, versions[name]))...)
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// PositionKey builds the cache key for a device's last known position.
func PositionKey(deviceID string) string {
	return fmt.Sprintf("position:%s", deviceID)
}

// DeviceSummaryKey builds the cache key for a device's status summary.
func DeviceSummaryKey(deviceID string) string {
	return fmt.Sprintf("device:%s:summary", deviceID)
}

// GeofenceSnapshotKey builds the cache key for the warm geofence snapshot,
// namespaced by GeofenceSetHash so a stale snapshot never survives a change.
func GeofenceSnapshotKey(setHash string) string {
	return fmt.Sprintf("geofence:snapshot:%s", setHash)
}

// QuickHash is a general-purpose SHA-256 hex hash for arbitrary byte
// payloads (e.g. a raw decoded frame).
func QuickHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash is QuickHash truncated to 16 hex characters, used where a
// shorter cache key component is preferable (e.g. logical dedup keys).
func ShortHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}
