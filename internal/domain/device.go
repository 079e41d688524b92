// Package domain holds the plain Go types shared across FleetTrack's
// components: devices, positions, events, geofences, commands, and
// subscriptions. No ORM, no lazy traversal — callers pass and return these
// structs by value or pointer and the persistence facade (internal/repository)
// does the narrow, explicit reads and writes.
package domain

import "time"

// DeviceStatus is the closed set of device connectivity states.
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
	DeviceStatusUnknown DeviceStatus = "unknown"
)

// Device is a registered tracker. unique_id is globally unique; status
// transitions are driven by events (online/offline sweep, per-frame arrival),
// never by wall-clock alone.
type Device struct {
	ID               string
	UniqueID         string
	Name             string
	Protocol         string
	Status           DeviceStatus
	LastSeen         time.Time
	LastPositionID   string
	TotalDistanceM   float64
	EngineSeconds    float64 // cumulative time with ignition held, spec.md §4.4 step 3
	Motion           bool
	Overspeed        bool
	SpeedLimitKnots  float64
	ExpiresAt        *time.Time
	GroupID          string
	Attributes       map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SpeedLimitKmh returns the device's configured speed limit in km/h,
// applying the 80 km/h default named in spec.md §4.6 when unset.
func (d *Device) SpeedLimitKmh(defaultKmh float64) float64 {
	if d.SpeedLimitKnots <= 0 {
		return defaultKmh
	}
	return d.SpeedLimitKnots / KnotsPerKmh
}

// UnknownDevice is a placeholder for telemetry from an unregistered
// unique_id. Exactly one record exists per (unique_id, protocol).
type UnknownDevice struct {
	ID               string
	UniqueID         string
	Protocol         string
	ListenerPort     int
	FirstSeen        time.Time
	LastSeen         time.Time
	ConnectionCount  int64
	LastRawFrame     string
	LastParsed       map[string]any
	Registered       bool
	AdoptedDeviceID  string
}
