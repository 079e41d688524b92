package domain

import (
	"strconv"
	"time"
)

// KnotsPerKmh converts km/h to knots: 1 km/h = 0.539957 kn.
const KnotsPerKmh = 0.539957

// KnotsPerMps converts m/s to knots: 1 m/s = 1.94384 kn.
const KnotsPerMps = 1.94384

// Position is a canonical telemetry sample. Owned by exactly one of Device
// or UnknownDevice. Immutable after write.
type Position struct {
	ID             string
	DeviceID       string
	UnknownID      string
	Protocol       string
	ServerTime     time.Time
	DeviceTime     time.Time
	FixTime        time.Time
	Valid          bool
	Latitude       float64
	Longitude      float64
	Altitude       float64
	SpeedKnots     float64
	Course         float64
	Accuracy       float64
	Attributes     map[string]any
}

// ValidFix reports whether the coordinates form a valid GPS fix: within
// range and not the (0,0) null-island sentinel (spec.md B2).
func (p *Position) ValidFix() bool {
	if p.Latitude < -90 || p.Latitude > 90 {
		return false
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return false
	}
	if p.Latitude == 0 && p.Longitude == 0 {
		return false
	}
	return true
}

// Ignition reports the decoder-reported ignition attribute, defaulting to
// false when absent.
func (p *Position) Ignition() bool {
	v, ok := p.Attributes["ignition"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Alarm returns the decoder-reported alarm code, if any.
func (p *Position) Alarm() (string, bool) {
	v, ok := p.Attributes["alarm"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// LogicalKey is the idempotence key used by the persistence facade to
// dedupe re-ingested frames (spec.md R2): (device, device_time, lat, lon).
func (p *Position) LogicalKey() string {
	owner := p.DeviceID
	if owner == "" {
		owner = p.UnknownID
	}
	return owner + "|" + p.DeviceTime.UTC().Format(time.RFC3339Nano) +
		"|" + strconv.FormatFloat(p.Latitude, 'f', -1, 64) +
		"|" + strconv.FormatFloat(p.Longitude, 'f', -1, 64)
}
