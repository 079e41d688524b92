// Package protocol implements the wire-level decoders and command encoders
// for the device protocols FleetTrack accepts. Each protocol owns both
// directions: Decoder turns raw bytes into a canonical Frame, Encoder turns
// an outbound domain.Command into that protocol's wire syntax.
package protocol

import (
	"net"
	"time"

	"fleettrack/internal/domain"
)

// FrameKind classifies what a decoded Frame represents.
type FrameKind string

const (
	FrameLocation  FrameKind = "location"
	FrameHeartbeat FrameKind = "heartbeat"
	FrameEvent     FrameKind = "event"
)

// Frame is the canonical decode result: one GPS sample or device signal,
// normalized to UTC timestamps and meters/knots/degrees units regardless of
// source protocol (spec.md §4.1).
type Frame struct {
	SourceID   string
	Protocol   string
	Kind       FrameKind
	Timestamp  time.Time
	Latitude   float64
	Longitude  float64
	Altitude   float64
	SpeedKnots float64
	Course     float64
	Accuracy   float64
	Valid      bool
	Attributes map[string]any
	Raw        []byte
}

// ValidFix reports whether the frame carries a usable GPS fix (spec.md B2).
func (f *Frame) ValidFix() bool {
	if f.Latitude < -90 || f.Latitude > 90 {
		return false
	}
	if f.Longitude < -180 || f.Longitude > 180 {
		return false
	}
	if f.Latitude == 0 && f.Longitude == 0 {
		return false
	}
	return true
}

// ToPosition projects a location Frame onto a domain.Position. The caller
// fills in ID and the owning DeviceID/UnknownID once the source has been
// resolved (internal/resolver); protocol decoders never look up devices.
func (f *Frame) ToPosition() *domain.Position {
	return &domain.Position{
		Protocol:   f.Protocol,
		ServerTime: time.Now().UTC(),
		DeviceTime: f.Timestamp,
		FixTime:    f.Timestamp,
		Valid:      f.Valid && f.ValidFix(),
		Latitude:   f.Latitude,
		Longitude:  f.Longitude,
		Altitude:   f.Altitude,
		SpeedKnots: f.SpeedKnots,
		Course:     f.Course,
		Accuracy:   f.Accuracy,
		Attributes: f.Attributes,
	}
}

// Decoder turns raw protocol bytes into a canonical Frame. Implementations
// must not touch the network, disk, or any shared state — decode is a pure
// function of (raw, addr) (spec.md §4.1).
type Decoder interface {
	Protocol() string
	Decode(raw []byte, addr net.Addr) (*Frame, error)
}

// Encoder renders an outbound domain.Command as the wire string a device's
// protocol expects. Not every protocol accepts inbound control — OsmAnd is
// report-only and returns apperror.CodeUnsupportedCommand.
type Encoder interface {
	EncodeCommand(cmd *domain.Command) (string, error)
}

// stripControlChars removes bytes below 0x20 other than \n, \r, \t, matching
// the cleanup every decoder applies before splitting fields.
func stripControlChars(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 || c == '\n' || c == '\r' || c == '\t' {
			out = append(out, c)
		}
	}
	return string(out)
}
