// Package events implements the Event Engine (C6): a pure derivation step
// from a position pair plus geofence membership deltas to a list of
// domain.Event, and a periodic sweeper for the online/offline rule that
// cannot be driven off a single frame.
//
// Grounded on original_source/traccar-python-api/app/services/event_handler.py
// and event_service.py for the closed event-type set and the "online/offline
// is also a timer-driven rule" behavior (SPEC_FULL.md §4.6).
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"fleettrack/internal/domain"
	"fleettrack/internal/geofence"
	"fleettrack/pkg/config"
)

// Engine derives events from position transitions. Safe for concurrent use
// across pipeline partitions: the only mutable state is the geofence dedup
// table, guarded by its own mutex.
type Engine struct {
	cfg             config.EventsConfig
	defaultSpeedKmh float64

	mu    sync.Mutex
	dedup map[string]time.Time // (device|geofence|type) -> last fired
}

// NewEngine builds an Engine. defaultSpeedLimitKmh is applied to devices
// with no speed limit of their own (Device.SpeedLimitKnots zero) (spec.md §4.6, default
// 80 km/h), sourced from config.PipelineConfig.DefaultSpeedKmh so the
// pipeline and event engine agree on one default.
func NewEngine(cfg config.EventsConfig, defaultSpeedLimitKmh float64) *Engine {
	if defaultSpeedLimitKmh <= 0 {
		defaultSpeedLimitKmh = 80
	}
	return &Engine{
		cfg:             cfg,
		defaultSpeedKmh: defaultSpeedLimitKmh,
		dedup:           make(map[string]time.Time),
	}
}

// Derive runs every predicate in spec.md §4.6 against the (prev, curr)
// position pair and the already-computed geofence transitions, returning
// the events to persist and fan out. prev may be nil (first frame seen for
// a device) — every rule that needs a previous sample is skipped in that
// case rather than firing spuriously.
func (e *Engine) Derive(prev, curr *domain.Position, dev *domain.Device, deltas []geofence.Transition) []*domain.Event {
	var out []*domain.Event
	now := curr.ServerTime

	if prev != nil {
		if prev.SpeedKnots == 0 && curr.SpeedKnots > 0 {
			out = append(out, e.newEvent(domain.EventDeviceMoving, curr, dev, now, nil))
		} else if prev.SpeedKnots > 0 && curr.SpeedKnots == 0 {
			out = append(out, e.newEvent(domain.EventDeviceStopped, curr, dev, now, nil))
		}

		if prev.Ignition() != curr.Ignition() {
			if curr.Ignition() {
				out = append(out, e.newEvent(domain.EventIgnitionOn, curr, dev, now, nil))
			} else {
				out = append(out, e.newEvent(domain.EventIgnitionOff, curr, dev, now, nil))
			}
		}
	}

	if limitKmh := e.speedLimitKmh(dev); limitKmh > 0 {
		limitKnots := limitKmh * domain.KnotsPerKmh
		wasOver := prev != nil && prev.SpeedKnots > limitKnots
		if curr.SpeedKnots > limitKnots && !wasOver {
			out = append(out, e.newEvent(domain.EventDeviceOverspeed, curr, dev, now, map[string]any{
				"speedLimit": limitKmh,
			}))
		}
	}

	if alarm, ok := curr.Alarm(); ok {
		out = append(out, e.newEvent(domain.EventAlarm, curr, dev, now, map[string]any{
			"alarm": alarm,
		}))
	}

	for _, t := range deltas {
		eventType := domain.EventGeofenceExit
		if t.Entered {
			eventType = domain.EventGeofenceEnter
		}
		if !e.shouldFireGeofenceEvent(dev.ID, t.GeofenceID, eventType, now) {
			continue
		}
		ev := e.newEvent(eventType, curr, dev, now, nil)
		ev.GeofenceID = t.GeofenceID
		out = append(out, ev)
	}

	return out
}

// shouldFireGeofenceEvent applies the 5-minute (configurable) dedup window
// keyed by (device, geofence, type): a repeat of the same transition within
// the window is suppressed.
func (e *Engine) shouldFireGeofenceEvent(deviceID, geofenceID string, eventType domain.EventType, now time.Time) bool {
	window := e.cfg.GeofenceDedupWindow
	if window <= 0 {
		window = 5 * time.Minute
	}

	key := deviceID + "|" + geofenceID + "|" + string(eventType)

	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.dedup[key]; ok && now.Sub(last) < window {
		return false
	}
	e.dedup[key] = now
	return true
}

func (e *Engine) speedLimitKmh(dev *domain.Device) float64 {
	if dev == nil {
		return 0
	}
	return dev.SpeedLimitKmh(e.defaultSpeedKmh)
}

func (e *Engine) newEvent(t domain.EventType, curr *domain.Position, dev *domain.Device, now time.Time, attrs map[string]any) *domain.Event {
	deviceID := ""
	if dev != nil {
		deviceID = dev.ID
	}
	return &domain.Event{
		ID:         uuid.New().String(),
		Type:       t,
		EventTime:  now,
		DeviceID:   deviceID,
		PositionID: curr.ID,
		Attributes: attrs,
	}
}
