package domain

import "time"

// TopicKind is the closed set of subscribable topic families (spec.md §4.8).
type TopicKind string

const (
	TopicPositions      TopicKind = "positions"
	TopicEvents         TopicKind = "events"
	TopicDevices        TopicKind = "devices"
	TopicUnknownDevices TopicKind = "unknown_devices"
	TopicGeofenceAlerts TopicKind = "geofence_alerts"

	// TopicDeviceBundle is spec.md §4.8's literal "device:<id>" topic: every
	// positions/events/devices message for one device, collapsed into a
	// single subscribe call instead of three. It is a convenience alias,
	// not a fourth message stream — publishes still carry their real kind.
	TopicDeviceBundle TopicKind = "device"
)

// BundledByDevice is the set of kinds a device: bundle subscription covers.
// internal/hub uses it to compute the inverted-index keys a published
// message may fan out through, without re-deriving the bundling rule.
var BundledByDevice = map[TopicKind]bool{
	TopicPositions: true,
	TopicEvents:    true,
	TopicDevices:   true,
}

// Topic identifies a subscribable stream. DeviceID is empty for the
// unknown_devices topic and for aggregate/global variants that span all
// devices the caller is authorized to see.
type Topic struct {
	Kind     TopicKind
	DeviceID string
	Global   bool
}

// String renders the topic as its wire key, e.g. "positions:dev-123",
// "device:dev-123", or "unknown_devices".
func (t Topic) String() string {
	switch {
	case t.Kind == TopicUnknownDevices:
		return string(t.Kind)
	case t.Global:
		return string(t.Kind) + ":*"
	default:
		return string(t.Kind) + ":" + t.DeviceID
	}
}

// Subscription is a hub session's live registration: the topic set it
// wants pushed. The bounded outbound buffer is held by the hub session
// (internal/hub), not by this struct.
type Subscription struct {
	ID        string
	SessionID string
	Topics    map[string]Topic
	CreatedAt time.Time
}

// NewSubscription creates an empty subscription for a session.
func NewSubscription(id, sessionID string) *Subscription {
	return &Subscription{
		ID:        id,
		SessionID: sessionID,
		Topics:    make(map[string]Topic),
		CreatedAt: time.Now(),
	}
}

// Subscribe adds a topic to the set, keyed by its wire string.
func (s *Subscription) Subscribe(t Topic) {
	s.Topics[t.String()] = t
}

// Unsubscribe removes a topic from the set.
func (s *Subscription) Unsubscribe(t Topic) {
	delete(s.Topics, t.String())
}

// Matches reports whether the subscription wants the given topic, honoring
// exact device keys, global/aggregate variants, and a device: bundle that
// covers positions/events/devices for one device.
func (s *Subscription) Matches(t Topic) bool {
	if _, ok := s.Topics[t.String()]; ok {
		return true
	}
	if _, ok := s.Topics[Topic{Kind: t.Kind, Global: true}.String()]; ok {
		return true
	}
	if t.DeviceID != "" && BundledByDevice[t.Kind] {
		bundle := Topic{Kind: TopicDeviceBundle, DeviceID: t.DeviceID}
		if _, ok := s.Topics[bundle.String()]; ok {
			return true
		}
	}
	return false
}
