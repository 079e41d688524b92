package hub

import (
	"fmt"
	"strings"

	"fleettrack/internal/domain"
)

// ParseTopic turns a client-supplied wire string (spec.md §4.8: per-device
// "device:<id>", aggregate "positions"/"events"/"devices"/"unknown_devices",
// and "geofence_alerts") into a domain.Topic. A bare aggregate name with no
// ":<id>" suffix subscribes to the global/all-devices variant.
func ParseTopic(raw string) (domain.Topic, error) {
	kind, id, hasID := strings.Cut(raw, ":")
	switch domain.TopicKind(kind) {
	case domain.TopicUnknownDevices:
		return domain.Topic{Kind: domain.TopicUnknownDevices}, nil
	case domain.TopicPositions, domain.TopicEvents, domain.TopicDevices, domain.TopicGeofenceAlerts:
		if !hasID || id == "" || id == "*" {
			return domain.Topic{Kind: domain.TopicKind(kind), Global: true}, nil
		}
		return domain.Topic{Kind: domain.TopicKind(kind), DeviceID: id}, nil
	case domain.TopicDeviceBundle:
		if !hasID || id == "" {
			return domain.Topic{}, fmt.Errorf("hub: %q needs a device id, e.g. device:dev-123", raw)
		}
		return domain.Topic{Kind: domain.TopicDeviceBundle, DeviceID: id}, nil
	default:
		return domain.Topic{}, fmt.Errorf("hub: unknown topic %q", raw)
	}
}

// candidateKeys returns the inverted-index keys a message published on t may
// fan out through: its own exact key, the aggregate/global variant of its
// kind, and — for kinds a device: bundle covers — that bundle's key.
func candidateKeys(t domain.Topic) []string {
	keys := make([]string, 0, 3)
	keys = append(keys, t.String())
	if t.Kind != domain.TopicUnknownDevices {
		keys = append(keys, domain.Topic{Kind: t.Kind, Global: true}.String())
	}
	if t.DeviceID != "" && domain.BundledByDevice[t.Kind] {
		keys = append(keys, domain.Topic{Kind: domain.TopicDeviceBundle, DeviceID: t.DeviceID}.String())
	}
	return keys
}
