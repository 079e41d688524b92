package hub

import (
	"time"

	"fleettrack/internal/domain"
	"fleettrack/internal/rpc"
)

// deviceStatusEvents is the subset of event types that the wire protocol
// surfaces as "device_status" rather than generic "event" messages
// (spec.md §4.8's server message list).
var deviceStatusEvents = map[domain.EventType]bool{
	domain.EventDeviceOnline:   true,
	domain.EventDeviceOffline:  true,
	domain.EventDeviceUnknown:  true,
	domain.EventDeviceInactive: true,
}

func positionEnvelope(pos *domain.Position, dev *domain.Device) *rpc.PushEnvelope {
	data := map[string]any{
		"id":          pos.ID,
		"device_id":   pos.DeviceID,
		"protocol":    pos.Protocol,
		"latitude":    pos.Latitude,
		"longitude":   pos.Longitude,
		"altitude":    pos.Altitude,
		"speed_knots": pos.SpeedKnots,
		"course":      pos.Course,
		"valid":       pos.Valid,
		"fix_time":    pos.FixTime,
		"attributes":  pos.Attributes,
	}
	if dev != nil {
		data["device_status"] = string(dev.Status)
		data["total_distance_m"] = dev.TotalDistanceM
		data["motion"] = dev.Motion
		data["overspeed"] = dev.Overspeed
	}
	return &rpc.PushEnvelope{Type: "position", Data: data, Timestamp: time.Now()}
}

func eventEnvelope(ev *domain.Event) *rpc.PushEnvelope {
	msgType := "event"
	if deviceStatusEvents[ev.Type] {
		msgType = "device_status"
	}
	return &rpc.PushEnvelope{
		Type: msgType,
		Data: map[string]any{
			"id":          ev.ID,
			"type":        string(ev.Type),
			"device_id":   ev.DeviceID,
			"position_id": ev.PositionID,
			"geofence_id": ev.GeofenceID,
			"event_time":  ev.EventTime,
			"attributes":  ev.Attributes,
		},
		Timestamp: time.Now(),
	}
}

func unknownDeviceEnvelope(ud *domain.UnknownDevice) *rpc.PushEnvelope {
	return &rpc.PushEnvelope{
		Type: "unknown_device",
		Data: map[string]any{
			"unique_id":        ud.UniqueID,
			"protocol":         ud.Protocol,
			"listener_port":    ud.ListenerPort,
			"first_seen":       ud.FirstSeen,
			"last_seen":        ud.LastSeen,
			"connection_count": ud.ConnectionCount,
			"last_raw_frame":   ud.LastRawFrame,
		},
		Timestamp: time.Now(),
	}
}

func infoEnvelope(message string) *rpc.PushEnvelope {
	return &rpc.PushEnvelope{Type: "info", Data: map[string]any{"message": message}, Timestamp: time.Now()}
}

func errorEnvelope(message string) *rpc.PushEnvelope {
	return &rpc.PushEnvelope{Type: "error", Data: map[string]any{"message": message}, Timestamp: time.Now()}
}
