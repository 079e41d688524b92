package domain

import "time"

// EventType is the closed set of derived occurrence types (see GLOSSARY).
type EventType string

const (
	EventDeviceOnline        EventType = "deviceOnline"
	EventDeviceOffline       EventType = "deviceOffline"
	EventDeviceUnknown       EventType = "deviceUnknown"
	EventDeviceInactive      EventType = "deviceInactive"
	EventDeviceMoving        EventType = "deviceMoving"
	EventDeviceStopped       EventType = "deviceStopped"
	EventDeviceOverspeed     EventType = "deviceOverspeed"
	EventDeviceFuelDrop      EventType = "deviceFuelDrop"
	EventDeviceFuelIncrease  EventType = "deviceFuelIncrease"
	EventGeofenceEnter       EventType = "geofenceEnter"
	EventGeofenceExit        EventType = "geofenceExit"
	EventAlarm               EventType = "alarm"
	EventIgnitionOn          EventType = "ignitionOn"
	EventIgnitionOff         EventType = "ignitionOff"
	EventMaintenance         EventType = "maintenance"
	EventDriverChanged       EventType = "driverChanged"
	EventMedia               EventType = "media"
	EventCommandResult       EventType = "commandResult"
	EventQueuedCommandSent   EventType = "queuedCommandSent"
)

// Event is a derived occurrence tied to a device and optionally a position
// and geofence. Immutable after write.
type Event struct {
	ID          string
	Type        EventType
	EventTime   time.Time
	DeviceID    string
	PositionID  string
	GeofenceID  string
	Attributes  map[string]any
}
