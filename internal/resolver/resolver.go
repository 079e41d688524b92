// Package resolver implements the Device Resolver (C3): turning a
// protocol-reported unique_id into either a registered device or an
// Unknown Device placeholder, per spec.md §4.3.
package resolver

import (
	"context"
	"errors"

	"fleettrack/internal/domain"
	"fleettrack/pkg/apperror"
	"fleettrack/pkg/logger"
)

// DeviceStore is the narrow read used to look up a registered device by its
// protocol-reported identifier. Implemented by internal/repository.
type DeviceStore interface {
	GetByUniqueID(ctx context.Context, uniqueID string) (*domain.Device, error)
}

// UnknownDeviceStore upserts the placeholder record for unregistered
// identifiers, keyed by (unique_id, protocol).
type UnknownDeviceStore interface {
	Upsert(ctx context.Context, uniqueID, protocol, rawFrame string, parsed map[string]any) (*domain.UnknownDevice, error)
}

// Publisher fans out an "unknown device observed" delta so operators can
// adopt it from a live subscription (spec.md §4.3, §4.8).
type Publisher interface {
	PublishUnknownDeviceObserved(ctx context.Context, ud *domain.UnknownDevice) error
}

// Resolution is the outcome of resolving one frame's source identifier.
type Resolution struct {
	Device    *domain.Device
	Unknown   *domain.UnknownDevice
	IsUnknown bool
}

// Resolver implements the lookup-then-upsert algorithm of spec.md §4.3.
type Resolver struct {
	devices   DeviceStore
	unknown   UnknownDeviceStore
	publisher Publisher
}

// New builds a Resolver. publisher may be nil, in which case unknown-device
// deltas are silently dropped (useful for the fleet-simulate traffic
// generator, which has no hub to publish to).
func New(devices DeviceStore, unknown UnknownDeviceStore, publisher Publisher) *Resolver {
	return &Resolver{devices: devices, unknown: unknown, publisher: publisher}
}

// Resolve looks up uniqueID among registered devices; on miss it upserts an
// Unknown Device record and publishes an observation delta.
func (r *Resolver) Resolve(ctx context.Context, uniqueID, protocol, rawFrame string, parsed map[string]any) (*Resolution, error) {
	device, err := r.devices.GetByUniqueID(ctx, uniqueID)
	if err == nil {
		return &Resolution{Device: device}, nil
	}

	var appErr *apperror.Error
	if !errors.As(err, &appErr) || appErr.Code != apperror.CodeDeviceNotFound {
		return nil, err
	}

	ud, err := r.unknown.Upsert(ctx, uniqueID, protocol, rawFrame, parsed)
	if err != nil {
		return nil, err
	}

	if r.publisher != nil {
		if pubErr := r.publisher.PublishUnknownDeviceObserved(ctx, ud); pubErr != nil {
			logger.Log.Warn("failed to publish unknown device observation",
				"unique_id", uniqueID, "protocol", protocol, "error", pubErr)
		}
	}

	return &Resolution{Unknown: ud, IsUnknown: true}, nil
}
