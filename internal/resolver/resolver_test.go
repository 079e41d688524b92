package resolver

import (
	"context"
	"testing"

	"fleettrack/internal/domain"
	"fleettrack/pkg/apperror"
)

type fakeDeviceStore struct {
	devices map[string]*domain.Device
}

func (f *fakeDeviceStore) GetByUniqueID(_ context.Context, uniqueID string) (*domain.Device, error) {
	if d, ok := f.devices[uniqueID]; ok {
		return d, nil
	}
	return nil, apperror.New(apperror.CodeDeviceNotFound, "device not found")
}

type fakeUnknownStore struct {
	upserted map[string]*domain.UnknownDevice
	calls    int
}

func (f *fakeUnknownStore) Upsert(_ context.Context, uniqueID, protocol, rawFrame string, parsed map[string]any) (*domain.UnknownDevice, error) {
	f.calls++
	if f.upserted == nil {
		f.upserted = map[string]*domain.UnknownDevice{}
	}
	ud := &domain.UnknownDevice{UniqueID: uniqueID, Protocol: protocol, LastRawFrame: rawFrame, LastParsed: parsed, ConnectionCount: int64(f.calls)}
	f.upserted[uniqueID] = ud
	return ud, nil
}

type fakePublisher struct {
	published []*domain.UnknownDevice
}

func (f *fakePublisher) PublishUnknownDeviceObserved(_ context.Context, ud *domain.UnknownDevice) error {
	f.published = append(f.published, ud)
	return nil
}

func TestResolver_RegisteredDevice(t *testing.T) {
	devices := &fakeDeviceStore{devices: map[string]*domain.Device{
		"dev-1": {ID: "id-1", UniqueID: "dev-1"},
	}}
	unknown := &fakeUnknownStore{}
	pub := &fakePublisher{}

	r := New(devices, unknown, pub)
	res, err := r.Resolve(context.Background(), "dev-1", "suntech", "raw", nil)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.IsUnknown {
		t.Error("expected a registered device resolution")
	}
	if res.Device == nil || res.Device.ID != "id-1" {
		t.Errorf("unexpected device: %+v", res.Device)
	}
	if unknown.calls != 0 {
		t.Error("should not upsert unknown device for a registered device")
	}
}

func TestResolver_UnknownDevice(t *testing.T) {
	devices := &fakeDeviceStore{devices: map[string]*domain.Device{}}
	unknown := &fakeUnknownStore{}
	pub := &fakePublisher{}

	r := New(devices, unknown, pub)
	res, err := r.Resolve(context.Background(), "new-1", "osmand", "raw", map[string]any{"lat": 1.0})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !res.IsUnknown {
		t.Error("expected an unknown device resolution")
	}
	if unknown.calls != 1 {
		t.Errorf("expected exactly one upsert, got %d", unknown.calls)
	}
	if len(pub.published) != 1 {
		t.Errorf("expected exactly one published observation, got %d", len(pub.published))
	}
}

func TestResolver_NilPublisherIsSafe(t *testing.T) {
	devices := &fakeDeviceStore{devices: map[string]*domain.Device{}}
	unknown := &fakeUnknownStore{}

	r := New(devices, unknown, nil)
	if _, err := r.Resolve(context.Background(), "new-1", "osmand", "raw", nil); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
}
