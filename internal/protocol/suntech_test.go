package protocol

import (
	"testing"

	"fleettrack/internal/domain"
	"fleettrack/pkg/apperror"
)

func TestSuntechDecoder_Universal(t *testing.T) {
	d := NewSuntechDecoder()
	raw := []byte("ST300STT;907126119;04;1097B;20250908;12:44:33;33e530;-03.843813;-038.615475;018.520;090.00;11;1;26663840;14.07;100000;1;0019;0")

	frame, err := d.Decode(raw, nil)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if frame.SourceID != "907126119" {
		t.Errorf("expected source 907126119, got %s", frame.SourceID)
	}
	if frame.Kind != FrameLocation {
		t.Errorf("expected location frame, got %s", frame.Kind)
	}
	if frame.Latitude != -3.843813 || frame.Longitude != -38.615475 {
		t.Errorf("unexpected coordinates: %f,%f", frame.Latitude, frame.Longitude)
	}
	wantSpeed := 18.520 * domain.KnotsPerKmh
	if diff := frame.SpeedKnots - wantSpeed; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("expected speed %f knots, got %f", wantSpeed, frame.SpeedKnots)
	}
	if !frame.Valid {
		t.Error("expected valid fix")
	}
	if ign, _ := frame.Attributes["ignition"].(bool); !ign {
		t.Error("expected ignition on from IO bitmap")
	}
}

func TestSuntechDecoder_UniversalAlert(t *testing.T) {
	d := NewSuntechDecoder()
	raw := []byte("ST4300ALT;907126119;04;1097B;20250908;12:44:33;33e530;-03.843813;-038.615475;000.00;000.00;11;1;0;14.07;000000;1;0019;6")

	frame, err := d.Decode(raw, nil)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if alarm, _ := frame.Attributes["alarm"].(string); alarm != "geofenceEnter" {
		t.Errorf("expected geofenceEnter alarm, got %v", frame.Attributes["alarm"])
	}
}

func TestSuntechDecoder_Legacy(t *testing.T) {
	d := NewSuntechDecoder()
	raw := []byte("LOGTEST9;111222333;04;1097B;20250908;12:44:33;33e530;-03.843813;-038.615475")

	frame, err := d.Decode(raw, nil)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if frame.SourceID != "LOGTEST9" {
		t.Errorf("expected source LOGTEST9, got %s", frame.SourceID)
	}
	if frame.Latitude != -3.843813 || frame.Longitude != -38.615475 {
		t.Errorf("unexpected coordinates: %f,%f", frame.Latitude, frame.Longitude)
	}
}

func TestSuntechDecoder_NullIslandRejected(t *testing.T) {
	d := NewSuntechDecoder()
	raw := []byte("ST300STT;907126119;04;1097B;20250908;12:44:33;33e530;0.0;0.0;000.00;000.00;11;1;0;14.07;000000;1;0019;0")

	if _, err := d.Decode(raw, nil); err == nil {
		t.Fatal("expected null-island fix to be rejected")
	} else if appErr, ok := err.(*apperror.Error); !ok || appErr.Code != apperror.CodeMalformedFrame {
		t.Errorf("expected CodeMalformedFrame, got %v", err)
	}
}

func TestSuntechDecoder_EmptyPayload(t *testing.T) {
	d := NewSuntechDecoder()
	if _, err := d.Decode(nil, nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestSuntechDecoder_ControlCharactersStripped(t *testing.T) {
	d := NewSuntechDecoder()
	raw := []byte("LOGTEST9;111222333;04;1097B;20250908;12:44:33;33e530;-03.843813;-038.615475\x00\x01\r\n")

	if _, err := d.Decode(raw, nil); err != nil {
		t.Fatalf("expected control characters to be stripped cleanly, got %v", err)
	}
}

func TestSuntechDecoder_EncodeCommand(t *testing.T) {
	d := NewSuntechDecoder()
	cmd := &domain.Command{
		DeviceID: "907126119",
		Type:     domain.CommandEngineStop,
		Params:   map[string]any{"reason": "theft"},
	}

	wire, err := d.EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	want := "CMD;907126119;engineStop;reason=theft"
	if wire != want {
		t.Errorf("expected %q, got %q", want, wire)
	}
}

func TestSuntechDecoder_EncodeCommandUnsupported(t *testing.T) {
	d := NewSuntechDecoder()
	cmd := &domain.Command{DeviceID: "1", Type: domain.CommandType("bogus")}

	if _, err := d.EncodeCommand(cmd); err == nil {
		t.Fatal("expected unsupported command error")
	}
}
