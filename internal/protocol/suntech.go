package protocol

import (
	"net"
	"strconv"
	"strings"
	"time"

	"fleettrack/internal/domain"
	"fleettrack/pkg/apperror"
)

const suntechProtocolName = "suntech"

// emergencyAlarms maps Suntech's emergency alarm codes to FleetTrack's
// canonical alarm vocabulary (spec.md §4.1).
var emergencyAlarms = map[int]string{
	1: "sos",
	2: "parking",
	3: "powerCut",
	5: "door",
	6: "door",
	7: "movement",
	8: "vibration",
}

// alertAlarms maps Suntech's alert alarm codes, a disjoint numbering space
// from emergencyAlarms.
var alertAlarms = map[int]string{
	1:   "overspeed",
	5:   "geofenceExit",
	6:   "geofenceEnter",
	14:  "lowBattery",
	15:  "vibration",
	16:  "accident",
	40:  "powerRestored",
	41:  "powerCut",
	42:  "sos",
	46:  "acceleration",
	47:  "braking",
	50:  "jamming",
	132: "door",
}

// SuntechDecoder decodes the Suntech stream protocol's universal ("ST…STT"
// prefixed, source ID in field 1) and legacy (source ID in field 0) message
// variants. Both are semicolon-delimited ASCII.
type SuntechDecoder struct{}

// NewSuntechDecoder builds a stateless Suntech decoder/encoder.
func NewSuntechDecoder() *SuntechDecoder {
	return &SuntechDecoder{}
}

func (d *SuntechDecoder) Protocol() string {
	return suntechProtocolName
}

// Decode implements Decoder.
func (d *SuntechDecoder) Decode(raw []byte, _ net.Addr) (*Frame, error) {
	if len(raw) == 0 {
		return nil, apperror.New(apperror.CodeEmptyFrame, "suntech: empty payload")
	}

	cleaned := strings.TrimSpace(stripControlChars(string(raw)))
	if cleaned == "" {
		return nil, apperror.New(apperror.CodeEmptyFrame, "suntech: empty after cleaning control characters")
	}

	parts := strings.Split(cleaned, ";")
	if len(parts) < 2 {
		return nil, apperror.New(apperror.CodeMalformedFrame, "suntech: too few fields to classify variant")
	}

	if isUniversalPrefix(parts[0]) {
		return d.decodeUniversal(parts, raw)
	}
	return d.decodeLegacy(parts, raw)
}

// isUniversalPrefix recognizes the "ST…STT" family of prefixes used by the
// universal format (e.g. ST300STT, ST310STT, ST4300ALT, ST4300EMG).
func isUniversalPrefix(prefix string) bool {
	return strings.HasPrefix(prefix, "ST") && len(prefix) >= 5
}

// decodeUniversal parses the universal format:
//
//	ST300STT;907126119;04;1097B;20250908;12:44:33;33e530;-03.843813;-038.615475;000.013;000.00;11;1;26663840;14.07;000000;1;0019;<alarmCode>
//	idx:      0         1     2  3       4         5        6      7           8           9      10    11 12 13      14   15     16 17   18
func (d *SuntechDecoder) decodeUniversal(parts []string, raw []byte) (*Frame, error) {
	if len(parts) < 11 {
		return nil, apperror.New(apperror.CodeMalformedFrame, "suntech universal: too few fields for a location report")
	}

	sourceID := parts[1]

	ts, err := time.Parse("20060102 15:04:05", parts[4]+" "+parts[5])
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedFrame, "suntech universal: unparseable date/time")
	}

	lat, err := strconv.ParseFloat(parts[7], 64)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedFrame, "suntech universal: unparseable latitude")
	}
	lon, err := strconv.ParseFloat(parts[8], 64)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedFrame, "suntech universal: unparseable longitude")
	}
	if lat == 0 && lon == 0 {
		return nil, apperror.New(apperror.CodeMalformedFrame, "suntech universal: null-island fix rejected")
	}

	speedKnots := 0.0
	if kmh, ok := floatAt(parts, 9); ok {
		speedKnots = kmh * domain.KnotsPerKmh
	}
	course, _ := floatAt(parts, 10)

	satellites, _ := intAt(parts, 11)
	gpsFix, fixOK := intAt(parts, 12)
	valid := satellites > 0
	if fixOK && gpsFix == 0 {
		valid = false
	}

	attrs := map[string]any{
		"satellites": satellites,
	}
	if v := stringAt(parts, 2); v != "" {
		attrs["firmwareVersion"] = v
	}
	if v := stringAt(parts, 3); v != "" {
		attrs["protocolType"] = v
	}
	if v := stringAt(parts, 6); v != "" {
		attrs["cellInfo"] = v
	}
	if odometer, ok := intAt(parts, 13); ok {
		attrs["odometer"] = odometer
	}
	if power, ok := floatAt(parts, 14); ok {
		attrs["power"] = power
		attrs["battery"] = power
	}
	if io := stringAt(parts, 15); io != "" {
		attrs["io"] = io
		attrs["ignition"] = io[0] == '1'
	}
	if mode, ok := intAt(parts, 16); ok {
		attrs["mode"] = mode
	}
	if seq, ok := intAt(parts, 17); ok {
		attrs["sequence"] = seq
	}

	if code, name, ok := alarmFromSuffix(parts); ok {
		attrs["alarm"] = name
		attrs["alarmCode"] = code
	}

	return &Frame{
		SourceID:   sourceID,
		Protocol:   suntechProtocolName,
		Kind:       FrameLocation,
		Timestamp:  ts.UTC(),
		Latitude:   lat,
		Longitude:  lon,
		SpeedKnots: speedKnots,
		Course:     course,
		Valid:      valid,
		Attributes: attrs,
		Raw:        raw,
	}, nil
}

// alarmFromSuffix classifies an Alert/Emergency variant by its prefix
// suffix (…ALT / …EMG) and reads the trailing field as the numeric alarm
// code, mapping it through the matching taxonomy table.
func alarmFromSuffix(parts []string) (code int, name string, ok bool) {
	prefix := parts[0]
	var table map[int]string
	switch {
	case strings.HasSuffix(prefix, "ALT"):
		table = alertAlarms
	case strings.HasSuffix(prefix, "EMG"):
		table = emergencyAlarms
	default:
		return 0, "", false
	}
	last, lastOK := intAt(parts, len(parts)-1)
	if !lastOK {
		return 0, "", false
	}
	name, known := table[last]
	if !known {
		return 0, "", false
	}
	return last, name, true
}

// decodeLegacy parses the legacy format, which carries far fewer guaranteed
// fields: source ID in field 0, latitude/longitude in fields 7/8.
//
//	LOGTEST9;111222333;04;1097B;20250908;12:44:33;33e530;-03.843813;-038.615475;...
func (d *SuntechDecoder) decodeLegacy(parts []string, raw []byte) (*Frame, error) {
	if len(parts) < 9 {
		return nil, apperror.New(apperror.CodeMalformedFrame, "suntech legacy: too few fields for coordinates")
	}

	sourceID := parts[0]

	lat, err := strconv.ParseFloat(parts[7], 64)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedFrame, "suntech legacy: unparseable latitude")
	}
	lon, err := strconv.ParseFloat(parts[8], 64)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedFrame, "suntech legacy: unparseable longitude")
	}
	if lat == 0 && lon == 0 {
		return nil, apperror.New(apperror.CodeMalformedFrame, "suntech legacy: null-island fix rejected")
	}

	return &Frame{
		SourceID:   sourceID,
		Protocol:   suntechProtocolName,
		Kind:       FrameLocation,
		Timestamp:  time.Now().UTC(),
		Latitude:   lat,
		Longitude:  lon,
		Valid:      true,
		Attributes: map[string]any{},
		Raw:        raw,
	}, nil
}

// EncodeCommand renders an outbound command as Suntech's legacy wire
// syntax. The source device list never publishes a universal-format
// command grammar, so every command is sent legacy-style:
// "CMD;<deviceID>;<type>;<param1>=<value1>;...".
func (d *SuntechDecoder) EncodeCommand(cmd *domain.Command) (string, error) {
	switch cmd.Type {
	case domain.CommandSetInterval, domain.CommandEngineStop, domain.CommandEngineResume,
		domain.CommandRequestStatus, domain.CommandReboot, domain.CommandSetOutput, domain.CommandCustom:
		var b strings.Builder
		b.WriteString("CMD;")
		b.WriteString(cmd.DeviceID)
		b.WriteString(";")
		b.WriteString(string(cmd.Type))
		for k, v := range cmd.Params {
			b.WriteString(";")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(stringifyParam(v))
		}
		return b.String(), nil
	default:
		return "", apperror.New(apperror.CodeUnsupportedCommand, "suntech: unsupported command type "+string(cmd.Type))
	}
}

func stringifyParam(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func stringAt(parts []string, i int) string {
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}

func intAt(parts []string, i int) (int, bool) {
	s := stringAt(parts, i)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func floatAt(parts []string, i int) (float64, bool) {
	s := stringAt(parts, i)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
