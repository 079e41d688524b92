package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fleettrack/internal/domain"
	"fleettrack/pkg/apperror"
)

const osmandProtocolName = "osmand"

// OsmAndDecoder decodes the OsmAnd mobile protocol: a plain HTTP request
// carrying either query-string or JSON-body location reports. Unlike
// Suntech it is request/response, not a persistent stream (spec.md §4.1).
type OsmAndDecoder struct{}

// NewOsmAndDecoder builds a stateless OsmAnd decoder.
func NewOsmAndDecoder() *OsmAndDecoder {
	return &OsmAndDecoder{}
}

func (d *OsmAndDecoder) Protocol() string {
	return osmandProtocolName
}

// Decode implements Decoder. raw is the full HTTP request as received by
// the listener (request line, headers, body).
func (d *OsmAndDecoder) Decode(raw []byte, _ net.Addr) (*Frame, error) {
	if len(raw) == 0 {
		return nil, apperror.New(apperror.CodeEmptyFrame, "osmand: empty payload")
	}

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedFrame, "osmand: unparseable HTTP request")
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedFrame, "osmand: unreadable request body")
	}

	contentType := req.Header.Get("Content-Type")

	var frame *Frame
	var sourceID string
	if strings.Contains(strings.ToLower(contentType), "application/json") && len(body) > 0 {
		frame, sourceID, err = decodeOsmAndJSON(body, raw)
	} else {
		values := req.URL.Query()
		if len(values) == 0 && len(body) > 0 {
			if parsed, parseErr := url.ParseQuery(string(body)); parseErr == nil {
				values = parsed
			}
		}
		frame, sourceID, err = decodeOsmAndQuery(values, raw)
	}
	if err != nil {
		return nil, err
	}
	if sourceID == "" {
		return nil, apperror.New(apperror.CodeMalformedFrame, "osmand: missing device id (id|deviceid|device_id)")
	}

	frame.SourceID = sourceID
	return frame, nil
}

func decodeOsmAndQuery(values url.Values, raw []byte) (*Frame, string, error) {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := values.Get(k); v != "" {
				return v
			}
		}
		return ""
	}

	sourceID := get("id", "deviceid", "device_id")

	frame := &Frame{
		Protocol:   osmandProtocolName,
		Kind:       FrameHeartbeat,
		Timestamp:  time.Now().UTC(),
		Valid:      true,
		Attributes: map[string]any{},
		Raw:        raw,
	}

	if lat, lon := get("lat"), get("lon"); lat != "" && lon != "" {
		latF, latErr := strconv.ParseFloat(lat, 64)
		lonF, lonErr := strconv.ParseFloat(lon, 64)
		if latErr == nil && lonErr == nil {
			frame.Kind = FrameLocation
			frame.Latitude = latF
			frame.Longitude = lonF
			if !frame.ValidFix() {
				frame.Valid = false
			}
		} else {
			frame.Valid = false
		}
	}

	if ts := get("timestamp"); ts != "" {
		if t, ok := parseOsmAndTimestamp(ts); ok {
			frame.Timestamp = t
		}
	}
	if speed := get("speed"); speed != "" {
		if f, err := strconv.ParseFloat(speed, 64); err == nil {
			frame.SpeedKnots = f * domain.KnotsPerMps
		}
	}
	if course := get("course", "heading"); course != "" {
		if f, err := strconv.ParseFloat(course, 64); err == nil {
			frame.Course = f
		}
	}
	if altitude := get("altitude", "alt"); altitude != "" {
		if f, err := strconv.ParseFloat(altitude, 64); err == nil {
			frame.Altitude = f
		}
	}
	if accuracy := get("accuracy", "acc"); accuracy != "" {
		if f, err := strconv.ParseFloat(accuracy, 64); err == nil {
			frame.Accuracy = f
		}
	}
	if battery := get("battery"); battery != "" {
		if f, err := strconv.ParseFloat(battery, 64); err == nil {
			frame.Attributes["battery"] = f
		}
	}
	if validFlag := get("valid"); validFlag != "" {
		frame.Valid = parseBoolish(validFlag)
	}
	if motion := get("motion", "is_moving"); motion != "" {
		frame.Attributes["motion"] = parseBoolish(motion)
	}
	if event := get("event"); event != "" {
		frame.Attributes["event"] = event
		frame.Kind = FrameEvent
	}

	network := map[string]string{}
	if wifi := get("wifi"); wifi != "" {
		network["wifi"] = wifi
	}
	if cell := get("cell"); cell != "" {
		network["cell"] = cell
	}
	if len(network) > 0 {
		frame.Attributes["network"] = network
	}

	return frame, sourceID, nil
}

func decodeOsmAndJSON(body []byte, raw []byte) (*Frame, string, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", apperror.Wrap(err, apperror.CodeMalformedFrame, "osmand: invalid JSON body")
	}

	sourceID, _ := firstString(payload, "device_id", "deviceid", "id")

	frame := &Frame{
		Protocol:   osmandProtocolName,
		Kind:       FrameHeartbeat,
		Timestamp:  time.Now().UTC(),
		Valid:      true,
		Attributes: map[string]any{},
		Raw:        raw,
	}

	if loc, ok := payload["location"].(map[string]any); ok {
		coords, _ := loc["coords"].(map[string]any)
		if coords != nil {
			if lat, latOK := floatFromAny(coords["latitude"]); latOK {
				if lon, lonOK := floatFromAny(coords["longitude"]); lonOK {
					frame.Kind = FrameLocation
					frame.Latitude = lat
					frame.Longitude = lon
					if !frame.ValidFix() {
						frame.Valid = false
					}
				}
			}
			if speed, ok := floatFromAny(coords["speed"]); ok {
				frame.SpeedKnots = speed * domain.KnotsPerMps
			}
			if heading, ok := floatFromAny(coords["heading"]); ok {
				frame.Course = heading
			}
			if altitude, ok := floatFromAny(coords["altitude"]); ok {
				frame.Altitude = altitude
			}
			if accuracy, ok := floatFromAny(coords["accuracy"]); ok {
				frame.Accuracy = accuracy
			}
		}
		if ts, ok := loc["timestamp"].(string); ok && ts != "" {
			if t, ok := parseOsmAndTimestamp(ts); ok {
				frame.Timestamp = t
			}
		}
		if ev, ok := loc["event"].(string); ok && ev != "" {
			frame.Attributes["event"] = ev
			frame.Kind = FrameEvent
		}
		if moving, ok := loc["is_moving"].(bool); ok {
			frame.Attributes["motion"] = moving
		}
	}

	if battery, ok := floatFromAny(payload["battery"]); ok {
		frame.Attributes["battery"] = battery
	}
	if network, ok := payload["network"]; ok {
		frame.Attributes["network"] = network
	}

	return frame, sourceID, nil
}

// EncodeCommand always fails: OsmAnd is a report-only mobile protocol with
// no inbound control channel.
func (d *OsmAndDecoder) EncodeCommand(cmd *domain.Command) (string, error) {
	return "", apperror.New(apperror.CodeUnsupportedCommand, "osmand: protocol has no inbound command channel")
}

func parseOsmAndTimestamp(ts string) (time.Time, bool) {
	if allDigits(ts) {
		n, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		switch len(ts) {
		case 10:
			return time.Unix(n, 0).UTC(), true
		case 13:
			return time.UnixMilli(n).UTC(), true
		default:
			return time.Time{}, false
		}
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func parseBoolish(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func floatFromAny(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
