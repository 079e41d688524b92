// Command fleet-simulate is a protocol traffic generator: it drives a
// handful of simulated devices along a synthetic track, emitting Suntech
// stream frames and OsmAnd HTTP reports against a running fleet-core, for
// exercising the Position Pipeline end to end without real hardware.
//
// Grounded on the teacher's simulation-svc, adapted from a solver-input
// generator into a wire-protocol traffic generator for FleetTrack's two
// Listeners.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

func main() {
	suntechAddr := flag.String("suntech-addr", "localhost:5011", "Suntech stream listener address")
	osmandURL := flag.String("osmand-url", "http://localhost:5055", "OsmAnd listener base URL")
	devices := flag.Int("devices", 3, "number of simulated devices")
	interval := flag.Duration("interval", 2*time.Second, "interval between frames per device")
	protocolName := flag.String("protocol", "suntech", "suntech|osmand")
	seed := flag.Int64("seed", 1, "random seed for the synthetic tracks")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	tracks := make([]*track, *devices)
	for i := range tracks {
		tracks[i] = newTrack(fmt.Sprintf("SIM%05d", i+1), rng)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	log.Printf("fleet-simulate: %d devices, protocol=%s, interval=%s", *devices, *protocolName, *interval)

	for {
		select {
		case <-quit:
			log.Println("fleet-simulate: shutting down")
			return
		case <-ticker.C:
			for _, tr := range tracks {
				tr.advance(rng)
				var err error
				switch *protocolName {
				case "osmand":
					err = sendOsmAnd(*osmandURL, tr)
				default:
					err = sendSuntech(*suntechAddr, tr)
				}
				if err != nil {
					log.Printf("fleet-simulate: %s: %v", tr.sourceID, err)
				}
			}
		}
	}
}

// track is one simulated device's position, walking a small circular
// route around an origin point at a roughly constant speed.
type track struct {
	sourceID string
	lat      float64
	lon      float64
	speedKmh float64
	heading  float64
	radius   float64
	angle    float64
}

func newTrack(sourceID string, rng *rand.Rand) *track {
	return &track{
		sourceID: sourceID,
		lat:      -3.7 + rng.Float64()*0.2,
		lon:      -38.5 + rng.Float64()*0.2,
		speedKmh: 20 + rng.Float64()*40,
		radius:   0.01 + rng.Float64()*0.01,
		angle:    rng.Float64() * 2 * math.Pi,
	}
}

// advance steps the device a bit further around its circular route,
// jittering speed slightly so overspeed/underspeed events can fire.
func (t *track) advance(rng *rand.Rand) {
	t.angle += 0.1 + rng.Float64()*0.05
	t.lat += t.radius * math.Cos(t.angle) * 0.01
	t.lon += t.radius * math.Sin(t.angle) * 0.01
	t.heading = math.Mod(t.angle*180/math.Pi+360, 360)
	t.speedKmh += (rng.Float64() - 0.5) * 5
	if t.speedKmh < 0 {
		t.speedKmh = 0
	}
}

// sendSuntech writes one universal-format Suntech frame over a short-lived
// TCP connection, mirroring internal/protocol.SuntechDecoder.decodeUniversal's
// field layout.
func sendSuntech(addr string, t *track) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	now := time.Now().UTC()
	speedKmh := t.speedKmh
	line := fmt.Sprintf(
		"ST300STT;%s;04;1097B;%s;%s;000000;%s;%s;%s;%s;11;1;0;12.60;000000;1;0000\n",
		t.sourceID,
		now.Format("20060102"),
		now.Format("15:04:05"),
		strconv.FormatFloat(t.lat, 'f', 6, 64),
		strconv.FormatFloat(t.lon, 'f', 6, 64),
		strconv.FormatFloat(speedKmh, 'f', 3, 64),
		strconv.FormatFloat(t.heading, 'f', 2, 64),
	)

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(line); err != nil {
		return err
	}
	return w.Flush()
}

// sendOsmAnd issues one location-report GET against the OsmAnd listener,
// mirroring internal/protocol.OsmAndDecoder.decodeOsmAndQuery's field names.
func sendOsmAnd(baseURL string, t *track) error {
	q := url.Values{}
	q.Set("id", t.sourceID)
	q.Set("lat", strconv.FormatFloat(t.lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(t.lon, 'f', 6, 64))
	q.Set("speed", strconv.FormatFloat(t.speedKmh/3.6, 'f', 2, 64))
	q.Set("heading", strconv.FormatFloat(t.heading, 'f', 2, 64))
	q.Set("timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	req, err := http.NewRequest(http.MethodGet, baseURL+"/?"+q.Encode(), bytes.NewReader(nil))
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("osmand listener returned %s", resp.Status)
	}
	return nil
}
