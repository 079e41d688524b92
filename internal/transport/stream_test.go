package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"fleettrack/internal/protocol"
)

type fakeDecoder struct {
	protocolName string
}

func (d *fakeDecoder) Protocol() string { return d.protocolName }

func (d *fakeDecoder) Decode(raw []byte, _ net.Addr) (*protocol.Frame, error) {
	return &protocol.Frame{SourceID: string(raw), Protocol: d.protocolName, Kind: protocol.FrameLocation, Timestamp: time.Now().UTC()}, nil
}

type fakeSink struct {
	mu     sync.Mutex
	frames []*protocol.Frame
}

func (s *fakeSink) Submit(_ context.Context, _ string, _ net.Addr, frame *protocol.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestStreamListener_DecodesAndRegistersLink(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &fakeSink{}
	links := NewLinkTable()
	listener := NewStreamListener(addr, &fakeDecoder{protocolName: "suntech"}, sink, links, 0)

	serveErr := make(chan error, 1)
	go func() { serveErr <- listener.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial listener: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("dev-42\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for frame to reach the sink")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if _, ok := links.Get("dev-42"); !ok {
		t.Error("expected dev-42 to be registered in the link table")
	}

	cancel()
	<-serveErr
}
