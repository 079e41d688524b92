package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDatagramListener_DecodesAndRegistersLink(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	addr := pc.LocalAddr().String()
	pc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &fakeSink{}
	links := NewLinkTable()
	listener := NewDatagramListener(addr, &fakeDecoder{protocolName: "suntech"}, sink, links, 2)

	serveErr := make(chan error, 1)
	go func() { serveErr <- listener.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("failed to dial listener: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("dev-77")); err != nil {
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

	if _, ok := links.Get("dev-77"); !ok {
		t.Error("expected dev-77 to be registered in the link table")
	}

	cancel()
	<-serveErr
}
