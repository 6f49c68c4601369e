package daemon

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopr-dev/loopr/internal/metrics"
)

func dialAndRoundTrip(t *testing.T, socketPath string, req Frame) Frame {
	t.Helper()
	var conn net.Conn
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := writeFrame(conn, req); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	resp, err := readFrame(conn)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	return resp
}

func TestServerRoundTripsCreatePlanOverSocket(t *testing.T) {
	h, _, _ := newTestHandler(t, "")

	socketPath := filepath.Join(t.TempDir(), "loopr.sock")
	srv := NewServer(h, h.Bus, metrics.New(), socketPath, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Run(ctx)

	req := Frame{
		Type:   FrameTypeRequest,
		ID:     "req-1",
		Method: string(MethodCreatePlan),
		Params: mustMarshal(t, createPlanParams{TaskDescription: "build a widget"}),
	}
	resp := dialAndRoundTrip(t, socketPath, req)

	if resp.Type != FrameTypeResponse || resp.ID != "req-1" {
		t.Fatalf("unexpected response frame: %+v", resp)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if len(resp.Payload) == 0 {
		t.Fatal("expected non-empty payload")
	}
}

func TestServerReturnsErrorFrameForUnknownMethod(t *testing.T) {
	h, _, _ := newTestHandler(t, "")
	socketPath := filepath.Join(t.TempDir(), "loopr.sock")
	srv := NewServer(h, nil, nil, socketPath, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Run(ctx)

	resp := dialAndRoundTrip(t, socketPath, Frame{Type: FrameTypeRequest, ID: "x", Method: "bogus"})
	if resp.Error == nil || resp.Error.Code != ErrInvalidParams {
		t.Fatalf("expected invalid-params error frame, got %+v", resp)
	}
}
