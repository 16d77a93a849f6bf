package sharedscope

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "coordinator.sock")

	s, err := NewServer(socketPath)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go s.Serve()
	t.Cleanup(func() { s.Close() })
	return s, socketPath
}

func dialAndRoundTrip(t *testing.T, socketPath string, req Request) Response {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		t.Fatalf("encode: %v", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestRegisterResourceReturnsClosedState(t *testing.T) {
	_, socketPath := startTestServer(t)

	resp := dialAndRoundTrip(t, socketPath, Request{
		Kind:             KindRegisterResource,
		Name:             "db",
		ErrorThreshold:   2,
		SuccessThreshold: 1,
		ErrorTimeout:     1000,
	})
	if !resp.Registered {
		t.Fatalf("expected registered=true")
	}
	if resp.State != "closed" {
		t.Fatalf("expected closed state, got %q", resp.State)
	}
}

func TestReportErrorOpensCircuitAfterThreshold(t *testing.T) {
	_, socketPath := startTestServer(t)

	dialAndRoundTrip(t, socketPath, Request{Kind: KindRegisterResource, Name: "db", ErrorThreshold: 2, SuccessThreshold: 1, ErrorTimeout: 60000})
	dialAndRoundTrip(t, socketPath, Request{Kind: KindReportError, Name: "db"})
	resp := dialAndRoundTrip(t, socketPath, Request{Kind: KindReportError, Name: "db"})

	if resp.State != "open" {
		t.Fatalf("expected open after reaching error_threshold, got %q", resp.State)
	}
}

func TestGetOpenStatesListsOnlyNonClosed(t *testing.T) {
	_, socketPath := startTestServer(t)

	dialAndRoundTrip(t, socketPath, Request{Kind: KindRegisterResource, Name: "healthy", ErrorThreshold: 5, SuccessThreshold: 1, ErrorTimeout: 60000})
	dialAndRoundTrip(t, socketPath, Request{Kind: KindRegisterResource, Name: "broken", ErrorThreshold: 1, SuccessThreshold: 1, ErrorTimeout: 60000})
	dialAndRoundTrip(t, socketPath, Request{Kind: KindReportError, Name: "broken"})

	resp := dialAndRoundTrip(t, socketPath, Request{Kind: KindGetOpenStates})
	if _, ok := resp.States["broken"]; !ok {
		t.Fatalf("expected broken in open states, got %v", resp.States)
	}
	if _, ok := resp.States["healthy"]; ok {
		t.Fatalf("did not expect healthy in open states, got %v", resp.States)
	}
}

func TestSubscribeReceivesBroadcastOnStateChange(t *testing.T) {
	_, socketPath := startTestServer(t)

	dialAndRoundTrip(t, socketPath, Request{Kind: KindRegisterResource, Name: "db", ErrorThreshold: 1, SuccessThreshold: 1, ErrorTimeout: 60000})

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	if err := enc.Encode(Request{Kind: KindSubscribe, Name: "db", SubscriberRef: "sub-1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	reader := bufio.NewReader(conn)

	// drain the subscribe ack
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	var ack Response
	if err := json.Unmarshal(line, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Kind != KindSubscribe {
		t.Fatalf("expected subscribe ack, got %+v", ack)
	}

	dialAndRoundTrip(t, socketPath, Request{Kind: KindReportError, Name: "db"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err = reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var broadcast Response
	if err := json.Unmarshal(line, &broadcast); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if broadcast.Kind != KindOnStateChange || broadcast.Name != "db" || broadcast.State != "open" {
		t.Fatalf("unexpected broadcast: %+v", broadcast)
	}
}

func TestSweepOnceTransitionsOpenToHalfOpenAfterTimeout(t *testing.T) {
	s, socketPath := startTestServer(t)

	dialAndRoundTrip(t, socketPath, Request{Kind: KindRegisterResource, Name: "db", ErrorThreshold: 1, SuccessThreshold: 1, ErrorTimeout: 1})
	dialAndRoundTrip(t, socketPath, Request{Kind: KindReportError, Name: "db"})

	time.Sleep(20 * time.Millisecond)
	s.SweepOnce()

	resp := dialAndRoundTrip(t, socketPath, Request{Kind: KindGetState, Name: "db"})
	if resp.State != "half_open" {
		t.Fatalf("expected half_open after sweep, got %q", resp.State)
	}
}

func TestAllowRequestDelegatesToRegisteredBreaker(t *testing.T) {
	_, socketPath := startTestServer(t)

	dialAndRoundTrip(t, socketPath, Request{Kind: KindRegisterResource, Name: "db", ErrorThreshold: 1, SuccessThreshold: 1, ErrorTimeout: 60000})

	resp := dialAndRoundTrip(t, socketPath, Request{Kind: KindAllowRequest, Name: "db"})
	if !resp.Allowed || resp.State != "closed" {
		t.Fatalf("expected allowed on a closed breaker, got %+v", resp)
	}

	dialAndRoundTrip(t, socketPath, Request{Kind: KindReportError, Name: "db"})

	resp = dialAndRoundTrip(t, socketPath, Request{Kind: KindAllowRequest, Name: "db"})
	if resp.Allowed || resp.State != "open" {
		t.Fatalf("expected rejected once open, got %+v", resp)
	}
}

func TestResetForcesBreakerClosed(t *testing.T) {
	_, socketPath := startTestServer(t)

	dialAndRoundTrip(t, socketPath, Request{Kind: KindRegisterResource, Name: "db", ErrorThreshold: 1, SuccessThreshold: 1, ErrorTimeout: 60000})
	dialAndRoundTrip(t, socketPath, Request{Kind: KindReportError, Name: "db"})

	resp := dialAndRoundTrip(t, socketPath, Request{Kind: KindReset, Name: "db"})
	if resp.State != "closed" {
		t.Fatalf("expected closed after reset, got %q", resp.State)
	}
}

func TestUnsubscribeStopsFurtherBroadcasts(t *testing.T) {
	_, socketPath := startTestServer(t)
	dialAndRoundTrip(t, socketPath, Request{Kind: KindRegisterResource, Name: "db", ErrorThreshold: 5, SuccessThreshold: 1, ErrorTimeout: 60000})
	dialAndRoundTrip(t, socketPath, Request{Kind: KindUnsubscribe, Name: "db", SubscriberRef: "nonexistent"})
	// Unsubscribing a ref with no prior subscription is a no-op, not an error.
}
