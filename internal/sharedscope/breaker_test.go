package sharedscope

import (
	"context"
	"testing"
	"time"
)

func TestSharedBreakerAllowRequestReflectsCoordinatorState(t *testing.T) {
	_, socketPath := startTestServer(t)

	client := NewClient(socketPath)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Stop()
	waitForConnection(t, client)

	b := NewBreaker(client, BreakerConfig{Name: "db", ErrorThreshold: 1, SuccessThreshold: 1, ErrorTimeout: time.Minute})
	waitForQueueDrained(t, client)

	allowed, err := b.AllowRequest()
	if !allowed || err != nil {
		t.Fatalf("expected allowed on a fresh breaker, got allowed=%v err=%v", allowed, err)
	}

	b.RecordFailure(assertableErr{})
	time.Sleep(50 * time.Millisecond)

	allowed, err = b.AllowRequest()
	if allowed || err == nil {
		t.Fatalf("expected rejected once the coordinator opens the circuit, got allowed=%v err=%v", allowed, err)
	}
	if !b.NotClosed() {
		t.Fatal("expected NotClosed to report true once open")
	}
}

func TestSharedBreakerResetForcesClosed(t *testing.T) {
	_, socketPath := startTestServer(t)

	client := NewClient(socketPath)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Stop()
	waitForConnection(t, client)

	b := NewBreaker(client, BreakerConfig{Name: "db", ErrorThreshold: 1, SuccessThreshold: 1, ErrorTimeout: time.Minute})
	waitForQueueDrained(t, client)

	b.RecordFailure(assertableErr{})
	time.Sleep(50 * time.Millisecond)

	b.Reset()
	time.Sleep(50 * time.Millisecond)

	if b.NotClosed() {
		t.Fatal("expected NotClosed to report false after Reset")
	}
}

type assertableErr struct{}

func (assertableErr) Error() string { return "boom" }
