package sharedscope

import (
	"context"
	"sync"
	"time"

	"github.com/resilientedge/core/internal/rerrors"
)

// BreakerConfig holds a shared-scope Breaker's construction options,
// mirroring the subset of circuitbreaker.Config the coordinator needs to
// register a resource.
type BreakerConfig struct {
	Name             string
	ErrorThreshold   int
	SuccessThreshold int
	ErrorTimeout     time.Duration
	// CallTimeout bounds each AllowRequest round trip to the coordinator.
	// Defaults to 2s.
	CallTimeout time.Duration
}

// Breaker delegates circuit breaker admission to a shared-scope
// coordinator over Client, so a resource configured with syncScope:
// shared behaves identically to a local classical breaker from the
// caller's perspective while every process observes the same state. It
// implements resource.Breaker.
type Breaker struct {
	client      *Client
	name        string
	callTimeout time.Duration

	mu    sync.RWMutex
	state string
}

// NewBreaker creates a Breaker backed by client, registering cfg.Name
// with the coordinator and subscribing to its state broadcasts to keep a
// local cache for NotClosed/IsHalfOpen introspection.
func NewBreaker(client *Client, cfg BreakerConfig) *Breaker {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	b := &Breaker{client: client, name: cfg.Name, callTimeout: timeout, state: "closed"}

	client.RegisterResource(cfg.Name, cfg.ErrorThreshold, cfg.SuccessThreshold, cfg.ErrorTimeout)
	client.AddStateChangeHandler(func(name, state string) {
		if name == cfg.Name {
			b.setState(state)
		}
	})
	client.Subscribe(cfg.Name, cfg.Name)

	return b
}

func (b *Breaker) setState(state string) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

func (b *Breaker) currentState() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// AllowRequest asks the coordinator whether a request may proceed. If the
// coordinator is unreachable, it fails open rather than blocking the
// caller on a disconnected shared-scope dependency.
func (b *Breaker) AllowRequest() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.callTimeout)
	defer cancel()

	resp, err := b.client.AllowRequest(ctx, b.name)
	if err != nil {
		return true, nil
	}
	b.setState(resp.State)
	if !resp.Allowed {
		return false, rerrors.NewOpenCircuitError(b.name)
	}
	return true, nil
}

// RecordSuccess reports a successful operation to the coordinator.
func (b *Breaker) RecordSuccess() {
	b.client.ReportSuccess(b.name)
}

// RecordFailure reports a failed operation to the coordinator, honoring
// the same MarksCircuits opt-out as the local classical breaker.
func (b *Breaker) RecordFailure(err error) {
	if !rerrors.ShouldMarkCircuit(err) {
		return
	}
	b.client.ReportError(b.name)
}

// Reset asks the coordinator to force this resource's circuit closed.
func (b *Breaker) Reset() {
	ctx, cancel := context.WithTimeout(context.Background(), b.callTimeout)
	defer cancel()
	resp, err := b.client.Reset(ctx, b.name)
	if err == nil {
		b.setState(resp.State)
	}
}

// NotClosed reports whether the last known coordinator state is outside
// closed, used by the registry's LRU eviction policy.
func (b *Breaker) NotClosed() bool {
	state := b.currentState()
	return state != "" && state != "closed"
}

// IsHalfOpen reports whether the last known coordinator state is
// half_open, letting a protected resource apply a tighter admission
// timeout while a probe is in flight.
func (b *Breaker) IsHalfOpen() bool {
	return b.currentState() == "half_open"
}
