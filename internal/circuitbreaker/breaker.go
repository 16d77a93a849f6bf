// Package circuitbreaker implements a classical 3-state circuit breaker:
// a sliding window of recent errors gates closed->open, and half-open
// outcomes gate open->half_open->{closed,open}.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/resilientedge/core/internal/observability"
	"github.com/resilientedge/core/internal/rerrors"
	"github.com/resilientedge/core/internal/slidingwindow"
)

// State is the circuit's externally visible state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config holds the classical breaker's tunables.
type Config struct {
	// ErrorThreshold is the number of errors, within ErrorThresholdTimeout,
	// that trips the circuit from closed to open.
	ErrorThreshold int
	// ErrorTimeout is how long the circuit stays open before moving to
	// half-open.
	ErrorTimeout time.Duration
	// ErrorThresholdTimeout bounds how far back an error still counts
	// toward ErrorThreshold. Defaults to ErrorTimeout when zero, since a
	// breaker that never separately tunes its trip window wants the same
	// duration governing both "how far back errors count" and "how long
	// to stay open".
	ErrorThresholdTimeout time.Duration
	// SuccessThreshold is how many consecutive half-open successes close
	// the circuit. Half-open admits every request, so concurrent requests
	// may all count toward it; any half-open failure re-opens instead.
	SuccessThreshold int
	ResourceName     string
	Emitter          observability.EventEmitter
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ErrorThreshold <= 0 {
		out.ErrorThreshold = 3
	}
	if out.ErrorTimeout <= 0 {
		out.ErrorTimeout = 5 * time.Second
	}
	if out.ErrorThresholdTimeout <= 0 {
		out.ErrorThresholdTimeout = out.ErrorTimeout
	}
	if out.SuccessThreshold <= 0 {
		out.SuccessThreshold = 1
	}
	return out
}

// Breaker is a classical circuit breaker.
type Breaker struct {
	mu sync.Mutex

	cfg    Config
	errors *slidingwindow.Window

	state        State
	successCount int
	openedAt     time.Time
	lastChange   time.Time
	version      int64

	now func() time.Time
}

// New creates a Breaker from cfg, applying defaults for zero-valued
// tunables.
func New(cfg Config) *Breaker {
	resolved := cfg.withDefaults()
	return &Breaker{
		cfg:        resolved,
		errors:     slidingwindow.New(resolved.ErrorThreshold),
		state:      Closed,
		lastChange: time.Now(),
		now:        time.Now,
	}
}

// AllowRequest reports whether a request may proceed, transitioning
// open->half_open if the error timeout has elapsed.
func (b *Breaker) AllowRequest() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true, nil

	case Open:
		if b.now().Sub(b.openedAt) >= b.cfg.ErrorTimeout {
			b.transitionTo(HalfOpen)
			return true, nil
		}
		return false, rerrors.NewOpenCircuitError(b.cfg.ResourceName)

	case HalfOpen:
		// Half-open admits every request; the recorded outcomes decide
		// whether the circuit closes or re-opens.
		return true, nil

	default:
		return false, rerrors.NewOpenCircuitError(b.cfg.ResourceName)
	}
}

// RecordSuccess records a successful operation.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		// A success does not clear the error window; only entry to
		// closed does.
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transitionTo(Closed)
		}
	}
}

// RecordFailure records a failed operation. err's MarksCircuits
// capability is honored: an error that opts out of circuit accounting (e.g.
// a client-side validation error) never counts toward ErrorThreshold.
func (b *Breaker) RecordFailure(err error) {
	if !rerrors.ShouldMarkCircuit(err) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case Closed:
		b.errors.Push(now)
		b.errors.RejectOlderThan(now.Add(-b.cfg.ErrorThresholdTimeout))
		if b.errors.Size() >= b.cfg.ErrorThreshold {
			b.transitionTo(Open)
		}

	case HalfOpen:
		// Any error during the half-open probe immediately re-opens.
		b.transitionTo(Open)
	}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ErrorCount returns the number of errors currently counted within the
// trip window.
func (b *Breaker) ErrorCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errors.Size()
}

// Snapshot is the serializable view of the breaker's state, used for
// mirroring non-closed states to Redis (registry.RedisStore).
type Snapshot struct {
	ResourceName    string
	State           State
	ErrorCount      int
	LastStateChange time.Time
	Version         int64
}

// GetSnapshot returns the breaker's current state as a Snapshot.
func (b *Breaker) GetSnapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		ResourceName:    b.cfg.ResourceName,
		State:           b.state,
		ErrorCount:      b.errors.Size(),
		LastStateChange: b.lastChange,
		Version:         b.version,
	}
}

// NotClosed reports whether the breaker is outside its closed baseline
// state, used by the registry to pin an entry against LRU eviction.
func (b *Breaker) NotClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != Closed
}

// IsHalfOpen reports whether the breaker is currently half-open, letting
// a protected resource apply a tighter acquire timeout in that state.
func (b *Breaker) IsHalfOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == HalfOpen
}

// Reset forces the circuit back to closed and clears the error window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(Closed)
}

// transitionTo changes state. Must be called with b.mu held.
func (b *Breaker) transitionTo(newState State) {
	if b.state == newState {
		return
	}

	prevState := b.state
	b.state = newState
	b.lastChange = b.now()
	b.version++

	if newState == Open {
		b.openedAt = b.now()
	}
	if newState == Closed {
		b.errors.Clear()
	}
	if newState == HalfOpen {
		b.successCount = 0
	}

	b.emitStateChange(prevState, newState)
}

func (b *Breaker) emitStateChange(prevState, newState State) {
	if b.cfg.Emitter == nil {
		return
	}
	event := observability.NewEvent(observability.EventStateChange, b.cfg.ResourceName).
		WithState(newState.String()).
		WithMetadata("previous_state", prevState.String()).
		WithMetadata("error_count", b.errors.Size())
	observability.EmitEvent(b.cfg.Emitter, *event)
}
