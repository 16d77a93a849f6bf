// Package adaptivebreaker implements a PID-controlled partial-open
// circuit breaker: it composes a proportional controller
// (internal/controller) with optional out-of-band health pings and
// exposes the same request_allowed?/mark_failed/mark_success shape as
// the classical breaker, so a dual breaker can hold one of each
// interchangeably.
package adaptivebreaker

import (
	"context"
	"sync"
	"time"

	"github.com/resilientedge/core/internal/controller"
	"github.com/resilientedge/core/internal/observability"
	"github.com/resilientedge/core/internal/rerrors"
)

// State mirrors the classical breaker's vocabulary for partial-open
// observability only; it never gates admission directly, the
// continuous rejection_rate does.
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

// stateFromRejectionRate classifies the continuous rejection_rate into
// discrete observability states.
func stateFromRejectionRate(rate float64) State {
	switch {
	case rate < 0.01:
		return Closed
	case rate >= 0.99:
		return Open
	default:
		return HalfOpen
	}
}

// PingFunc is a caller-supplied health predicate, invoked on the background
// schedule with a per-call timeout already applied via ctx.
type PingFunc func(ctx context.Context) error

// Config holds the adaptive breaker's tunables.
type Config struct {
	ResourceName string
	Controller   controller.Config
	Emitter      observability.EventEmitter

	// Ping, when non-nil, is invoked every PingInterval with a
	// PingTimeout-bounded context; its outcome feeds the controller like
	// any other recorded outcome, weighted by PingWeight.
	Ping         PingFunc
	PingInterval time.Duration
	PingTimeout  time.Duration
	// PingWeight discounts (or amplifies) a synthetic ping outcome relative
	// to a real request outcome when folded into the controller's observed
	// error rate. Defaults to 1 (counted the same as a request).
	PingWeight float64
}

// Breaker is the adaptive, PID-controlled circuit breaker.
type Breaker struct {
	cfg  Config
	ctrl *controller.Controller

	mu         sync.Mutex
	lastState  State
	cancelPing context.CancelFunc
	stopped    chan struct{}
}

// New creates a Breaker from cfg. Call StartPinging to begin the background
// health-ping schedule, if cfg.Ping is set.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:       cfg,
		ctrl:      controller.New(cfg.Controller),
		lastState: Closed,
	}
}

// AllowRequest reports whether a request may proceed: request_allowed? maps
// to !should_reject?().
func (b *Breaker) AllowRequest() (bool, error) {
	if b.ctrl.ShouldReject() {
		return false, rerrors.NewOpenCircuitError(b.cfg.ResourceName)
	}
	return true, nil
}

// RecordSuccess feeds a success outcome to the controller (mark_success).
func (b *Breaker) RecordSuccess() {
	b.ctrl.Record(controller.Success)
	b.afterRecord()
}

// RecordFailure feeds an error outcome to the controller (mark_failed),
// honoring the error's MarksCircuits veto capability like the classical
// breaker does.
func (b *Breaker) RecordFailure(err error) {
	if !rerrors.ShouldMarkCircuit(err) {
		return
	}
	b.ctrl.Record(controller.Error)
	b.afterRecord()
}

// RecordRejection feeds a rejected outcome to the controller.
func (b *Breaker) RecordRejection() {
	b.ctrl.Record(controller.Rejected)
	b.afterRecord()
}

// Update advances the controller's smoother and recomputes rejection_rate.
// Called on the background schedule at SlidingInterval cadence (or
// synchronously in tests).
func (b *Breaker) Update() {
	b.ctrl.Update()
	b.afterRecord()
}

func (b *Breaker) afterRecord() {
	newState := stateFromRejectionRate(b.ctrl.RejectionRate())

	b.mu.Lock()
	changed := newState != b.lastState
	b.lastState = newState
	b.mu.Unlock()

	if changed {
		b.emitStateChange(newState)
	}
}

func (b *Breaker) emitStateChange(newState State) {
	if b.cfg.Emitter == nil {
		return
	}
	event := observability.NewEvent(observability.EventStateChange, b.cfg.ResourceName).
		WithState(newState.String()).
		WithMetadata("rejection_rate", b.ctrl.RejectionRate())
	observability.EmitEvent(b.cfg.Emitter, *event)
}

// State returns the current partial-open observability state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastState
}

// RejectionRate returns the controller's current continuous rejection
// probability.
func (b *Breaker) RejectionRate() float64 {
	return b.ctrl.RejectionRate()
}

// NotClosed reports whether the breaker's observability state is outside
// closed, used by the registry to pin an entry against LRU eviction.
func (b *Breaker) NotClosed() bool {
	return b.State() != Closed
}

// IsHalfOpen reports whether the breaker's observability state currently
// classifies as half_open, letting a protected resource apply a tighter
// acquire timeout while the rejection rate sits in the partial-open band.
func (b *Breaker) IsHalfOpen() bool {
	return b.State() == HalfOpen
}

// Reset clears the controller's state and resets observability state to
// closed.
func (b *Breaker) Reset() {
	b.ctrl.Reset()
	b.mu.Lock()
	b.lastState = Closed
	b.mu.Unlock()
}

// StartPinging launches the background health-ping schedule. A no-op if
// cfg.Ping is nil. Cancel via Stop.
func (b *Breaker) StartPinging(ctx context.Context) {
	if b.cfg.Ping == nil {
		return
	}

	pingCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancelPing = cancel
	b.stopped = make(chan struct{})
	b.mu.Unlock()

	interval := b.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := b.cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	go func() {
		defer close(b.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				b.runPing(pingCtx, timeout)
			}
		}
	}()
}

func (b *Breaker) runPing(ctx context.Context, timeout time.Duration) {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := b.cfg.Ping(pingCtx)
	if b.cfg.Emitter != nil {
		observability.EmitEvent(b.cfg.Emitter, *observability.NewEvent(observability.EventHealthPing, b.cfg.ResourceName).
			WithMetadata("error", err != nil))
	}

	// A ping is synthetic, not a caller-supplied error, so it always
	// counts, unlike RecordFailure's MarksCircuits opt-out check. It's
	// weighted so the configured balance between pings and real traffic
	// is preserved in the controller's observed error rate.
	outcome := controller.Success
	if err != nil {
		outcome = controller.Error
	}
	weight := b.cfg.PingWeight
	if weight <= 0 {
		weight = 1
	}
	b.ctrl.RecordWeighted(outcome, weight)
	b.afterRecord()
}

// Stop cancels the background ping schedule and waits for it to exit. A
// no-op if pinging was never started.
func (b *Breaker) Stop() {
	b.mu.Lock()
	cancel := b.cancelPing
	stopped := b.stopped
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}
