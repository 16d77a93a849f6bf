// Package dualbreaker implements a breaker holding one classical and one
// adaptive instance for the same resource, recording every outcome to
// both while a selector predicate decides which gates admission.
package dualbreaker

import (
	"sync"

	"github.com/resilientedge/core/internal/adaptivebreaker"
	"github.com/resilientedge/core/internal/circuitbreaker"
)

// Active identifies which breaker is currently the gating decision-maker.
type Active int

const (
	ActiveClassical Active = iota
	ActiveAdaptive
)

func (a Active) String() string {
	if a == ActiveAdaptive {
		return "adaptive"
	}
	return "classical"
}

// Selector decides, for the current call, which breaker gates admission.
// Evaluated once per AllowRequest call.
type Selector func() Active

// AlwaysClassical is the default selector.
func AlwaysClassical() Active { return ActiveClassical }

// AlwaysAdaptive selects the adaptive breaker unconditionally.
func AlwaysAdaptive() Active { return ActiveAdaptive }

// Config holds the dual breaker's construction options.
type Config struct {
	Classical *circuitbreaker.Breaker
	Adaptive  *adaptivebreaker.Breaker
	Selector  Selector
}

// Breaker holds a classical and an adaptive breaker side by side.
type Breaker struct {
	mu        sync.Mutex
	classical *circuitbreaker.Breaker
	adaptive  *adaptivebreaker.Breaker
	selector  Selector
}

// New creates a Breaker from cfg, defaulting Selector to AlwaysClassical.
func New(cfg Config) *Breaker {
	selector := cfg.Selector
	if selector == nil {
		selector = AlwaysClassical
	}
	return &Breaker{classical: cfg.Classical, adaptive: cfg.Adaptive, selector: selector}
}

// AllowRequest evaluates the selector and defers admission to whichever
// breaker it names.
func (b *Breaker) AllowRequest() (bool, error) {
	switch b.selector() {
	case ActiveAdaptive:
		return b.adaptive.AllowRequest()
	default:
		return b.classical.AllowRequest()
	}
}

// RecordSuccess records the outcome on both breakers unconditionally.
func (b *Breaker) RecordSuccess() {
	b.classical.RecordSuccess()
	b.adaptive.RecordSuccess()
}

// RecordFailure records the outcome on both breakers unconditionally.
func (b *Breaker) RecordFailure(err error) {
	b.classical.RecordFailure(err)
	b.adaptive.RecordFailure(err)
}

// NotClosed reports whether either held breaker is outside its closed
// baseline state, used by the registry to pin an entry against LRU
// eviction.
func (b *Breaker) NotClosed() bool {
	return b.classical.State() != circuitbreaker.Closed || b.adaptive.State() != adaptivebreaker.Closed
}

// Reset resets both breakers.
func (b *Breaker) Reset() {
	b.classical.Reset()
	b.adaptive.Reset()
}

// IsHalfOpen reports whether the breaker currently gating admission, per
// the selector, is in its half-open/partial-open state.
func (b *Breaker) IsHalfOpen() bool {
	switch b.selector() {
	case ActiveAdaptive:
		return b.adaptive.IsHalfOpen()
	default:
		return b.classical.IsHalfOpen()
	}
}

// Active returns which breaker currently gates admission, per the selector.
func (b *Breaker) Active() Active {
	return b.selector()
}

// Snapshot reports both breakers' observable state, for metrics/introspection.
type Snapshot struct {
	Active            Active
	ClassicalState    circuitbreaker.State
	ClassicalErrors   int
	AdaptiveState     adaptivebreaker.State
	AdaptiveRejectRate float64
}

// GetSnapshot returns both breakers' current state.
func (b *Breaker) GetSnapshot() Snapshot {
	cs := b.classical.GetSnapshot()
	return Snapshot{
		Active:             b.Active(),
		ClassicalState:      cs.State,
		ClassicalErrors:     cs.ErrorCount,
		AdaptiveState:       b.adaptive.State(),
		AdaptiveRejectRate:  b.adaptive.RejectionRate(),
	}
}
