// Package resource implements the protected resource: a caller-facing
// Acquire wrapping a bulkhead and a breaker around a block of work,
// emitting the {success, busy, circuit_open, state_change} event stream
// and following a fixed control flow: breaker admit -> bulkhead
// acquire -> run block -> record outcome -> emit -> release.
package resource

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/resilientedge/core/internal/bulkhead"
	"github.com/resilientedge/core/internal/observability"
	"github.com/resilientedge/core/internal/rerrors"
)

// Breaker is the minimal shape shared by the classical, adaptive, and dual
// breakers, letting a protected resource hold any of them interchangeably.
type Breaker interface {
	AllowRequest() (bool, error)
	RecordSuccess()
	RecordFailure(err error)
	Reset()
}

// Subscriber receives every event a protected resource emits, in addition
// to whatever Config.Emitter is wired.
type Subscriber func(event observability.ResilienceEvent)

// Config holds a protected resource's construction options. At least one
// of Bulkhead or Breaker must be set.
type Config struct {
	Name     string
	Bulkhead *bulkhead.Bulkhead
	Breaker  Breaker
	Emitter  observability.EventEmitter

	// Tracer, if set, wraps every Acquire call in a span.
	Tracer *observability.TracingProvider

	// DefaultTimeout bounds Acquire's bulkhead wait when the caller doesn't
	// pass its own.
	DefaultTimeout time.Duration

	// HalfOpenResourceTimeout, if set, overrides the bulkhead wait timeout
	// while the breaker reports a half-open probe in flight, so a probe
	// fails fast on contention instead of queuing at the normal pace.
	HalfOpenResourceTimeout time.Duration
}

// Resource is a caller-facing protected resource.
type Resource struct {
	name           string
	bulkhead       *bulkhead.Bulkhead
	breaker        Breaker
	emitter        observability.EventEmitter
	tracer         *observability.TracingProvider
	defaultTimeout time.Duration

	halfOpenResourceTimeout time.Duration

	mu          sync.RWMutex
	createdAt   time.Time
	lastUse     time.Time
	subscribers []Subscriber
}

// New creates a Resource from cfg.
func New(cfg Config) *Resource {
	now := time.Now()
	return &Resource{
		name:                    cfg.Name,
		bulkhead:                cfg.Bulkhead,
		breaker:                 cfg.Breaker,
		emitter:                 cfg.Emitter,
		tracer:                  cfg.Tracer,
		defaultTimeout:          cfg.DefaultTimeout,
		halfOpenResourceTimeout: cfg.HalfOpenResourceTimeout,
		createdAt:               now,
		lastUse:                 now,
	}
}

// Subscribe registers a callback invoked for every event this resource
// emits, alongside Config.Emitter.
func (r *Resource) Subscribe(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, sub)
}

// Name returns the resource's name.
func (r *Resource) Name() string { return r.name }

// Bulkhead returns the underlying bulkhead, if any, so Registry.Destroy
// can destroy its SysV object. LRU eviction does not destroy it.
func (r *Resource) Bulkhead() *bulkhead.Bulkhead { return r.bulkhead }

// LastUse returns the timestamp of the most recent Acquire call, used by
// the registry's LRU eviction policy.
func (r *Resource) LastUse() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastUse
}

// CreatedAt returns when the resource was constructed.
func (r *Resource) CreatedAt() time.Time { return r.createdAt }

// notClosedChecker is implemented by every breaker type (classical,
// adaptive, dual), letting InUse pin an entry against LRU eviction
// without this package depending on their concrete types.
type notClosedChecker interface {
	NotClosed() bool
}

// halfOpenAsker is implemented by every breaker type, letting Acquire
// apply HalfOpenResourceTimeout while the breaker is half-open without
// this package depending on their concrete types.
type halfOpenAsker interface {
	IsHalfOpen() bool
}

// InUse reports whether the resource currently holds state that must
// block LRU eviction: a breaker not in its closed/baseline state, or any
// bulkhead ticket held.
func (r *Resource) InUse() bool {
	if r.bulkhead != nil && r.bulkhead.Count() > 0 {
		return true
	}
	if checker, ok := r.breaker.(notClosedChecker); ok && checker.NotClosed() {
		return true
	}
	return false
}

func (r *Resource) touch() {
	r.mu.Lock()
	r.lastUse = time.Now()
	r.mu.Unlock()
}

// Acquire runs block under this resource's protection: a breaker
// admission check, timed bulkhead acquisition,
// block execution, outcome recording, event emission, and release.
// scope and adapterTag are carried on every emitted event for
// introspection; they may be empty.
func (r *Resource) Acquire(ctx context.Context, timeout time.Duration, scope observability.Scope, adapterTag string, block func(ctx context.Context) error) (err error) {
	r.touch()

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.StartAcquireSpan(ctx, r.name, scope, adapterTag)
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}

	if r.breaker != nil {
		allowed, err := r.breaker.AllowRequest()
		if err != nil || !allowed {
			r.emit(observability.EventCircuitOpen, scope, adapterTag, nil)
			if err != nil {
				return err
			}
			return rerrors.NewOpenCircuitError(r.name)
		}
	}

	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	if r.halfOpenResourceTimeout > 0 {
		if asker, ok := r.breaker.(halfOpenAsker); ok && asker.IsHalfOpen() {
			timeout = r.halfOpenResourceTimeout
		}
	}

	var release func()
	var waitStart time.Time
	if r.bulkhead != nil {
		waitStart = time.Now()
		var err error
		release, err = r.bulkhead.Acquire(ctx, timeout)
		if err != nil {
			r.emit(observability.EventBusy, scope, adapterTag, nil)
			return err
		}
		defer release()
	}

	err = block(ctx)

	if r.breaker != nil {
		if err != nil && rerrors.ShouldMarkCircuit(err) {
			r.breaker.RecordFailure(err)
		} else if err == nil {
			r.breaker.RecordSuccess()
		}
	}

	if err != nil {
		return err
	}

	var waitTime *time.Duration
	if !waitStart.IsZero() {
		d := time.Since(waitStart)
		waitTime = &d
	}
	r.emit(observability.EventSuccess, scope, adapterTag, waitTime)
	return nil
}

// Reset resets the underlying breaker, if any.
func (r *Resource) Reset() {
	if r.breaker != nil {
		r.breaker.Reset()
	}
}

func (r *Resource) emit(eventType observability.EventType, scope observability.Scope, adapterTag string, waitTime *time.Duration) {
	event := observability.NewEvent(eventType, r.name).WithScope(scope, adapterTag)
	if waitTime != nil {
		event = event.WithWaitTime(*waitTime)
	}

	observability.EmitEvent(r.emitter, *event)

	r.mu.RLock()
	subs := make([]Subscriber, len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.RUnlock()
	for _, sub := range subs {
		sub(*event)
	}
}
