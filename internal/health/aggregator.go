// Package health aggregates the status of every registered resource
// (bulkheads, breakers, the shared-scope client) into a single rollup,
// consumed by the standard grpc_health_v1 service and fed by
// cmd/server's shared-scope state-change handler.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/resilientedge/core/internal/observability"
)

// Status is a resource's health classification.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Checker reports the health of a single resource.
type Checker interface {
	Check(ctx context.Context) (Status, string, error)
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(ctx context.Context) (Status, string, error)

func (f CheckerFunc) Check(ctx context.Context) (Status, string, error) { return f(ctx) }

// ServiceHealth is one resource's current rollup entry.
type ServiceHealth struct {
	Name      string
	Status    Status
	Message   string
	LastCheck time.Time
}

// Aggregated is the overall health rollup.
type Aggregated struct {
	Status    Status
	Services  map[string]ServiceHealth
	Timestamp time.Time
}

type entry struct {
	checker   Checker
	status    Status
	message   string
	lastCheck time.Time
}

// Config holds Aggregator construction options.
type Config struct {
	Emitter       observability.EventEmitter
	CorrelationFn func() string
}

// Aggregator tracks health across a dynamic set of named resources,
// emitting a state_change-style event whenever a resource's status
// transitions.
type Aggregator struct {
	mu            sync.RWMutex
	services      map[string]*entry
	emitter       observability.EventEmitter
	correlationFn func() string
}

// NewAggregator creates an Aggregator from cfg.
func NewAggregator(cfg Config) *Aggregator {
	correlationFn := cfg.CorrelationFn
	if correlationFn == nil {
		correlationFn = func() string { return "" }
	}
	return &Aggregator{
		services:      make(map[string]*entry),
		emitter:       cfg.Emitter,
		correlationFn: correlationFn,
	}
}

// GetAggregatedHealth returns the overall rollup across every registered
// resource, without running new checks.
func (a *Aggregator) GetAggregatedHealth() Aggregated {
	a.mu.RLock()
	defer a.mu.RUnlock()

	services := make(map[string]ServiceHealth, len(a.services))
	overall := StatusHealthy
	for name, e := range a.services {
		services[name] = ServiceHealth{Name: name, Status: e.status, Message: e.message, LastCheck: e.lastCheck}
		overall = aggregateStatus(overall, e.status)
	}

	return Aggregated{Status: overall, Services: services, Timestamp: time.Now()}
}

// RegisterService adds a resource to monitor, defaulting its status to
// healthy until the first check runs.
func (a *Aggregator) RegisterService(name string, checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.services[name] = &entry{checker: checker, status: StatusHealthy, lastCheck: time.Now()}
}

// UnregisterService stops monitoring a resource.
func (a *Aggregator) UnregisterService(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.services, name)
}

// UpdateHealth sets a resource's status directly (used by cmd/server's
// shared-scope state-change handler and by manual status pushes), emitting a
// state-change event on transition.
func (a *Aggregator) UpdateHealth(name string, status Status, message string) {
	a.mu.Lock()
	e, ok := a.services[name]
	if !ok {
		e = &entry{}
		a.services[name] = e
	}
	previous := e.status
	e.status = status
	e.message = message
	e.lastCheck = time.Now()
	a.mu.Unlock()

	if previous != status {
		a.emitHealthChange(name, previous, status, message)
	}
}

// CheckAll runs every registered resource's Checker, snapshotting names
// under a read lock and running checks outside of it so a slow checker
// doesn't block registration of other resources.
func (a *Aggregator) CheckAll(ctx context.Context) {
	a.mu.RLock()
	names := make([]string, 0, len(a.services))
	for name := range a.services {
		names = append(names, name)
	}
	a.mu.RUnlock()

	for _, name := range names {
		a.checkOne(ctx, name)
	}
}

func (a *Aggregator) checkOne(ctx context.Context, name string) {
	a.mu.RLock()
	e, ok := a.services[name]
	if !ok || e.checker == nil {
		a.mu.RUnlock()
		return
	}
	checker := e.checker
	a.mu.RUnlock()

	status, message, err := checker.Check(ctx)
	if err != nil {
		status = StatusUnhealthy
		message = err.Error()
	}
	a.UpdateHealth(name, status, message)
}

func (a *Aggregator) emitHealthChange(name string, previous, next Status, message string) {
	if a.emitter == nil {
		return
	}
	event := observability.NewEvent(observability.EventStateChange, name).
		WithCorrelationID(a.correlationFn()).
		WithState(string(next)).
		WithMetadata("previous_status", string(previous)).
		WithMetadata("message", message)
	observability.EmitEvent(a.emitter, *event)
}

// aggregateStatus returns the worse of current and next, by priority
// unhealthy > degraded > healthy.
func aggregateStatus(current, next Status) Status {
	priority := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if priority[next] > priority[current] {
		return next
	}
	return current
}

// AggregateStatuses folds a slice of statuses down to the single worst one.
func AggregateStatuses(statuses []Status) Status {
	result := StatusHealthy
	for _, s := range statuses {
		result = aggregateStatus(result, s)
	}
	return result
}
