// Package observability carries the event, tracing, metrics, and audit
// logging concerns around the resilience core: every protected-resource
// acquire and every circuit breaker transition emits a ResilienceEvent
// carrying the resource name, scope, and outcome.
package observability

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the resilience-event vocabulary.
type EventType string

const (
	EventSuccess     EventType = "success"
	EventBusy        EventType = "busy"
	EventCircuitOpen EventType = "circuit_open"
	EventStateChange EventType = "state_change"
	EventEviction    EventType = "eviction"
	EventHealthPing  EventType = "health_ping"
)

// Scope is the call-site category carried on the event payload.
type Scope string

const (
	ScopeConnection Scope = "connection"
	ScopeQuery      Scope = "query"
	ScopePing       Scope = "ping"
	ScopeExecute    Scope = "execute"
)

// ResilienceEvent is the payload handed to subscribers and to the
// observability sinks (tracing, metrics, audit log).
type ResilienceEvent struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	ResourceName  string         `json:"resource_name"`
	Scope         Scope          `json:"scope,omitempty"`
	AdapterTag    string         `json:"adapter_tag,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
	TraceID       string         `json:"trace_id,omitempty"`
	SpanID        string         `json:"span_id,omitempty"`
	WaitTimeMs    *float64       `json:"wait_time_ms,omitempty"`
	State         string         `json:"state,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewEvent creates a ResilienceEvent with an auto-generated ID and current
// timestamp.
func NewEvent(eventType EventType, resourceName string) *ResilienceEvent {
	return &ResilienceEvent{
		ID:           uuid.NewString(),
		Type:         eventType,
		ResourceName: resourceName,
		Timestamp:    time.Now().UTC(),
		Metadata:     make(map[string]any),
	}
}

func (e *ResilienceEvent) WithCorrelationID(id string) *ResilienceEvent {
	e.CorrelationID = id
	return e
}

func (e *ResilienceEvent) WithTraceContext(traceID, spanID string) *ResilienceEvent {
	e.TraceID = traceID
	e.SpanID = spanID
	return e
}

func (e *ResilienceEvent) WithScope(scope Scope, adapterTag string) *ResilienceEvent {
	e.Scope = scope
	e.AdapterTag = adapterTag
	return e
}

func (e *ResilienceEvent) WithWaitTime(d time.Duration) *ResilienceEvent {
	ms := float64(d.Microseconds()) / 1000.0
	e.WaitTimeMs = &ms
	return e
}

func (e *ResilienceEvent) WithState(state string) *ResilienceEvent {
	e.State = state
	return e
}

func (e *ResilienceEvent) WithMetadata(key string, value any) *ResilienceEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// AuditEvent is a security/compliance-facing record, distinct from the
// lower-level ResilienceEvent stream.
type AuditEvent struct {
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	Resource      string         `json:"resource"`
	Outcome       string         `json:"outcome"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewAuditEvent creates an AuditEvent with an auto-generated ID and current
// timestamp.
func NewAuditEvent(action, resource, outcome string) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.NewString(),
		Action:    action,
		Resource:  resource,
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

// EventEmitter is implemented by every observability sink (otel, metrics,
// audit log, or a caller's own subscriber).
type EventEmitter interface {
	Emit(event ResilienceEvent)
	EmitAudit(event AuditEvent)
}

// EmitEvent safely emits, treating a nil emitter as a no-op.
func EmitEvent(emitter EventEmitter, event ResilienceEvent) {
	if emitter == nil {
		return
	}
	emitter.Emit(event)
}

// EmitAuditEvent safely emits, treating a nil emitter as a no-op.
func EmitAuditEvent(emitter EventEmitter, event AuditEvent) {
	if emitter == nil {
		return
	}
	emitter.EmitAudit(event)
}

// NoOpEmitter discards every event.
type NoOpEmitter struct{}

func (NoOpEmitter) Emit(ResilienceEvent) {}
func (NoOpEmitter) EmitAudit(AuditEvent) {}

// ChannelEmitter fans events out over buffered channels, dropping on a full
// buffer rather than blocking the caller.
type ChannelEmitter struct {
	Events      chan ResilienceEvent
	AuditEvents chan AuditEvent
}

// NewChannelEmitter creates a ChannelEmitter with the given buffer size.
func NewChannelEmitter(bufferSize int) *ChannelEmitter {
	return &ChannelEmitter{
		Events:      make(chan ResilienceEvent, bufferSize),
		AuditEvents: make(chan AuditEvent, bufferSize),
	}
}

func (e *ChannelEmitter) Emit(event ResilienceEvent) {
	select {
	case e.Events <- event:
	default:
	}
}

func (e *ChannelEmitter) EmitAudit(event AuditEvent) {
	select {
	case e.AuditEvents <- event:
	default:
	}
}

// Close closes both channels. Not safe to call concurrently with Emit.
func (e *ChannelEmitter) Close() {
	close(e.Events)
	close(e.AuditEvents)
}

// MultiEmitter fans each event out to every wrapped emitter, letting
// tracing, metrics, and audit sinks all observe the same stream.
type MultiEmitter struct {
	emitters []EventEmitter
}

// NewMultiEmitter combines emitters into one.
func NewMultiEmitter(emitters ...EventEmitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

func (m *MultiEmitter) Emit(event ResilienceEvent) {
	for _, e := range m.emitters {
		if e != nil {
			e.Emit(event)
		}
	}
}

func (m *MultiEmitter) EmitAudit(event AuditEvent) {
	for _, e := range m.emitters {
		if e != nil {
			e.EmitAudit(event)
		}
	}
}
