package observability

import "sync"

// MockEmitter is a test double implementing EventEmitter, recording every
// event for later assertions. Shared across adaptivebreaker, health,
// resource, and registry tests rather than duplicated per package.
type MockEmitter struct {
	mu     sync.Mutex
	events []ResilienceEvent
	audits []AuditEvent
}

// NewMockEmitter creates an empty MockEmitter.
func NewMockEmitter() *MockEmitter {
	return &MockEmitter{}
}

func (m *MockEmitter) Emit(event ResilienceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *MockEmitter) EmitAudit(event AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, event)
}

// Events returns a copy of every recorded ResilienceEvent.
func (m *MockEmitter) Events() []ResilienceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ResilienceEvent, len(m.events))
	copy(out, m.events)
	return out
}

// AuditEvents returns a copy of every recorded AuditEvent.
func (m *MockEmitter) AuditEvents() []AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEvent, len(m.audits))
	copy(out, m.audits)
	return out
}

// Clear discards all recorded events.
func (m *MockEmitter) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.audits = nil
}

// EventsOfType filters recorded events by Type.
func (m *MockEmitter) EventsOfType(t EventType) []ResilienceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ResilienceEvent
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
