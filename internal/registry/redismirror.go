package registry

import (
	"log/slog"

	"github.com/resilientedge/core/internal/circuitbreaker"
	"github.com/resilientedge/core/internal/observability"
)

// SnapshotStore persists circuit breaker snapshots. RedisStore satisfies
// this directly; it's declared separately here so RedisMirrorEmitter
// doesn't need to name the concrete Redis-backed type.
type SnapshotStore interface {
	Save(snapshot circuitbreaker.Snapshot) error
	Delete(resourceName string) error
}

// RedisMirrorEmitter mirrors non-closed circuit breaker states to a
// SnapshotStore as they happen, so a process restarting while a
// dependency is unhealthy can rehydrate rather than starting closed
// against a known-bad resource. A closed transition deletes the mirrored
// entry instead of saving it.
type RedisMirrorEmitter struct {
	store  SnapshotStore
	logger *slog.Logger
}

// NewRedisMirrorEmitter creates a RedisMirrorEmitter writing to store.
func NewRedisMirrorEmitter(store SnapshotStore, logger *slog.Logger) *RedisMirrorEmitter {
	return &RedisMirrorEmitter{store: store, logger: logger}
}

func (m *RedisMirrorEmitter) Emit(event observability.ResilienceEvent) {
	if event.Type != observability.EventStateChange {
		return
	}

	state, err := circuitbreaker.ParseState(event.State)
	if err != nil {
		return
	}

	if state == circuitbreaker.Closed {
		if err := m.store.Delete(event.ResourceName); err != nil {
			m.logger.Warn("redis mirror delete failed", slog.String("resource", event.ResourceName), slog.Any("error", err))
		}
		return
	}

	errorCount, _ := event.Metadata["error_count"].(int)
	snapshot := circuitbreaker.Snapshot{
		ResourceName:    event.ResourceName,
		State:           state,
		ErrorCount:      errorCount,
		LastStateChange: event.Timestamp,
	}
	if err := m.store.Save(snapshot); err != nil {
		m.logger.Warn("redis mirror save failed", slog.String("resource", event.ResourceName), slog.Any("error", err))
	}
}

func (m *RedisMirrorEmitter) EmitAudit(observability.AuditEvent) {}
