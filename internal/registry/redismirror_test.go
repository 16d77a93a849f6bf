package registry

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/resilientedge/core/internal/circuitbreaker"
	"github.com/resilientedge/core/internal/observability"
)

type fakeSnapshotStore struct {
	saved   map[string]circuitbreaker.Snapshot
	deleted []string
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{saved: make(map[string]circuitbreaker.Snapshot)}
}

func (s *fakeSnapshotStore) Save(snapshot circuitbreaker.Snapshot) error {
	s.saved[snapshot.ResourceName] = snapshot
	return nil
}

func (s *fakeSnapshotStore) Delete(resourceName string) error {
	s.deleted = append(s.deleted, resourceName)
	delete(s.saved, resourceName)
	return nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisMirrorEmitterSavesNonClosedState(t *testing.T) {
	store := newFakeSnapshotStore()
	mirror := NewRedisMirrorEmitter(store, silentLogger())

	event := *observability.NewEvent(observability.EventStateChange, "payments_db").WithState("open").WithMetadata("error_count", 3)
	event.Timestamp = time.Now()
	mirror.Emit(event)

	snap, ok := store.saved["payments_db"]
	if !ok {
		t.Fatal("expected snapshot to be saved")
	}
	if snap.State != circuitbreaker.Open {
		t.Fatalf("expected Open, got %v", snap.State)
	}
	if snap.ErrorCount != 3 {
		t.Fatalf("expected error count 3, got %d", snap.ErrorCount)
	}
}

func TestRedisMirrorEmitterDeletesOnClose(t *testing.T) {
	store := newFakeSnapshotStore()
	store.saved["payments_db"] = circuitbreaker.Snapshot{ResourceName: "payments_db", State: circuitbreaker.Open}
	mirror := NewRedisMirrorEmitter(store, silentLogger())

	event := *observability.NewEvent(observability.EventStateChange, "payments_db").WithState("closed")
	mirror.Emit(event)

	if _, ok := store.saved["payments_db"]; ok {
		t.Fatal("expected snapshot to be deleted on close transition")
	}
	if len(store.deleted) != 1 {
		t.Fatalf("expected one delete call, got %d", len(store.deleted))
	}
}

func TestRedisMirrorEmitterIgnoresNonStateChangeEvents(t *testing.T) {
	store := newFakeSnapshotStore()
	mirror := NewRedisMirrorEmitter(store, silentLogger())

	mirror.Emit(*observability.NewEvent(observability.EventSuccess, "payments_db"))

	if len(store.saved) != 0 || len(store.deleted) != 0 {
		t.Fatal("expected no store interaction for a non-state-change event")
	}
}
