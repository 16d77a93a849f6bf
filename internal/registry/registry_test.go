package registry

import (
	"testing"
	"time"

	"github.com/resilientedge/core/internal/observability"
	"github.com/resilientedge/core/internal/resource"
)

func newFactory(name string) Factory {
	return func() (*resource.Resource, Options, error) {
		return resource.New(resource.Config{Name: name}), Options{}, nil
	}
}

func TestRegisterIsIdempotentOnName(t *testing.T) {
	r := New(Config{})

	res1, err := r.Register("db", Options{}, newFactory("db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res2, err := r.Register("db", Options{}, newFactory("db"))
	if err != nil {
		t.Fatalf("unexpected error on re-register: %v", err)
	}
	if res1 != res2 {
		t.Fatalf("expected the same resource instance on repeat registration")
	}
}

func TestRegisterRejectsIncompatibleOptions(t *testing.T) {
	r := New(Config{})

	_, err := r.Register("db", Options{HasBulkhead: true}, func() (*resource.Resource, Options, error) {
		return resource.New(resource.Config{Name: "db"}), Options{HasBulkhead: true}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = r.Register("db", Options{HasBulkhead: false}, newFactory("db"))
	if err == nil {
		t.Fatalf("expected incompatible re-registration to fail")
	}
}

func TestRetrieveOrRegisterReusesExisting(t *testing.T) {
	r := New(Config{})

	res1, err := r.RetrieveOrRegister("db", Options{}, newFactory("db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res2, err := r.RetrieveOrRegister("db", Options{}, newFactory("db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res1 != res2 {
		t.Fatalf("expected retrieve_or_register to reuse the existing entry")
	}
}

func TestLookupMissReturnsFalse(t *testing.T) {
	r := New(Config{})
	if _, ok := r.Lookup("missing"); ok {
		t.Fatalf("expected lookup miss for unregistered name")
	}
}

func TestEvictionRespectsMaxSizeAndMinTimeInLRU(t *testing.T) {
	r := New(Config{MaxSize: 2, MinTimeInLRU: time.Nanosecond})

	for _, name := range []string{"a", "b", "c"} {
		if _, err := r.Register(name, Options{}, newFactory(name)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	if r.Size() != 2 {
		t.Fatalf("expected eviction down to max_size=2, got %d", r.Size())
	}
	if _, ok := r.Lookup("a"); ok {
		t.Fatalf("expected the least-recently-used entry (a) to have been evicted")
	}
}

func TestEvictionNeverReclaimsRecentEntry(t *testing.T) {
	r := New(Config{MaxSize: 1, MinTimeInLRU: time.Hour})

	if _, err := r.Register("a", Options{}, newFactory("a")); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if _, err := r.Register("b", Options{}, newFactory("b")); err != nil {
		t.Fatalf("register b: %v", err)
	}

	if r.Size() != 2 {
		t.Fatalf("expected no eviction while entries are within min_time_in_lru, got size=%d", r.Size())
	}
}

func TestUnregisterAllClearsRegistry(t *testing.T) {
	r := New(Config{})
	r.Register("a", Options{}, newFactory("a"))
	r.Register("b", Options{}, newFactory("b"))

	r.UnregisterAll()

	if r.Size() != 0 {
		t.Fatalf("expected empty registry after unregister_all, got size=%d", r.Size())
	}
}

func TestEvictionEmitsEvent(t *testing.T) {
	emitter := observability.NewMockEmitter()
	r := New(Config{MaxSize: 1, MinTimeInLRU: time.Nanosecond, Emitter: emitter})

	r.Register("a", Options{}, newFactory("a"))
	r.Register("b", Options{}, newFactory("b"))

	events := emitter.EventsOfType(observability.EventEviction)
	if len(events) != 1 {
		t.Fatalf("expected 1 eviction event, got %d", len(events))
	}
	if events[0].ResourceName != "a" {
		t.Fatalf("expected eviction of 'a', got %s", events[0].ResourceName)
	}
}
