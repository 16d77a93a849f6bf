package circuitbreaker

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// fakeClock lets tests advance time deterministically without sleeping.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestBreaker(t *testing.T, cfg Config) (*Breaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := New(cfg)
	b.now = clock.now
	return b, clock
}

func TestProperty_ClosedToOpenOnErrorThreshold(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("closed_to_open_on_error_threshold", prop.ForAll(
		func(threshold int) bool {
			b, _ := newTestBreaker(t, Config{ErrorThreshold: threshold, ErrorTimeout: time.Second})
			for i := 0; i < threshold; i++ {
				if b.State() == Open {
					return false
				}
				b.RecordFailure(errSentinel)
			}
			return b.State() == Open
		},
		gen.IntRange(1, 20),
	))

	props.TestingRun(t)
}

func TestOpenToHalfOpenAfterTimeout(t *testing.T) {
	b, clock := newTestBreaker(t, Config{ErrorThreshold: 1, ErrorTimeout: 10 * time.Second})

	b.RecordFailure(errSentinel)
	if b.State() != Open {
		t.Fatalf("expected open after single failure with threshold 1")
	}

	clock.advance(11 * time.Second)
	allowed, err := b.AllowRequest()
	if !allowed || err != nil {
		t.Fatalf("expected probe admitted after timeout, got allowed=%v err=%v", allowed, err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("expected half_open after timeout elapses, got %s", b.State())
	}
}

func TestHalfOpenToClosedOnSuccessThreshold(t *testing.T) {
	b, clock := newTestBreaker(t, Config{ErrorThreshold: 1, ErrorTimeout: time.Second, SuccessThreshold: 3})

	b.RecordFailure(errSentinel)
	clock.advance(2 * time.Second)
	b.AllowRequest()
	if b.State() != HalfOpen {
		t.Fatalf("expected half_open")
	}

	for i := 0; i < 3; i++ {
		b.RecordSuccess()
	}
	if b.State() != Closed {
		t.Fatalf("expected closed after success threshold reached, got %s", b.State())
	}
}

func TestHalfOpenToOpenOnAnyFailure(t *testing.T) {
	b, clock := newTestBreaker(t, Config{ErrorThreshold: 1, ErrorTimeout: time.Second, SuccessThreshold: 5})

	b.RecordFailure(errSentinel)
	clock.advance(2 * time.Second)
	b.AllowRequest()
	if b.State() != HalfOpen {
		t.Fatalf("expected half_open")
	}

	b.RecordFailure(errSentinel)
	if b.State() != Open {
		t.Fatalf("expected open on any half-open failure, got %s", b.State())
	}
}

func TestAllowRequestDeniesWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(t, Config{ErrorThreshold: 1, ErrorTimeout: time.Hour})
	b.RecordFailure(errSentinel)

	allowed, err := b.AllowRequest()
	if allowed || err == nil {
		t.Fatalf("expected request denied while open")
	}
}

func TestClosingResetsErrorWindow(t *testing.T) {
	b, clock := newTestBreaker(t, Config{ErrorThreshold: 2, ErrorTimeout: time.Second, SuccessThreshold: 1})
	b.RecordFailure(errSentinel)
	b.RecordFailure(errSentinel)
	if b.State() != Open {
		t.Fatalf("expected open")
	}
	clock.advance(2 * time.Second)
	b.AllowRequest()
	b.RecordSuccess()
	if b.State() != Closed {
		t.Fatalf("expected closed")
	}
	if got := b.ErrorCount(); got != 0 {
		t.Fatalf("ErrorCount() after close = %d, want 0", got)
	}
}

var errSentinel = &testErr{}

type testErr struct{}

func (*testErr) Error() string { return "test error" }
