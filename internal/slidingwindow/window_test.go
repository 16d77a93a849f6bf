package slidingwindow

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPushReplacesOldestWhenFull(t *testing.T) {
	w := New(3)
	base := time.Unix(1000, 0)

	for i := 0; i < 3; i++ {
		w.Push(base.Add(time.Duration(i) * time.Second))
	}
	if !w.Full() {
		t.Fatalf("expected window full after 3 pushes into capacity 3")
	}

	w.Push(base.Add(3 * time.Second))

	if w.Size() != 3 {
		t.Fatalf("size = %d, want 3", w.Size())
	}
	first, ok := w.First()
	if !ok || !first.Equal(base.Add(1*time.Second)) {
		t.Fatalf("first = %v, want %v", first, base.Add(1*time.Second))
	}
	last, ok := w.Last()
	if !ok || !last.Equal(base.Add(3*time.Second)) {
		t.Fatalf("last = %v, want %v", last, base.Add(3*time.Second))
	}
}

func TestClearEmptiesWindow(t *testing.T) {
	w := New(2)
	w.Push(time.Now())
	w.Push(time.Now())
	w.Clear()

	if w.Size() != 0 {
		t.Fatalf("size after clear = %d, want 0", w.Size())
	}
	if _, ok := w.First(); ok {
		t.Fatalf("expected no first entry after clear")
	}
}

func TestRejectOlderThan(t *testing.T) {
	w := New(5)
	base := time.Unix(2000, 0)
	for i := 0; i < 5; i++ {
		w.Push(base.Add(time.Duration(i) * time.Second))
	}

	w.RejectOlderThan(base.Add(3 * time.Second))

	if w.Size() != 2 {
		t.Fatalf("size = %d, want 2", w.Size())
	}
	first, _ := w.First()
	if !first.Equal(base.Add(3 * time.Second)) {
		t.Fatalf("first = %v, want %v", first, base.Add(3*time.Second))
	}
}

func TestSizeNeverExceedsCapacity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("size never exceeds capacity regardless of push count", prop.ForAll(
		func(capacity, pushes int) bool {
			w := New(capacity)
			base := time.Unix(0, 0)
			for i := 0; i < pushes; i++ {
				w.Push(base.Add(time.Duration(i) * time.Millisecond))
			}
			return w.Size() <= w.Capacity()
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}
