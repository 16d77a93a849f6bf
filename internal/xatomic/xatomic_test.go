package xatomic

import (
	"sync"
	"testing"
)

func TestIntegerIncrementIsConcurrencySafe(t *testing.T) {
	i := NewInteger(0)
	var wg sync.WaitGroup
	for n := 0; n < 100; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			i.Increment(1)
		}()
	}
	wg.Wait()

	if got := i.Get(); got != 100 {
		t.Fatalf("Get() = %d, want 100", got)
	}
}

func TestIntegerCompareAndSwap(t *testing.T) {
	i := NewInteger(5)
	if !i.CompareAndSwap(5, 10) {
		t.Fatalf("expected CAS(5, 10) to succeed")
	}
	if i.CompareAndSwap(5, 20) {
		t.Fatalf("expected stale CAS(5, 20) to fail")
	}
	if got := i.Get(); got != 10 {
		t.Fatalf("Get() = %d, want 10", got)
	}
}

func TestBooleanToggle(t *testing.T) {
	b := NewBoolean(false)
	if b.Get() {
		t.Fatalf("expected initial false")
	}
	b.Set(true)
	if !b.Get() {
		t.Fatalf("expected true after Set")
	}
}

func TestEnumStateCompareAndSwap(t *testing.T) {
	const (
		closed int32 = iota
		open
		halfOpen
	)
	s := NewEnumState(closed)
	if !s.CompareAndSwap(closed, open) {
		t.Fatalf("expected closed->open CAS to succeed")
	}
	if s.Get() != open {
		t.Fatalf("Get() = %d, want open", s.Get())
	}
	if s.CompareAndSwap(closed, halfOpen) {
		t.Fatalf("expected stale CAS to fail")
	}
}
