// Package xatomic provides typed, lock-free-read atomic wrappers for
// counters and state that may be shared across goroutines.
package xatomic

import "sync/atomic"

// Integer is an atomically readable/writable counter.
type Integer struct {
	v atomic.Int64
}

// NewInteger creates an Integer initialized to v.
func NewInteger(v int64) *Integer {
	i := &Integer{}
	i.v.Store(v)
	return i
}

// Get returns the current value.
func (i *Integer) Get() int64 { return i.v.Load() }

// Set stores v unconditionally.
func (i *Integer) Set(v int64) { i.v.Store(v) }

// Increment adds delta and returns the new value.
func (i *Integer) Increment(delta int64) int64 { return i.v.Add(delta) }

// CompareAndSwap performs a CAS, returning whether it succeeded.
func (i *Integer) CompareAndSwap(old, new int64) bool {
	return i.v.CompareAndSwap(old, new)
}

// Boolean is an atomic boolean flag.
type Boolean struct {
	v atomic.Bool
}

// NewBoolean creates a Boolean initialized to v.
func NewBoolean(v bool) *Boolean {
	b := &Boolean{}
	b.v.Store(v)
	return b
}

// Get returns the current value.
func (b *Boolean) Get() bool { return b.v.Load() }

// Set stores v unconditionally.
func (b *Boolean) Set(v bool) { b.v.Store(v) }

// CompareAndSwap performs a CAS, returning whether it succeeded.
func (b *Boolean) CompareAndSwap(old, new bool) bool {
	return b.v.CompareAndSwap(old, new)
}

// EnumState holds one of a small fixed set of symbolic states, represented
// internally as a small integer. It is the in-process analog of the state
// slot the bulkhead's meta-lock guards in shared memory.
type EnumState struct {
	v atomic.Int32
}

// NewEnumState creates an EnumState initialized to v.
func NewEnumState(v int32) *EnumState {
	s := &EnumState{}
	s.v.Store(v)
	return s
}

// Get returns the current state.
func (s *EnumState) Get() int32 { return s.v.Load() }

// Set stores v unconditionally.
func (s *EnumState) Set(v int32) { s.v.Store(v) }

// CompareAndSwap performs a CAS, returning whether it succeeded.
func (s *EnumState) CompareAndSwap(old, new int32) bool {
	return s.v.CompareAndSwap(old, new)
}
