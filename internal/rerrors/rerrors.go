// Package rerrors defines the error taxonomy shared by the bulkhead, circuit
// breaker, and registry: a BaseError root plus concrete kinds for syscall
// failures, timeouts, invariant violations, circuit denials, and bulkhead
// saturation.
package rerrors

import (
	"errors"
	"fmt"
)

// Kind identifies a taxonomy member without binding callers to a concrete
// Go type, matching the "kinds, not type names" framing of the error
// handling design.
type Kind string

const (
	KindSyscall      Kind = "syscall_error"
	KindTimeout      Kind = "timeout_error"
	KindInternal     Kind = "internal_error"
	KindOpenCircuit  Kind = "open_circuit_error"
	KindResourceBusy Kind = "resource_busy_error"
	KindAdapter      Kind = "adapter_error"
)

// BaseError is the root of the taxonomy. Concrete kinds embed it.
type BaseError struct {
	Kind     Kind
	Resource string
	Message  string
	Cause    error
}

func (e *BaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (resource=%s): %v", e.Kind, e.Message, e.Resource, e.Cause)
	}
	return fmt.Sprintf("%s: %s (resource=%s)", e.Kind, e.Message, e.Resource)
}

func (e *BaseError) Unwrap() error { return e.Cause }

// Is matches BaseError instances by Kind, allowing errors.Is(err, &BaseError{Kind: KindTimeout}).
func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// SyscallError indicates an OS-level primitive (semaphore create/attach)
// failed. Fatal to the resource being created, not to the process.
type SyscallError struct {
	*BaseError
	Syscall string
}

func NewSyscallError(resource, syscall string, cause error) *SyscallError {
	return &SyscallError{
		BaseError: &BaseError{Kind: KindSyscall, Resource: resource, Message: "syscall failed", Cause: cause},
		Syscall:   syscall,
	}
}

// TimeoutError indicates a bulkhead acquire wait expired before a ticket
// became available. Does not consume a ticket and is never recorded against
// a circuit breaker.
type TimeoutError struct {
	*BaseError
}

func NewTimeoutError(resource string) *TimeoutError {
	return &TimeoutError{BaseError: &BaseError{Kind: KindTimeout, Resource: resource, Message: "timed out waiting for ticket"}}
}

// InternalError indicates an invariant violation: incompatible re-registration,
// negative ticket counts, or similar programmer/caller errors.
type InternalError struct {
	*BaseError
}

func NewInternalError(resource, message string) *InternalError {
	return &InternalError{BaseError: &BaseError{Kind: KindInternal, Resource: resource, Message: message}}
}

// OpenCircuitError indicates a circuit breaker denied admission. Surfaced
// immediately to the caller and never itself recorded as a circuit error.
type OpenCircuitError struct {
	*BaseError
}

func NewOpenCircuitError(resource string) *OpenCircuitError {
	return &OpenCircuitError{BaseError: &BaseError{Kind: KindOpenCircuit, Resource: resource, Message: "circuit is open"}}
}

// ResourceBusyError is the adapter-facing alias for bulkhead saturation.
type ResourceBusyError struct {
	*BaseError
}

func NewResourceBusyError(resource string) *ResourceBusyError {
	return &ResourceBusyError{BaseError: &BaseError{Kind: KindResourceBusy, Resource: resource, Message: "bulkhead saturated"}}
}

// AdapterError is a mixin carrying the adapter's semian_identifier in string
// form, for adapters built atop this core (see internal/adapterapi).
type AdapterError struct {
	*BaseError
	Identifier string
}

func NewAdapterError(resource, identifier, message string, cause error) *AdapterError {
	return &AdapterError{
		BaseError:  &BaseError{Kind: KindAdapter, Resource: resource, Message: message, Cause: cause},
		Identifier: identifier,
	}
}

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsOpenCircuit reports whether err is, or wraps, an OpenCircuitError.
func IsOpenCircuit(err error) bool {
	var target *OpenCircuitError
	return errors.As(err, &target)
}

// IsResourceBusy reports whether err is, or wraps, a ResourceBusyError.
func IsResourceBusy(err error) bool {
	var target *ResourceBusyError
	return errors.As(err, &target)
}

// IsInternal reports whether err is, or wraps, an InternalError.
func IsInternal(err error) bool {
	var target *InternalError
	return errors.As(err, &target)
}

// IsSyscall reports whether err is, or wraps, a SyscallError.
func IsSyscall(err error) bool {
	var target *SyscallError
	return errors.As(err, &target)
}

// MarksCircuits is the capability an error instance may implement to veto
// being recorded against a circuit breaker (default true). Errors that
// do not implement this interface are always recorded.
type MarksCircuits interface {
	MarksCircuits() bool
}

// ShouldMarkCircuit applies the MarksCircuits capability, defaulting to true
// for errors that do not opt out.
func ShouldMarkCircuit(err error) bool {
	if err == nil {
		return false
	}
	if mc, ok := err.(MarksCircuits); ok {
		return mc.MarksCircuits()
	}
	return true
}
