// Package adapterapi defines the contract a driver adapter (HTTP, SQL,
// Redis, gRPC client, ...) implements to sit in front of a protected
// resource. This module does not implement any adapter itself; it only
// owns resource.Resource.Acquire, which an adapter's connect/query/ping
// entry points call into.
package adapterapi

import (
	"context"
	"errors"
	"time"

	"github.com/resilientedge/core/internal/observability"
)

// Identifier is an adapter's stable, comparable name used to look it up
// in the registry.
type Identifier string

// Options is the adapter-specific configuration an Adapter carries
// alongside its protected resource. Concrete adapters embed this and add
// their own fields (DSN, host, port, ...).
type Options struct {
	ResourceName   string
	DefaultTimeout time.Duration
}

// ExceptionClassifier decides whether an error returned by the wrapped
// driver call should mark the breaker. Adapters supply one when the
// default rerrors classification (every error marks unless it implements
// MarksCircuits returning false) isn't right for their driver's error types.
type ExceptionClassifier func(err error) bool

// Adapter is the contract a driver wrapper implements. Identifier and
// Options are descriptive; Acquire is the single integration point with
// the protected resource.
type Adapter interface {
	Identifier() Identifier
	Options() Options
	Acquire(ctx context.Context, scope observability.Scope, timeout time.Duration, block func(ctx context.Context) error) error
}

// ErrResourceBusy is the adapter-facing alias for a bulkhead-saturation
// timeout, so callers of different adapters can handle busy resources
// uniformly regardless of which driver is underneath.
var ErrResourceBusy = errors.New("resource busy")

// ErrCircuitOpen is the adapter-facing alias for a breaker denial.
var ErrCircuitOpen = errors.New("circuit open")
