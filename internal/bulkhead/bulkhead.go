// Package bulkhead implements a named counting semaphore providing
// cross-process admission control, backed by a real SysV semaphore set
// on Linux (golang.org/x/sys/unix) with an in-process
// mutex-and-condvar fallback elsewhere or when the kernel object
// can't be created.
package bulkhead

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/resilientedge/core/internal/observability"
	"github.com/resilientedge/core/internal/rerrors"
)

var warnOnce sync.Once

// fallbackRegistry lets repeated Register calls for the same name attach to
// the same in-process Bulkhead when SysV semaphores are unavailable, since
// the kernel object would otherwise be the only thing providing that
// shared identity.
var (
	fallbackMu       sync.Mutex
	fallbackRegistry = map[string]*Bulkhead{}
)

// Config holds a bulkhead's registration options. Tickets and Quota are
// mutually exclusive.
type Config struct {
	Name string
	// Tickets is a fixed ticket count. Zero means quota-based sizing.
	Tickets int
	// Quota sizes max_tickets as ceil(registered_workers * Quota), in (0,1].
	Quota float64
	// Permissions is the 9-bit POSIX mode applied to the underlying
	// SysV object, ignored by the in-process fallback.
	Permissions uint32
	// DefaultTimeout bounds Acquire calls that don't pass their own.
	DefaultTimeout time.Duration
	Emitter        observability.EventEmitter
}

func (c *Config) quotaBased() bool { return c.Quota > 0 }

// Bulkhead is a named counting semaphore.
type Bulkhead struct {
	mu sync.Mutex

	name           string
	key            int32
	quota          float64
	configured     int // configured tickets, for the fixed (non-quota) case
	permissions    uint32
	defaultTimeout time.Duration
	emitter        observability.EventEmitter

	registeredWorkers int
	maxTickets        int
	available         int // in-process fallback only; SysV keeps its own value in-kernel
	cond              *sync.Cond

	sysv      *sysvSet
	useSysv   bool
	destroyed bool
}

// deriveKey computes a stable 32-bit key: the first 4 bytes of
// SHA-1(name).
func deriveKey(name string) int32 {
	sum := sha1.Sum([]byte(name))
	return int32(binary.BigEndian.Uint32(sum[:4]))
}

// Register creates or attaches to the named bulkhead.
func Register(cfg Config) (*Bulkhead, error) {
	if cfg.Tickets > 0 && cfg.quotaBased() {
		return nil, rerrors.NewInternalError(cfg.Name, "tickets and quota are mutually exclusive")
	}
	if cfg.Tickets <= 0 && !cfg.quotaBased() {
		return nil, rerrors.NewInternalError(cfg.Name, "one of tickets or quota is required")
	}

	b := &Bulkhead{
		name:           cfg.Name,
		key:            deriveKey(cfg.Name),
		quota:          cfg.Quota,
		configured:     cfg.Tickets,
		permissions:    cfg.Permissions,
		defaultTimeout: cfg.DefaultTimeout,
		emitter:        cfg.Emitter,
	}
	b.cond = sync.NewCond(&b.mu)

	sysv, created, err := newSysvSet(b.key, b.permissions)
	if err == nil {
		b.sysv = sysv
		b.useSysv = true
		if initErr := b.initSysv(created); initErr != nil {
			return nil, rerrors.NewSyscallError(cfg.Name, "semctl", initErr)
		}
		return b, nil
	}

	warnOnce.Do(func() {
		slog.Warn("bulkhead: SysV semaphores unavailable, using in-process fallback",
			"resource", cfg.Name, "error", err)
	})

	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	if existing, ok := fallbackRegistry[cfg.Name]; ok {
		existing.attachWorker()
		return existing, nil
	}

	if b.quotaBased() {
		b.registeredWorkers = 1
		b.maxTickets = maxInt(1, ceilQuota(b.registeredWorkers, b.quota))
	} else {
		b.maxTickets = b.configured
	}
	b.available = b.maxTickets
	fallbackRegistry[cfg.Name] = b
	return b, nil
}

// attachWorker registers an additional worker against an existing
// in-process fallback bulkhead, recomputing max_tickets if quota-based.
func (b *Bulkhead) attachWorker() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registeredWorkers++
	if b.quotaBased() {
		oldMax := b.maxTickets
		b.maxTickets = maxInt(1, ceilQuota(b.registeredWorkers, b.quota))
		delta := b.maxTickets - oldMax
		b.available += delta
		if b.available < 0 {
			b.available = 0
		}
		b.cond.Broadcast()
	}
}

func (b *Bulkhead) initSysv(created bool) error {
	if created {
		if err := b.sysv.setValue(slotMeta, 1); err != nil {
			return err
		}
		registered := 0
		if b.quotaBased() {
			registered = 1
		}
		max := b.configured
		if b.quotaBased() {
			max = maxInt(1, ceilQuota(registered, b.quota))
		}
		if err := b.sysv.setValue(slotRegisteredWorkers, registered); err != nil {
			return err
		}
		if err := b.sysv.setValue(slotMaxTickets, max); err != nil {
			return err
		}
		if err := b.sysv.setValue(slotTickets, max); err != nil {
			return err
		}
		return nil
	}

	// Attach: register one more worker under the meta-lock and recompute
	// max_tickets if quota-based, preserving held tickets.
	if err := b.sysv.lockMeta(); err != nil {
		return err
	}
	defer b.sysv.unlockMeta()

	registered, err := b.sysv.getValue(slotRegisteredWorkers)
	if err != nil {
		return err
	}
	registered++
	if err := b.sysv.setValue(slotRegisteredWorkers, registered); err != nil {
		return err
	}

	if b.quotaBased() {
		oldMax, err := b.sysv.getValue(slotMaxTickets)
		if err != nil {
			return err
		}
		newMax := maxInt(1, ceilQuota(registered, b.quota))
		if err := b.sysv.setValue(slotMaxTickets, newMax); err != nil {
			return err
		}
		if err := b.sysv.adjustTicketsBy(newMax - oldMax); err != nil {
			return err
		}
	}
	return nil
}

func ceilQuota(registeredWorkers int, quota float64) int {
	return int(math.Ceil(float64(registeredWorkers) * quota))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Acquire blocks up to timeout (or DefaultTimeout if timeout<=0) waiting
// for a ticket. Returns a release func to call exactly once.
func (b *Bulkhead) Acquire(ctx context.Context, timeout time.Duration) (release func(), err error) {
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}

	if b.useSysv {
		return b.acquireSysv(timeout)
	}
	return b.acquireInProcess(ctx, timeout)
}

func (b *Bulkhead) acquireSysv(timeout time.Duration) (func(), error) {
	var timeoutPtr *time.Duration
	if timeout > 0 {
		timeoutPtr = &timeout
	}
	if err := b.sysv.acquireTicket(timeoutPtr); err != nil {
		if errors.Is(err, errEAGAIN) {
			b.emitBusy()
			return nil, rerrors.NewTimeoutError(b.name)
		}
		return nil, rerrors.NewSyscallError(b.name, "semop", err)
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		_ = b.sysv.releaseTicket()
	}, nil
}

func (b *Bulkhead) acquireInProcess(ctx context.Context, timeout time.Duration) (func(), error) {
	deadline := time.Now().Add(timeout)
	if timeout <= 0 {
		deadline = time.Time{}
	}

	b.mu.Lock()
	for b.available <= 0 {
		if ctx.Err() != nil {
			b.mu.Unlock()
			return nil, ctx.Err()
		}
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				b.mu.Unlock()
				b.emitBusy()
				return nil, rerrors.NewTimeoutError(b.name)
			}
			timer := time.AfterFunc(remaining, func() { b.cond.Broadcast() })
			b.cond.Wait()
			timer.Stop()
		} else {
			b.cond.Wait()
		}
	}
	b.available--
	b.mu.Unlock()

	released := false
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if released {
			return
		}
		released = true
		b.available++
		b.cond.Signal()
	}, nil
}

func (b *Bulkhead) emitBusy() {
	if b.emitter == nil {
		return
	}
	event := observability.NewEvent(observability.EventBusy, b.name).
		WithMetadata("max_tickets", b.Tickets()).
		WithMetadata("registered_workers", b.RegisteredWorkers())
	observability.EmitEvent(b.emitter, *event)
}

// UnregisterWorker decrements registered_workers, recomputing max_tickets
// if quota-based. Never goes below zero.
func (b *Bulkhead) UnregisterWorker() error {
	if b.useSysv {
		if err := b.sysv.lockMeta(); err != nil {
			return rerrors.NewSyscallError(b.name, "semop", err)
		}
		defer b.sysv.unlockMeta()

		registered, err := b.sysv.getValue(slotRegisteredWorkers)
		if err != nil {
			return rerrors.NewSyscallError(b.name, "semctl", err)
		}
		if registered > 0 {
			registered--
		}
		if err := b.sysv.setValue(slotRegisteredWorkers, registered); err != nil {
			return rerrors.NewSyscallError(b.name, "semctl", err)
		}

		if b.quotaBased() {
			oldMax, err := b.sysv.getValue(slotMaxTickets)
			if err != nil {
				return rerrors.NewSyscallError(b.name, "semctl", err)
			}
			newMax := maxInt(1, ceilQuota(registered, b.quota))
			if err := b.sysv.setValue(slotMaxTickets, newMax); err != nil {
				return rerrors.NewSyscallError(b.name, "semctl", err)
			}
			if err := b.sysv.adjustTicketsBy(newMax - oldMax); err != nil {
				return rerrors.NewSyscallError(b.name, "semctl", err)
			}
		}
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.registeredWorkers > 0 {
		b.registeredWorkers--
	}
	if b.quotaBased() {
		oldMax := b.maxTickets
		b.maxTickets = maxInt(1, ceilQuota(b.registeredWorkers, b.quota))
		delta := b.maxTickets - oldMax
		b.available += delta
		if b.available < 0 {
			b.available = 0
		}
		b.cond.Broadcast()
	}
	return nil
}

// Destroy removes the underlying SysV object, if any. Idempotent. Acquires
// the package-level fallback registry lock before b.mu (never the reverse
// order) to match attachWorker's locking order and avoid deadlock.
func (b *Bulkhead) Destroy() error {
	if !b.useSysv {
		fallbackMu.Lock()
		defer fallbackMu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil
	}
	b.destroyed = true
	if b.useSysv {
		if err := b.sysv.destroy(); err != nil {
			return rerrors.NewSyscallError(b.name, "semctl", err)
		}
	} else {
		delete(fallbackRegistry, b.name)
	}
	return nil
}

// Count returns the number of tickets currently in flight.
func (b *Bulkhead) Count() int {
	if b.useSysv {
		max, _ := b.sysv.getValue(slotMaxTickets)
		avail, _ := b.sysv.getValue(slotTickets)
		return max - avail
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxTickets - b.available
}

// Tickets returns the current max_tickets.
func (b *Bulkhead) Tickets() int {
	if b.useSysv {
		max, _ := b.sysv.getValue(slotMaxTickets)
		return max
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxTickets
}

// RegisteredWorkers returns the current registered_workers count.
func (b *Bulkhead) RegisteredWorkers() int {
	if b.useSysv {
		v, _ := b.sysv.getValue(slotRegisteredWorkers)
		return v
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registeredWorkers
}

// Key returns the derived 32-bit SysV key.
func (b *Bulkhead) Key() int32 { return b.key }
