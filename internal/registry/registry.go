// Package registry implements a process-wide, LRU-GC'd mapping from
// resource name to protected resource, using a doubly-linked list plus
// map for O(1) most-recently-used reordering, specialized so eviction
// never reclaims an entry still in use.
package registry

import (
	"container/list"
	"sync"
	"time"

	"github.com/resilientedge/core/internal/observability"
	"github.com/resilientedge/core/internal/resource"
	"github.com/resilientedge/core/internal/rerrors"
)

// Options captures the construction options a caller passed for a given
// name, compared against a prior registration to decide whether a repeat
// Register call is idempotent or conflicting.
type Options struct {
	HasBulkhead    bool
	BulkheadKey    int32
	HasBreaker     bool
	DefaultTimeout time.Duration
}

// Factory builds the protected resource for a name on first registration.
type Factory func() (*resource.Resource, Options, error)

type element struct {
	name      string
	res       *resource.Resource
	options   Options
	insertedAt time.Time
}

// Config holds Registry construction options.
type Config struct {
	MaxSize       int           // default 500
	MinTimeInLRU  time.Duration // default 300s
	Emitter       observability.EventEmitter
}

// Registry is the LRU-GC'd protected-resource registry.
type Registry struct {
	mu           sync.Mutex
	maxSize      int
	minTimeInLRU time.Duration
	emitter      observability.EventEmitter

	order *list.List // front = most recently used
	items map[string]*list.Element
}

// New creates a Registry from cfg, applying defaults for zero-valued
// tunables.
func New(cfg Config) *Registry {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 500
	}
	minTime := cfg.MinTimeInLRU
	if minTime <= 0 {
		minTime = 300 * time.Second
	}
	return &Registry{
		maxSize:      maxSize,
		minTimeInLRU: minTime,
		emitter:      cfg.Emitter,
		order:        list.New(),
		items:        make(map[string]*list.Element),
	}
}

// Register creates a new entry for name, or validates that an existing
// entry's options are compatible if name is already registered. Triggers
// eviction after insertion if the registry is over max_size.
func (r *Registry) Register(name string, options Options, factory Factory) (*resource.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.items[name]; ok {
		e := elem.Value.(*element)
		if e.options != options {
			return nil, rerrors.NewInternalError(name, "incompatible re-registration options")
		}
		r.order.MoveToFront(elem)
		return e.res, nil
	}

	res, resolvedOptions, err := factory()
	if err != nil {
		return nil, err
	}

	e := &element{name: name, res: res, options: resolvedOptions, insertedAt: time.Now()}
	elem := r.order.PushFront(e)
	r.items[name] = elem

	r.evictLocked()
	return res, nil
}

// RetrieveOrRegister looks up name, registering it via factory if absent.
// Idempotent: a concurrent caller racing to register the same name never
// observes two distinct resources.
func (r *Registry) RetrieveOrRegister(name string, options Options, factory Factory) (*resource.Resource, error) {
	if res, ok := r.Lookup(name); ok {
		return res, nil
	}
	return r.Register(name, options, factory)
}

// Lookup retrieves name without constructing it, marking it
// most-recently-used on a hit.
func (r *Registry) Lookup(name string) (*resource.Resource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.items[name]
	if !ok {
		return nil, false
	}
	r.order.MoveToFront(elem)
	return elem.Value.(*element).res, true
}

// Unregister removes name from the registry without destroying the
// underlying bulkhead or breaker state.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(name)
}

// Destroy removes name, additionally releasing any SysV bulkhead object it
// holds.
func (r *Registry) Destroy(name string) error {
	r.mu.Lock()
	elem, ok := r.items[name]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	e := elem.Value.(*element)
	var err error
	if bh := e.res.Bulkhead(); bh != nil {
		err = bh.Destroy()
	}

	r.mu.Lock()
	r.removeLocked(name)
	r.mu.Unlock()
	return err
}

// UnregisterAll clears the registry, leaving underlying OS objects intact.
func (r *Registry) UnregisterAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order.Init()
	r.items = make(map[string]*list.Element)
}

// Reset clears the registry, resetting every entry's breaker before
// dropping it.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for elem := r.order.Front(); elem != nil; elem = elem.Next() {
		elem.Value.(*element).res.Reset()
	}
	r.order.Init()
	r.items = make(map[string]*list.Element)
}

// Size returns the number of registered entries.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// CompactOnce walks the LRU tail once, evicting eligible entries. Intended
// to be run on a periodic background schedule alongside insert-time
// eviction.
func (r *Registry) CompactOnce() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked()
}

// evictLocked walks the LRU tail, removing entries whose last_use is
// older than min_time_in_lru and which are not in use, until size <=
// max_size. An evicted entry's bulkhead SysV object is not destroyed;
// only Destroy releases it. Must be called with r.mu held.
func (r *Registry) evictLocked() {
	for r.order.Len() > r.maxSize {
		elem := r.order.Back()
		if elem == nil {
			return
		}
		e := elem.Value.(*element)

		if time.Since(e.res.LastUse()) < r.minTimeInLRU {
			return
		}
		if e.res.InUse() {
			// Skip past in-use entries rather than evicting them; walk
			// toward the front looking for an eligible victim.
			evicted := r.skipInUseAndEvict(elem)
			if !evicted {
				return
			}
			continue
		}

		r.order.Remove(elem)
		delete(r.items, e.name)
		r.emitEviction(e.name)
	}
}

// skipInUseAndEvict walks from elem toward the front looking for the
// first eligible (not in-use, past min_time_in_lru) entry to evict,
// since the true LRU tail is pinned. Returns false if none is found.
func (r *Registry) skipInUseAndEvict(from *list.Element) bool {
	for elem := from.Prev(); elem != nil; elem = elem.Prev() {
		e := elem.Value.(*element)
		if e.res.InUse() {
			continue
		}
		if time.Since(e.res.LastUse()) < r.minTimeInLRU {
			continue
		}
		r.order.Remove(elem)
		delete(r.items, e.name)
		r.emitEviction(e.name)
		return true
	}
	return false
}

func (r *Registry) removeLocked(name string) {
	elem, ok := r.items[name]
	if !ok {
		return
	}
	r.order.Remove(elem)
	delete(r.items, name)
}

func (r *Registry) emitEviction(name string) {
	if r.emitter == nil {
		return
	}
	observability.EmitEvent(r.emitter, *observability.NewEvent(observability.EventEviction, name))
}
