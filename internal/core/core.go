// Package core provides the explicit process-wide handle that owns the
// resource registry and every background task it starts (adaptive
// breaker ping and update schedules) instead of relying on package-level
// global state. The shared-scope client is started and stopped by the
// caller and passed in through Config. Tests substitute a fresh Core to
// avoid cross-test leakage.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/resilientedge/core/internal/adaptivebreaker"
	"github.com/resilientedge/core/internal/bulkhead"
	"github.com/resilientedge/core/internal/circuitbreaker"
	"github.com/resilientedge/core/internal/config"
	"github.com/resilientedge/core/internal/controller"
	"github.com/resilientedge/core/internal/dualbreaker"
	"github.com/resilientedge/core/internal/observability"
	"github.com/resilientedge/core/internal/registry"
	"github.com/resilientedge/core/internal/resource"
	"github.com/resilientedge/core/internal/sharedscope"
)

// Config holds Core construction options.
type Config struct {
	Registry registry.Config
	Emitter  observability.EventEmitter
	Tracer   *observability.TracingProvider

	// ScopeClient, when set, lets RegisterResource build a shared-scope
	// breaker for any resource configured with syncScope: shared. Required
	// only by resources that actually request shared scope.
	ScopeClient *sharedscope.Client
}

// Core is the process-wide handle owning the registry and background
// tasks. Create one per process (or one per test for isolation); Close it
// on shutdown to cancel every background task it started.
type Core struct {
	reg         *registry.Registry
	emitter     observability.EventEmitter
	tracer      *observability.TracingProvider
	scopeClient *sharedscope.Client

	mu      sync.Mutex
	cancels []context.CancelFunc
	closed  bool
}

// New creates a Core from cfg.
func New(cfg Config) *Core {
	return &Core{
		reg:         registry.New(cfg.Registry),
		emitter:     cfg.Emitter,
		tracer:      cfg.Tracer,
		scopeClient: cfg.ScopeClient,
	}
}

// Registry returns the process-wide resource registry.
func (c *Core) Registry() *registry.Registry { return c.reg }

// ResourceOptions captures everything RegisterResource needs beyond what
// config.ResourceConfig already holds: a ping function for adaptive
// breakers (not yaml-expressible) and a dual-breaker selector.
type ResourceOptions struct {
	Ping     adaptivebreaker.PingFunc
	Selector dualbreaker.Selector
}

// RegisterResource builds and registers a protected resource from a
// ResourceConfig, wiring a bulkhead, a breaker (classical, adaptive, or
// dual per the config), and starting any background ping and update
// schedules. It is
// idempotent on name.
func (c *Core) RegisterResource(rc config.ResourceConfig, opts ResourceOptions) (*resource.Resource, error) {
	options := registry.Options{
		HasBulkhead: rc.Bulkhead,
		HasBreaker:  rc.CircuitBreaker,
	}

	return c.reg.RetrieveOrRegister(rc.Name, options, func() (*resource.Resource, registry.Options, error) {
		var bh *bulkhead.Bulkhead
		if rc.Bulkhead {
			var err error
			bh, err = bulkhead.Register(bulkhead.Config{
				Name:           rc.Name,
				Tickets:        rc.BulkheadConfig.Tickets,
				Quota:          rc.BulkheadConfig.Quota,
				Permissions:    rc.Permissions,
				DefaultTimeout: rc.BulkheadConfig.Timeout,
				Emitter:        c.emitter,
			})
			if err != nil {
				return nil, registry.Options{}, fmt.Errorf("register bulkhead %q: %w", rc.Name, err)
			}
			options.BulkheadKey = bh.Key()
		}

		var br resource.Breaker
		if rc.CircuitBreaker {
			var err error
			br, err = c.buildBreaker(rc, opts)
			if err != nil {
				return nil, registry.Options{}, fmt.Errorf("build breaker %q: %w", rc.Name, err)
			}
		}

		res := resource.New(resource.Config{
			Name:                    rc.Name,
			Bulkhead:                bh,
			Breaker:                 br,
			Emitter:                 c.emitter,
			Tracer:                  c.tracer,
			DefaultTimeout:          rc.BulkheadConfig.Timeout,
			HalfOpenResourceTimeout: rc.Classical.HalfOpenResourceTimeout,
		})
		return res, options, nil
	})
}

func controllerConfigFrom(ac config.AdaptiveConfig) controller.Config {
	return controller.Config{
		Defensiveness:    ac.Defensiveness,
		WindowSize:       ac.WindowSize,
		SlidingInterval:  ac.SlidingInterval,
		InitialErrorRate: ac.InitialErrorRate,
		CapValue:         ac.CapValue,
	}
}

// buildBreaker constructs the breaker a resource registers with: a
// shared-scope breaker when syncScope: shared is configured, otherwise
// whichever local combination of classical/adaptive/dual the config
// names. Shared scope delegates to a coordinator that only understands
// classical semantics, so it doesn't compose with adaptive or dual.
func (c *Core) buildBreaker(rc config.ResourceConfig, opts ResourceOptions) (resource.Breaker, error) {
	if rc.SyncScope == "shared" {
		if c.scopeClient == nil {
			return nil, fmt.Errorf("resource %q requests syncScope=shared but no shared-scope client is configured", rc.Name)
		}
		return sharedscope.NewBreaker(c.scopeClient, sharedscope.BreakerConfig{
			Name:             rc.Name,
			ErrorThreshold:   rc.Classical.ErrorThreshold,
			SuccessThreshold: rc.Classical.SuccessThreshold,
			ErrorTimeout:     rc.Classical.ErrorTimeout,
		}), nil
	}

	classical := circuitbreaker.New(circuitbreaker.Config{
		ErrorThreshold:        rc.Classical.ErrorThreshold,
		ErrorTimeout:          rc.Classical.ErrorTimeout,
		ErrorThresholdTimeout: rc.Classical.ErrorThresholdTimeout,
		SuccessThreshold:      rc.Classical.SuccessThreshold,
		ResourceName:          rc.Name,
		Emitter:               c.emitter,
	})

	if !rc.Adaptive.Enabled() {
		return classical, nil
	}

	adaptive := adaptivebreaker.New(adaptivebreaker.Config{
		ResourceName: rc.Name,
		Emitter:      c.emitter,
		Controller:   controllerConfigFrom(rc.Adaptive),
		Ping:         opts.Ping,
		PingInterval: rc.Adaptive.PingInterval,
		PingTimeout:  rc.Adaptive.PingTimeout,
		PingWeight:   rc.Adaptive.PingWeight,
	})
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()
	if opts.Ping != nil {
		adaptive.StartPinging(ctx)
	}
	interval := rc.Adaptive.SlidingInterval
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				adaptive.Update()
			}
		}
	}()

	if rc.Adaptive.AdaptiveCircuitBreaker && !rc.Adaptive.DualCircuitBreaker {
		return adaptive, nil
	}

	selector := opts.Selector
	if selector == nil {
		selector = selectorFor(rc.Dual.SelectorName)
	}

	return dualbreaker.New(dualbreaker.Config{
		Classical: classical,
		Adaptive:  adaptive,
		Selector:  selector,
	}), nil
}

// selectorFor resolves a config-driven selector name into a dual-breaker
// Selector. A programmatic ResourceOptions.Selector always takes priority;
// this only covers the two selectors expressible in yaml.
func selectorFor(name string) dualbreaker.Selector {
	switch name {
	case "always_adaptive":
		return dualbreaker.AlwaysAdaptive
	default:
		return dualbreaker.AlwaysClassical
	}
}

// Close cancels every background task started by RegisterResource (ping
// and update schedules). Safe to call once; subsequent calls are no-ops.
func (c *Core) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, cancel := range c.cancels {
		cancel()
	}
}

// CompactRegistry runs an LRU eviction pass every interval until ctx is
// done. The owning process (cmd/server) runs it in its own goroutine.
func (c *Core) CompactRegistry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reg.CompactOnce()
		}
	}
}
