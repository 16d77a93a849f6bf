// Package controller implements the proportional (PID-style) rejection-rate
// controller behind the adaptive circuit breaker: it folds timestamped
// success/error/rejection observations into a continuously updated
// rejection_rate using an exponentially smoothed target error rate.
package controller

import (
	"sync"
	"time"

	"github.com/resilientedge/core/internal/estimator"
	"github.com/resilientedge/core/internal/randsrc"
)

// Outcome classifies a single recorded observation.
type Outcome int

const (
	Success Outcome = iota
	Error
	Rejected
)

// Config holds the controller's tunables.
type Config struct {
	// Defensiveness damps how strongly the current rejection_rate feeds
	// back into the next update; higher values converge more slowly but
	// overshoot less.
	Defensiveness float64
	// WindowSize bounds how far back observations are considered live.
	WindowSize time.Duration
	// SlidingInterval is the expected call frequency of Update; the
	// controller itself does not read it (core schedules Update).
	SlidingInterval time.Duration
	// InitialErrorRate seeds the exponential smoother.
	InitialErrorRate float64
	// CapValue bounds the smoother's forecast.
	CapValue float64
	// Rand supplies the uniform draw for ShouldReject; defaults to a
	// crypto-seeded source.
	Rand randsrc.Source
	// Now returns the current time; defaults to time.Now, overridable in
	// tests that need to simulate window expiry without sleeping.
	Now func() time.Time
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Defensiveness <= 0 {
		out.Defensiveness = 1
	}
	if out.WindowSize <= 0 {
		out.WindowSize = 10 * time.Second
	}
	if out.SlidingInterval <= 0 {
		out.SlidingInterval = time.Second
	}
	if out.CapValue <= 0 {
		out.CapValue = estimator.DefaultCapValue
	}
	if out.Rand == nil {
		out.Rand = randsrc.NewCryptoSource()
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}

type observation struct {
	at     time.Time
	weight float64
}

// Controller is the proportional controller driving the adaptive breaker.
type Controller struct {
	mu sync.Mutex

	cfg      Config
	smoother *estimator.Smoother

	errors    []observation
	successes []observation
	rejects   []observation

	rejectionRate float64
	lastP         float64
	lastUpdate    time.Time
}

// New creates a Controller from cfg, applying defaults for zero-valued
// tunables.
func New(cfg Config) *Controller {
	resolved := cfg.withDefaults()
	return &Controller{
		cfg:      resolved,
		smoother: estimator.NewSmootherWithHalfLife(10, resolved.CapValue, resolved.InitialErrorRate),
	}
}

// Record appends a timestamped outcome to the matching deque with weight 1.
func (c *Controller) Record(outcome Outcome) {
	c.RecordWeighted(outcome, 1)
}

// RecordWeighted appends a timestamped outcome weighted by weight, letting
// a caller count an observation more or less heavily than a normal
// request outcome (the adaptive breaker's background health ping uses
// this to discount synthetic probes relative to real traffic). A
// non-positive weight is treated as 1.
func (c *Controller) RecordWeighted(outcome Outcome, weight float64) {
	if weight <= 0 {
		weight = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	obs := observation{at: c.cfg.Now(), weight: weight}
	switch outcome {
	case Success:
		c.successes = append(c.successes, obs)
	case Error:
		c.errors = append(c.errors, obs)
	case Rejected:
		c.rejects = append(c.rejects, obs)
	}
}

// Update prunes stale observations, recomputes the observed error rate,
// folds it into the smoother, and derives the next rejection_rate per the
// control law: p = (observed - ideal) - rejection_rate/defensiveness;
// rejection_rate <- clamp(rejection_rate + p, 0, 1).
func (c *Controller) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Now()
	cutoff := now.Add(-c.cfg.WindowSize)
	c.errors = pruneBefore(c.errors, cutoff)
	c.successes = pruneBefore(c.successes, cutoff)
	c.rejects = pruneBefore(c.rejects, cutoff)

	errorWeight := sumWeights(c.errors)
	successWeight := sumWeights(c.successes)
	total := errorWeight + successWeight
	var observed float64
	if total > 0 {
		observed = errorWeight / total
	}

	c.smoother.AddObservation(observed)
	ideal := c.smoother.Forecast()

	p := (observed - ideal) - c.rejectionRate/c.cfg.Defensiveness
	c.rejectionRate = clamp01(c.rejectionRate + p)
	c.lastP = p
	c.lastUpdate = now
}

// ShouldReject draws a uniform sample and compares it against the current
// rejection_rate.
func (c *Controller) ShouldReject() bool {
	c.mu.Lock()
	rate := c.rejectionRate
	c.mu.Unlock()
	return c.cfg.Rand.Float64() < rate
}

// RejectionRate returns the current rejection probability.
func (c *Controller) RejectionRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejectionRate
}

// LastP returns the most recent control signal (for diagnostics/tests).
func (c *Controller) LastP() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastP
}

// Reset clears all deques, the smoother, and the rejection rate.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.errors = nil
	c.successes = nil
	c.rejects = nil
	c.rejectionRate = 0
	c.lastP = 0
	c.smoother.Reset()
}

func sumWeights(obs []observation) float64 {
	var total float64
	for _, o := range obs {
		total += o.weight
	}
	return total
}

func pruneBefore(obs []observation, cutoff time.Time) []observation {
	i := 0
	for i < len(obs) && obs[i].at.Before(cutoff) {
		i++
	}
	if i == 0 {
		return obs
	}
	return append(obs[:0:0], obs[i:]...)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
