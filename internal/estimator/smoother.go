// Package estimator provides the streaming estimators the adaptive circuit
// breaker's proportional controller uses: an exponential smoother forecasting
// the "ideal" error rate, and a P² quantile estimator for observability.
package estimator

import (
	"math"
	"sync"
)

// DefaultAlpha is the smoothing factor applied when none is supplied,
// corresponding to a half-life of roughly 10 observations (callers who
// want to derive alpha from an explicit half-life instead should use
// NewSmootherWithHalfLife).
const DefaultAlpha = 0.078

// DefaultCapValue is the ceiling applied to the smoothed value when no cap
// is configured.
const DefaultCapValue = 0.10

// Smoother is a single-variable exponential smoother: each observation moves
// the forecast a fraction alpha of the way toward it, and the result is
// clamped at capValue.
type Smoother struct {
	mu       sync.Mutex
	alpha    float64
	capValue float64
	seed     float64
	value    float64
}

// NewSmoother creates a Smoother with the given smoothing factor, cap, and
// initial seed value.
func NewSmoother(alpha, capValue, seed float64) *Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	if capValue <= 0 {
		capValue = DefaultCapValue
	}
	return &Smoother{
		alpha:    alpha,
		capValue: capValue,
		seed:     seed,
		value:    clamp(seed, capValue),
	}
}

// NewSmootherWithHalfLife derives alpha from a half-life expressed in number
// of observations: alpha = 1 - 0.5^(1/halfLife).
func NewSmootherWithHalfLife(halfLife, capValue, seed float64) *Smoother {
	if halfLife <= 0 {
		halfLife = 10
	}
	alpha := 1 - math.Pow(0.5, 1/halfLife)
	return NewSmoother(alpha, capValue, seed)
}

// AddObservation folds x into the smoothed estimate.
func (s *Smoother) AddObservation(x float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = clamp(s.value+s.alpha*(x-s.value), s.capValue)
}

// Forecast returns the current smoothed value.
func (s *Smoother) Forecast() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Reset restores the smoother to its seed value.
func (s *Smoother) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = clamp(s.seed, s.capValue)
}

func clamp(v, capValue float64) float64 {
	if v < 0 {
		return 0
	}
	if v > capValue {
		return capValue
	}
	return v
}
