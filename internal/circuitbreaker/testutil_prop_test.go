package circuitbreaker

import (
	"testing"

	"github.com/leanovate/gopter/prop"

	"github.com/resilientedge/core/internal/testutil"
)

// TestProperty_NeverOpensBelowThreshold exercises the testutil-provided
// breaker config generator: across any generated config, fewer failures
// than ErrorThreshold must never open the breaker.
func TestProperty_NeverOpensBelowThreshold(t *testing.T) {
	testutil.RunPropertyTest(t, "never_opens_below_threshold", prop.ForAll(
		func(shape testutil.BreakerConfigShape) bool {
			b, _ := newTestBreaker(t, Config{
				ErrorThreshold:   shape.ErrorThreshold,
				SuccessThreshold: shape.SuccessThreshold,
				ErrorTimeout:     shape.ErrorTimeout,
			})
			for i := 0; i < shape.ErrorThreshold-1; i++ {
				b.RecordFailure(errSentinel)
			}
			return b.State() == Closed
		},
		testutil.GenBreakerConfigShape(),
	))
}
