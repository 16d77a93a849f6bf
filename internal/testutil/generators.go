// Package testutil provides gopter generators and small assertion helpers
// shared across this module's property-based tests.
package testutil

import (
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
)

// BreakerConfigShape is a generator-friendly projection of a classical
// breaker's tunable fields, independent of the circuitbreaker package so
// testutil carries no dependency on it.
type BreakerConfigShape struct {
	ErrorThreshold   int
	SuccessThreshold int
	ErrorTimeout     time.Duration
}

// GenBreakerConfigShape generates valid classical-breaker configurations:
// small positive thresholds and a timeout in the 100ms-60s range.
func GenBreakerConfigShape() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1, 20),
		gen.IntRange(1, 10),
		gen.IntRange(100, 60000),
	).Map(func(vals []interface{}) BreakerConfigShape {
		return BreakerConfigShape{
			ErrorThreshold:   vals[0].(int),
			SuccessThreshold: vals[1].(int),
			ErrorTimeout:     time.Duration(vals[2].(int)) * time.Millisecond,
		}
	})
}

// GenResourceName generates a non-empty alphanumeric resource name, the
// kind used as a registry/breaker key throughout this module.
func GenResourceName() gopter.Gen {
	return gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 && len(s) < 50 })
}

// GenTicketCount generates a plausible bulkhead ticket count.
func GenTicketCount() gopter.Gen {
	return gen.IntRange(1, 50)
}
