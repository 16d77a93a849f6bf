package health

import (
	"testing"

	"github.com/resilientedge/core/internal/observability"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_AllHealthyReturnsHealthy(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("all_healthy_returns_healthy", prop.ForAll(
		func(serviceCount int) bool {
			agg := NewAggregator(Config{})
			for i := 0; i < serviceCount; i++ {
				agg.UpdateHealth(string(rune('a'+i)), StatusHealthy, "")
			}
			return agg.GetAggregatedHealth().Status == StatusHealthy
		},
		gen.IntRange(1, 10),
	))

	props.Property("any_degraded_returns_degraded", prop.ForAll(
		func(healthyCount int) bool {
			agg := NewAggregator(Config{})
			for i := 0; i < healthyCount; i++ {
				agg.UpdateHealth(string(rune('a'+i)), StatusHealthy, "")
			}
			agg.UpdateHealth("degraded", StatusDegraded, "degraded")
			return agg.GetAggregatedHealth().Status == StatusDegraded
		},
		gen.IntRange(1, 10),
	))

	props.Property("any_unhealthy_returns_unhealthy", prop.ForAll(
		func(healthyCount, degradedCount int) bool {
			agg := NewAggregator(Config{})
			for i := 0; i < healthyCount; i++ {
				agg.UpdateHealth(string(rune('a'+i)), StatusHealthy, "")
			}
			for i := 0; i < degradedCount; i++ {
				agg.UpdateHealth("degraded-"+string(rune('a'+i)), StatusDegraded, "")
			}
			agg.UpdateHealth("unhealthy", StatusUnhealthy, "unhealthy")
			return agg.GetAggregatedHealth().Status == StatusUnhealthy
		},
		gen.IntRange(0, 5),
		gen.IntRange(0, 5),
	))

	props.Property("aggregate_statuses_function", prop.ForAll(
		func(codes []int) bool {
			statuses := make([]Status, len(codes))
			hasUnhealthy, hasDegraded := false, false
			for i, c := range codes {
				statuses[i] = statusFromInt(c)
				switch c % 3 {
				case 1:
					hasDegraded = true
				case 2:
					hasUnhealthy = true
				}
			}
			result := AggregateStatuses(statuses)
			switch {
			case hasUnhealthy:
				return result == StatusUnhealthy
			case hasDegraded:
				return result == StatusDegraded
			default:
				return result == StatusHealthy
			}
		},
		gen.SliceOfN(10, gen.IntRange(0, 2)),
	))

	props.TestingRun(t)
}

func TestProperty_HealthChangeEventEmission(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("status_change_emits_event", prop.ForAll(
		func(initialCode, newCode int) bool {
			if initialCode%3 == newCode%3 {
				return true
			}

			emitter := observability.NewMockEmitter()
			agg := NewAggregator(Config{Emitter: emitter})

			initial := statusFromInt(initialCode)
			agg.UpdateHealth("test-service", initial, "initial")
			emitter.Clear()

			next := statusFromInt(newCode)
			agg.UpdateHealth("test-service", next, "changed")

			events := emitter.Events()
			if len(events) != 1 {
				return false
			}
			event := events[0]
			if event.Type != observability.EventStateChange {
				return false
			}
			if event.Metadata["previous_status"] != string(initial) {
				return false
			}
			if event.State != string(next) {
				return false
			}
			return true
		},
		gen.IntRange(0, 2),
		gen.IntRange(0, 2),
	))

	props.Property("same_status_no_event", prop.ForAll(
		func(code int) bool {
			emitter := observability.NewMockEmitter()
			agg := NewAggregator(Config{Emitter: emitter})

			status := statusFromInt(code)
			agg.UpdateHealth("test-service", status, "initial")
			emitter.Clear()
			agg.UpdateHealth("test-service", status, "same")

			return len(emitter.Events()) == 0
		},
		gen.IntRange(0, 2),
	))

	props.TestingRun(t)
}

func statusFromInt(i int) Status {
	switch i % 3 {
	case 0:
		return StatusHealthy
	case 1:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}
