package grpcserver

import (
	"context"
	"testing"

	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/resilientedge/core/internal/health"
)

func TestHealthServiceCheckReportsServingWhenEmpty(t *testing.T) {
	agg := health.NewAggregator(health.Config{})
	svc := NewHealthService(agg)

	resp, err := svc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING with no registered resources, got %v", resp.Status)
	}
}

func TestHealthServiceCheckReportsServingWhenDegraded(t *testing.T) {
	agg := health.NewAggregator(health.Config{})
	agg.RegisterService("db", nil)
	agg.UpdateHealth("db", health.StatusDegraded, "slow")

	svc := NewHealthService(agg)
	resp, err := svc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING while degraded, got %v", resp.Status)
	}
}

func TestHealthServiceCheckReportsNotServingWhenUnhealthy(t *testing.T) {
	agg := health.NewAggregator(health.Config{})
	agg.RegisterService("db", nil)
	agg.UpdateHealth("db", health.StatusUnhealthy, "down")

	svc := NewHealthService(agg)
	resp, err := svc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING when unhealthy, got %v", resp.Status)
	}
}

func TestToServingStatusMapping(t *testing.T) {
	cases := []struct {
		in   health.Status
		want grpc_health_v1.HealthCheckResponse_ServingStatus
	}{
		{health.StatusHealthy, grpc_health_v1.HealthCheckResponse_SERVING},
		{health.StatusDegraded, grpc_health_v1.HealthCheckResponse_SERVING},
		{health.StatusUnhealthy, grpc_health_v1.HealthCheckResponse_NOT_SERVING},
		{health.Status("bogus"), grpc_health_v1.HealthCheckResponse_UNKNOWN},
	}
	for _, tc := range cases {
		if got := toServingStatus(tc.in); got != tc.want {
			t.Errorf("toServingStatus(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

type fakeWatchStream struct {
	grpc_health_v1.Health_WatchServer
	ctx  context.Context
	sent []*grpc_health_v1.HealthCheckResponse
}

func (f *fakeWatchStream) Context() context.Context { return f.ctx }

func (f *fakeWatchStream) Send(resp *grpc_health_v1.HealthCheckResponse) error {
	f.sent = append(f.sent, resp)
	return nil
}

func TestHealthServiceWatchSendsInitialStatusThenStopsOnCancel(t *testing.T) {
	agg := health.NewAggregator(health.Config{})
	svc := NewHealthService(agg)

	ctx, cancel := context.WithCancel(context.Background())
	stream := &fakeWatchStream{ctx: ctx}

	done := make(chan error, 1)
	go func() { done <- svc.Watch(&grpc_health_v1.HealthCheckRequest{}, stream) }()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
	if len(stream.sent) == 0 {
		t.Fatal("expected at least one status sent before cancellation")
	}
	if stream.sent[0].Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("expected initial SERVING status, got %v", stream.sent[0].Status)
	}
}
