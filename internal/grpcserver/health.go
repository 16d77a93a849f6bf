package grpcserver

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/resilientedge/core/internal/health"
)

// HealthService adapts health.Aggregator to grpc_health_v1.HealthServer.
type HealthService struct {
	grpc_health_v1.UnimplementedHealthServer
	aggregator *health.Aggregator
}

// NewHealthService builds a HealthService backed by aggregator.
func NewHealthService(aggregator *health.Aggregator) *HealthService {
	return &HealthService{aggregator: aggregator}
}

// Check reports the current rollup status across every registered resource.
func (h *HealthService) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	rollup := h.aggregator.GetAggregatedHealth()
	return &grpc_health_v1.HealthCheckResponse{Status: toServingStatus(rollup.Status)}, nil
}

// Watch streams the rollup status every 10 seconds until the client
// disconnects.
func (h *HealthService) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	resp, err := h.Check(stream.Context(), req)
	if err != nil {
		return err
	}
	if err := stream.Send(resp); err != nil {
		return err
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-ticker.C:
			resp, err := h.Check(stream.Context(), req)
			if err != nil {
				return status.Errorf(codes.Internal, "health check failed: %v", err)
			}
			if err := stream.Send(resp); err != nil {
				return err
			}
		}
	}
}

func toServingStatus(s health.Status) grpc_health_v1.HealthCheckResponse_ServingStatus {
	switch s {
	case health.StatusHealthy, health.StatusDegraded:
		return grpc_health_v1.HealthCheckResponse_SERVING
	case health.StatusUnhealthy:
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	default:
		return grpc_health_v1.HealthCheckResponse_UNKNOWN
	}
}
