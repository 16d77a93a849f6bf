// Package grpcserver provides the gRPC listener fronting the resilience
// core: a standard grpc_health_v1 health service backed by the health
// aggregator, reflection for non-production environments, and a
// middleware chain of panic recovery, structured logging, and tracing.
package grpcserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	grpc_logging "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/resilientedge/core/internal/config"
)

// Server is the gRPC listener wrapping grpc.Server with this module's
// middleware chain and health service.
type Server struct {
	server   *grpc.Server
	listener net.Listener
	logger   *slog.Logger
}

// New builds a Server bound to cfg.Host:cfg.Port, registering the health
// service backed by healthServer and enabling reflection outside production.
func New(cfg config.ServerConfig, logger *slog.Logger, tracer trace.Tracer, healthServer grpc_health_v1.HealthServer, reflectionEnabled bool) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	recoveryOpts := []grpc_recovery.Option{
		grpc_recovery.WithRecoveryHandler(func(p any) error {
			logger.Error("gRPC panic recovered", slog.Any("panic", p))
			return status.Errorf(codes.Internal, "internal server error")
		}),
	}
	loggingOpts := []grpc_logging.Option{
		grpc_logging.WithLogOnEvents(grpc_logging.StartCall, grpc_logging.FinishCall),
	}

	unaryInterceptors := []grpc.UnaryServerInterceptor{
		grpc_recovery.UnaryServerInterceptor(recoveryOpts...),
		grpc_logging.UnaryServerInterceptor(interceptorLogger(logger), loggingOpts...),
		tracingUnaryInterceptor(tracer),
	}
	streamInterceptors := []grpc.StreamServerInterceptor{
		grpc_recovery.StreamServerInterceptor(recoveryOpts...),
		grpc_logging.StreamServerInterceptor(interceptorLogger(logger), loggingOpts...),
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unaryInterceptors...),
		grpc.ChainStreamInterceptor(streamInterceptors...),
	)

	grpc_health_v1.RegisterHealthServer(server, healthServer)
	if reflectionEnabled {
		reflection.Register(server)
	}

	return &Server{server: server, listener: listener, logger: logger}, nil
}

// Serve blocks accepting connections until Stop is called.
func (s *Server) Serve() error {
	s.logger.Info("starting gRPC server", slog.String("address", s.listener.Addr().String()))
	return s.server.Serve(s.listener)
}

// Stop gracefully drains in-flight RPCs, falling back to a hard stop if
// ctx expires first.
func (s *Server) Stop(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("gRPC graceful stop timed out, forcing stop")
		s.server.Stop()
	}
}

func interceptorLogger(l *slog.Logger) grpc_logging.Logger {
	return grpc_logging.LoggerFunc(func(ctx context.Context, lvl grpc_logging.Level, msg string, fields ...any) {
		switch lvl {
		case grpc_logging.LevelDebug:
			l.DebugContext(ctx, msg, fields...)
		case grpc_logging.LevelWarn:
			l.WarnContext(ctx, msg, fields...)
		case grpc_logging.LevelError:
			l.ErrorContext(ctx, msg, fields...)
		default:
			l.InfoContext(ctx, msg, fields...)
		}
	})
}

func tracingUnaryInterceptor(tracer trace.Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if tracer == nil {
			return handler(ctx, req)
		}
		ctx, span := tracer.Start(ctx, info.FullMethod)
		defer span.End()

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		}
		return resp, err
	}
}
