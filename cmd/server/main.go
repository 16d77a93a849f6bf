// Package main is the entry point for the resilience core server: it
// loads configuration, wires the resource registry and observability
// sinks, and serves the gRPC health surface until signaled to stop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/trace"

	"github.com/resilientedge/core/internal/config"
	"github.com/resilientedge/core/internal/core"
	"github.com/resilientedge/core/internal/grpcserver"
	"github.com/resilientedge/core/internal/health"
	"github.com/resilientedge/core/internal/observability"
	"github.com/resilientedge/core/internal/registry"
	"github.com/resilientedge/core/internal/sharedscope"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("CORE_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	emitters := []observability.EventEmitter{
		observability.NewAuditLogger(observability.LoggerConfig{Level: parseLogLevel(cfg.Log.Level)}),
	}

	promEmitter := observability.NewPrometheusEmitter()
	emitters = append(emitters, promEmitter)

	var tracingProvider *observability.TracingProvider
	if cfg.OTEL.Endpoint != "" {
		tracingProvider, err = observability.NewTracingProvider(context.Background(), observability.TracingConfig{
			ServiceName: cfg.OTEL.ServiceName,
			Endpoint:    cfg.OTEL.Endpoint,
			Insecure:    cfg.OTEL.Insecure,
		})
		if err != nil {
			return fmt.Errorf("start tracing provider: %w", err)
		}
	}

	var redisStore *registry.RedisStore
	if cfg.Redis.Enabled {
		redisStore, err = registry.NewRedisStore(registry.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisStore.Close()
		emitters = append(emitters, registry.NewRedisMirrorEmitter(redisStore, logger))
	}

	emitter := observability.NewMultiEmitter(emitters...)

	var scopeClient *sharedscope.Client
	if cfg.SharedScope.Enabled {
		scopeServer, err := sharedscope.NewServer(cfg.SharedScope.SocketPath)
		if err != nil {
			return fmt.Errorf("start shared-scope server: %w", err)
		}
		go func() {
			if err := scopeServer.Serve(); err != nil {
				logger.Error("shared-scope server stopped", slog.Any("error", err))
			}
		}()
		defer scopeServer.Close()

		scopeClient = sharedscope.NewClient(cfg.SharedScope.SocketPath)
		scopeClient.Start(context.Background())
		defer scopeClient.Stop()
	}

	coreHandle := core.New(core.Config{
		Registry:    registry.Config{MaxSize: cfg.Registry.MaxSize, MinTimeInLRU: cfg.Registry.MinTimeInLRU, Emitter: emitter},
		Emitter:     emitter,
		Tracer:      tracingProvider,
		ScopeClient: scopeClient,
	})
	defer coreHandle.Close()

	for name, rc := range cfg.Resources {
		rc.Name = name
		if _, err := coreHandle.RegisterResource(rc, core.ResourceOptions{}); err != nil {
			return fmt.Errorf("register resource %q: %w", name, err)
		}
	}

	aggregator := health.NewAggregator(health.Config{Emitter: emitter})
	for name := range cfg.Resources {
		aggregator.RegisterService(name, nil)
	}

	if scopeClient != nil {
		scopeClient.AddStateChangeHandler(func(name, state string) {
			var status health.Status
			switch state {
			case "closed":
				status = health.StatusHealthy
			case "half_open":
				status = health.StatusDegraded
			default:
				status = health.StatusUnhealthy
			}
			aggregator.UpdateHealth(name, status, "shared-scope broadcast: "+state)
		})
	}

	var tracer trace.Tracer
	if tracingProvider != nil {
		tracer = tracingProvider.Tracer()
	}

	healthService := grpcserver.NewHealthService(aggregator)
	grpcSrv, err := grpcserver.New(cfg.Server, logger, tracer, healthService, !isProd())
	if err != nil {
		return fmt.Errorf("build grpc server: %w", err)
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1),
		Handler: promEmitter.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := grpcSrv.Serve(); err != nil {
			logger.Error("grpc server stopped", slog.Any("error", err))
		}
	}()
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()
	go coreHandle.CompactRegistry(ctx, cfg.Registry.MinTimeInLRU)

	logger.Info("resilience core started", slog.String("host", cfg.Server.Host), slog.Int("port", cfg.Server.Port))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	grpcSrv.Stop(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	if tracingProvider != nil {
		_ = tracingProvider.Shutdown(shutdownCtx)
	}

	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isProd() bool {
	env := os.Getenv("ENVIRONMENT")
	return env == "production" || env == "prod"
}
