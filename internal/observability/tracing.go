package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingProvider manages the OpenTelemetry tracer used to export spans
// around protected-resource acquisitions.
type TracingProvider struct {
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	resourceAttrs  []attribute.KeyValue
}

// TracingConfig configures the OTLP gRPC exporter.
type TracingConfig struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
}

// NewTracingProvider dials the configured OTLP collector and installs the
// resulting tracer provider as the global one.
func NewTracingProvider(ctx context.Context, cfg TracingConfig) (*TracingProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	resourceAttrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, resourceAttrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("merge resource attributes: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracingProvider{
		tracerProvider: tp,
		tracer:         tp.Tracer(cfg.ServiceName),
		resourceAttrs:  resourceAttrs,
	}, nil
}

// Shutdown flushes pending spans and releases the exporter connection.
func (p *TracingProvider) Shutdown(ctx context.Context) error {
	if p == nil || p.tracerProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tracerProvider.Shutdown(ctx)
}

// Tracer returns the provider's tracer.
func (p *TracingProvider) Tracer() trace.Tracer {
	if p == nil {
		return nil
	}
	return p.tracer
}

// StartAcquireSpan starts a span around one resource.Acquire call,
// tagged with the resilience scope and adapter identifier carried in
// every ResilienceEvent.
func (p *TracingProvider) StartAcquireSpan(ctx context.Context, resourceName string, scope Scope, adapterTag string) (context.Context, trace.Span) {
	if p == nil || p.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return p.tracer.Start(ctx, "protected_resource.acquire", trace.WithAttributes(
		append([]attribute.KeyValue{
			attribute.String("resilience.resource", resourceName),
			attribute.String("resilience.scope", string(scope)),
			attribute.String("resilience.adapter", adapterTag),
		}, p.resourceAttrs...)...,
	))
}

