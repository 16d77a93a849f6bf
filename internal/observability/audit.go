package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// AuditLogger logs both resilience and audit events as structured JSON,
// implementing EventEmitter so it can be composed into a MultiEmitter
// alongside tracing and metrics sinks.
type AuditLogger struct {
	logger *slog.Logger
}

// LoggerConfig holds AuditLogger construction options.
type LoggerConfig struct {
	Output io.Writer // defaults to os.Stdout
	Level  slog.Level
}

// NewAuditLogger creates an AuditLogger writing structured JSON.
func NewAuditLogger(cfg LoggerConfig) *AuditLogger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: cfg.Level})
	return &AuditLogger{logger: slog.New(handler)}
}

// NewAuditLoggerWithHandler creates an AuditLogger from a caller-supplied
// slog.Handler.
func NewAuditLoggerWithHandler(handler slog.Handler) *AuditLogger {
	return &AuditLogger{logger: slog.New(handler)}
}

// Emit logs a resilience event.
func (l *AuditLogger) Emit(event ResilienceEvent) {
	l.logger.Info("resilience_event",
		slog.String("event_id", event.ID),
		slog.String("type", string(event.Type)),
		slog.String("resource_name", event.ResourceName),
		slog.String("scope", string(event.Scope)),
		slog.Time("timestamp", event.Timestamp),
		slog.String("correlation_id", event.CorrelationID),
		slog.String("trace_id", event.TraceID),
		slog.String("span_id", event.SpanID),
		slog.String("state", event.State),
		slog.Any("metadata", event.Metadata),
	)
}

// EmitAudit logs an audit event.
func (l *AuditLogger) EmitAudit(event AuditEvent) {
	l.logger.Info("audit_event",
		slog.String("event_id", event.ID),
		slog.String("action", event.Action),
		slog.String("resource", event.Resource),
		slog.String("outcome", event.Outcome),
		slog.Time("timestamp", event.Timestamp),
		slog.String("correlation_id", event.CorrelationID),
		slog.Any("metadata", event.Metadata),
	)
}

// EmitWithContext logs a resilience event using the slog context-aware
// path, propagating any trace correlation a log handler extracts from ctx.
func (l *AuditLogger) EmitWithContext(ctx context.Context, event ResilienceEvent) {
	l.logger.InfoContext(ctx, "resilience_event",
		slog.String("event_id", event.ID),
		slog.String("type", string(event.Type)),
		slog.String("resource_name", event.ResourceName),
		slog.String("correlation_id", event.CorrelationID),
		slog.Any("metadata", event.Metadata),
	)
}

// Error logs an error with structured output.
func (l *AuditLogger) Error(msg string, err error, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.String("error", err.Error()))
	for _, a := range attrs {
		args = append(args, a)
	}
	l.logger.Error(msg, args...)
}

// Warn logs a warning with structured output.
func (l *AuditLogger) Warn(msg string, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	l.logger.Warn(msg, args...)
}

// Info logs an info message with structured output.
func (l *AuditLogger) Info(msg string, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	l.logger.Info(msg, args...)
}

// HasRequiredFields reports whether an AuditEvent carries the minimum
// fields a sink expects (id, action, timestamp, correlation id).
func HasRequiredFields(event AuditEvent) bool {
	return event.ID != "" && event.Action != "" && !event.Timestamp.IsZero() && event.CorrelationID != ""
}
