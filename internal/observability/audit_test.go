package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestStructuredJSONLogging(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("audit log output is valid JSON", prop.ForAll(
		func(action, resource string) bool {
			var buf bytes.Buffer
			logger := NewAuditLogger(LoggerConfig{Output: &buf, Level: slog.LevelInfo})

			logger.EmitAudit(AuditEvent{
				ID: "id", Action: action, Resource: resource, Outcome: "success",
				Timestamp: time.Now(), CorrelationID: "corr",
			})

			output := buf.String()
			if output == "" {
				return false
			}
			var parsed map[string]any
			return json.Unmarshal([]byte(output), &parsed) == nil
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	props.TestingRun(t)
}

func TestAuditLoggerEmitResilienceEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAuditLogger(LoggerConfig{Output: &buf, Level: slog.LevelInfo})

	event := *NewEvent(EventStateChange, "db").WithState("open").WithMetadata("previous_state", "closed")
	logger.Emit(event)

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed["resource_name"] != "db" {
		t.Fatalf("expected resource_name=db, got %v", parsed["resource_name"])
	}
}

func TestAuditLoggerError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAuditLogger(LoggerConfig{Output: &buf, Level: slog.LevelError})
	logger.Error("boom", errBoom)

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed["level"] != "ERROR" {
		t.Fatalf("expected ERROR level, got %v", parsed["level"])
	}
}

func TestHasRequiredFields(t *testing.T) {
	complete := AuditEvent{ID: "id", Action: "act", Timestamp: time.Now(), CorrelationID: "corr"}
	if !HasRequiredFields(complete) {
		t.Fatalf("expected complete event to have required fields")
	}

	incomplete := AuditEvent{Action: "act"}
	if HasRequiredFields(incomplete) {
		t.Fatalf("expected incomplete event to be missing required fields")
	}
}

var errBoom = boomErr{}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }
