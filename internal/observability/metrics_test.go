package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPrometheusEmitterExposesSuccessCount(t *testing.T) {
	m := NewPrometheusEmitter()
	event := *NewEvent(EventSuccess, "db").WithScope(ScopeQuery, "sql-adapter").WithWaitTime(12 * time.Millisecond)
	m.Emit(event)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `resilientedge_events_total{resource="db",scope="query",type="success"} 1`) {
		t.Fatalf("expected events_total series in output, got:\n%s", body)
	}
	if !strings.Contains(body, "resilientedge_acquire_wait_time_ms") {
		t.Fatalf("expected wait time histogram in output, got:\n%s", body)
	}
}

func TestPrometheusEmitterTracksStateTransitions(t *testing.T) {
	m := NewPrometheusEmitter()
	event := *NewEvent(EventStateChange, "db").WithState("open")
	m.Emit(event)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `resilientedge_breaker_state{resource="db"} 1`) {
		t.Fatalf("expected breaker_state gauge at 1 (open), got:\n%s", body)
	}
	if !strings.Contains(body, `resilientedge_breaker_transitions_total{resource="db",state="open"} 1`) {
		t.Fatalf("expected a breaker transition counter, got:\n%s", body)
	}
}

func TestPrometheusEmitterCountsEvictions(t *testing.T) {
	m := NewPrometheusEmitter()
	m.Emit(*NewEvent(EventEviction, "stale-resource"))

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `resilientedge_registry_evictions_total{resource="stale-resource"} 1`) {
		t.Fatalf("expected an eviction counter, got:\n%s", rec.Body.String())
	}
}
