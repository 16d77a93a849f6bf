package config

import "testing"

func TestResourceConfigValidateRequiresTicketsXorQuota(t *testing.T) {
	cases := []struct {
		name    string
		rc      ResourceConfig
		wantErr bool
	}{
		{"neither set", ResourceConfig{Bulkhead: true}, true},
		{"both set", ResourceConfig{Bulkhead: true, BulkheadConfig: BulkheadResourceConfig{Tickets: 4, Quota: 0.5}}, true},
		{"tickets only", ResourceConfig{Bulkhead: true, BulkheadConfig: BulkheadResourceConfig{Tickets: 4}}, false},
		{"quota only", ResourceConfig{Bulkhead: true, BulkheadConfig: BulkheadResourceConfig{Quota: 0.5}}, false},
		{"bulkhead disabled", ResourceConfig{Bulkhead: false}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rc.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestResourceConfigValidateRequiresClassicalFields(t *testing.T) {
	rc := ResourceConfig{CircuitBreaker: true}
	if err := rc.Validate(); err == nil {
		t.Fatalf("expected error for missing classical breaker fields")
	}

	rc.Classical = ClassicalConfig{ErrorThreshold: 3, ErrorTimeout: 5, SuccessThreshold: 1}
	if err := rc.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResourceConfigValidateSkipsClassicalWhenAdaptive(t *testing.T) {
	rc := ResourceConfig{CircuitBreaker: true, Adaptive: AdaptiveConfig{AdaptiveCircuitBreaker: true}}
	if err := rc.Validate(); err != nil {
		t.Fatalf("unexpected error when adaptive breaker is configured: %v", err)
	}
}

func TestLogConfigValidateRejectsUnknownLevel(t *testing.T) {
	l := LogConfig{Level: "verbose"}
	if err := l.Validate(); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestDefaultProducesValidConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate cleanly: %v", err)
	}
}
