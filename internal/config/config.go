// Package config loads and validates the resilience core's configuration:
// server/log/observability settings plus, per resource, the bulkhead,
// classical breaker, adaptive breaker, dual-breaker selector, and
// shared-scope options.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the complete process configuration.
type Config struct {
	Server      ServerConfig          `yaml:"server"`
	Log         LogConfig             `yaml:"log"`
	Redis       RedisConfig           `yaml:"redis"`
	OTEL        OTELConfig            `yaml:"otel"`
	Registry    RegistryConfig        `yaml:"registry"`
	SharedScope SharedScopeConfig     `yaml:"sharedScope"`
	Resources   map[string]ResourceConfig `yaml:"resources"`
}

// ServerConfig defines process-level server settings.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"CORE_HOST" default:"0.0.0.0"`
	Port            int           `yaml:"port" env:"CORE_PORT" default:"50060"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"30s"`
}

// LogConfig defines structured logging settings.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" default:"json"`
}

// RedisConfig defines the optional state-mirroring Redis connection.
type RedisConfig struct {
	Enabled       bool   `yaml:"enabled" default:"false"`
	URL           string `yaml:"url" env:"REDIS_URL" default:"redis://localhost:6379"`
	DB            int    `yaml:"db" default:"0"`
	Password      string `yaml:"password" env:"REDIS_PASSWORD"`
	Prefix        string `yaml:"prefix" default:"resilientedge:"`
	TLSEnabled    bool   `yaml:"tlsEnabled" env:"REDIS_TLS_ENABLED" default:"false"`
	TLSSkipVerify bool   `yaml:"tlsSkipVerify" env:"REDIS_TLS_SKIP_VERIFY" default:"false"`
}

// OTELConfig defines OpenTelemetry tracing export settings.
type OTELConfig struct {
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"http://localhost:4317"`
	ServiceName string `yaml:"serviceName" default:"resilientedge-core"`
	Insecure    bool   `yaml:"insecure" default:"false"`
}

// RegistryConfig controls the LRU registry's bounds.
type RegistryConfig struct {
	MaxSize      int           `yaml:"maxSize" default:"500"`
	MinTimeInLRU time.Duration `yaml:"minTimeInLRU" default:"300s"`
}

// SharedScopeConfig controls the optional unix-domain-socket state
// coordinator client.
type SharedScopeConfig struct {
	Enabled    bool   `yaml:"enabled" default:"false"`
	SocketPath string `yaml:"socketPath" env:"SYNC_SOCKET_PATH" default:"/var/run/resilientedge/sync.sock"`
}

// ResourceConfig is the complete per-resource configuration surface.
type ResourceConfig struct {
	Name           string    `yaml:"name"`
	Bulkhead       bool      `yaml:"bulkhead" default:"true"`
	CircuitBreaker bool      `yaml:"circuitBreaker" default:"true"`
	Permissions    uint32    `yaml:"permissions" default:"0660"`
	Exceptions     []string  `yaml:"exceptions"`

	BulkheadConfig BulkheadResourceConfig `yaml:"bulkheadConfig"`
	Classical      ClassicalConfig        `yaml:"classical"`
	Adaptive       AdaptiveConfig         `yaml:"adaptive"`
	Dual           DualConfig             `yaml:"dual"`
	SyncScope      string                 `yaml:"syncScope"` // "" or "shared"
}

// BulkheadResourceConfig holds a resource's bulkhead tunables.
type BulkheadResourceConfig struct {
	Tickets int           `yaml:"tickets"`
	Quota   float64       `yaml:"quota"`
	Timeout time.Duration `yaml:"timeout"`
}

// ClassicalConfig holds a resource's classical breaker tunables.
type ClassicalConfig struct {
	ErrorThreshold          int           `yaml:"errorThreshold"`
	ErrorTimeout            time.Duration `yaml:"errorTimeout"`
	SuccessThreshold        int           `yaml:"successThreshold"`
	ErrorThresholdTimeout   time.Duration `yaml:"errorThresholdTimeout"`
	HalfOpenResourceTimeout time.Duration `yaml:"halfOpenResourceTimeout"`
}

// AdaptiveConfig holds a resource's adaptive breaker tunables. Enabled by
// either AdaptiveCircuitBreaker or DualCircuitBreaker.
type AdaptiveConfig struct {
	AdaptiveCircuitBreaker bool          `yaml:"adaptiveCircuitBreaker"`
	DualCircuitBreaker     bool          `yaml:"dualCircuitBreaker"`
	Defensiveness          float64       `yaml:"defensiveness" default:"1.0"`
	WindowSize             time.Duration `yaml:"windowSize" default:"10s"`
	SlidingInterval        time.Duration `yaml:"slidingInterval" default:"1s"`
	InitialErrorRate       float64       `yaml:"initialErrorRate"`
	CapValue               float64       `yaml:"capValue" default:"0.10"`
	PingInterval           time.Duration `yaml:"pingInterval" default:"30s"`
	PingTimeout            time.Duration `yaml:"pingTimeout" default:"5s"`
	PingWeight             float64       `yaml:"pingWeight" default:"1.0"`
}

// DualConfig holds the dual breaker's selector tunable. SelectorName names
// a registered selector function (e.g. "always_classical",
// "always_adaptive"); a caller-supplied Selector isn't expressible in
// yaml and is wired programmatically instead.
type DualConfig struct {
	SelectorName string `yaml:"selector" default:"always_classical"`
}

// Enabled reports whether adaptive behavior (adaptive-only or dual) is
// configured at all.
func (a AdaptiveConfig) Enabled() bool {
	return a.AdaptiveCircuitBreaker || a.DualCircuitBreaker
}

// Validate validates the top-level configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if c.Redis.Enabled {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis config: %w", err)
		}
	}
	for name, rc := range c.Resources {
		if err := rc.Validate(); err != nil {
			return fmt.Errorf("resource %q config: %w", name, err)
		}
	}
	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// Validate validates logging configuration.
func (l *LogConfig) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(l.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", l.Level)
	}
	return nil
}

// Validate validates Redis configuration.
func (r *RedisConfig) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("redis URL is required when redis is enabled")
	}
	if isProd() && r.TLSEnabled && r.TLSSkipVerify {
		return fmt.Errorf("TLS verification cannot be skipped in production")
	}
	return nil
}

// Validate validates a resource's configuration, enforcing the
// tickets-XOR-quota invariant and the required classical-breaker fields.
func (rc *ResourceConfig) Validate() error {
	if rc.Bulkhead {
		hasTickets := rc.BulkheadConfig.Tickets > 0
		hasQuota := rc.BulkheadConfig.Quota > 0
		if hasTickets == hasQuota {
			return fmt.Errorf("bulkhead requires exactly one of tickets or quota")
		}
	}
	if rc.CircuitBreaker && !rc.Adaptive.Enabled() {
		if rc.Classical.ErrorThreshold <= 0 {
			return fmt.Errorf("classical breaker requires error_threshold")
		}
		if rc.Classical.ErrorTimeout <= 0 {
			return fmt.Errorf("classical breaker requires error_timeout")
		}
		if rc.Classical.SuccessThreshold <= 0 {
			return fmt.Errorf("classical breaker requires success_threshold")
		}
	}
	if rc.SyncScope != "" && rc.SyncScope != "shared" {
		return fmt.Errorf("sync_scope must be empty or %q", "shared")
	}
	return nil
}

// isProd reports whether the process is running in a production
// environment, gating stricter TLS validation.
func isProd() bool {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	return env == "production" || env == "prod"
}
