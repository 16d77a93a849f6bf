package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML config file at path, validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with the process-level defaults; Resources
// starts empty and is populated by the loaded YAML document.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            50060,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Redis: RedisConfig{
			URL:    "redis://localhost:6379",
			Prefix: "resilientedge:",
		},
		OTEL: OTELConfig{
			Endpoint:    "http://localhost:4317",
			ServiceName: "resilientedge-core",
		},
		Registry: RegistryConfig{
			MaxSize:      500,
			MinTimeInLRU: 300 * time.Second,
		},
		Resources: make(map[string]ResourceConfig),
	}
}

// UnmarshalYAML presets the bulkhead, circuitBreaker, and permissions
// defaults before decoding a resource entry.
func (rc *ResourceConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain ResourceConfig
	p := plain{Bulkhead: true, CircuitBreaker: true, Permissions: 0o660}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*rc = ResourceConfig(p)
	return nil
}

// applyEnvOverrides applies the `env:` tag convention used across this
// config's fields for the handful of settings operators commonly override
// without editing the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CORE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTEL.Endpoint = v
	}
	if v := os.Getenv("SYNC_SOCKET_PATH"); v != "" {
		cfg.SharedScope.SocketPath = v
	}
}
