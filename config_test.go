package assetio

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Plugin.Backend != BackendMemory {
		t.Errorf("Expected default backend %s, got %s", BackendMemory, config.Plugin.Backend)
	}
	if config.Dispatch.DefaultPageSize != 50 {
		t.Errorf("Expected default page size 50, got %d", config.Dispatch.DefaultPageSize)
	}
	if config.Dispatch.MaxBatchSize != 10000 {
		t.Errorf("Expected max batch size 10000, got %d", config.Dispatch.MaxBatchSize)
	}
	if !config.Metrics.Enabled {
		t.Error("Expected metrics to be enabled by default")
	}
	if config.Postgres.TableNames.Entities != "assetio_entities" {
		t.Errorf("Expected entities table assetio_entities, got %s", config.Postgres.TableNames.Entities)
	}
	if config.Redis.TTL != 5*time.Minute {
		t.Errorf("Expected redis TTL 5m, got %s", config.Redis.TTL)
	}
	if config.Plugin.Breaker.Enabled {
		t.Error("Expected circuit breaker to be disabled by default")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestConfigValidationDetailed(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorField  string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:        "negative max batch size",
			mutate:      func(c *Config) { c.Dispatch.MaxBatchSize = -1 },
			expectError: true,
			errorField:  "dispatch.maxBatchSize",
		},
		{
			name:   "unlimited batch size",
			mutate: func(c *Config) { c.Dispatch.MaxBatchSize = 0 },
		},
		{
			name:        "invalid page size",
			mutate:      func(c *Config) { c.Dispatch.DefaultPageSize = 0 },
			expectError: true,
			errorField:  "dispatch.defaultPageSize",
		},
		{
			name:        "unknown backend",
			mutate:      func(c *Config) { c.Plugin.Backend = "ftp" },
			expectError: true,
			errorField:  "plugin.backend",
		},
		{
			name: "postgres without connections",
			mutate: func(c *Config) {
				c.Plugin.Backend = BackendPostgres
				c.Postgres.MaxConnections = 0
			},
			expectError: true,
			errorField:  "postgres.maxConnections",
		},
		{
			name: "postgres IAM auth without region",
			mutate: func(c *Config) {
				c.Plugin.Backend = BackendPostgres
				c.Postgres.UseIAMAuth = true
			},
			expectError: true,
			errorField:  "postgres.region",
		},
		{
			name:        "s3 without bucket",
			mutate:      func(c *Config) { c.Plugin.Backend = BackendS3 },
			expectError: true,
			errorField:  "s3.bucket",
		},
		{
			name: "s3 with bucket",
			mutate: func(c *Config) {
				c.Plugin.Backend = BackendS3
				c.S3.Bucket = "assets"
			},
		},
		{
			name: "duckdb without path",
			mutate: func(c *Config) {
				c.Plugin.Backend = BackendDuckDB
				c.DuckDB.Path = ""
			},
			expectError: true,
			errorField:  "duckdb.path",
		},
		{
			name: "breaker without threshold",
			mutate: func(c *Config) {
				c.Plugin.Breaker.Enabled = true
				c.Plugin.Breaker.Threshold = 0
			},
			expectError: true,
			errorField:  "plugin.breaker.threshold",
		},
		{
			name: "breaker without window",
			mutate: func(c *Config) {
				c.Plugin.Breaker.Enabled = true
				c.Plugin.Breaker.Window = 0
			},
			expectError: true,
			errorField:  "plugin.breaker",
		},
		{
			name: "cache without redis address",
			mutate: func(c *Config) {
				c.Plugin.Cache = true
				c.Redis.Addr = ""
			},
			expectError: true,
			errorField:  "redis.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Error("Expected validation error but got none")
				} else if configErr, ok := err.(*ConfigError); ok {
					if configErr.Field != tt.errorField {
						t.Errorf("Expected error field %s, got %s", tt.errorField, configErr.Field)
					}
				} else {
					t.Errorf("Expected ConfigError, got %T", err)
				}
			} else if err != nil {
				t.Errorf("Expected no validation error but got: %v", err)
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{
		Field:   "test.field",
		Message: "test message",
	}

	expected := "config validation error for field 'test.field': test message"
	if err.Error() != expected {
		t.Errorf("Expected error message %s, got %s", expected, err.Error())
	}
}
