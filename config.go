package assetio

import (
	"time"
)

// Plugin backend names accepted in PluginConfig.Backend
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
	BackendDuckDB   = "duckdb"
)

// Config consolidates settings for the Manager façade and its plugins
type Config struct {
	Logging              LoggingConfig  `json:"logging" mapstructure:"logging"`
	Dispatch             DispatchConfig `json:"dispatch" mapstructure:"dispatch"`
	Metrics              MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Tracing              TracingConfig  `json:"tracing" mapstructure:"tracing"`
	Plugin               PluginConfig   `json:"plugin" mapstructure:"plugin"`
	Memory               MemoryConfig   `json:"memory" mapstructure:"memory"`
	Postgres             PostgresConfig `json:"postgres" mapstructure:"postgres"`
	S3                   S3Config       `json:"s3" mapstructure:"s3"`
	DuckDB               DuckDBConfig   `json:"duckdb" mapstructure:"duckdb"`
	Redis                RedisConfig    `json:"redis" mapstructure:"redis"`
	TraitSchemaDirectory string         `json:"traitSchemaDirectory" mapstructure:"trait_schema_directory"`

	// TraitSchemas overrides the file-based registry built from
	// TraitSchemaDirectory when set.
	TraitSchemas TraitSchemaRegistry `json:"-" mapstructure:"-"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"` // json or console
}

// DispatchConfig contains batch dispatch settings
type DispatchConfig struct {
	// MaxBatchSize rejects larger batches before dispatch. Zero means unlimited.
	MaxBatchSize    int `json:"maxBatchSize" mapstructure:"max_batch_size"`
	DefaultPageSize int `json:"defaultPageSize" mapstructure:"default_page_size"`
}

// MetricsConfig contains metrics collection settings
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

// TracingConfig contains OpenTelemetry export settings. An empty endpoint
// leaves the global no-op tracer in place.
type TracingConfig struct {
	Endpoint    string `json:"endpoint" mapstructure:"endpoint"`
	ServiceName string `json:"serviceName" mapstructure:"service_name"`
}

// PluginConfig selects the manager plugin backing the façade
type PluginConfig struct {
	Backend string `json:"backend" mapstructure:"backend"`
	// Cache wraps the backend in the Redis resolve cache.
	Cache    bool           `json:"cache" mapstructure:"cache"`
	Breaker  BreakerConfig  `json:"breaker" mapstructure:"breaker"`
	Settings map[string]any `json:"settings,omitempty" mapstructure:"settings"`
}

// BreakerConfig controls the circuit breaker placed in front of the plugin.
// Threshold backend failures within Window open it for OpenDuration.
type BreakerConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	Threshold    int           `json:"threshold" mapstructure:"threshold"`
	Window       time.Duration `json:"window" mapstructure:"window"`
	OpenDuration time.Duration `json:"openDuration" mapstructure:"open_duration"`
}

// MemoryConfig contains in-process plugin settings
type MemoryConfig struct {
	FixturePath   string   `json:"fixturePath" mapstructure:"fixture_path"`
	ManagedTraits []string `json:"managedTraits" mapstructure:"managed_traits"`
}

// PostgresConfig contains database connection settings
type PostgresConfig struct {
	Host            string             `json:"host" mapstructure:"host"`
	Port            int                `json:"port" mapstructure:"port"`
	Database        string             `json:"database" mapstructure:"database"`
	Username        string             `json:"username" mapstructure:"username"`
	Password        string             `json:"password" mapstructure:"password"`
	SSLMode         string             `json:"sslMode" mapstructure:"ssl_mode"`
	MaxConnections  int                `json:"maxConnections" mapstructure:"max_connections"`
	MinConnections  int                `json:"minConnections" mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration      `json:"connMaxLifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration      `json:"connMaxIdleTime" mapstructure:"conn_max_idle_time"`
	Timeout         time.Duration      `json:"timeout" mapstructure:"timeout"`
	TableNames      PostgresTableNames `json:"tableNames" mapstructure:"table_names"`

	// UseIAMAuth replaces Password with an Aurora DSQL auth token.
	UseIAMAuth bool   `json:"useIAMAuth" mapstructure:"use_iam_auth"`
	Region     string `json:"region" mapstructure:"region"`
}

// PostgresTableNames names the tables used by the Postgres plugin
type PostgresTableNames struct {
	Entities      string `json:"entities" mapstructure:"entities"`
	Relationships string `json:"relationships" mapstructure:"relationships"`
	Defaults      string `json:"defaults" mapstructure:"defaults"`
}

// S3Config contains object store settings
type S3Config struct {
	Bucket          string `json:"bucket" mapstructure:"bucket"`
	Prefix          string `json:"prefix" mapstructure:"prefix"`
	Region          string `json:"region" mapstructure:"region"`
	Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `json:"accessKeyId" mapstructure:"access_key_id"`
	SecretAccessKey string `json:"secretAccessKey" mapstructure:"secret_access_key"`
	UsePathStyle    bool   `json:"usePathStyle" mapstructure:"use_path_style"`
}

// DuckDBConfig contains catalogue database settings
type DuckDBConfig struct {
	Path          string `json:"path" mapstructure:"path"`
	MemoryLimitMB int    `json:"memoryLimitMB" mapstructure:"memory_limit_mb"`
	Threads       int    `json:"threads" mapstructure:"threads"`
}

// RedisConfig contains resolve cache settings
type RedisConfig struct {
	Addr     string        `json:"addr" mapstructure:"addr"`
	Password string        `json:"password" mapstructure:"password"`
	DB       int           `json:"db" mapstructure:"db"`
	Prefix   string        `json:"prefix" mapstructure:"prefix"`
	TTL      time.Duration `json:"ttl" mapstructure:"ttl"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Dispatch: DispatchConfig{
			MaxBatchSize:    10000,
			DefaultPageSize: 50,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "assetio",
		},
		Tracing: TracingConfig{
			ServiceName: "assetio",
		},
		Plugin: PluginConfig{
			Backend: BackendMemory,
			Breaker: BreakerConfig{
				Threshold:    5,
				Window:       30 * time.Second,
				OpenDuration: 15 * time.Second,
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "assetio",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxConnections:  25,
			MinConnections:  5,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
			TableNames: PostgresTableNames{
				Entities:      "assetio_entities",
				Relationships: "assetio_relationships",
				Defaults:      "assetio_defaults",
			},
		},
		S3: S3Config{
			Prefix: "entities",
			Region: "us-east-1",
		},
		DuckDB: DuckDBConfig{
			Path:          ":memory:",
			MemoryLimitMB: 256,
			Threads:       2,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "assetio:resolve:",
			TTL:    5 * time.Minute,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Dispatch.MaxBatchSize < 0 {
		return &ConfigError{Field: "dispatch.maxBatchSize", Message: "must not be negative"}
	}

	if c.Dispatch.DefaultPageSize <= 0 {
		return &ConfigError{Field: "dispatch.defaultPageSize", Message: "must be greater than 0"}
	}

	switch c.Plugin.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.MaxConnections <= 0 {
			return &ConfigError{Field: "postgres.maxConnections", Message: "must be greater than 0"}
		}
		if c.Postgres.UseIAMAuth && c.Postgres.Region == "" {
			return &ConfigError{Field: "postgres.region", Message: "is required when useIAMAuth is set"}
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return &ConfigError{Field: "s3.bucket", Message: "is required"}
		}
	case BackendDuckDB:
		if c.DuckDB.Path == "" {
			return &ConfigError{Field: "duckdb.path", Message: "is required"}
		}
	default:
		return &ConfigError{Field: "plugin.backend", Message: "unknown backend " + c.Plugin.Backend}
	}

	if c.Plugin.Breaker.Enabled {
		if c.Plugin.Breaker.Threshold <= 0 {
			return &ConfigError{Field: "plugin.breaker.threshold", Message: "must be greater than 0"}
		}
		if c.Plugin.Breaker.Window <= 0 || c.Plugin.Breaker.OpenDuration <= 0 {
			return &ConfigError{Field: "plugin.breaker", Message: "window and openDuration must be positive"}
		}
	}

	if c.Plugin.Cache && c.Redis.Addr == "" {
		return &ConfigError{Field: "redis.addr", Message: "is required when plugin.cache is set"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
