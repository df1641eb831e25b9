package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lychee-technology/assetio"
	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "ASSETIO"
)

// loadConfig reads config.yaml from configDir over the manager defaults.
// A missing config.yaml is not an error. Environment variables such as
// ASSETIO_PLUGIN_BACKEND override file values. Relative paths in the file
// are taken relative to configDir.
func loadConfig(configDir string) (*assetio.Config, error) {
	defaults := assetio.DefaultConfig()

	v := viper.New()
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("plugin.backend", defaults.Plugin.Backend)
	v.SetDefault("plugin.cache", false)
	v.SetDefault("memory.fixture_path", "")
	v.SetDefault("trait_schema_directory", "")
	v.SetDefault("dispatch.default_page_size", defaults.Dispatch.DefaultPageSize)
	v.SetDefault("postgres.host", defaults.Postgres.Host)
	v.SetDefault("s3.bucket", "")
	v.SetDefault("duckdb.path", defaults.DuckDB.Path)
	v.SetDefault("redis.addr", defaults.Redis.Addr)
	// One-shot commands have no scrape endpoint.
	v.SetDefault("metrics.enabled", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := assetio.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Memory.FixturePath = relativeTo(configDir, cfg.Memory.FixturePath)
	cfg.TraitSchemaDirectory = relativeTo(configDir, cfg.TraitSchemaDirectory)
	if cfg.Plugin.Backend == assetio.BackendDuckDB && cfg.DuckDB.Path != ":memory:" {
		cfg.DuckDB.Path = relativeTo(configDir, cfg.DuckDB.Path)
	}
	return cfg, nil
}

func relativeTo(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
