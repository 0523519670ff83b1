// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "dmpath.yaml"

// Config is the root configuration structure.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Engine  EngineConfig  `yaml:"engine"`
	Feeds   FeedsConfig   `yaml:"feeds"`
	Store   StoreConfig   `yaml:"store"`
	HTTP    HTTPConfig    `yaml:"http"`
	Modules ModulesConfig `yaml:"modules"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// EngineConfig configures the module update loop and projections.
type EngineConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	MaxDepth     int           `yaml:"max_depth"` // projection depth for tree views
}

// FeedsConfig locates feed definitions and the files they read.
type FeedsConfig struct {
	File string `yaml:"file"` // HCL feed definitions; empty disables feeds
	Dir  string `yaml:"dir"`  // base directory for feed sources
}

// StoreConfig configures the binding store.
type StoreConfig struct {
	DSN string `yaml:"dsn"`
}

// HTTPConfig configures the read API.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	Metrics      bool          `yaml:"metrics"` // expose /metrics
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ModulesConfig toggles built-in modules.
type ModulesConfig struct {
	Simulator bool `yaml:"simulator"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references and applying
// DMPATH_* overrides and defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(&cfg)
}

// LoadWithFallback loads path when it exists and otherwise builds the
// configuration from defaults and environment variables.
//
// Environment variables:
//
//	DMPATH_LOG_LEVEL      - Log level: debug, info, warn, error (default: info)
//	DMPATH_LOG_FORMAT     - Log format: json or console (default: console)
//	DMPATH_TICK_INTERVAL  - Module update interval (default: 50ms)
//	DMPATH_MAX_DEPTH      - Tree projection depth (default: 4)
//	DMPATH_FEEDS_FILE     - HCL feed definitions
//	DMPATH_FEEDS_DIR      - Base directory for feed sources (default: .)
//	DMPATH_STORE_DSN      - Binding store path (default: dmpath.db)
//	DMPATH_HTTP_ADDR      - Listen address (default: 127.0.0.1:8089)
//	DMPATH_HTTP_METRICS   - Expose /metrics (default: true)
//	DMPATH_SIMULATOR      - Enable the racing simulator module
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
	}
	return finish(&Config{HTTP: HTTPConfig{Metrics: true}})
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	setDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies DMPATH_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DMPATH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DMPATH_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DMPATH_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.TickInterval = d
		}
	}
	if v := os.Getenv("DMPATH_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxDepth = n
		}
	}
	if v := os.Getenv("DMPATH_FEEDS_FILE"); v != "" {
		cfg.Feeds.File = v
	}
	if v := os.Getenv("DMPATH_FEEDS_DIR"); v != "" {
		cfg.Feeds.Dir = v
	}
	if v := os.Getenv("DMPATH_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("DMPATH_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("DMPATH_HTTP_METRICS"); v != "" {
		cfg.HTTP.Metrics = parseBool(v)
	}
	if v := os.Getenv("DMPATH_SIMULATOR"); v != "" {
		cfg.Modules.Simulator = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Engine.TickInterval == 0 {
		cfg.Engine.TickInterval = 50 * time.Millisecond
	}
	if cfg.Engine.MaxDepth == 0 {
		cfg.Engine.MaxDepth = 4
	}
	if cfg.Feeds.Dir == "" {
		cfg.Feeds.Dir = "."
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = "dmpath.db"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8089"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10 * time.Second
	}
}

func validate(cfg *Config) error {
	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}
	if cfg.Engine.TickInterval < 0 {
		return fmt.Errorf("engine.tick_interval must be positive, got %s", cfg.Engine.TickInterval)
	}
	if cfg.Engine.MaxDepth < 0 {
		return fmt.Errorf("engine.max_depth must be positive, got %d", cfg.Engine.MaxDepth)
	}
	return nil
}
