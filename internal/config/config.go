// Package config holds the runner configuration: defaults, optional YAML
// config file, with CLI flags layered on top by the command.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for a wdlrun invocation.
type Config struct {
	Backend        string `yaml:"backend"`         // "local" or "docker"
	MaxConcurrency int    `yaml:"max_concurrency"` // 0 means unlimited
	MaxAttempts    int    `yaml:"max_attempts"`    // executions per invocation, retries included
	CacheDir       string `yaml:"cache_dir"`       // "" disables the call cache
	OutputDir      string `yaml:"output_dir"`
	FailFast       bool   `yaml:"fail_fast"`
	MonitorAddr    string `yaml:"monitor_addr"` // "" disables the monitor endpoint
	LogLevel       string `yaml:"log_level"`    // debug, info, warn, error
	LogFormat      string `yaml:"log_format"`   // text, json
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Backend:     "local",
		MaxAttempts: 3,
		OutputDir:   "wdlrun-out",
		FailFast:    true,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// CachePath returns the SQLite database path inside the cache directory, or
// "" when caching is disabled.
func (c Config) CachePath() string {
	if c.CacheDir == "" {
		return ""
	}
	return filepath.Join(c.CacheDir, "calls.db")
}
