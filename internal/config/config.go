// Package config loads the host's bootstrap configuration and manages the
// small per-plugin JSON sidecar files described in spec §6.
package config

import "time"

// Config is the host's own bootstrap configuration (distinct from any
// individual plugin's JSON configuration, which lives under
// plugin-config-data/<id>.json per spec §6).
type Config struct {
	ConfigRoot  string        `yaml:"config_root"`  // base of plugin-config-data/
	RuntimeMode string        `yaml:"runtime_mode"` // "compiler" (default) or "interpreter"
	MaxMemoryPages int        `yaml:"max_memory_pages"`
	HTTPBridgeTimeout time.Duration `yaml:"http_bridge_timeout"` // default 10s watchdog
	Logging     LoggingConfig `yaml:"logging"`
}

// LoggingConfig mirrors logging.Config in YAML-tagged form.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Defaults fills zero-valued fields with the host's documented defaults.
func (c *Config) Defaults() {
	if c.ConfigRoot == "" {
		c.ConfigRoot = "./data"
	}
	if c.RuntimeMode == "" {
		c.RuntimeMode = "compiler"
	}
	if c.MaxMemoryPages <= 0 {
		c.MaxMemoryPages = 256 // 16MB
	}
	if c.HTTPBridgeTimeout <= 0 {
		c.HTTPBridgeTimeout = 10 * time.Second
	}
}
