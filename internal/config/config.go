// Package config loads the bridge's YAML configuration, including the
// persisted device exclusion list consumed by the BLE manager.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	DefinitionsDir   string   `yaml:"definitions_dir"`
	TickIntervalMS   int      `yaml:"tick_interval_ms"`
	RescanAfterTicks int      `yaml:"rescan_after_ticks"`
	ScanTimeoutMS    int      `yaml:"scan_timeout_ms"`
	ExcludedDevices  []string `yaml:"excluded_devices"`
	LogLevel         string   `yaml:"log_level"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "flitebridge")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DefinitionsDir:   filepath.Join(DefaultConfigDir(), "definitions"),
		TickIntervalMS:   50,
		RescanAfterTicks: 100,
		ScanTimeoutMS:    5000,
		LogLevel:         "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults. Tilde (~) in definitions_dir is expanded to the user's home
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.DefinitionsDir = expandTilde(cfg.DefinitionsDir)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.DefinitionsDir == "" {
		return fmt.Errorf("definitions_dir must not be empty")
	}

	if c.TickIntervalMS <= 0 {
		return fmt.Errorf("tick_interval_ms must be > 0")
	}

	if c.RescanAfterTicks <= 0 {
		return fmt.Errorf("rescan_after_ticks must be > 0")
	}

	if c.ScanTimeoutMS <= 0 {
		return fmt.Errorf("scan_timeout_ms must be > 0")
	}

	for _, addr := range c.ExcludedDevices {
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("excluded_devices must not contain empty addresses")
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel converts a config log level string to a slog.Level.
// Unknown values default to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WriteDefault writes a commented default config to the default path if no
// config exists yet. It returns the written path, or "" if a config was
// already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(DefaultConfigDir(), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	cfg := Default()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling default config: %w", err)
	}

	content := "# flitebridge configuration\n" + string(data)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
