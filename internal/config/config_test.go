package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DefinitionsDir == "" {
		t.Error("DefinitionsDir should not be empty")
	}
	if cfg.TickIntervalMS != 50 {
		t.Errorf("TickIntervalMS = %d, want 50", cfg.TickIntervalMS)
	}
	if cfg.RescanAfterTicks != 100 {
		t.Errorf("RescanAfterTicks = %d, want 100", cfg.RescanAfterTicks)
	}
	if cfg.ScanTimeoutMS != 5000 {
		t.Errorf("ScanTimeoutMS = %d, want 5000", cfg.ScanTimeoutMS)
	}
	if len(cfg.ExcludedDevices) != 0 {
		t.Errorf("ExcludedDevices = %v, want empty", cfg.ExcludedDevices)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
definitions_dir: /etc/flitebridge/definitions
tick_interval_ms: 25
rescan_after_ticks: 200
scan_timeout_ms: 3000
excluded_devices:
  - "AA:BB:CC:DD:EE:FF"
  - "11:22:33:44:55:66"
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DefinitionsDir != "/etc/flitebridge/definitions" {
		t.Errorf("DefinitionsDir = %q, want %q", cfg.DefinitionsDir, "/etc/flitebridge/definitions")
	}
	if cfg.TickIntervalMS != 25 {
		t.Errorf("TickIntervalMS = %d, want 25", cfg.TickIntervalMS)
	}
	if cfg.RescanAfterTicks != 200 {
		t.Errorf("RescanAfterTicks = %d, want 200", cfg.RescanAfterTicks)
	}
	if cfg.ScanTimeoutMS != 3000 {
		t.Errorf("ScanTimeoutMS = %d, want 3000", cfg.ScanTimeoutMS)
	}
	if len(cfg.ExcludedDevices) != 2 || cfg.ExcludedDevices[0] != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("ExcludedDevices = %v, want two addresses", cfg.ExcludedDevices)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	yamlContent := `
log_level: warn
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.TickIntervalMS != 50 {
		t.Errorf("TickIntervalMS = %d, want default 50", cfg.TickIntervalMS)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
definitions_dir: ~/panels
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "panels")
	if cfg.DefinitionsDir != expected {
		t.Errorf("DefinitionsDir = %q, want %q", cfg.DefinitionsDir, expected)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty definitions dir",
			modify:  func(c *Config) { c.DefinitionsDir = "" },
			wantErr: true,
		},
		{
			name:    "zero tick interval",
			modify:  func(c *Config) { c.TickIntervalMS = 0 },
			wantErr: true,
		},
		{
			name:    "negative rescan ticks",
			modify:  func(c *Config) { c.RescanAfterTicks = -1 },
			wantErr: true,
		},
		{
			name:    "zero scan timeout",
			modify:  func(c *Config) { c.ScanTimeoutMS = 0 },
			wantErr: true,
		},
		{
			name:    "blank excluded address",
			modify:  func(c *Config) { c.ExcludedDevices = []string{"AA:BB", "  "} },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "flitebridge", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}

	if !strings.HasPrefix(string(data), "# flitebridge") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.TickIntervalMS != 50 {
		t.Errorf("written config TickIntervalMS = %d, want 50", cfg.TickIntervalMS)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "flitebridge")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("log_level: debug\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}
