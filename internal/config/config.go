// Package config holds the CLI configuration: which bus to attach to by
// default, where recorded signals live, and where watch profiles are found.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config is the root configuration for buswatch.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Record   RecordConfig   `json:"record"`
	Profiles ProfilesConfig `json:"profiles"`
}

type GeneralConfig struct {
	Bus      string `json:"bus"`      // "session" | "system" | "starter"
	LogLevel string `json:"logLevel"` // "debug" | "info" | "warn" | "error"
}

type RecordConfig struct {
	DBPath        string `json:"dbPath"`
	RetentionDays int    `json:"retentionDays"` // 0 = keep forever
}

type ProfilesConfig struct {
	Dir string `json:"dir"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Bus:      "session",
			LogLevel: "info",
		},
		Record: RecordConfig{
			DBPath:        "~/.buswatch/signals.db",
			RetentionDays: 7,
		},
		Profiles: ProfilesConfig{
			Dir: "~/.buswatch/profiles",
		},
	}
}

func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".buswatch"
	}
	return filepath.Join(home, ".buswatch")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config file at path, layering it over Defaults.
func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Record.DBPath = expandPath(cfg.Record.DBPath)
	cfg.Profiles.Dir = expandPath(cfg.Profiles.Dir)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Save writes the config as indented JSON, creating the directory if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func validate(cfg *Config) error {
	switch cfg.General.Bus {
	case "session", "system", "starter":
	default:
		return fmt.Errorf("general.bus: unknown bus %q", cfg.General.Bus)
	}
	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("general.logLevel: unknown level %q", cfg.General.LogLevel)
	}
	return nil
}

// LogLevel maps the configured level name to a slog level.
func (c *Config) LogLevel() slog.Level {
	switch c.General.LogLevel {
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

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
