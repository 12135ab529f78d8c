package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.General.Bus != "session" {
		t.Errorf("default bus = %q", cfg.General.Bus)
	}
	if cfg.General.LogLevel != "info" {
		t.Errorf("default log level = %q", cfg.General.LogLevel)
	}
	if cfg.Record.RetentionDays != 7 {
		t.Errorf("default retention = %d", cfg.Record.RetentionDays)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Defaults()
	cfg.General.Bus = "system"
	cfg.General.LogLevel = "debug"
	cfg.Record.DBPath = "/var/lib/buswatch/signals.db"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.General.Bus != "system" || loaded.General.LogLevel != "debug" {
		t.Errorf("general lost on roundtrip: %+v", loaded.General)
	}
	if loaded.Record.DBPath != "/var/lib/buswatch/signals.db" {
		t.Errorf("dbPath lost: %q", loaded.Record.DBPath)
	}
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"general":{"bus":"system","logLevel":"info"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.Bus != "system" {
		t.Errorf("bus = %q", cfg.General.Bus)
	}
	// Untouched sections keep their defaults.
	if cfg.Record.RetentionDays != 7 {
		t.Errorf("retention should keep default, got %d", cfg.Record.RetentionDays)
	}
}

func TestLoad_RejectsUnknownBus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"general":{"bus":"lan","logLevel":"info"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for unknown bus")
	}
}

func TestLoad_RejectsUnknownLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"general":{"bus":"session","logLevel":"loud"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for unknown log level")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, want := range cases {
		cfg := Defaults()
		cfg.General.LogLevel = name
		if got := cfg.LogLevel(); got != want {
			t.Errorf("LogLevel(%q) = %v, want %v", name, got, want)
		}
	}
}
