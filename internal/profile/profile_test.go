package profile

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"buswatch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const networkProfile = `name: network
subscriptions:
  - member: StateChanged
    interface: org.freedesktop.NetworkManager
    sender: org.freedesktop.NetworkManager
    args:
      0: "activated"
    senderKeyword: origin
  - interface: org.freedesktop.DBus
`

func TestLoad(t *testing.T) {
	path := writeFile(t, t.TempDir(), "network.yaml", networkProfile)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name != "network" {
		t.Errorf("name = %q", p.Name)
	}
	if len(p.Subscriptions) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(p.Subscriptions))
	}

	f := p.Subscriptions[0].Filter()
	if f.Member != "StateChanged" || f.Sender != "org.freedesktop.NetworkManager" {
		t.Errorf("filter conversion wrong: %+v", f)
	}
	if f.Args[0] != "activated" {
		t.Errorf("arg constraint lost: %v", f.Args)
	}
	if f.SenderKeyword != "origin" {
		t.Errorf("keyword binding lost: %q", f.SenderKeyword)
	}
}

func TestLoad_NameDefaultsToFileName(t *testing.T) {
	path := writeFile(t, t.TempDir(), "media.yml", "subscriptions:\n  - member: Seeked\n")

	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "media" {
		t.Errorf("expected name from file, got %q", p.Name)
	}
}

func TestLoad_NegativeArgIndex(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "subscriptions:\n  - member: X\n    args:\n      -1: \"v\"\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for negative argument index")
	}
	var ife *domain.InvalidFilterError
	if !errors.As(err, &ife) {
		t.Errorf("expected InvalidFilterError, got %T: %v", err, err)
	}
}

func TestLoadDirectory_SkipsBroken(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.yaml", networkProfile)
	writeFile(t, dir, "broken.yaml", "subscriptions: [unclosed")
	writeFile(t, dir, "ignored.txt", "not yaml")

	profiles, err := LoadDirectory(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 || profiles[0].Name != "network" {
		t.Errorf("expected only the good profile, got %d", len(profiles))
	}
}

func TestLoadDirectory_MissingDir(t *testing.T) {
	profiles, err := LoadDirectory(filepath.Join(t.TempDir(), "nope"), testLogger())
	if err != nil {
		t.Errorf("missing directory should not error: %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("expected no profiles, got %d", len(profiles))
	}
}
