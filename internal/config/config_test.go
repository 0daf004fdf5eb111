package config

import (
	"path/filepath"
	"testing"
)

func TestLoadConfigWritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keydaemon.toml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Daemon.SocketPath != DefaultConfig().Daemon.SocketPath {
		t.Errorf("expected defaults, got %+v", cfg.Daemon)
	}

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reload after write: %v", err)
	}
	if reloaded.Daemon.ConfigDir != cfg.Daemon.ConfigDir {
		t.Errorf("expected the written defaults to round-trip, got %+v", reloaded.Daemon)
	}
}

func TestSaveConfigThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "keydaemon.toml")

	cfg := DefaultConfig()
	cfg.Daemon.SocketPath = "/run/custom.socket"
	cfg.Diagnostics.StatusAddr = "127.0.0.1:9090"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Daemon.SocketPath != "/run/custom.socket" {
		t.Errorf("expected socket path to round-trip, got %q", loaded.Daemon.SocketPath)
	}
	if loaded.Diagnostics.StatusAddr != "127.0.0.1:9090" {
		t.Errorf("expected status addr to round-trip, got %q", loaded.Diagnostics.StatusAddr)
	}
}
