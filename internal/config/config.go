// Package config loads and saves the daemon's own settings — as opposed
// to the remapping rules under internal/remapspec, which come from
// separate .conf files in ConfigDir. Grounded on the teacher's
// internal/config/config.go: a defaulted struct, TOML decode/encode via
// BurntSushi/toml, and "write the defaults out if nothing exists yet".
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the daemon-level configuration: where to listen, where to
// read remapping rules from, and how noisy to be. Per-device remapping
// itself lives in ConfigDir's .conf files, described in spec.md §3.
type Config struct {
	Daemon      DaemonConfig      `toml:"daemon"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
}

// DaemonConfig controls the core event loop and IPC endpoint.
type DaemonConfig struct {
	SocketPath string `toml:"socket_path"`
	ConfigDir  string `toml:"config_dir"`
	LogLevel   string `toml:"log_level"`
	Nice       int    `toml:"nice"`
}

// DiagnosticsConfig controls the optional HTTP status page.
type DiagnosticsConfig struct {
	StatusAddr string `toml:"status_addr"`
	AutoOpen   bool   `toml:"auto_open"`
}

// DefaultConfig returns the settings a fresh install runs with.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			SocketPath: "/run/keydaemon.socket",
			ConfigDir:  "/etc/keydaemon",
			LogLevel:   "info",
			Nice:       -20,
		},
		Diagnostics: DiagnosticsConfig{
			StatusAddr: "",
			AutoOpen:   false,
		},
	}
}

// LoadConfig reads configPath, writing and returning the defaults if it
// doesn't exist yet.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return cfg, err
		}
		if err := SaveConfig(configPath, cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// SaveConfig writes cfg to configPath as TOML, creating parent
// directories as needed.
func SaveConfig(configPath string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
