// Package config provides configuration loading and persistence for hubd.
//
// Configuration is loaded from:
// 1. ~/.config/hubd/config.json (file)
// 2. Environment variables (override file values)
//
// Environment variables:
//   - HUBD_LISTEN_ADDR: address the WebSocket server binds to
//   - HUBD_WORKSPACE_BASE: base directory new sessions are spawned in
//   - HUBD_HISTORY_MAX_BYTES: per-session scrollback history cap
//   - HUBD_MAX_SESSIONS: maximum concurrent agent sessions
//   - HUBD_IDLE_DEBOUNCE_MS: activity-engine idle_debounce override
//   - HUBD_TUNNEL_PROVIDERS: comma-separated tunnel provider fallback order
//   - HUBD_CONFIG_DIR: override config directory (for testing)
//
// The daemon reads only ListenAddr and TunnelProviders. WorkspaceBase,
// HistoryMaxBytes, MaxSessions and IdleDebounceMS are loaded, overridden
// and saved like the rest, but nothing outside this package reads them.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/trybotster/hubd/internal/activity"
)

func durationMS(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Config holds all configuration for the daemon.
type Config struct {
	// ListenAddr is the address the WebSocket/HTTP server binds to.
	ListenAddr string `json:"listen_addr"`

	// WorkspaceBase names a default directory for new sessions. The
	// daemon does not read it; StartSession always takes the workspace
	// path from its caller.
	WorkspaceBase string `json:"workspace_base"`

	// HistoryMaxBytes is a per-session scrollback history cap setting.
	// The daemon does not read it; every session's history uses the
	// ptysession package's fixed cap.
	HistoryMaxBytes int `json:"history_max_bytes"`

	// MaxSessions is a concurrent-session limit setting. Nothing
	// enforces it.
	MaxSessions int `json:"max_sessions"`

	// IdleDebounceMS overrides activity.TimingParams.IdleDebounce in
	// TimingParams() when nonzero; zero means "use the engine default".
	// The daemon does not call TimingParams(); the agent manager always
	// uses activity.DefaultTimingParams().
	IdleDebounceMS int64 `json:"idle_debounce_ms,omitempty"`

	// TunnelProviders is the fallback order remote share tries, e.g.
	// ["cloudflared", "localhost_run"]. Empty means the package default.
	TunnelProviders []string `json:"tunnel_providers,omitempty"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	if homeDir == "" {
		homeDir = "."
	}

	return &Config{
		ListenAddr:      "127.0.0.1:7420",
		WorkspaceBase:   filepath.Join(homeDir, "hubd-sessions"),
		HistoryMaxBytes: 8 * 1024 * 1024,
		MaxSessions:     20,
	}
}

// TimingParams resolves the activity engine's timing parameters,
// applying any configured override on top of the package default.
func (c *Config) TimingParams() activity.TimingParams {
	t := activity.DefaultTimingParams()
	if c.IdleDebounceMS > 0 {
		t.IdleDebounce = durationMS(c.IdleDebounceMS)
	}
	return t
}

// ConfigDir returns the configuration directory path, creating it if
// necessary. Respects HUBD_CONFIG_DIR for testing.
func ConfigDir() (string, error) {
	if testDir := os.Getenv("HUBD_CONFIG_DIR"); testDir != "" {
		if err := os.MkdirAll(testDir, 0o700); err != nil {
			return "", fmt.Errorf("could not create config directory: %w", err)
		}
		return testDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".config", "hubd")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not create config directory: %w", err)
	}

	return dir, nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration from file and applies environment variable
// overrides. Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		// File doesn't exist or is invalid - use defaults.
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

func (c *Config) loadFromFile() error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, c)
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("HUBD_LISTEN_ADDR"); addr != "" {
		c.ListenAddr = addr
	}

	if base := os.Getenv("HUBD_WORKSPACE_BASE"); base != "" {
		c.WorkspaceBase = base
	}

	if maxBytes := os.Getenv("HUBD_HISTORY_MAX_BYTES"); maxBytes != "" {
		if val, err := strconv.Atoi(maxBytes); err == nil {
			c.HistoryMaxBytes = val
		}
	}

	if maxSessions := os.Getenv("HUBD_MAX_SESSIONS"); maxSessions != "" {
		if val, err := strconv.Atoi(maxSessions); err == nil {
			c.MaxSessions = val
		}
	}

	if idleDebounce := os.Getenv("HUBD_IDLE_DEBOUNCE_MS"); idleDebounce != "" {
		if val, err := strconv.ParseInt(idleDebounce, 10, 64); err == nil {
			c.IdleDebounceMS = val
		}
	}

	if providers := os.Getenv("HUBD_TUNNEL_PROVIDERS"); providers != "" {
		parts := strings.Split(providers, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		c.TunnelProviders = out
	}
}

// Save writes configuration to the config file.
func (c *Config) Save() error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}

	return nil
}
