// Package config loads agentsight configuration: a TOML file with defaults
// layered under it and environment variables layered over it. Project-level
// notification routes come from .agentsight.yaml and are handled separately
// in webhooks.go.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/agentsight/agentsight/internal/notify"
)

// Config is the main configuration.
type Config struct {
	LogLevel string `toml:"log_level"` // debug, info, warn, error

	Providers     ProvidersConfig `toml:"providers"`
	Monitor       MonitorConfig   `toml:"monitor"`
	Registry      RegistryConfig  `toml:"registry"`
	Server        ServerConfig    `toml:"server"`
	History       HistoryConfig   `toml:"history"`
	Notifications notify.Config   `toml:"notifications"`
}

// ProviderConfig enables one provider and optionally overrides where its
// transcripts live.
type ProviderConfig struct {
	Enabled bool   `toml:"enabled"`
	Root    string `toml:"root"` // transcript root override; empty means the provider default
}

// ProvidersConfig holds per-provider discovery settings.
type ProvidersConfig struct {
	Claude ProviderConfig `toml:"claude"`
	Codex  ProviderConfig `toml:"codex"`
}

// MonitorConfig tunes the per-provider session monitors and their refresh
// cadence.
type MonitorConfig struct {
	TailWindowBytes    int64 `toml:"tail_window_bytes"`    // trailing bytes read per transcript
	StaleAfterHours    int   `toml:"stale_after_hours"`    // drop processless sessions older than this
	RefreshIntervalSec int   `toml:"refresh_interval_sec"` // poll cadence per provider
	WatchTranscripts   bool  `toml:"watch_transcripts"`    // also refresh on filesystem events
	DebounceMS         int   `toml:"debounce_ms"`          // filesystem event debounce
}

// RegistryConfig tunes the resumable session registry.
type RegistryConfig struct {
	TTLHours int    `toml:"ttl_hours"`
	Path     string `toml:"path"` // persistence file; empty keeps the registry in memory only
}

// ServerConfig configures the hook/API server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// HistoryConfig configures the usage history archive.
type HistoryConfig struct {
	Enabled           bool   `toml:"enabled"`
	Path              string `toml:"path"` // SQLite database; empty means <config dir>/history.db
	SampleIntervalSec int    `toml:"sample_interval_sec"`
}

// DefaultPath returns the config file path: $AGENTSIGHT_CONFIG, then
// $XDG_CONFIG_HOME/agentsight/config.toml, then ~/.config/agentsight/config.toml.
func DefaultPath() string {
	if env := os.Getenv("AGENTSIGHT_CONFIG"); env != "" {
		return ExpandHome(env)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentsight", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "agentsight", "config.toml")
}

// DefaultDataDir returns the directory for registry and history files,
// beside the config file.
func DefaultDataDir() string {
	return filepath.Dir(DefaultPath())
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		LogLevel: "info",
		Providers: ProvidersConfig{
			Claude: ProviderConfig{Enabled: true},
			Codex:  ProviderConfig{Enabled: true},
		},
		Monitor: MonitorConfig{
			TailWindowBytes:    256_000,
			StaleAfterHours:    24,
			RefreshIntervalSec: 2,
			WatchTranscripts:   true,
			DebounceMS:         250,
		},
		Registry: RegistryConfig{
			TTLHours: 24,
			Path:     filepath.Join(dataDir, "sessions.json"),
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7433,
		},
		History: HistoryConfig{
			Enabled:           true,
			Path:              filepath.Join(dataDir, "history.db"),
			SampleIntervalSec: 60,
		},
		Notifications: notify.DefaultConfig(),
	}
}

// Load reads configuration from path (DefaultPath when empty), layering
// TOML over defaults and environment variables over TOML. A missing file is
// not an error; a malformed one is.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnvOverrides(cfg)

	cfg.Registry.Path = ExpandHome(cfg.Registry.Path)
	cfg.History.Path = ExpandHome(cfg.History.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTSIGHT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AGENTSIGHT_CLAUDE_ROOT"); v != "" {
		cfg.Providers.Claude.Root = v
	}
	if v := os.Getenv("AGENTSIGHT_CODEX_ROOT"); v != "" {
		cfg.Providers.Codex.Root = v
	}
	if v := os.Getenv("AGENTSIGHT_REGISTRY_PATH"); v != "" {
		cfg.Registry.Path = v
	}
	if v := os.Getenv("AGENTSIGHT_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AGENTSIGHT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AGENTSIGHT_HISTORY_ENABLED"); v != "" {
		cfg.History.Enabled = v == "1" || v == "true"
	}
}

// Validate checks the configuration for values the components cannot work
// with.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	if c.Monitor.TailWindowBytes < 0 {
		return fmt.Errorf("invalid monitor.tail_window_bytes %d (must be >= 0)", c.Monitor.TailWindowBytes)
	}
	if c.Monitor.StaleAfterHours < 0 {
		return fmt.Errorf("invalid monitor.stale_after_hours %d (must be >= 0)", c.Monitor.StaleAfterHours)
	}
	if c.Monitor.RefreshIntervalSec <= 0 {
		return fmt.Errorf("invalid monitor.refresh_interval_sec %d (must be > 0)", c.Monitor.RefreshIntervalSec)
	}
	if c.Registry.TTLHours <= 0 {
		return fmt.Errorf("invalid registry.ttl_hours %d (must be > 0)", c.Registry.TTLHours)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.History.Enabled && c.History.SampleIntervalSec <= 0 {
		return fmt.Errorf("invalid history.sample_interval_sec %d (must be > 0)", c.History.SampleIntervalSec)
	}
	return nil
}

// StaleAfter returns the staleness horizon as a duration.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Monitor.StaleAfterHours) * time.Hour
}

// RefreshInterval returns the monitor poll cadence as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Monitor.RefreshIntervalSec) * time.Second
}

// Debounce returns the filesystem event debounce as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Monitor.DebounceMS) * time.Millisecond
}

// RegistryTTL returns the registry record TTL as a duration.
func (c *Config) RegistryTTL() time.Duration {
	return time.Duration(c.Registry.TTLHours) * time.Hour
}

// SampleInterval returns the history sampling throttle as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.History.SampleIntervalSec) * time.Second
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
