package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if !cfg.Providers.Claude.Enabled {
		t.Error("claude provider should be enabled by default")
	}
	if !cfg.Providers.Codex.Enabled {
		t.Error("codex provider should be enabled by default")
	}
	if cfg.Monitor.TailWindowBytes != 256_000 {
		t.Errorf("TailWindowBytes = %d, want 256000", cfg.Monitor.TailWindowBytes)
	}
	if cfg.Registry.TTLHours != 24 {
		t.Errorf("TTLHours = %d, want 24", cfg.Registry.TTLHours)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7433 {
		t.Errorf("Port = %d, want default 7433", cfg.Server.Port)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
log_level = "debug"

[monitor]
tail_window_bytes = 1024
refresh_interval_sec = 5

[providers.codex]
enabled = false

[server]
port = 9000
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Monitor.TailWindowBytes != 1024 {
		t.Errorf("TailWindowBytes = %d, want 1024", cfg.Monitor.TailWindowBytes)
	}
	if cfg.Providers.Codex.Enabled {
		t.Error("codex should be disabled by the file")
	}
	if !cfg.Providers.Claude.Enabled {
		t.Error("claude should keep its default")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not = [valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load should fail on malformed TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENTSIGHT_LOG_LEVEL", "warn")
	t.Setenv("AGENTSIGHT_SERVER_PORT", "8123")
	t.Setenv("AGENTSIGHT_CLAUDE_ROOT", "/tmp/claude")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Server.Port != 8123 {
		t.Errorf("Port = %d, want 8123", cfg.Server.Port)
	}
	if cfg.Providers.Claude.Root != "/tmp/claude" {
		t.Errorf("Claude.Root = %q, want /tmp/claude", cfg.Providers.Claude.Root)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"zero refresh interval", func(c *Config) { c.Monitor.RefreshIntervalSec = 0 }, true},
		{"negative stale horizon", func(c *Config) { c.Monitor.StaleAfterHours = -1 }, true},
		{"zero ttl", func(c *Config) { c.Registry.TTLHours = 0 }, true},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
		{"history without interval", func(c *Config) { c.History.SampleIntervalSec = 0 }, true},
		{"history disabled ignores interval", func(c *Config) {
			c.History.Enabled = false
			c.History.SampleIntervalSec = 0
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandHome("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("ExpandHome(~/x) = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome(/abs/path) = %q", got)
	}
}
