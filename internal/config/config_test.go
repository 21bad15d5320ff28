// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration failed validation: %v", err)
	}
	if cfg.Gateway.BreakerStrikes != 3 {
		t.Errorf("default breaker strikes = %d, want 3", cfg.Gateway.BreakerStrikes)
	}
	if cfg.Sync.SaveInterval != 30*time.Second {
		t.Errorf("default save interval = %s, want 30s", cfg.Sync.SaveInterval)
	}
	if cfg.Monitor.DriftThreshold != 5.0 {
		t.Errorf("default drift threshold = %v, want 5.0", cfg.Monitor.DriftThreshold)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server addr", func(c *Config) { c.Server.Addr = "" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero breaker strikes", func(c *Config) { c.Gateway.BreakerStrikes = 0 }},
		{"negative failure window", func(c *Config) { c.Gateway.FailureWindow = -time.Second }},
		{"zero cache ttl", func(c *Config) { c.Gateway.CacheTTL = 0 }},
		{"zero save interval", func(c *Config) { c.Sync.SaveInterval = 0 }},
		{"negative drift threshold", func(c *Config) { c.Monitor.DriftThreshold = -1 }},
		{"zero poll interval", func(c *Config) { c.Monitor.PollInterval = 0 }},
		{"poll gap exceeds interval", func(c *Config) {
			c.Monitor.PollInterval = 10 * time.Second
			c.Monitor.MinPollGap = time.Minute
		}},
		{"zero max failures", func(c *Config) { c.Monitor.MaxFailures = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid configuration")
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"RESONA_SERVER_ADDR", "server.addr"},
		{"RESONA_DATABASE_PATH", "database.path"},
		{"RESONA_AUTH_JWT_SECRET", "auth.jwt_secret"},
		{"RESONA_GATEWAY_CACHE_TTL", "gateway.cache_ttl"},
		{"RESONA_MONITOR_MIN_POLL_GAP", "monitor.min_poll_gap"},
		{"RESONA_SYNC_SAVE_INTERVAL", "sync.save_interval"},
	}

	for _, tt := range tests {
		if got := envTransform(tt.env); got != tt.want {
			t.Errorf("envTransform(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resona.yaml")
	yaml := `
server:
  addr: ":9999"
database:
  path: ":memory:"
gateway:
  breaker_strikes: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("RESONA_SERVER_ADDR", ":7777")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Env beats file; file beats defaults.
	if cfg.Server.Addr != ":7777" {
		t.Errorf("server.addr = %q, want :7777 (env override)", cfg.Server.Addr)
	}
	if cfg.Gateway.BreakerStrikes != 5 {
		t.Errorf("gateway.breaker_strikes = %d, want 5 (file override)", cfg.Gateway.BreakerStrikes)
	}
	if cfg.Sync.SaveInterval != 30*time.Second {
		t.Errorf("sync.save_interval = %s, want default 30s", cfg.Sync.SaveInterval)
	}
}

func TestLoadSliceFromEnv(t *testing.T) {
	t.Setenv("RESONA_DATABASE_PATH", ":memory:")
	t.Setenv("RESONA_GATEWAY_CRITICAL_PATTERNS", "GET /playback/position, GET /playback/devices")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []string{"GET /playback/position", "GET /playback/devices"}
	if len(cfg.Gateway.CriticalPatterns) != len(want) {
		t.Fatalf("critical patterns = %v, want %v", cfg.Gateway.CriticalPatterns, want)
	}
	for i := range want {
		if cfg.Gateway.CriticalPatterns[i] != want[i] {
			t.Errorf("critical pattern %d = %q, want %q", i, cfg.Gateway.CriticalPatterns[i], want[i])
		}
	}
}
