// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package config defines the Resona configuration model and its koanf-based
// loader. Configuration is resolved in three layers, later layers winning:
// struct defaults, an optional YAML file, and RESONA_-prefixed environment
// variables.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for both the server and the device agent.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Logging  LoggingConfig  `koanf:"logging"`
	Sessions SessionsConfig `koanf:"sessions"`
	Client   ClientConfig   `koanf:"client"`
	Gateway  GatewayConfig  `koanf:"gateway"`
	Sync     SyncConfig     `koanf:"sync"`
	Monitor  MonitorConfig  `koanf:"monitor"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists allowed origins for browser clients.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimit is the per-IP request budget per minute for API routes.
	RateLimit int `koanf:"rate_limit"`
}

// DatabaseConfig controls the DuckDB store.
type DatabaseConfig struct {
	// Path is the database file path. ":memory:" is accepted for tests.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads limits DuckDB worker threads. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// AuthConfig configures bearer-token verification. Token issuance is an
// external concern; the server only verifies.
type AuthConfig struct {
	// JWTSecret is the HMAC key used to verify bearer tokens.
	JWTSecret string `koanf:"jwt_secret"`
	// Issuer, when non-empty, must match the token's iss claim.
	Issuer string `koanf:"issuer"`
}

// LoggingConfig mirrors logging.Config for file/env configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SessionsConfig controls the device-session reaper.
type SessionsConfig struct {
	// IdleHorizon is how long a session may stay untouched before the reaper
	// marks it inactive.
	IdleHorizon time.Duration `koanf:"idle_horizon"`
	// ReapInterval is how often the reaper runs.
	ReapInterval time.Duration `koanf:"reap_interval"`
}

// ClientConfig identifies a device agent and locates its server.
type ClientConfig struct {
	ServerURL  string `koanf:"server_url"`
	Token      string `koanf:"token"`
	DeviceName string `koanf:"device_name"`
	DeviceType string `koanf:"device_type"`
	// StatePath is the badger directory holding durable client state
	// (device identity, resume marker).
	StatePath string `koanf:"state_path"`
	// SyncFrom, when set, names a source device whose playback state is
	// adopted at startup in place of the normal resume fetch.
	SyncFrom string `koanf:"sync_from"`
}

// GatewayConfig tunes the resilient request gateway. The values are policy
// knobs, not protocol requirements.
type GatewayConfig struct {
	// FailureWindow bounds the sliding failure counter: a failure arriving
	// more than one window after the previous one restarts the count at 1.
	FailureWindow time.Duration `koanf:"failure_window"`
	// BreakerStrikes is the failure count at which a pattern is blocked.
	BreakerStrikes int `koanf:"breaker_strikes"`
	// CacheTTL is how long a cached success may serve as a fallback.
	CacheTTL time.Duration `koanf:"cache_ttl"`
	// RequestTimeout bounds each outbound request.
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// CriticalPatterns hard-open on trip and require an explicit reset.
	// Entries use the normalized "METHOD /path/*" pattern form.
	CriticalPatterns []string `koanf:"critical_patterns"`
}

// SyncConfig tunes the debounced sync client.
type SyncConfig struct {
	// SaveInterval is the periodic position flush cadence.
	SaveInterval time.Duration `koanf:"save_interval"`
	// ExitFlushTimeout bounds the fire-and-forget exit flush.
	ExitFlushTimeout time.Duration `koanf:"exit_flush_timeout"`
}

// MonitorConfig tunes the reconciliation monitor.
type MonitorConfig struct {
	// PollInterval is the steady-state poll cadence.
	PollInterval time.Duration `koanf:"poll_interval"`
	// StaleAfter is the silence gap after which a connectivity-restored
	// signal triggers an immediate poll.
	StaleAfter time.Duration `koanf:"stale_after"`
	// DriftThreshold is the position divergence, in seconds, above which
	// remote state overwrites local state.
	DriftThreshold float64 `koanf:"drift_threshold"`
	// MinPollGap is the minimum spacing between outbound polls.
	MinPollGap time.Duration `koanf:"min_poll_gap"`
	// MaxFailures is the consecutive-failure count that disables polling.
	MaxFailures int `koanf:"max_failures"`
	// DisableCooldown is how long the monitor stays disabled after tripping.
	DisableCooldown time.Duration `koanf:"disable_cooldown"`
}

// Default returns a Config with all default values applied.
// Defaults are applied first, then overridden by config file and env vars.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8484",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       300,
		},
		Database: DatabaseConfig{
			Path:      "/data/resona.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		Auth: AuthConfig{
			JWTSecret: "",
			Issuer:    "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Sessions: SessionsConfig{
			IdleHorizon:  30 * 24 * time.Hour,
			ReapInterval: time.Hour,
		},
		Client: ClientConfig{
			ServerURL:  "http://127.0.0.1:8484",
			DeviceName: "",
			DeviceType: "desktop",
			StatePath:  "/data/resona-agent",
		},
		Gateway: GatewayConfig{
			FailureWindow:  60 * time.Second,
			BreakerStrikes: 3,
			CacheTTL:       60 * time.Second,
			RequestTimeout: 10 * time.Second,
			CriticalPatterns: []string{
				"GET /playback/position",
				"GET /playback/devices",
			},
		},
		Sync: SyncConfig{
			SaveInterval:     30 * time.Second,
			ExitFlushTimeout: 2 * time.Second,
		},
		Monitor: MonitorConfig{
			PollInterval:    60 * time.Second,
			StaleAfter:      120 * time.Second,
			DriftThreshold:  5.0,
			MinPollGap:      10 * time.Second,
			MaxFailures:     3,
			DisableCooldown: 5 * time.Minute,
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Gateway.BreakerStrikes < 1 {
		return fmt.Errorf("gateway.breaker_strikes must be >= 1, got %d", c.Gateway.BreakerStrikes)
	}
	if c.Gateway.FailureWindow <= 0 {
		return fmt.Errorf("gateway.failure_window must be positive")
	}
	if c.Gateway.CacheTTL <= 0 {
		return fmt.Errorf("gateway.cache_ttl must be positive")
	}
	if c.Sync.SaveInterval <= 0 {
		return fmt.Errorf("sync.save_interval must be positive")
	}
	if c.Monitor.DriftThreshold < 0 {
		return fmt.Errorf("monitor.drift_threshold must not be negative")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if c.Monitor.MinPollGap > c.Monitor.PollInterval {
		return fmt.Errorf("monitor.min_poll_gap (%s) must not exceed monitor.poll_interval (%s)",
			c.Monitor.MinPollGap, c.Monitor.PollInterval)
	}
	if c.Monitor.MaxFailures < 1 {
		return fmt.Errorf("monitor.max_failures must be >= 1, got %d", c.Monitor.MaxFailures)
	}
	return nil
}
