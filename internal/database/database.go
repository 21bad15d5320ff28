// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package database owns the authoritative playback state: the DuckDB-backed
// playback position store, the device session registry, and the minimal track
// table the sync subsystem reads for visibility checks.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/resona-audio/resona/internal/config"
	"github.com/resona-audio/resona/internal/logging"
)

// Store errors surfaced to the API layer. NotFound conditions map to 404s and
// are never retried by clients.
var (
	// ErrTrackNotFound indicates a position write referenced an unknown track.
	ErrTrackNotFound = errors.New("track not found")

	// ErrDeviceNotFound indicates the device is unknown to this user.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrPositionNotFound indicates the device has no playback position row.
	ErrPositionNotFound = errors.New("playback position not found")

	// ErrInvalidPosition indicates a negative playback position.
	ErrInvalidPosition = errors.New("position must not be negative")
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens the database and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for file-backed databases.
	// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301
	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, numThreads, cfg.MaxMemory)
	if cfg.Path == ":memory:" {
		connStr = cfg.Path
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}

	if err := db.createTables(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("Database ready")
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Conn returns the underlying SQL connection, for tests that seed fixtures.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// createTables creates the schema if it does not exist yet.
func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS tracks (
			id       BIGINT PRIMARY KEY,
			title    VARCHAR NOT NULL,
			owner_id VARCHAR NOT NULL,
			public   BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS playback_positions (
			user_id    VARCHAR NOT NULL,
			device_id  VARCHAR NOT NULL,
			track_id   BIGINT NOT NULL,
			position   DOUBLE NOT NULL,
			is_playing BOOLEAN NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, device_id)
		)`,
		`CREATE TABLE IF NOT EXISTS device_sessions (
			user_id     VARCHAR NOT NULL,
			device_id   VARCHAR NOT NULL,
			device_name VARCHAR NOT NULL,
			device_type VARCHAR NOT NULL,
			last_active TIMESTAMP NOT NULL,
			is_active   BOOLEAN NOT NULL,
			PRIMARY KEY (user_id, device_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_user_updated
			ON playback_positions (user_id, updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// closeQuietly closes a resource, logging rather than returning the error.
func closeQuietly(c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close resource")
	}
}
