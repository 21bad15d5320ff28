// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/resona-audio/resona/internal/models"
)

// UpsertSession registers a device for a user or refreshes an existing
// session: name and type are overwritten, last_active is stamped with the
// current time, and the session is marked active. Called on login and on
// every authenticated playback write.
func (db *DB) UpsertSession(ctx context.Context, userID, deviceID, deviceName, deviceType string) (models.DeviceSession, error) {
	if deviceName == "" {
		deviceName = deviceID
	}
	if deviceType == "" {
		deviceType = "unknown"
	}

	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO device_sessions (user_id, device_id, device_name, device_type, last_active, is_active)
		VALUES (?, ?, ?, ?, ?, true)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			device_name = excluded.device_name,
			device_type = excluded.device_type,
			last_active = excluded.last_active,
			is_active   = true`,
		userID, deviceID, deviceName, deviceType, now)
	if err != nil {
		return models.DeviceSession{}, fmt.Errorf("failed to upsert device session: %w", err)
	}

	return models.DeviceSession{
		UserID:     userID,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		DeviceType: deviceType,
		LastActive: now,
		IsActive:   true,
	}, nil
}

// Session returns one device session, or ErrDeviceNotFound.
func (db *DB) Session(ctx context.Context, userID, deviceID string) (models.DeviceSession, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT user_id, device_id, device_name, device_type, last_active, is_active
		FROM device_sessions
		WHERE user_id = ? AND device_id = ?`,
		userID, deviceID)

	var s models.DeviceSession
	err := row.Scan(&s.UserID, &s.DeviceID, &s.DeviceName, &s.DeviceType, &s.LastActive, &s.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DeviceSession{}, fmt.Errorf("%w: device %s", ErrDeviceNotFound, deviceID)
	}
	if err != nil {
		return models.DeviceSession{}, fmt.Errorf("failed to query device session: %w", err)
	}
	return s, nil
}

// DeactivateSession marks a session inactive. Sessions are never hard-deleted.
func (db *DB) DeactivateSession(ctx context.Context, userID, deviceID string) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE device_sessions SET is_active = false
		WHERE user_id = ? AND device_id = ?`,
		userID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to deactivate device session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm session deactivation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: device %s", ErrDeviceNotFound, deviceID)
	}
	return nil
}

// ReapIdleSessions marks sessions inactive when their last activity is older
// than the horizon. Returns the number of sessions reaped.
func (db *DB) ReapIdleSessions(ctx context.Context, horizon time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-horizon)
	res, err := db.conn.ExecContext(ctx, `
		UPDATE device_sessions SET is_active = false
		WHERE is_active AND last_active < ?`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reap idle sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reaped sessions: %w", err)
	}
	return n, nil
}
