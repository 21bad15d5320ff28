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

	"github.com/resona-audio/resona/internal/metrics"
	"github.com/resona-audio/resona/internal/models"
)

// UpdatePosition upserts the (user, device) playback row. Every call is a full
// overwrite of track, position, playing flag, and timestamp; the single upsert
// statement is the atomicity boundary, and concurrent writers for the same key
// settle last-writer-wins.
//
// Returns ErrTrackNotFound when the track does not exist and ErrInvalidPosition
// for a negative position.
func (db *DB) UpdatePosition(ctx context.Context, userID, deviceID string, trackID int64, position float64, isPlaying bool) (models.PlaybackPosition, error) {
	start := time.Now()

	if position < 0 {
		metrics.RecordStoreOperation("update_position", "error", time.Since(start))
		return models.PlaybackPosition{}, fmt.Errorf("%w: %f", ErrInvalidPosition, position)
	}

	exists, err := db.trackExists(ctx, trackID)
	if err != nil {
		metrics.RecordStoreOperation("update_position", "error", time.Since(start))
		return models.PlaybackPosition{}, err
	}
	if !exists {
		metrics.RecordStoreOperation("update_position", "not_found", time.Since(start))
		return models.PlaybackPosition{}, fmt.Errorf("%w: %d", ErrTrackNotFound, trackID)
	}

	now := time.Now().UTC()
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO playback_positions (user_id, device_id, track_id, position, is_playing, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			track_id   = excluded.track_id,
			position   = excluded.position,
			is_playing = excluded.is_playing,
			updated_at = excluded.updated_at`,
		userID, deviceID, trackID, position, isPlaying, now)
	if err != nil {
		metrics.RecordStoreOperation("update_position", "error", time.Since(start))
		return models.PlaybackPosition{}, fmt.Errorf("failed to upsert playback position: %w", err)
	}

	metrics.RecordStoreOperation("update_position", "ok", time.Since(start))
	return models.PlaybackPosition{
		UserID:    userID,
		DeviceID:  deviceID,
		TrackID:   trackID,
		Position:  position,
		IsPlaying: isPlaying,
		UpdatedAt: now,
	}, nil
}

// LatestPosition returns the most recently updated playback row among the
// user's devices, restricted to tracks the user owns or that are public.
// When no row qualifies the null-object result (Track == nil) is returned
// with a nil error.
func (db *DB) LatestPosition(ctx context.Context, userID string) (models.LatestPosition, error) {
	start := time.Now()

	row := db.conn.QueryRowContext(ctx, `
		SELECT p.device_id, p.position, p.is_playing, p.updated_at,
		       t.id, t.title, t.owner_id, t.public
		FROM playback_positions p
		JOIN tracks t ON t.id = p.track_id
		WHERE p.user_id = ? AND (t.owner_id = ? OR t.public)
		ORDER BY p.updated_at DESC
		LIMIT 1`,
		userID, userID)

	var (
		latest  models.LatestPosition
		track   models.Track
		updated time.Time
	)
	err := row.Scan(&latest.DeviceID, &latest.Position, &latest.IsPlaying, &updated,
		&track.ID, &track.Title, &track.OwnerID, &track.Public)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordStoreOperation("latest_position", "ok", time.Since(start))
		return models.LatestPosition{}, nil
	}
	if err != nil {
		metrics.RecordStoreOperation("latest_position", "error", time.Since(start))
		return models.LatestPosition{}, fmt.Errorf("failed to query latest position: %w", err)
	}

	latest.Track = &track
	latest.UpdatedAt = &updated
	metrics.RecordStoreOperation("latest_position", "ok", time.Since(start))
	return latest, nil
}

// PositionForDevice returns one device's playback row, or ErrPositionNotFound.
func (db *DB) PositionForDevice(ctx context.Context, userID, deviceID string) (models.PlaybackPosition, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT user_id, device_id, track_id, position, is_playing, updated_at
		FROM playback_positions
		WHERE user_id = ? AND device_id = ?`,
		userID, deviceID)

	var pos models.PlaybackPosition
	err := row.Scan(&pos.UserID, &pos.DeviceID, &pos.TrackID, &pos.Position, &pos.IsPlaying, &pos.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PlaybackPosition{}, fmt.Errorf("%w: device %s", ErrPositionNotFound, deviceID)
	}
	if err != nil {
		return models.PlaybackPosition{}, fmt.Errorf("failed to query device position: %w", err)
	}
	return pos, nil
}

// SyncDevice copies the source device's playback row onto the target device.
// The target receives identical track/position/playing values under a fresh
// timestamp. Fails with ErrPositionNotFound when the source has no row.
func (db *DB) SyncDevice(ctx context.Context, userID, sourceDeviceID, targetDeviceID string) (source, target models.PlaybackPosition, err error) {
	start := time.Now()

	source, err = db.PositionForDevice(ctx, userID, sourceDeviceID)
	if err != nil {
		result := "error"
		if errors.Is(err, ErrPositionNotFound) {
			result = "not_found"
		}
		metrics.RecordStoreOperation("sync_device", result, time.Since(start))
		return models.PlaybackPosition{}, models.PlaybackPosition{}, err
	}

	target, err = db.UpdatePosition(ctx, userID, targetDeviceID, source.TrackID, source.Position, source.IsPlaying)
	if err != nil {
		metrics.RecordStoreOperation("sync_device", "error", time.Since(start))
		return models.PlaybackPosition{}, models.PlaybackPosition{}, err
	}

	metrics.RecordStoreOperation("sync_device", "ok", time.Since(start))
	return source, target, nil
}

// DisconnectDevice clears the device's playing flag and marks its session
// inactive. Track, position, and updated_at stay untouched, so the device may
// still win a later LatestPosition query if it holds the newest timestamp.
// Fails with ErrDeviceNotFound when the user has no such device session.
func (db *DB) DisconnectDevice(ctx context.Context, userID, deviceID string) (models.DeviceSession, error) {
	start := time.Now()

	session, err := db.Session(ctx, userID, deviceID)
	if err != nil {
		result := "error"
		if errors.Is(err, ErrDeviceNotFound) {
			result = "not_found"
		}
		metrics.RecordStoreOperation("disconnect_device", result, time.Since(start))
		return models.DeviceSession{}, err
	}

	_, err = db.conn.ExecContext(ctx, `
		UPDATE playback_positions SET is_playing = false
		WHERE user_id = ? AND device_id = ?`,
		userID, deviceID)
	if err != nil {
		metrics.RecordStoreOperation("disconnect_device", "error", time.Since(start))
		return models.DeviceSession{}, fmt.Errorf("failed to clear playing flag: %w", err)
	}

	if err := db.DeactivateSession(ctx, userID, deviceID); err != nil {
		metrics.RecordStoreOperation("disconnect_device", "error", time.Since(start))
		return models.DeviceSession{}, err
	}

	session.IsActive = false
	metrics.RecordStoreOperation("disconnect_device", "ok", time.Since(start))
	return session, nil
}

// ListDevices returns every playback row for the user joined with device
// metadata and the embedded track, newest first.
func (db *DB) ListDevices(ctx context.Context, userID string) ([]models.DeviceRow, error) {
	return db.deviceRows(ctx, userID, false)
}

// ActiveSessions returns the user's playback rows with is_playing=true joined
// with device metadata.
func (db *DB) ActiveSessions(ctx context.Context, userID string) ([]models.DeviceRow, error) {
	return db.deviceRows(ctx, userID, true)
}

func (db *DB) deviceRows(ctx context.Context, userID string, playingOnly bool) ([]models.DeviceRow, error) {
	query := `
		SELECT p.user_id, p.device_id, p.track_id, p.position, p.is_playing, p.updated_at,
		       s.device_name, s.device_type, s.last_active, s.is_active,
		       t.id, t.title, t.owner_id, t.public
		FROM playback_positions p
		JOIN device_sessions s ON s.user_id = p.user_id AND s.device_id = p.device_id
		JOIN tracks t ON t.id = p.track_id
		WHERE p.user_id = ?`
	if playingOnly {
		query += ` AND p.is_playing`
	}
	query += ` ORDER BY p.updated_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device rows: %w", err)
	}
	defer closeQuietly(rows)

	result := make([]models.DeviceRow, 0)
	for rows.Next() {
		var (
			dr    models.DeviceRow
			track models.Track
		)
		err := rows.Scan(
			&dr.Position.UserID, &dr.Position.DeviceID, &dr.Position.TrackID,
			&dr.Position.Position, &dr.Position.IsPlaying, &dr.Position.UpdatedAt,
			&dr.Device.DeviceName, &dr.Device.DeviceType, &dr.Device.LastActive, &dr.Device.IsActive,
			&track.ID, &track.Title, &track.OwnerID, &track.Public)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		dr.Device.UserID = dr.Position.UserID
		dr.Device.DeviceID = dr.Position.DeviceID
		dr.Track = &track
		result = append(result, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("device row iteration failed: %w", err)
	}
	return result, nil
}

// trackExists reports whether a track row exists.
func (db *DB) trackExists(ctx context.Context, trackID int64) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM tracks WHERE id = ?`, trackID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check track existence: %w", err)
	}
	return true, nil
}
