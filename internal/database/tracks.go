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

	"github.com/resona-audio/resona/internal/models"
)

// Track management is out of scope for the sync subsystem; these accessors
// exist so the store can enforce existence and visibility, and so tests and
// the upload pipeline can register track references.

// UpsertTrack registers or updates a track reference.
func (db *DB) UpsertTrack(ctx context.Context, track models.Track) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO tracks (id, title, owner_id, public)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title    = excluded.title,
			owner_id = excluded.owner_id,
			public   = excluded.public`,
		track.ID, track.Title, track.OwnerID, track.Public)
	if err != nil {
		return fmt.Errorf("failed to upsert track: %w", err)
	}
	return nil
}

// TrackByID returns a track, or ErrTrackNotFound.
func (db *DB) TrackByID(ctx context.Context, trackID int64) (models.Track, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, title, owner_id, public FROM tracks WHERE id = ?`, trackID)

	var t models.Track
	err := row.Scan(&t.ID, &t.Title, &t.OwnerID, &t.Public)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Track{}, fmt.Errorf("%w: %d", ErrTrackNotFound, trackID)
	}
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to query track: %w", err)
	}
	return t, nil
}
