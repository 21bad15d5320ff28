// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package models defines the data structures shared between the Resona server
// and its device clients: playback positions, device sessions, tracks, and the
// HTTP request/response payloads.
package models

import "time"

// PlaybackPosition is the authoritative playback state for one (user, device)
// pair. Exactly one row exists per pair; every write is a full overwrite of
// track, position, playing flag, and timestamp. Rows are never deleted, so the
// store holds the latest state only, no history.
//
// UpdatedAt is stamped server-side at write time. Because each write replaces
// the whole row with the current wall time, a row's UpdatedAt never regresses
// for the same device.
type PlaybackPosition struct {
	UserID    string    `json:"userId"`
	DeviceID  string    `json:"deviceId"`
	TrackID   int64     `json:"trackId"`
	Position  float64   `json:"position"` // seconds, >= 0
	IsPlaying bool      `json:"isPlaying"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DeviceSession records a device known to a user. Created on first login from
// a device, refreshed on activity, and marked inactive on logout/disconnect.
// Sessions are never hard-deleted.
type DeviceSession struct {
	UserID     string    `json:"userId"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	DeviceType string    `json:"deviceType"`
	LastActive time.Time `json:"lastActive"`
	IsActive   bool      `json:"isActive"`
}

// Track is the minimal track reference the sync subsystem needs: identity and
// visibility. Track management itself (upload, transcode, metadata) lives
// outside this subsystem.
type Track struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	OwnerID string `json:"ownerId"`
	Public  bool   `json:"public"`
}

// LatestPosition is a playback position resolved across all of a user's
// devices, carrying the embedded track. Track is nil when the user has no
// rows or every referenced track has become inaccessible; callers treat that
// as "nothing to resume".
type LatestPosition struct {
	Track     *Track    `json:"track"`
	Position  float64   `json:"position"`
	IsPlaying bool      `json:"isPlaying"`
	DeviceID  string     `json:"deviceId,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// None reports whether the value is the null-object result, meaning no
// resumable position exists for the user.
func (p LatestPosition) None() bool {
	return p.Track == nil
}

// DeviceRow is a playback position joined with its device session and embedded
// track, as returned by the device listing endpoints.
type DeviceRow struct {
	Position PlaybackPosition `json:"position"`
	Device   DeviceSession    `json:"device"`
	Track    *Track           `json:"track"`
}
