// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package models

// Request payloads carry validator tags; the API layer rejects anything that
// fails validation with a 400 before touching the store.

// UpdatePositionRequest is the body of POST /playback/position.
type UpdatePositionRequest struct {
	DeviceID  string  `json:"deviceId" validate:"required"`
	TrackID   int64   `json:"trackId" validate:"required"`
	Position  float64 `json:"position" validate:"gte=0"`
	IsPlaying bool    `json:"isPlaying"`
}

// SyncDeviceRequest is the body of POST /playback/sync.
type SyncDeviceRequest struct {
	SourceDeviceID string `json:"sourceDeviceId" validate:"required"`
	TargetDeviceID string `json:"targetDeviceId" validate:"required,nefield=SourceDeviceID"`
}

// DisconnectRequest is the body of POST /playback/disconnect.
type DisconnectRequest struct {
	DeviceID string `json:"deviceId" validate:"required"`
}

// UpdatePositionResponse acknowledges a position write with the stored row.
type UpdatePositionResponse struct {
	Message          string           `json:"message"`
	PlaybackPosition PlaybackPosition `json:"playbackPosition"`
}

// SyncDeviceResponse reports the source row and the row written to the target.
type SyncDeviceResponse struct {
	Message        string           `json:"message"`
	SourcePosition PlaybackPosition `json:"sourcePosition"`
	TargetPosition PlaybackPosition `json:"targetPosition"`
}

// DisconnectResponse acknowledges a device disconnect.
type DisconnectResponse struct {
	Message    string `json:"message"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

// MessageResponse is a bare acknowledgment body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the structured error body returned on every 4xx/5xx.
type ErrorResponse struct {
	Message string `json:"message"`
}
