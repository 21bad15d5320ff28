// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package api

import (
	"net/http"

	"github.com/resona-audio/resona/internal/auth"
	"github.com/resona-audio/resona/internal/database"
	"github.com/resona-audio/resona/internal/logging"
	"github.com/resona-audio/resona/internal/models"
)

// Handler serves the playback sync endpoints.
type Handler struct {
	db *database.DB
}

// NewHandler creates a Handler backed by the given store.
func NewHandler(db *database.DB) *Handler {
	return &Handler{db: db}
}

// Device metadata headers set by clients on every request. Used to keep the
// session registry fresh without a dedicated registration endpoint.
const (
	headerDeviceName = "X-Device-Name"
	headerDeviceType = "X-Device-Type"
)

// touchSession refreshes the caller's device session when the request
// identifies a device. Failures are logged, never surfaced: session upkeep
// must not fail the playback operation it rides on.
func (h *Handler) touchSession(r *http.Request, userID, deviceID string) {
	if deviceID == "" {
		return
	}
	_, err := h.db.UpsertSession(r.Context(), userID, deviceID,
		r.Header.Get(headerDeviceName), r.Header.Get(headerDeviceType))
	if err != nil {
		log := logging.Ctx(r.Context())
		log.Warn().Err(err).Str("device", deviceID).Msg("Failed to refresh device session")
	}
}

// GetPosition returns the user's most recent playback position across all
// devices, restricted to tracks the user may see.
//
// Method: GET
// Path: /playback/position?deviceId=<id>
//
// Response:
//   - 200: latest position, or {track:null, position:0, isPlaying:false}
//     when the user has no resumable position
//   - 500: store failure
//
// The optional deviceId query parameter identifies the calling device and
// refreshes its session.
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.touchSession(r, userID, r.URL.Query().Get("deviceId"))

	latest, err := h.db.LatestPosition(r.Context(), userID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, latest)
}

// UpdatePosition records a device's playback position. Always a full
// overwrite of the (user, device) row.
//
// Method: POST
// Path: /playback/position
//
// Response:
//   - 200: {message, playbackPosition}
//   - 400: missing fields or negative position
//   - 404: unknown track
func (h *Handler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req models.UpdatePositionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	userID := auth.UserID(r.Context())
	h.touchSession(r, userID, req.DeviceID)

	pos, err := h.db.UpdatePosition(r.Context(), userID, req.DeviceID, req.TrackID, req.Position, req.IsPlaying)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.UpdatePositionResponse{
		Message:          "playback position updated",
		PlaybackPosition: pos,
	})
}

// ListDevices returns every playback row for the user with device metadata
// and the embedded track.
//
// Method: GET
// Path: /playback/devices
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.ListDevices(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// SyncDevice copies one device's playback state onto another.
//
// Method: POST
// Path: /playback/sync
//
// Response:
//   - 200: {message, sourcePosition, targetPosition}
//   - 400: missing or identical device ids
//   - 404: source device has no recorded position
func (h *Handler) SyncDevice(w http.ResponseWriter, r *http.Request) {
	var req models.SyncDeviceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	userID := auth.UserID(r.Context())
	source, target, err := h.db.SyncDevice(r.Context(), userID, req.SourceDeviceID, req.TargetDeviceID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	log := logging.Ctx(r.Context())
	log.Info().
		Str("source", req.SourceDeviceID).
		Str("target", req.TargetDeviceID).
		Msg("Device sync applied")

	respondJSON(w, http.StatusOK, models.SyncDeviceResponse{
		Message:        "device synchronized",
		SourcePosition: source,
		TargetPosition: target,
	})
}

// Disconnect clears a device's playing flag and deactivates its session.
// Track and position stay untouched.
//
// Method: POST
// Path: /playback/disconnect
//
// Response:
//   - 200: {message, deviceId, deviceName}
//   - 400: missing deviceId
//   - 404: unknown device
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	var req models.DisconnectRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session, err := h.db.DisconnectDevice(r.Context(), auth.UserID(r.Context()), req.DeviceID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.DisconnectResponse{
		Message:    "device disconnected",
		DeviceID:   session.DeviceID,
		DeviceName: session.DeviceName,
	})
}

// ActiveSessions returns rows with isPlaying=true joined with device metadata.
//
// Method: GET
// Path: /playback/active-sessions
func (h *Handler) ActiveSessions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.ActiveSessions(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// Reset acknowledges a client-side sync reset. Purely informational: the
// client clears its local resume marker and tells the server for the audit
// trail; no server-side state changes.
//
// Method: POST
// Path: /playback/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	log := logging.Ctx(r.Context())
	log.Info().Str("user", auth.UserID(r.Context())).Msg("Sync state reset")
	respondJSON(w, http.StatusOK, models.MessageResponse{Message: "sync state reset acknowledged"})
}
