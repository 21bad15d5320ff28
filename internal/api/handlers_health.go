// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/resona-audio/resona/internal/models"
)

// HealthLive reports that the process is up. No dependency checks.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, models.MessageResponse{Message: "alive"})
}

// HealthReady reports whether the store can serve requests.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database not available", err)
		return
	}
	respondJSON(w, http.StatusOK, models.MessageResponse{Message: "ready"})
}
