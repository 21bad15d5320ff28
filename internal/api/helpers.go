// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package api provides the HTTP surface of the playback sync subsystem.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/resona-audio/resona/internal/database"
	"github.com/resona-audio/resona/internal/logging"
	"github.com/resona-audio/resona/internal/models"
)

// validate is the shared validator instance; validator instances cache struct
// metadata and are designed to be reused.
var validate = validator.New(validator.WithRequiredStructEnabled())

// respondJSON writes a JSON body with proper headers.
func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(body)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondError writes the standard {message} error body and logs server-side
// failures.
func respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil && status >= http.StatusInternalServerError {
		logging.Error().Err(err).Int("status", status).Msg("API error")
	}
	respondJSON(w, status, models.ErrorResponse{Message: message})
}

// respondStoreError maps store errors to the API taxonomy: NotFound conditions
// become 404s, invariant violations 400s, everything else a 500.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrTrackNotFound):
		respondError(w, http.StatusNotFound, "track not found", nil)
	case errors.Is(err, database.ErrDeviceNotFound):
		respondError(w, http.StatusNotFound, "device not found", nil)
	case errors.Is(err, database.ErrPositionNotFound):
		respondError(w, http.StatusNotFound, "no playback position recorded for source device", nil)
	case errors.Is(err, database.ErrInvalidPosition):
		respondError(w, http.StatusBadRequest, "position must not be negative", nil)
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// decodeAndValidate parses the request body into dst and runs validator tags.
// A false return means the error response has already been written.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err), nil)
		return false
	}
	return true
}

// validationMessage flattens validator errors into the {message} body.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fields = append(fields, fmt.Sprintf("%s is required", fieldName(fe.Field())))
		case "gte":
			fields = append(fields, fmt.Sprintf("%s must be >= %s", fieldName(fe.Field()), fe.Param()))
		case "nefield":
			fields = append(fields, fmt.Sprintf("%s must differ from %s", fieldName(fe.Field()), fieldName(fe.Param())))
		default:
			fields = append(fields, fmt.Sprintf("%s is invalid", fieldName(fe.Field())))
		}
	}
	return strings.Join(fields, "; ")
}

// fieldName lowercases the struct field's first rune to match the JSON form.
func fieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
