// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/resona-audio/resona/internal/auth"
	"github.com/resona-audio/resona/internal/config"
	"github.com/resona-audio/resona/internal/database"
	"github.com/resona-audio/resona/internal/models"
)

// newTestServer wires an in-memory store behind the real router with a static
// token->user mapping.
func newTestServer(t *testing.T) (*httptest.Server, *database.DB) {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	seed := []models.Track{
		{ID: 5, Title: "Night Drive", OwnerID: "user-1", Public: false},
		{ID: 7, Title: "Open Road", OwnerID: "user-2", Public: true},
	}
	for _, tr := range seed {
		if err := db.UpsertTrack(ctx, tr); err != nil {
			t.Fatalf("Failed to seed track: %v", err)
		}
	}

	cfg := config.Default().Server
	router := NewRouter(&cfg, NewHandler(db), auth.StaticVerifier{"token-1": "user-1"})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, db
}

// doJSON issues an authenticated request and decodes the response body.
func doJSON(t *testing.T, srv *httptest.Server, method, path string, body, out interface{}) int {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, srv.URL+path, reqBody)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer token-1")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-Name", "Test Device")
	req.Header.Set("X-Device-Type", "desktop")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode response body: %v", err)
		}
	}
	return resp.StatusCode
}

// TestAuth_MissingToken rejects unauthenticated playback requests with 401.
func TestAuth_MissingToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/playback/position")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}
}

// TestUpdateAndGetPosition covers the write-then-read round trip, including
// the embedded track in the latest-position body.
func TestUpdateAndGetPosition(t *testing.T) {
	srv, _ := newTestServer(t)

	var update models.UpdatePositionResponse
	status := doJSON(t, srv, http.MethodPost, "/playback/position", models.UpdatePositionRequest{
		DeviceID: "device-a", TrackID: 5, Position: 12, IsPlaying: true,
	}, &update)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from position write, got %d", status)
	}
	if update.PlaybackPosition.Position != 12 || !update.PlaybackPosition.IsPlaying {
		t.Errorf("Unexpected stored row: %+v", update.PlaybackPosition)
	}

	var latest models.LatestPosition
	status = doJSON(t, srv, http.MethodGet, "/playback/position?deviceId=device-a", nil, &latest)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from position read, got %d", status)
	}
	if latest.None() {
		t.Fatal("Expected a resumable position")
	}
	if latest.Track.ID != 5 || latest.Position != 12 || latest.DeviceID != "device-a" {
		t.Errorf("Unexpected latest position: %+v", latest)
	}
}

// TestGetPosition_NullObject returns the zero-value body when no rows exist.
func TestGetPosition_NullObject(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]json.RawMessage
	status := doJSON(t, srv, http.MethodGet, "/playback/position", nil, &body)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if string(body["track"]) != "null" {
		t.Errorf("Expected track:null, got %s", body["track"])
	}
	if string(body["position"]) != "0" {
		t.Errorf("Expected position:0, got %s", body["position"])
	}
	if string(body["isPlaying"]) != "false" {
		t.Errorf("Expected isPlaying:false, got %s", body["isPlaying"])
	}
	// No row means no timestamp; the null object must not carry a
	// zero-value date.
	for _, key := range []string{"updatedAt", "deviceId"} {
		if _, ok := body[key]; ok {
			t.Errorf("Null-object body carries %s: %s", key, body[key])
		}
	}
}

// TestUpdatePosition_UnknownTrack maps a missing track to 404.
func TestUpdatePosition_UnknownTrack(t *testing.T) {
	srv, _ := newTestServer(t)

	var errBody models.ErrorResponse
	status := doJSON(t, srv, http.MethodPost, "/playback/position", models.UpdatePositionRequest{
		DeviceID: "device-a", TrackID: 999, Position: 1, IsPlaying: false,
	}, &errBody)
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown track, got %d", status)
	}
	if errBody.Message == "" {
		t.Error("Expected structured error body with message")
	}
}

// TestUpdatePosition_Validation rejects missing fields and negative positions.
func TestUpdatePosition_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		req  models.UpdatePositionRequest
	}{
		{"missing device", models.UpdatePositionRequest{TrackID: 5, Position: 1}},
		{"missing track", models.UpdatePositionRequest{DeviceID: "device-a", Position: 1}},
		{"negative position", models.UpdatePositionRequest{DeviceID: "device-a", TrackID: 5, Position: -3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status := doJSON(t, srv, http.MethodPost, "/playback/position", tc.req, nil)
			if status != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", status)
			}
		})
	}
}

// TestSyncDevice copies state across devices; a later device-scoped read
// returns exactly the source's values.
func TestSyncDevice(t *testing.T) {
	srv, db := newTestServer(t)

	status := doJSON(t, srv, http.MethodPost, "/playback/position", models.UpdatePositionRequest{
		DeviceID: "device-a", TrackID: 5, Position: 33.5, IsPlaying: true,
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("Seed write failed with %d", status)
	}

	var sync models.SyncDeviceResponse
	status = doJSON(t, srv, http.MethodPost, "/playback/sync", models.SyncDeviceRequest{
		SourceDeviceID: "device-a", TargetDeviceID: "device-b",
	}, &sync)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from sync, got %d", status)
	}
	if sync.TargetPosition.TrackID != 5 || sync.TargetPosition.Position != 33.5 || !sync.TargetPosition.IsPlaying {
		t.Errorf("Target position does not mirror source: %+v", sync.TargetPosition)
	}

	got, err := db.PositionForDevice(context.Background(), "user-1", "device-b")
	if err != nil {
		t.Fatalf("Failed to read target row: %v", err)
	}
	if got.TrackID != 5 || got.Position != 33.5 || !got.IsPlaying {
		t.Errorf("Stored target row mismatch: %+v", got)
	}
}

// TestSyncDevice_MissingSource maps a sourceless sync to 404.
func TestSyncDevice_MissingSource(t *testing.T) {
	srv, _ := newTestServer(t)

	status := doJSON(t, srv, http.MethodPost, "/playback/sync", models.SyncDeviceRequest{
		SourceDeviceID: "ghost", TargetDeviceID: "device-b",
	}, nil)
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for missing source, got %d", status)
	}
}

// TestDisconnect covers the 400/404/200 surface of POST /playback/disconnect.
func TestDisconnect(t *testing.T) {
	srv, _ := newTestServer(t)

	// Missing deviceId.
	status := doJSON(t, srv, http.MethodPost, "/playback/disconnect", models.DisconnectRequest{}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing deviceId, got %d", status)
	}

	// Unknown device.
	status = doJSON(t, srv, http.MethodPost, "/playback/disconnect", models.DisconnectRequest{DeviceID: "ghost"}, nil)
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown device, got %d", status)
	}

	// Known device: the position write registers the session as a side effect.
	status = doJSON(t, srv, http.MethodPost, "/playback/position", models.UpdatePositionRequest{
		DeviceID: "device-a", TrackID: 5, Position: 10, IsPlaying: true,
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("Seed write failed with %d", status)
	}

	var resp models.DisconnectResponse
	status = doJSON(t, srv, http.MethodPost, "/playback/disconnect", models.DisconnectRequest{DeviceID: "device-a"}, &resp)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from disconnect, got %d", status)
	}
	if resp.DeviceID != "device-a" || resp.DeviceName != "Test Device" {
		t.Errorf("Unexpected disconnect body: %+v", resp)
	}
}

// TestActiveSessions lists only playing devices.
func TestActiveSessions(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, d := range []struct {
		id      string
		playing bool
	}{{"device-a", true}, {"device-b", false}} {
		status := doJSON(t, srv, http.MethodPost, "/playback/position", models.UpdatePositionRequest{
			DeviceID: d.id, TrackID: 5, Position: 10, IsPlaying: d.playing,
		}, nil)
		if status != http.StatusOK {
			t.Fatalf("Seed write failed with %d", status)
		}
	}

	var rows []models.DeviceRow
	status := doJSON(t, srv, http.MethodGet, "/playback/active-sessions", nil, &rows)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if len(rows) != 1 || rows[0].Position.DeviceID != "device-a" {
		t.Errorf("Expected only device-a to be active, got %+v", rows)
	}

	var all []models.DeviceRow
	status = doJSON(t, srv, http.MethodGet, "/playback/devices", nil, &all)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 device rows, got %d", len(all))
	}
	for _, row := range all {
		if row.Track == nil {
			t.Error("Expected embedded track on device rows")
		}
	}
}

// TestReset acknowledges without state changes.
func TestReset(t *testing.T) {
	srv, _ := newTestServer(t)

	var resp models.MessageResponse
	status := doJSON(t, srv, http.MethodPost, "/playback/reset", nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if resp.Message == "" {
		t.Error("Expected acknowledgment message")
	}
}
