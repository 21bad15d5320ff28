// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package syncclient pushes local playback state to the server and pulls the
// resume position after login. Position reports are debounced: the client
// records the latest state locally and flushes it on a fixed cadence, so rapid
// seeking produces one write per interval, not one per seek.
package syncclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/resona-audio/resona/internal/config"
	"github.com/resona-audio/resona/internal/gateway"
	"github.com/resona-audio/resona/internal/localstate"
	"github.com/resona-audio/resona/internal/logging"
	"github.com/resona-audio/resona/internal/metrics"
	"github.com/resona-audio/resona/internal/models"
)

// Client reports playback state for one device.
type Client struct {
	gw       *gateway.Gateway
	state    *localstate.Store
	cfg      config.SyncConfig
	deviceID string

	mu      sync.Mutex
	last    models.UpdatePositionRequest
	known   bool // last holds a reported state
	dirty   bool // last has not been flushed yet
	flushed time.Time

	now func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a sync client for the given device.
func New(gw *gateway.Gateway, state *localstate.Store, cfg config.SyncConfig, deviceID string, opts ...Option) *Client {
	c := &Client{
		gw:       gw,
		state:    state,
		cfg:      cfg,
		deviceID: deviceID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReportPosition records the player's current state. The report is flushed
// immediately when a full save interval has passed since the last flush, and
// otherwise held for the periodic save. Rapid successive reports therefore
// collapse into the newest one.
func (c *Client) ReportPosition(ctx context.Context, trackID int64, position float64, isPlaying bool) error {
	c.mu.Lock()
	prev, prevKnown := c.last, c.known
	c.last = models.UpdatePositionRequest{
		DeviceID:  c.deviceID,
		TrackID:   trackID,
		Position:  position,
		IsPlaying: isPlaying,
	}
	c.known = true
	c.dirty = true
	due := c.now().Sub(c.flushed) >= c.cfg.SaveInterval
	c.mu.Unlock()

	// Track changes and play/pause toggles bypass the debounce; a plain
	// position advance waits for the save cadence.
	if prevKnown && (prev.TrackID != trackID || prev.IsPlaying != isPlaying) {
		return c.flush(ctx, "forced")
	}
	if !due {
		return nil
	}
	return c.flush(ctx, "interval")
}

// Flush pushes the pending state now, regardless of the save interval.
func (c *Client) Flush(ctx context.Context) error {
	return c.flush(ctx, "manual")
}

func (c *Client) flush(ctx context.Context, trigger string) error {
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return nil
	}
	req := c.last
	c.mu.Unlock()

	_, err := c.gw.Send(ctx, http.MethodPost, "/playback/position", req)
	if err != nil {
		// Pending state stays dirty; the next cycle retries with
		// whatever is newest by then.
		return fmt.Errorf("failed to flush playback position: %w", err)
	}

	c.mu.Lock()
	// A newer report may have landed mid-flight; only mark clean when the
	// flushed snapshot is still current.
	if c.last == req {
		c.dirty = false
	}
	c.flushed = c.now()
	c.mu.Unlock()

	metrics.SyncFlushes.WithLabelValues(trigger).Inc()
	return nil
}

// FlushOnExit sends the final state from a detached goroutine and returns
// immediately. The payload always carries isPlaying=false: a process that is
// exiting is not playing, whatever the last report said. Teardown never waits
// on this send and its loss is tolerated.
func (c *Client) FlushOnExit() {
	c.mu.Lock()
	if !c.known {
		c.mu.Unlock()
		return
	}
	req := c.last
	req.IsPlaying = false
	c.dirty = false
	c.mu.Unlock()

	metrics.SyncFlushes.WithLabelValues("exit").Inc()
	c.gw.SendDetached(http.MethodPost, "/playback/position", req, c.cfg.ExitFlushTimeout)
}

// StartPeriodicSave begins the background flush loop and returns a stop
// function. Flush errors are logged and retried on the next tick.
func (c *Client) StartPeriodicSave() (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.cfg.SaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.flush(context.Background(), "periodic"); err != nil {
					logging.Debug().Err(err).Msg("Periodic position flush failed")
				}
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// FetchLastPosition retrieves the user's most recent position across all
// devices. A nil Track in the result means there is nothing to resume.
func (c *Client) FetchLastPosition(ctx context.Context) (*models.LatestPosition, error) {
	path := "/playback/position?deviceId=" + url.QueryEscape(c.deviceID)
	resp, err := c.gw.Send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch last position: %w", err)
	}

	var pos models.LatestPosition
	if err := resp.Decode(&pos); err != nil {
		return nil, err
	}
	if resp.FromCache {
		logging.Debug().Msg("Resume position served from stale cache")
	}
	return &pos, nil
}

// SyncFromDevice copies the named device's server-side state onto this device
// and returns the row that was written. Callers should suspend the
// reconciliation monitor for the duration so a concurrent poll does not fight
// the incoming state.
func (c *Client) SyncFromDevice(ctx context.Context, sourceDeviceID string) (*models.PlaybackPosition, error) {
	req := models.SyncDeviceRequest{SourceDeviceID: sourceDeviceID, TargetDeviceID: c.deviceID}
	resp, err := c.gw.Send(ctx, http.MethodPost, "/playback/sync", req)
	if err != nil {
		return nil, fmt.Errorf("failed to sync from device %s: %w", sourceDeviceID, err)
	}

	var out models.SyncDeviceResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	logging.Info().
		Str("source_device", sourceDeviceID).
		Int64("track_id", out.TargetPosition.TrackID).
		Msg("Adopted playback state from another device")
	return &out.TargetPosition, nil
}

// BeginSession marks the client as syncing for userID and performs the
// one-time resume fetch. The fetch runs only when the durable marker names a
// different user (or none): re-triggering login flows for the same user must
// not re-fetch and yank playback backward.
func (c *Client) BeginSession(ctx context.Context, userID string) (*models.LatestPosition, error) {
	current, err := c.state.CurrentSyncUser()
	if err != nil && !errors.Is(err, localstate.ErrNotFound) {
		return nil, err
	}
	if err == nil && current == userID {
		return nil, nil
	}

	if err := c.state.SetCurrentSyncUser(userID); err != nil {
		return nil, fmt.Errorf("failed to record sync user: %w", err)
	}

	pos, err := c.FetchLastPosition(ctx)
	if err != nil {
		// The marker stays set: the session is established even when the
		// resume fetch degrades. The monitor reconciles later.
		logging.Warn().Err(err).Msg("Resume fetch failed, continuing without restore")
		return nil, nil
	}
	if pos.None() {
		return nil, nil
	}
	return pos, nil
}

// Logout runs the ordered teardown: push the final paused state, clear the
// resume marker and notify the logical reset, mark this device's session
// inactive, then clear credentials. The order matters and every step is best
// effort; a dead server must not wedge logout.
func (c *Client) Logout(ctx context.Context) {
	c.mu.Lock()
	req := c.last
	known := c.known
	c.mu.Unlock()

	if known {
		req.IsPlaying = false
		if _, err := c.gw.Send(ctx, http.MethodPost, "/playback/position", req); err != nil {
			logging.Warn().Err(err).Msg("Final flush during logout failed")
		} else {
			metrics.SyncFlushes.WithLabelValues("logout").Inc()
		}
	}

	c.Reset(ctx)

	disconnect := models.DisconnectRequest{DeviceID: c.deviceID}
	if _, err := c.gw.Send(ctx, http.MethodPost, "/playback/disconnect", disconnect); err != nil {
		logging.Warn().Err(err).Msg("Disconnect notification during logout failed")
	}

	if err := c.state.ClearToken(); err != nil {
		logging.Warn().Err(err).Msg("Failed to clear stored token")
	}
	c.gw.ClearToken()
}

// Reset clears the session marker and pending local state, then best-effort
// notifies the server of the logical reset. It never fails: a lost
// notification costs nothing, the server holds no per-session sync state.
func (c *Client) Reset(ctx context.Context) {
	c.mu.Lock()
	c.last = models.UpdatePositionRequest{}
	c.known = false
	c.dirty = false
	c.mu.Unlock()

	if err := c.state.ClearCurrentSyncUser(); err != nil {
		logging.Warn().Err(err).Msg("Failed to clear sync user marker")
	}

	if _, err := c.gw.Send(ctx, http.MethodPost, "/playback/reset", nil); err != nil {
		logging.Debug().Err(err).Msg("Reset notification failed")
	}
}

// DeviceID returns the device this client reports for.
func (c *Client) DeviceID() string {
	return c.deviceID
}
