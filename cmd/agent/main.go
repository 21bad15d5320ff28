// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package main is the Resona device agent, the reference client runtime.
//
// The agent wires the client-side pieces together around a simulated player:
//
//   - localstate: durable device identity, token, and resume marker (BadgerDB)
//   - gateway: circuit-broken outbound requests with stale-cache fallback
//   - syncclient: debounced position reports and the login resume fetch
//   - monitor: periodic reconciliation against the server, remote wins
//
// On startup it restores the user's last position (once per login), then
// reports playback on the save cadence while the monitor corrects drift. On
// SIGINT/SIGTERM it fires the detached exit flush, always paused, and leaves.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/resona-audio/resona/internal/config"
	"github.com/resona-audio/resona/internal/gateway"
	"github.com/resona-audio/resona/internal/localstate"
	"github.com/resona-audio/resona/internal/logging"
	"github.com/resona-audio/resona/internal/models"
	"github.com/resona-audio/resona/internal/monitor"
	"github.com/resona-audio/resona/internal/syncclient"
)

const reportInterval = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	state, err := localstate.Open(cfg.Client.StatePath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open local state store")
	}
	defer func() {
		if err := state.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing local state store")
		}
	}()

	deviceID, err := state.DeviceID()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to resolve device identity")
	}

	deviceName := cfg.Client.DeviceName
	if deviceName == "" {
		if host, err := os.Hostname(); err == nil {
			deviceName = host
		} else {
			deviceName = "resona-agent"
		}
	}
	if err := state.SetDeviceInfo(deviceName, cfg.Client.DeviceType); err != nil {
		logging.Warn().Err(err).Msg("Failed to persist device info")
	}

	token, err := resolveToken(cfg, state)
	if err != nil {
		logging.Fatal().Err(err).Msg("No credentials available (set RESONA_CLIENT_TOKEN)")
	}
	userID, err := tokenSubject(token)
	if err != nil {
		logging.Fatal().Err(err).Msg("Bearer token carries no subject")
	}

	gw := gateway.New(cfg.Client.ServerURL, cfg.Gateway,
		gateway.WithDevice(deviceName, cfg.Client.DeviceType),
		gateway.WithAuthFailureHook(func() {
			// Server rejected our token; drop it so the next start
			// demands a fresh login.
			if err := state.ClearToken(); err != nil {
				logging.Warn().Err(err).Msg("Failed to clear rejected token")
			}
			logging.Error().Msg("Credentials rejected by server, re-login required")
		}),
	)
	gw.SetToken(token)

	client := syncclient.New(gw, state, cfg.Sync, deviceID)
	play := newPlayer()
	mon := monitor.New(client, play, cfg.Monitor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("server", cfg.Client.ServerURL).
		Str("device_id", deviceID).
		Str("device_name", deviceName).
		Msg("Starting Resona device agent")

	// One-time resume: only when this login is for a new user.
	if pos, err := client.BeginSession(ctx, userID); err != nil {
		logging.Warn().Err(err).Msg("Failed to establish sync session")
	} else if pos != nil {
		play.Apply(pos)
		if pos.IsPlaying {
			play.Play(pos.Track.ID, pos.Position)
		}
	}

	// Explicit adoption of another device's state overrides the resume
	// position. The monitor stays suspended for the duration so a poll
	// cannot race the handoff.
	if cfg.Client.SyncFrom != "" {
		mon.Suspend()
		if target, err := client.SyncFromDevice(ctx, cfg.Client.SyncFrom); err != nil {
			logging.Warn().Str("source_device", cfg.Client.SyncFrom).Err(err).Msg("Device sync failed")
		} else {
			play.Apply(&models.LatestPosition{
				Track:     &models.Track{ID: target.TrackID},
				Position:  target.Position,
				IsPlaying: target.IsPlaying,
			})
			if target.IsPlaying {
				play.Play(target.TrackID, target.Position)
			}
		}
		mon.Resume()
	}

	mon.Start(ctx)
	defer mon.Stop()
	stopSave := client.StartPeriodicSave()
	defer stopSave()

	run(ctx, play, client, mon)

	// Teardown: the exit flush is detached and always reports paused. Give
	// the goroutine a moment to hand the request to the kernel before the
	// process exits; its outcome is not awaited.
	client.FlushOnExit()
	time.Sleep(200 * time.Millisecond)
	logging.Info().Msg("Agent stopped")
}

// run feeds player state into the sync client until shutdown.
func run(ctx context.Context, play *player, client *syncclient.Client, mon *monitor.Monitor) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			local, ok := play.State()
			if !ok {
				continue
			}
			mon.NotifyPlayback(local.IsPlaying)
			if err := client.ReportPosition(ctx, local.TrackID, local.Position, local.IsPlaying); err != nil {
				logging.Debug().Err(err).Msg("Position report failed")
			}
		}
	}
}

// resolveToken prefers the configured token, falling back to the stored one.
func resolveToken(cfg *config.Config, state *localstate.Store) (string, error) {
	if cfg.Client.Token != "" {
		if err := state.SetToken(cfg.Client.Token); err != nil {
			logging.Warn().Err(err).Msg("Failed to persist token")
		}
		return cfg.Client.Token, nil
	}
	return state.Token()
}

// tokenSubject extracts the user ID from the token's sub claim without
// verifying the signature; verification is the server's job, the agent only
// needs to know which user it is syncing for.
func tokenSubject(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject claim")
	}
	return sub, nil
}
