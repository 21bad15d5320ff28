// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package main

import (
	"sync"
	"time"

	"github.com/resona-audio/resona/internal/logging"
	"github.com/resona-audio/resona/internal/models"
	"github.com/resona-audio/resona/internal/monitor"
)

// player is a simulated audio player: position advances in real time while
// playing. It stands in for a real playback engine so the agent can exercise
// the full sync loop end to end.
type player struct {
	mu        sync.Mutex
	trackID   int64
	position  float64
	isPlaying bool
	loaded    bool
	advanced  time.Time
}

func newPlayer() *player {
	return &player{}
}

// State implements monitor.Player.
func (p *player) State() (monitor.LocalState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	return monitor.LocalState{
		TrackID:   p.trackID,
		Position:  p.position,
		IsPlaying: p.isPlaying,
	}, p.loaded
}

// Apply implements monitor.Player: remote state replaces local playback.
func (p *player) Apply(pos *models.LatestPosition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trackID = pos.Track.ID
	p.position = pos.Position
	p.isPlaying = pos.IsPlaying
	p.loaded = true
	p.advanced = time.Now()
	logging.Info().
		Int64("track", p.trackID).
		Float64("position", p.position).
		Bool("playing", p.isPlaying).
		Msg("Player state replaced from server")
}

// Play starts (or resumes) playback of a track.
func (p *player) Play(trackID int64, position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trackID = trackID
	p.position = position
	p.isPlaying = true
	p.loaded = true
	p.advanced = time.Now()
}

// Pause freezes the position.
func (p *player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	p.isPlaying = false
}

// advanceLocked moves the play head forward by elapsed wall time.
func (p *player) advanceLocked() {
	now := time.Now()
	if p.isPlaying && !p.advanced.IsZero() {
		p.position += now.Sub(p.advanced).Seconds()
	}
	p.advanced = now
}
