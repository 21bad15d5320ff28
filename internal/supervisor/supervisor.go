// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package supervisor wires the server's long-running services into a suture
// supervision tree. A crashing service restarts with backoff instead of
// taking the process down.
package supervisor

import (
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/resona-audio/resona/internal/logging"
)

// TreeConfig holds the restart policy shared by the tree.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64
	// FailureDecay is the rate at which failures decay, in seconds.
	FailureDecay float64
	// FailureBackoff is how long to wait once the threshold is exceeded.
	FailureBackoff time.Duration
	// ShutdownTimeout bounds graceful shutdown of each service.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's stock restart policy.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// NewTree creates the root supervisor with suture events routed to zerolog.
func NewTree(name string, cfg TreeConfig) *suture.Supervisor {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5.0
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30.0
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	return suture.New(name, suture.Spec{
		EventHook:        logEvent,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})
}

// logEvent maps suture lifecycle events onto zerolog levels. Service
// failures are warnings because the tree restarts them; backoff entry is
// the signal that something is persistently broken.
func logEvent(event suture.Event) {
	switch e := event.(type) {
	case suture.EventServiceTerminate:
		logging.Warn().
			Str("supervisor", e.SupervisorName).
			Str("service", e.ServiceName).
			Bool("restarting", e.Restarting).
			Msg("Supervised service terminated")
	case suture.EventServicePanic:
		logging.Error().
			Str("supervisor", e.SupervisorName).
			Str("service", e.ServiceName).
			Str("panic", e.PanicMsg).
			Msg("Supervised service panicked")
	case suture.EventBackoff:
		logging.Warn().
			Str("supervisor", e.SupervisorName).
			Msg("Supervisor entering backoff")
	case suture.EventResume:
		logging.Info().
			Str("supervisor", e.SupervisorName).
			Msg("Supervisor resumed")
	case suture.EventStopTimeout:
		logging.Error().
			Str("supervisor", e.SupervisorName).
			Str("service", e.ServiceName).
			Msg("Supervised service did not stop within timeout")
	default:
		logging.Debug().Str("event", event.String()).Msg("Supervisor event")
	}
}
