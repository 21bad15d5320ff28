// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package main is the entry point for the Resona sync server.
//
// The server owns the authoritative playback state for every user: one row
// per (user, device) pair in DuckDB, overwritten on each report, resolved
// across devices by newest timestamp. Device agents push their position to
// it, pull the resume position after login, and poll it for cross-device
// reconciliation.
//
// # Startup order
//
//  1. Configuration: koanf v2 layering defaults, resona.yaml, RESONA_* env
//  2. Logging: zerolog, JSON or console per config
//  3. Database: DuckDB, schema created on first run
//  4. Auth: HMAC JWT verification (issuance lives elsewhere)
//  5. Supervision: suture tree running the HTTP listener and session reaper
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the listener drains in-flight
// requests within server.shutdown_timeout, then the database closes.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/resona-audio/resona/internal/api"
	"github.com/resona-audio/resona/internal/auth"
	"github.com/resona-audio/resona/internal/config"
	"github.com/resona-audio/resona/internal/database"
	"github.com/resona-audio/resona/internal/logging"
	"github.com/resona-audio/resona/internal/supervisor"
)

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

	logging.Info().
		Str("addr", cfg.Server.Addr).
		Str("db_path", cfg.Database.Path).
		Msg("Starting Resona sync server")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	if cfg.Auth.JWTSecret == "" {
		logging.Fatal().Msg("auth.jwt_secret is required (set RESONA_AUTH_JWT_SECRET)")
	}
	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token verifier")
	}

	handler := api.NewHandler(db)
	router := api.NewRouter(&cfg.Server, handler, verifier)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree("resona", treeCfg)
	tree.Add(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	tree.Add(supervisor.NewReaperService(db, cfg.Sessions.ReapInterval, cfg.Sessions.IdleHorizon))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", cfg.Server.Addr).Msg("Server listening")
	if err := tree.Serve(ctx); err != nil && !isShutdown(err) {
		logging.Fatal().Err(err).Msg("Supervisor tree failed")
	}
	logging.Info().Msg("Server stopped")
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
