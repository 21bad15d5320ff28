// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resona-audio/resona/internal/auth"
	"github.com/resona-audio/resona/internal/config"
	"github.com/resona-audio/resona/internal/middleware"
)

// NewRouter assembles the HTTP routes.
//
// Middleware order: request ID first so everything downstream logs it, then
// recovery, CORS (must be global to answer OPTIONS preflight), rate limiting,
// metrics, and finally bearer auth on the playback routes.
func NewRouter(cfg *config.ServerConfig, handler *Handler, verifier auth.Verifier) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", "X-Device-Name", "X-Device-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints stay unauthenticated and outside the rate budget so
	// orchestration probes never compete with clients.
	r.Route("/healthz", func(r chi.Router) {
		r.Get("/live", handler.HealthLive)
		r.Get("/ready", handler.HealthReady)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/playback", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
		r.Use(middleware.Prometheus)
		r.Use(auth.Middleware(verifier))

		r.Get("/position", handler.GetPosition)
		r.Post("/position", handler.UpdatePosition)
		r.Get("/devices", handler.ListDevices)
		r.Post("/sync", handler.SyncDevice)
		r.Post("/disconnect", handler.Disconnect)
		r.Get("/active-sessions", handler.ActiveSessions)
		r.Post("/reset", handler.Reset)
	})

	return r
}
