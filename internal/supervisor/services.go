// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/resona-audio/resona/internal/logging"
)

// HTTPServer matches *http.Server's lifecycle methods, letting tests
// supervise a mock instead of a real listener.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService adapts an HTTP server's blocking ListenAndServe to suture's
// context-driven Serve contract.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server as a supervised service.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. It returns nil on graceful shutdown;
// http.ErrServerClosed is the expected listener result in that case.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return ctx.Err()
	}
}

func (s *HTTPService) String() string { return "http-server" }

// SessionReaper marks idle device sessions inactive. *database.DB satisfies
// this through ReapIdleSessions.
type SessionReaper interface {
	ReapIdleSessions(ctx context.Context, horizon time.Duration) (int64, error)
}

// ReaperService periodically sweeps idle device sessions.
type ReaperService struct {
	reaper   SessionReaper
	interval time.Duration
	horizon  time.Duration
}

// NewReaperService creates the session reaper service.
func NewReaperService(reaper SessionReaper, interval, horizon time.Duration) *ReaperService {
	return &ReaperService{reaper: reaper, interval: interval, horizon: horizon}
}

// Serve implements suture.Service.
func (r *ReaperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			reaped, err := r.reaper.ReapIdleSessions(ctx, r.horizon)
			if err != nil {
				logging.Warn().Err(err).Msg("Session reap failed")
				continue
			}
			if reaped > 0 {
				logging.Info().Int64("sessions", reaped).Msg("Reaped idle device sessions")
			}
		}
	}
}

func (r *ReaperService) String() string { return "session-reaper" }
