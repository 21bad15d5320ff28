// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/resona-audio/resona/internal/config"
)

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		FailureWindow:  60 * time.Second,
		BreakerStrikes: 3,
		CacheTTL:       60 * time.Second,
		RequestTimeout: 5 * time.Second,
		CriticalPatterns: []string{
			"GET /playback/position",
			"GET /playback/devices",
		},
	}
}

func TestGatewayBlocksAfterStrikes(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := New(srv.URL, testGatewayConfig())

	for i := 0; i < 3; i++ {
		_, err := g.Send(context.Background(), http.MethodPost, "/playback/position", map[string]string{"deviceId": "d1"})
		if KindOf(err) != KindServer {
			t.Fatalf("attempt %d: kind = %v, want KindServer", i+1, KindOf(err))
		}
	}
	if got := atomic.LoadInt64(&hits); got != 3 {
		t.Fatalf("server hits = %d, want 3", got)
	}

	// Fourth call is short-circuited locally.
	_, err := g.Send(context.Background(), http.MethodPost, "/playback/position", nil)
	if KindOf(err) != KindBlocked {
		t.Errorf("blocked call kind = %v, want KindBlocked", KindOf(err))
	}
	if got := atomic.LoadInt64(&hits); got != 3 {
		t.Errorf("server hits after block = %d, want 3 (no network attempt)", got)
	}
}

func TestGatewayServesCachedWhileBlocked(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"trackId":5,"position":30.5}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	g := New(srv.URL, testGatewayConfig())

	// Seed the cache with one healthy critical read.
	resp, err := g.Send(context.Background(), http.MethodGet, "/playback/position", nil)
	if err != nil {
		t.Fatalf("seed request failed: %v", err)
	}
	if resp.FromCache {
		t.Fatal("seed response unexpectedly marked FromCache")
	}

	failing.Store(true)
	for i := 0; i < 3; i++ {
		if _, err := g.Send(context.Background(), http.MethodGet, "/playback/position", nil); err == nil {
			t.Fatalf("attempt %d: expected server failure", i+1)
		}
	}

	// The hard-open critical endpoint now degrades to the cached payload.
	resp, err = g.Send(context.Background(), http.MethodGet, "/playback/position", nil)
	if err != nil {
		t.Fatalf("cache fallback returned error: %v", err)
	}
	if !resp.FromCache {
		t.Error("fallback response not marked FromCache")
	}
	if string(resp.Body) != `{"trackId":5,"position":30.5}` {
		t.Errorf("cached body = %s", resp.Body)
	}
}

func TestGatewayCriticalRequiresReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := New(srv.URL, testGatewayConfig(), WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		if _, err := g.Send(context.Background(), http.MethodGet, "/playback/devices", nil); err == nil {
			t.Fatal("expected server failure")
		}
	}

	// No cached payload exists, so the block surfaces even hours later.
	now = now.Add(6 * time.Hour)
	if _, err := g.Send(context.Background(), http.MethodGet, "/playback/devices", nil); KindOf(err) != KindBlocked {
		t.Errorf("critical pattern kind after hours = %v, want KindBlocked", KindOf(err))
	}

	g.ResetPattern(http.MethodGet, "/playback/devices")
	if _, err := g.Send(context.Background(), http.MethodGet, "/playback/devices", nil); KindOf(err) != KindServer {
		t.Errorf("kind after reset = %v, want KindServer (live attempt)", KindOf(err))
	}
}

func TestGatewayNonCriticalProbeAfterWindow(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusInternalServerError)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := New(srv.URL, testGatewayConfig(), WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		if _, err := g.Send(context.Background(), http.MethodPost, "/playback/update", nil); err == nil {
			t.Fatal("expected server failure")
		}
	}
	if _, err := g.Send(context.Background(), http.MethodPost, "/playback/update", nil); KindOf(err) != KindBlocked {
		t.Fatalf("kind during soft open = %v, want KindBlocked", KindOf(err))
	}

	// After the window a probe goes through; a healthy reply closes the breaker.
	now = now.Add(61 * time.Second)
	status.Store(http.StatusOK)
	resp, err := g.Send(context.Background(), http.MethodPost, "/playback/update", nil)
	if err != nil {
		t.Fatalf("probe after window failed: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("probe status = %d, want 200", resp.Status)
	}
}

func TestGatewayAuthFailureTeardown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var tornDown atomic.Bool
	g := New(srv.URL, testGatewayConfig(), WithAuthFailureHook(func() { tornDown.Store(true) }))
	g.SetToken("expired-token")

	_, err := g.Send(context.Background(), http.MethodGet, "/playback/position", nil)
	if KindOf(err) != KindAuth {
		t.Fatalf("kind = %v, want KindAuth", KindOf(err))
	}
	if !tornDown.Load() {
		t.Error("auth failure hook not invoked")
	}

	// 401s bypass the breaker; the pattern stays open for the next login.
	if _, err := g.Send(context.Background(), http.MethodGet, "/playback/position", nil); KindOf(err) == KindBlocked {
		t.Error("auth failures counted toward the circuit breaker")
	}
}

func TestGatewayClientErrorsUncounted(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusNotFound)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	g := New(srv.URL, testGatewayConfig())

	for i := 0; i < 5; i++ {
		if _, err := g.Send(context.Background(), http.MethodGet, "/playback/position", nil); KindOf(err) != KindNotFound {
			t.Fatalf("kind = %v, want KindNotFound", KindOf(err))
		}
	}
	status.Store(http.StatusBadRequest)
	for i := 0; i < 5; i++ {
		if _, err := g.Send(context.Background(), http.MethodPost, "/playback/update", nil); KindOf(err) != KindValidation {
			t.Fatalf("kind = %v, want KindValidation", KindOf(err))
		}
	}

	// Neither 404 nor 400 streaks trip the breaker.
	status.Store(http.StatusOK)
	if _, err := g.Send(context.Background(), http.MethodGet, "/playback/position", nil); err != nil {
		t.Errorf("healthy call after client errors failed: %v", err)
	}
}

func TestGatewayNetworkFailureCounted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	g := New(srv.URL, testGatewayConfig())

	for i := 0; i < 3; i++ {
		_, err := g.Send(context.Background(), http.MethodPost, "/playback/update", nil)
		if KindOf(err) != KindNetwork {
			t.Fatalf("attempt %d: kind = %v, want KindNetwork", i+1, KindOf(err))
		}
	}
	if _, err := g.Send(context.Background(), http.MethodPost, "/playback/update", nil); KindOf(err) != KindBlocked {
		t.Errorf("kind after three transport failures = %v, want KindBlocked", KindOf(err))
	}
}

func TestGatewayRequestHeaders(t *testing.T) {
	var gotAuth, gotName, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotName = r.Header.Get("X-Device-Name")
		gotType = r.Header.Get("X-Device-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := New(srv.URL, testGatewayConfig(), WithDevice("Living Room", "speaker"))
	g.SetToken("token-1")

	if _, err := g.Send(context.Background(), http.MethodGet, "/playback/position", nil); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if gotAuth != "Bearer token-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotName != "Living Room" || gotType != "speaker" {
		t.Errorf("device headers = %q/%q", gotName, gotType)
	}
}

func TestGatewayErrorUnwrap(t *testing.T) {
	inner := errors.New("dial tcp: connection refused")
	err := &Error{Kind: KindNetwork, Pattern: "GET /x", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Error does not unwrap to the transport error")
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("KindOf reported a kind for a non-gateway error")
	}
}
