// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package gateway wraps all outbound client calls with per-endpoint failure
// accounting, circuit breaking, and stale-cache degradation.
//
// Every request is attributed to a logical endpoint pattern (method plus path
// with identifier segments wildcarded). Failures accumulate per pattern in a
// sliding window; at the strike threshold the pattern is blocked. Critical
// patterns hard-open and require an explicit reset, non-critical patterns
// soft-open for one window and then admit a probe. While a pattern is
// blocked, a fresh cached success is served in place of a live call.
//
// The gateway never retries on its own; result kinds are tagged so callers
// can tell a genuine failure from a cache-served degradation or a local
// block.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/resona-audio/resona/internal/config"
	"github.com/resona-audio/resona/internal/logging"
	"github.com/resona-audio/resona/internal/metrics"
)

// Kind classifies a gateway failure.
type Kind int

const (
	// KindNetwork is a transport-level failure; counted toward the breaker.
	KindNetwork Kind = iota + 1
	// KindServer is a 5xx response; counted toward the breaker.
	KindServer
	// KindNotFound is a 404; surfaced, never retried, never counted.
	KindNotFound
	// KindValidation is a 400; the payload is wrong, retrying cannot help.
	KindValidation
	// KindAuth is a 401 from a non-auth endpoint; triggers credential
	// teardown and bypasses the breaker entirely.
	KindAuth
	// KindBlocked is a client-synthesized block; no network round-trip
	// was performed.
	KindBlocked
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network_error"
	case KindServer:
		return "server_error"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth_error"
	case KindBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Error is a tagged gateway failure.
type Error struct {
	Kind    Kind
	Pattern string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s on %s: %v", e.Kind, e.Pattern, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("gateway: %s on %s (status %d)", e.Kind, e.Pattern, e.Status)
	}
	return fmt.Sprintf("gateway: %s on %s", e.Kind, e.Pattern)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or 0 when err is not a gateway error.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return 0
}

// Response is a successful (possibly degraded) gateway result.
type Response struct {
	// Status is the HTTP status, or 0 for a cache-served response.
	Status int
	// Body is the response payload.
	Body []byte
	// FromCache marks a stale-but-available degradation; callers should
	// treat the payload as possibly outdated.
	FromCache bool
}

// Decode unmarshals the response body into dst.
func (r *Response) Decode(dst interface{}) error {
	if err := json.Unmarshal(r.Body, dst); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Gateway is the resilient request client. Its failure and cache maps live
// for the process run; tests create isolated instances.
type Gateway struct {
	baseURL    string
	cfg        config.GatewayConfig
	httpClient *http.Client
	failures   *FailureTracker
	cache      *ResponseCache
	critical   map[string]bool

	mu         sync.RWMutex
	token      string
	deviceName string
	deviceType string

	// onAuthFailure runs once per 401 to tear down local credentials.
	onAuthFailure func()

	// now is injectable for window tests.
	now func() time.Time
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithHTTPClient substitutes the transport.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithAuthFailureHook installs the credential-teardown hook invoked on 401.
func WithAuthFailureHook(hook func()) Option {
	return func(g *Gateway) { g.onAuthFailure = hook }
}

// WithDevice sets the device metadata headers sent on every request.
func WithDevice(name, deviceType string) Option {
	return func(g *Gateway) {
		g.deviceName = name
		g.deviceType = deviceType
	}
}

// New creates a Gateway for the given server.
func New(baseURL string, cfg config.GatewayConfig, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		failures:   NewFailureTracker(cfg.FailureWindow),
		cache:      NewResponseCache(cfg.CacheTTL),
		critical:   make(map[string]bool, len(cfg.CriticalPatterns)),
		now:        time.Now,
	}
	for _, p := range cfg.CriticalPatterns {
		g.critical[p] = true
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetToken installs the bearer token used on subsequent requests.
func (g *Gateway) SetToken(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = token
}

// ClearToken drops the bearer token.
func (g *Gateway) ClearToken() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = ""
}

// ResetPattern clears a pattern's failure record, reopening a hard-blocked
// critical endpoint. This is the explicit reset the hard open requires.
func (g *Gateway) ResetPattern(method, path string) {
	g.failures.Clear(Pattern(method, path))
}

// Send performs one request. It never retries; the returned error's Kind
// tells the caller whether the failure was a real one, a local block, or
// bypassed circuit logic entirely (auth).
func (g *Gateway) Send(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	pattern := Pattern(method, path)
	now := g.now()

	if g.failures.Blocked(pattern, now, g.cfg.BreakerStrikes, g.critical[pattern]) {
		// Degrade to the cached payload when one is fresh enough.
		if payload, ok := g.cache.Get(pattern, now); ok {
			metrics.GatewayRequests.WithLabelValues(pattern, "cached").Inc()
			logging.Debug().Str("pattern", pattern).Msg("Serving cached response for blocked endpoint")
			return &Response{Body: payload, FromCache: true}, nil
		}
		metrics.GatewayRequests.WithLabelValues(pattern, "blocked").Inc()
		return nil, &Error{Kind: KindBlocked, Pattern: pattern}
	}

	resp, err := g.roundTrip(ctx, method, path, body)
	if err != nil {
		g.recordFailure(pattern, KindNetwork)
		return nil, &Error{Kind: KindNetwork, Pattern: pattern, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("Failed to close response body")
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		g.recordFailure(pattern, KindNetwork)
		return nil, &Error{Kind: KindNetwork, Pattern: pattern, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && !isAuthPath(path):
		// Global credential teardown; bypasses retry/circuit logic.
		metrics.GatewayRequests.WithLabelValues(pattern, "auth_error").Inc()
		if g.onAuthFailure != nil {
			g.onAuthFailure()
		}
		g.ClearToken()
		return nil, &Error{Kind: KindAuth, Pattern: pattern, Status: resp.StatusCode}

	case resp.StatusCode == http.StatusNotFound:
		metrics.GatewayRequests.WithLabelValues(pattern, "not_found").Inc()
		return nil, &Error{Kind: KindNotFound, Pattern: pattern, Status: resp.StatusCode}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		metrics.GatewayRequests.WithLabelValues(pattern, "validation").Inc()
		return nil, &Error{Kind: KindValidation, Pattern: pattern, Status: resp.StatusCode}

	case resp.StatusCode >= 500:
		g.recordFailure(pattern, KindServer)
		return nil, &Error{Kind: KindServer, Pattern: pattern, Status: resp.StatusCode}
	}

	// Success clears the counter; critical patterns refresh their fallback.
	g.failures.Clear(pattern)
	if g.critical[pattern] {
		g.cache.Put(pattern, payload, g.now())
	}
	metrics.GatewayRequests.WithLabelValues(pattern, "ok").Inc()
	metrics.GatewayBlockedPatterns.Set(float64(g.failures.BlockedPatterns(g.cfg.BreakerStrikes)))

	return &Response{Status: resp.StatusCode, Body: payload}, nil
}

// SendDetached issues the request from a detached goroutine with its own
// timeout and returns immediately. Callers cannot observe the outcome; this
// is the exit-flush path, where teardown must not wait on the network. Loss
// is accepted: Go has no equivalent of a host-guaranteed beacon send.
func (g *Gateway) SendDetached(method, path string, body interface{}, timeout time.Duration) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := g.Send(ctx, method, path, body); err != nil {
			logging.Debug().Err(err).Str("path", path).Msg("Detached send failed")
		}
	}()
}

// roundTrip builds and executes the HTTP request.
func (g *Gateway) roundTrip(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	g.mu.RLock()
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if g.deviceName != "" {
		req.Header.Set("X-Device-Name", g.deviceName)
	}
	if g.deviceType != "" {
		req.Header.Set("X-Device-Type", g.deviceType)
	}
	g.mu.RUnlock()

	return g.httpClient.Do(req)
}

// recordFailure advances the pattern's counter and updates metrics.
func (g *Gateway) recordFailure(pattern string, kind Kind) {
	count := g.failures.Record(pattern, g.now())
	metrics.GatewayRequests.WithLabelValues(pattern, kind.String()).Inc()
	metrics.GatewayBlockedPatterns.Set(float64(g.failures.BlockedPatterns(g.cfg.BreakerStrikes)))
	if count >= g.cfg.BreakerStrikes {
		logging.Warn().Str("pattern", pattern).Int("failures", count).Msg("Endpoint blocked by circuit breaker")
	}
}

// isAuthPath reports whether the path belongs to the auth flow; 401s from
// those endpoints mean bad credentials mid-login, not an expired session.
func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/auth/")
}
