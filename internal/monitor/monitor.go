// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package monitor reconciles local playback against the server while audio is
// playing. It polls the server's cross-device position on a fixed cadence and
// applies remote state whenever the two have drifted apart; the server always
// wins.
//
// The monitor is a three-state machine. Idle while nothing is playing,
// Polling during active playback, and Disabled after repeated poll failures.
// Disabled is temporary: a circuit breaker holds the monitor off for a
// cooldown, then polling resumes with the failure count cleared, so it takes
// a full fresh run of consecutive failures to disable again.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/resona-audio/resona/internal/config"
	"github.com/resona-audio/resona/internal/logging"
	"github.com/resona-audio/resona/internal/metrics"
	"github.com/resona-audio/resona/internal/models"
)

// State is the monitor's lifecycle state.
type State int

const (
	// StateIdle means no playback is active; the monitor does not poll.
	StateIdle State = iota
	// StatePolling means playback is active and reconciliation runs.
	StatePolling
	// StateDisabled means repeated failures tripped the breaker; polling
	// is suspended for the cooldown.
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// LocalState is the player's current snapshot.
type LocalState struct {
	TrackID   int64
	Position  float64
	IsPlaying bool
}

// Player is the local playback surface the monitor reconciles. State returns
// false when nothing is loaded. Apply replaces local playback with the remote
// position; implementations decide how abrupt the switch is.
type Player interface {
	State() (LocalState, bool)
	Apply(pos *models.LatestPosition)
}

// PositionFetcher retrieves the user's latest cross-device position.
// *syncclient.Client satisfies this.
type PositionFetcher interface {
	FetchLastPosition(ctx context.Context) (*models.LatestPosition, error)
}

// errPollBudgetExhausted marks the poll failure that reaches the consecutive
// failure threshold. Only this error opens the breaker; failures below the
// threshold pass through it uncounted, which keeps a single failed poll after
// the cooldown from re-disabling the monitor outright.
var errPollBudgetExhausted = errors.New("consecutive poll failures exhausted")

// Monitor drives periodic reconciliation for one device.
type Monitor struct {
	fetcher PositionFetcher
	player  Player
	cfg     config.MonitorConfig

	cb      *gobreaker.CircuitBreaker[*models.LatestPosition]
	limiter *rate.Limiter

	mu        sync.Mutex
	playing   bool
	suspended bool
	inFlight  bool
	failures  int // consecutive poll failures since the last success or trip
	lastPoll  time.Time
	running   bool
	stopChan  chan struct{}
	pokeChan  chan struct{}
	wg        sync.WaitGroup

	now func() time.Time
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithClock substitutes the time source used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a reconciliation monitor.
func New(fetcher PositionFetcher, player Player, cfg config.MonitorConfig, opts ...Option) *Monitor {
	m := &Monitor{
		fetcher: fetcher,
		player:  player,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.MinPollGap), 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	// The monitor counts consecutive failures itself: the breaker sees an
	// error only when the count reaches the threshold, so below-threshold
	// failures, including the first poll after a cooldown, register as
	// breaker successes and close it again with counting restarted.
	m.cb = gobreaker.NewCircuitBreaker[*models.LatestPosition](gobreaker.Settings{
		Name:        "reconciliation-monitor",
		MaxRequests: 1,
		Timeout:     cfg.DisableCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, errPollBudgetExhausted)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", from.String()).Str("to", to.String()).Msg("Reconciliation breaker state change")
			m.publishState()
		},
	})

	metrics.MonitorState.Set(float64(StateIdle))
	return m
}

// State returns the monitor's current state. Disabled reflects the breaker
// being open; it overrides the playing flag.
func (m *Monitor) State() State {
	if m.cb.State() == gobreaker.StateOpen {
		return StateDisabled
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing {
		return StatePolling
	}
	return StateIdle
}

func (m *Monitor) publishState() {
	metrics.MonitorState.Set(float64(m.State()))
}

// Start begins the poll loop. Safe to call once per monitor.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.pokeChan = make(chan struct{}, 1)
	m.mu.Unlock()

	logging.Info().Dur("interval", m.cfg.PollInterval).Msg("Starting reconciliation monitor")

	m.wg.Add(1)
	go m.pollLoop(ctx)
}

// Stop halts the poll loop and waits for any in-flight poll to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	logging.Info().Msg("Reconciliation monitor stopped")
}

// NotifyPlayback tells the monitor whether audio is currently playing.
// Starting playback requests an immediate reconciliation pass.
func (m *Monitor) NotifyPlayback(playing bool) {
	m.mu.Lock()
	was := m.playing
	m.playing = playing
	m.mu.Unlock()

	m.publishState()
	if playing && !was {
		m.poke()
	}
}

// Suspend pauses reconciliation while a manual cross-device sync is in
// progress, so the monitor does not fight the explicit transfer.
func (m *Monitor) Suspend() {
	m.mu.Lock()
	m.suspended = true
	m.mu.Unlock()
}

// Resume lifts a Suspend.
func (m *Monitor) Resume() {
	m.mu.Lock()
	m.suspended = false
	m.mu.Unlock()
}

// ConnectivityRestored requests an immediate poll when the last successful
// poll is stale. Called when the network comes back after an outage; without
// this the device would play up to a full interval of divergent audio.
func (m *Monitor) ConnectivityRestored() {
	m.mu.Lock()
	stale := m.lastPoll.IsZero() || m.now().Sub(m.lastPoll) >= m.cfg.StaleAfter
	m.mu.Unlock()

	if stale {
		m.poke()
	}
}

// poke requests an out-of-band poll. A pending request is enough; extras drop.
func (m *Monitor) poke() {
	m.mu.Lock()
	ch := m.pokeChan
	m.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.Poll(ctx)
		case <-m.pokeChan:
			m.Poll(ctx)
		}
	}
}

// Poll runs one reconciliation pass. Exported so the agent can force a pass
// in tests and on explicit user action; the loop calls it on every tick.
func (m *Monitor) Poll(ctx context.Context) {
	m.mu.Lock()
	if !m.playing || m.suspended || m.inFlight {
		m.mu.Unlock()
		metrics.MonitorPolls.WithLabelValues("skipped").Inc()
		return
	}
	// The gap limiter also covers poked polls: a connectivity-restored
	// signal arriving right after a scheduled poll must not double-hit
	// the server.
	if !m.limiter.Allow() {
		m.mu.Unlock()
		metrics.MonitorPolls.WithLabelValues("skipped").Inc()
		return
	}
	m.inFlight = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight = false
		m.mu.Unlock()
	}()

	remote, err := m.cb.Execute(func() (*models.LatestPosition, error) {
		pos, err := m.fetcher.FetchLastPosition(ctx)
		if err != nil {
			return nil, m.recordFailure(err)
		}
		m.mu.Lock()
		m.failures = 0
		m.mu.Unlock()
		return pos, nil
	})
	if err != nil {
		metrics.MonitorPolls.WithLabelValues("failed").Inc()
		logging.Debug().Err(err).Msg("Reconciliation poll failed")
		return
	}

	m.mu.Lock()
	m.lastPoll = m.now()
	m.mu.Unlock()

	if m.reconcile(remote) {
		metrics.MonitorPolls.WithLabelValues("applied").Inc()
	} else {
		metrics.MonitorPolls.WithLabelValues("no_change").Inc()
	}
}

// recordFailure advances the consecutive-failure count. At the threshold the
// count resets and the returned error carries the trip marker; below it the
// fetch error passes through unchanged.
func (m *Monitor) recordFailure(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
	if m.failures >= m.cfg.MaxFailures {
		m.failures = 0
		return fmt.Errorf("%w after %d attempts: %w", errPollBudgetExhausted, m.cfg.MaxFailures, err)
	}
	return err
}

// reconcile applies the remote position when local playback has drifted.
// Remote wins on any of: different track, position divergence beyond the
// threshold, or a playing-flag mismatch. Returns true when remote state was
// applied.
func (m *Monitor) reconcile(remote *models.LatestPosition) bool {
	if remote == nil || remote.None() {
		return false
	}

	local, ok := m.player.State()
	if !m.drifted(local, ok, remote) {
		return false
	}

	logging.Info().
		Int64("remote_track", remote.Track.ID).
		Float64("remote_position", remote.Position).
		Str("remote_device", remote.DeviceID).
		Msg("Applying remote playback state")
	m.player.Apply(remote)
	return true
}

func (m *Monitor) drifted(local LocalState, ok bool, remote *models.LatestPosition) bool {
	if !ok {
		return true
	}
	if local.TrackID != remote.Track.ID {
		return true
	}
	if math.Abs(local.Position-remote.Position) > m.cfg.DriftThreshold {
		return true
	}
	return local.IsPlaying != remote.IsPlaying
}
