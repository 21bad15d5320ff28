// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package gateway

import (
	"sync"
	"time"
)

// failureRecord is the per-pattern sliding failure counter. Records are
// ephemeral: they live for the process run and go stale by window expiry,
// never by explicit deletion.
type failureRecord struct {
	count         int
	lastFailureAt time.Time
}

// FailureTracker accounts failures per logical endpoint pattern. It is an
// explicit, instantiable component so tests can create isolated instances;
// the gateway owns one per process run.
//
// The counter slides on a fixed window: a failure arriving at least one
// window after the previous one restarts the count at 1 instead of
// accumulating.
type FailureTracker struct {
	mu      sync.Mutex
	window  time.Duration
	records map[string]*failureRecord
}

// NewFailureTracker creates a tracker with the given window.
func NewFailureTracker(window time.Duration) *FailureTracker {
	return &FailureTracker{
		window:  window,
		records: make(map[string]*failureRecord),
	}
}

// Record registers a failure for the pattern at the given time and returns
// the resulting count.
func (t *FailureTracker) Record(pattern string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[pattern]
	if !ok || now.Sub(rec.lastFailureAt) >= t.window {
		rec = &failureRecord{}
		t.records[pattern] = rec
		rec.count = 1
	} else {
		rec.count++
	}
	rec.lastFailureAt = now
	return rec.count
}

// Count returns the pattern's current count, honoring window staleness.
func (t *FailureTracker) Count(pattern string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[pattern]
	if !ok || now.Sub(rec.lastFailureAt) >= t.window {
		return 0
	}
	return rec.count
}

// LastFailure returns when the pattern last failed, or the zero time.
func (t *FailureTracker) LastFailure(pattern string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[pattern]; ok {
		return rec.lastFailureAt
	}
	return time.Time{}
}

// Clear drops the pattern's record, typically after a success.
func (t *FailureTracker) Clear(pattern string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, pattern)
}

// Blocked reports whether the pattern is currently blocked, given the strike
// threshold and criticality.
//
// Critical patterns hard-open at the threshold and stay blocked until an
// explicit Clear, no matter how much time passes. Non-critical patterns
// soft-open: once the window since the last failure has elapsed, a probe call
// is allowed through (a failing probe restarts the count at 1 via Record's
// window reset).
func (t *FailureTracker) Blocked(pattern string, now time.Time, strikes int, critical bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[pattern]
	if !ok || rec.count < strikes {
		return false
	}
	if critical {
		return true
	}
	return now.Sub(rec.lastFailureAt) < t.window
}

// BlockedPatterns returns how many patterns are at or above the threshold.
func (t *FailureTracker) BlockedPatterns(strikes int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, rec := range t.records {
		if rec.count >= strikes {
			n++
		}
	}
	return n
}
