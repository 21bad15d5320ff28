// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package gateway

import (
	"sync"
	"time"
)

// cachedResponse is a successful payload retained for degraded serving.
type cachedResponse struct {
	payload  []byte
	cachedAt time.Time
}

// ResponseCache retains the last successful payload per endpoint pattern.
// Entries are consulted only while the live endpoint is blocked, and only
// within the TTL; expiry is lazy, on read.
type ResponseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedResponse
}

// NewResponseCache creates a cache with the given TTL.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		ttl:     ttl,
		entries: make(map[string]cachedResponse),
	}
}

// Put stores or refreshes the pattern's payload.
func (c *ResponseCache) Put(pattern string, payload []byte, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Copy: callers may reuse the buffer.
	dup := make([]byte, len(payload))
	copy(dup, payload)
	c.entries[pattern] = cachedResponse{payload: dup, cachedAt: now}
}

// Get returns the pattern's payload when present and fresh.
func (c *ResponseCache) Get(pattern string, now time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[pattern]
	if !ok {
		return nil, false
	}
	if now.Sub(entry.cachedAt) >= c.ttl {
		delete(c.entries, pattern)
		return nil, false
	}
	return entry.payload, true
}
