// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package metrics provides Prometheus instrumentation for Resona:
// HTTP endpoint latency and throughput, playback store operations, the
// client gateway's result mix, and the reconciliation monitor's breaker state.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP endpoint metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resona_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resona_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// Playback store metrics

	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resona_store_operations_total",
			Help: "Total playback store operations",
		},
		[]string{"operation", "result"}, // result: "ok", "not_found", "error"
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resona_store_query_duration_seconds",
			Help:    "Duration of playback store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Gateway metrics (device agent)

	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resona_gateway_requests_total",
			Help: "Gateway requests by outcome kind",
		},
		[]string{"pattern", "kind"}, // kind: ok, blocked, cached, network_error, server_error, not_found, validation, auth_error
	)

	GatewayBlockedPatterns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resona_gateway_blocked_patterns",
			Help: "Number of endpoint patterns currently blocked by the gateway",
		},
	)

	// Reconciliation monitor metrics

	MonitorPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resona_monitor_polls_total",
			Help: "Reconciliation monitor polls by outcome",
		},
		[]string{"outcome"}, // "applied", "no_change", "failed", "skipped"
	)

	MonitorState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resona_monitor_state",
			Help: "Reconciliation monitor state (0=idle, 1=polling, 2=disabled)",
		},
	)

	// Sync client metrics

	SyncFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resona_sync_flushes_total",
			Help: "Position flushes by trigger",
		},
		[]string{"trigger"}, // "interval", "forced", "periodic", "manual", "logout", "exit"
	)
)

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(endpoint, method string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// RecordStoreOperation records one playback store call.
func RecordStoreOperation(operation, result string, duration time.Duration) {
	StoreOperations.WithLabelValues(operation, result).Inc()
	StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
