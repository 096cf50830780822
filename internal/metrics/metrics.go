// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Store transactions and conflicts (BadgerDB)
// - Counter updates lost to transport failures
// - Activity ingestion and debounced flushes
// - Badge evaluation and grants
// - API and WebSocket traffic

var (
	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "showtrail_store_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreTxnConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtrail_store_txn_conflicts_total",
			Help: "Total number of optimistic transaction conflicts that were retried",
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrail_store_errors_total",
			Help: "Total number of failed store operations",
		},
		[]string{"operation"},
	)

	// Counter Store Metrics
	CounterUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrail_counter_updates_total",
			Help: "Total number of counter store updates by operation and result",
		},
		[]string{"operation", "result"}, // result: "applied", "noop", "lost"
	)

	BingeWindowsExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrail_binge_windows_expired_total",
			Help: "Total number of binge windows cleared after expiry",
		},
		[]string{"timeframe"},
	)

	// Activity Metrics
	EventsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtrail_events_ingested_total",
			Help: "Total number of watch events accepted by the batch manager",
		},
	)

	BatchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrail_batch_flushes_total",
			Help: "Total number of activity group flushes by outcome",
		},
		[]string{"outcome"}, // outcome: pattern type, "individual", "fallback"
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "showtrail_active_sessions",
			Help: "Current number of per-user activity sessions",
		},
	)

	// Evaluator Metrics
	BadgesGranted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrail_badges_granted_total",
			Help: "Total number of badges granted by category",
		},
		[]string{"category"},
	)

	BadgesRevoked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtrail_badges_revoked_total",
			Help: "Total number of grants removed by the validator",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "showtrail_evaluation_duration_seconds",
			Help:    "Duration of a full badge check in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EvaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrail_evaluation_errors_total",
			Help: "Total number of evaluation failures by stage",
		},
		[]string{"stage"}, // stage: "snapshot", "earned", "grant"
	)

	SnapshotCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtrail_snapshot_cache_hits_total",
			Help: "Total number of user snapshot cache hits",
		},
	)

	SnapshotCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtrail_snapshot_cache_misses_total",
			Help: "Total number of user snapshot cache misses",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Notification Metrics
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrail_notifications_published_total",
			Help: "Total number of messages handed to the notification bus",
		},
		[]string{"topic"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrail_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "showtrail_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket Metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "showtrail_websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtrail_websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)
)

// RecordStoreOperation records a store call and its outcome.
func RecordStoreOperation(operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(operation).Inc()
	}
}

// RecordCounterUpdate records a counter store update result.
func RecordCounterUpdate(operation, result string) {
	CounterUpdates.WithLabelValues(operation, result).Inc()
}

// RecordBatchFlush records the outcome of one flushed activity group.
func RecordBatchFlush(outcome string) {
	BatchFlushes.WithLabelValues(outcome).Inc()
}

// RecordBadgeGranted records a newly persisted grant.
func RecordBadgeGranted(category string) {
	BadgesGranted.WithLabelValues(category).Inc()
}

// RecordEvaluation records the latency of one badge check.
func RecordEvaluation(duration time.Duration) {
	EvaluationDuration.Observe(duration.Seconds())
}

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
