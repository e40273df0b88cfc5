// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides comprehensive instrumentation for:
// - Event ingestion throughput and dedup rates
// - Session lifecycle (created, resumed, cache efficiency)
// - Identity resolution outcomes
// - PII encryption operations
// - Database query performance (DuckDB)
// - API endpoint latency and throughput
// - NATS publishing and circuit breaker state

var (
	// Ingest Metrics
	IngestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Total number of events received for ingestion",
		},
		[]string{"operation", "result"}, // operation: "track", "batch", "identify"; result: "accepted", "rejected", "duplicate"
	)

	IngestBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_size",
			Help:    "Number of events in batch requests",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 40, 50},
		},
	)

	IngestProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_processing_duration_seconds",
			Help:    "Duration of event processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DuplicateEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_duplicate_events_total",
			Help: "Total number of events deduplicated by client event ID",
		},
		[]string{"detection"}, // "lookup" (pre-insert check), "conflict" (insert race)
	)

	// Session Metrics
	SessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Total number of sessions started",
		},
	)

	SessionsResumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_resumed_total",
			Help: "Total number of events attached to an existing active session",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_cache_hits_total",
			Help: "Total number of session lookups served from the hot cache",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_cache_misses_total",
			Help: "Total number of session lookups that fell through to the database",
		},
	)

	// Identity Resolution Metrics
	IdentityResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_resolved_total",
			Help: "Total number of identify calls by resolution outcome",
		},
		[]string{"outcome"}, // "created", "matched_email", "matched_phone"
	)

	IdentityRelinkedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "identity_relinked_total",
			Help: "Total number of anonymous IDs migrated to a different lead",
		},
	)

	// PII Encryption Metrics
	PIIOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pii_operations_total",
			Help: "Total number of PII encryption operations",
		},
		[]string{"operation", "kind", "success"}, // operation: "encrypt", "decrypt", "fingerprint"
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	DBConnectionPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duckdb_connection_pool_size",
			Help: "Current number of database connections in use",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// NATS Publishing Metrics
	NATSMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of enriched events published to NATS",
		},
	)

	NATSPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_publish_failures_total",
			Help: "Total number of failed NATS publish attempts",
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

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordIngest records an ingested event by operation and result.
func RecordIngest(operation, result string, duration time.Duration) {
	IngestEventsTotal.WithLabelValues(operation, result).Inc()
	IngestProcessingDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBatchSize records the event count of a batch request.
func RecordBatchSize(count int) {
	IngestBatchSize.Observe(float64(count))
}

// RecordDuplicate records a deduplicated event. Detection is "lookup" when
// the pre-insert check found the row and "conflict" when the insert lost a
// race to a concurrent writer.
func RecordDuplicate(detection string) {
	DuplicateEventsTotal.WithLabelValues(detection).Inc()
}

// RecordSessionStart records a session being created.
func RecordSessionStart() {
	SessionsCreatedTotal.Inc()
}

// RecordSessionResume records an event attaching to an active session.
func RecordSessionResume() {
	SessionsResumedTotal.Inc()
}

// RecordSessionCacheLookup records a hot-session cache lookup outcome.
func RecordSessionCacheLookup(hit bool) {
	if hit {
		SessionCacheHits.Inc()
	} else {
		SessionCacheMisses.Inc()
	}
}

// RecordIdentityResolution records an identify call outcome.
func RecordIdentityResolution(outcome string) {
	IdentityResolvedTotal.WithLabelValues(outcome).Inc()
}

// RecordIdentityRelink records an anonymous ID migrating to another lead.
func RecordIdentityRelink() {
	IdentityRelinkedTotal.Inc()
}

// RecordPIIOperation records a PII encryption operation.
func RecordPIIOperation(operation, kind string, success bool) {
	successStr := "true"
	if !success {
		successStr = "false"
	}
	PIIOperationsTotal.WithLabelValues(operation, kind, successStr).Inc()
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordNATSPublish records a NATS publish attempt.
func RecordNATSPublish(err error) {
	if err != nil {
		NATSPublishFailures.Inc()
		return
	}
	NATSMessagesPublished.Inc()
}
