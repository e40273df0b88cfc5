// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package implements application instrumentation using the Prometheus client
library, exposing metrics for monitoring ingestion throughput, errors, and
system health.

# Overview

The package provides metrics for:
  - Event ingestion throughput and dedup rates
  - Session lifecycle and hot-cache efficiency
  - Identity resolution outcomes and relinks
  - PII encryption operation counts
  - Database query performance
  - HTTP request latency and throughput
  - NATS publishing and circuit breaker state

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Ingest Metrics:
  - ingest_events_total: Events received (counter)
    Labels: operation (track, batch, identify), result (accepted, rejected, duplicate)
  - ingest_batch_size: Events per batch request (histogram)
  - ingest_processing_duration_seconds: Processing latency (histogram)
    Labels: operation
  - ingest_duplicate_events_total: Deduplicated events (counter)
    Labels: detection (lookup, conflict)

Session Metrics:
  - sessions_created_total, sessions_resumed_total (counters)
  - session_cache_hits_total, session_cache_misses_total (counters)

Identity Metrics:
  - identity_resolved_total: Identify outcomes (counter)
    Labels: outcome (created, matched_email, matched_phone)
  - identity_relinked_total: Anonymous IDs migrated between leads (counter)

PII Metrics:
  - pii_operations_total: Encryption operations (counter)
    Labels: operation (encrypt, decrypt, fingerprint), kind (email, phone), success

Database Metrics:
  - duckdb_query_duration_seconds: Query execution time (histogram)
    Labels: operation, table
  - duckdb_query_errors_total: Failed queries (counter)
  - duckdb_connection_pool_size: Active connections (gauge)

API Metrics:
  - api_requests_total, api_request_duration_seconds, api_active_requests

Messaging Metrics:
  - nats_messages_published_total, nats_publish_failures_total
  - circuit_breaker_state, circuit_breaker_requests_total,
    circuit_breaker_state_transitions_total

# Naming Conventions

Metrics follow Prometheus best practices: counters end in _total, durations
are seconds-based histograms, and gauges describe current state. Labels are
bounded sets; tenant IDs are deliberately excluded from labels to keep
cardinality flat.

# Usage

Metrics are package-level and registered via promauto at init time:

	metrics.RecordIngest("track", "accepted", elapsed)
	metrics.RecordDuplicate("conflict")
	defer metrics.TrackActiveRequest(false)
*/
package metrics
