// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

/*
Package middleware provides HTTP middleware components for the ingestion API.

This package implements infrastructure middleware for request ID tracking and
Prometheus metrics instrumentation. Tenant scoping and payload limits live in
the api package because they depend on request routing and gate configuration.

Key Components:

  - Request ID: UUID-based request tracking for distributed tracing
  - Prometheus Metrics: HTTP request/response instrumentation

Usage Example - Request ID:

	http.HandleFunc("/api/v1/track",
	    middleware.RequestID(handler),
	)

	// Access request ID in handler
	func handler(w http.ResponseWriter, r *http.Request) {
	    requestID := middleware.GetRequestID(r.Context())
	    ...
	}

Thread Safety:

All middleware components are thread-safe:
  - Request ID uses context.Context (immutable)
  - Prometheus metrics use atomic operations

See Also:

  - internal/api: HTTP handlers wrapped by middleware
  - internal/metrics: Prometheus metrics definitions
*/
package middleware
