// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

/*
Package api provides the HTTP ingestion surface.

The package exposes three ingest operations plus operational endpoints:

	POST /api/v1/track     - single track event
	POST /api/v1/batch     - ordered batch of track events
	POST /api/v1/identify  - identity resolution
	GET  /api/v1/health    - component health summary
	GET  /api/v1/health/live   - liveness probe
	GET  /api/v1/health/ready  - readiness probe
	GET  /metrics          - Prometheus metrics

Routing uses Chi with go-chi/cors for browser-originated SDK traffic.
Every ingest route runs behind the same middleware stack, in order:
request ID assignment, Prometheus instrumentation, tenant scope
extraction, schema version resolution, and a request body ceiling.

Tenant scope arrives out of band in the X-Tenant-ID and X-Workspace-ID
headers. Both must be well-formed UUIDs; a request missing either is
rejected with 401 before any body is read. The optional X-Schema-Version
header is resolved against the supported version set, falling back to
the default version for absent or malformed values.

Request bodies are capped with http.MaxBytesReader at the gate's payload
ceiling, so oversized submissions fail with 413 during decode instead of
buffering unbounded input.

Responses use a uniform envelope: {"success": bool, "data": ..., "error":
{"code", "message"}, "meta": {...}}. Processing error codes map onto HTTP
statuses in one place (statusForCode); duplicates are a success variant
and return 200 with is_duplicate set.
*/
package api
