// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package api

import (
	"net/http"
	"time"
)

// HealthStatus summarizes component health for GET /api/v1/health.
type HealthStatus struct {
	Status            string  `json:"status"` // healthy or degraded
	DatabaseConnected bool    `json:"database_connected"`
	StreamEnabled     bool    `json:"stream_enabled"`
	StreamHealthy     bool    `json:"stream_healthy"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// Health handles health check requests. The stream only factors into the
// verdict when fanout is configured.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.db != nil && h.db.Ping(r.Context()) == nil

	streamEnabled := h.stream != nil
	streamHealthy := streamEnabled && h.stream.IsHealthy()

	status := "healthy"
	if !dbConnected || (streamEnabled && !streamHealthy) {
		status = "degraded"
	}

	NewResponseWriter(w, r).Success(HealthStatus{
		Status:            status,
		DatabaseConnected: dbConnected,
		StreamEnabled:     streamEnabled,
		StreamHealthy:     streamHealthy,
		UptimeSeconds:     time.Since(h.startTime).Seconds(),
	})
}

// HealthLive handles liveness probe requests (Kubernetes-style).
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests (Kubernetes-style).
// Returns 200 OK only when the service can accept ingest traffic, which
// requires the database; the event stream is best-effort fanout and does
// not gate readiness.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	dbConnected := h.db != nil && h.db.Ping(r.Context()) == nil
	if !dbConnected {
		rw.ServiceUnavailable("Database is not reachable")
		return
	}

	rw.Success(map[string]interface{}{
		"ready":              true,
		"database_connected": dbConnected,
		"uptime":             time.Since(h.startTime).Seconds(),
	})
}
