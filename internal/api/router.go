// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vestigo-analytics/vestigo/internal/middleware"
	"github.com/vestigo-analytics/vestigo/internal/validation"
)

// Router assembles the HTTP surface from the handler, the ingest gate,
// and the CORS origin allowlist.
type Router struct {
	handler     *Handler
	gate        *validation.Gate
	corsOrigins []string
}

// NewRouter creates a router. The gate supplies the request body ceiling
// applied to all ingest routes.
func NewRouter(handler *Handler, gate *validation.Gate, corsOrigins []string) *Router {
	return &Router{
		handler:     handler,
		gate:        gate,
		corsOrigins: corsOrigins,
	}
}

// Setup configures all HTTP routes using Chi.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(router.corsOrigins)) // CORS must be global to handle OPTIONS preflight

	// Health endpoints carry no tenant scope; monitors probe them
	// without credentials.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Ingest endpoints share one stack: metrics, tenant scope, schema
	// version resolution, then the payload ceiling.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(RequireTenantScope)
		r.Use(ResolveSchemaVersion)
		r.Use(LimitRequestBody(int64(router.gate.MaxPayloadBytes())))

		r.Post("/track", router.handler.Track)
		r.Post("/batch", router.handler.Batch)
		r.Post("/identify", router.handler.Identify)
	})

	// Observability.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
