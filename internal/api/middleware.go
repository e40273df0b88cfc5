// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/vestigo-analytics/vestigo/internal/models"
	"github.com/vestigo-analytics/vestigo/internal/validation"
)

// Scope and schema version headers. Tenant scope is out-of-band so event
// payloads stay portable across workspaces.
const (
	HeaderTenantID      = "X-Tenant-ID"
	HeaderWorkspaceID   = "X-Workspace-ID"
	HeaderSchemaVersion = "X-Schema-Version"
)

type scopeContextKey struct{}

type schemaVersionContextKey struct{}

// ScopeFromContext returns the tenant scope stamped by RequireTenantScope.
// The zero value means the middleware did not run.
func ScopeFromContext(ctx context.Context) models.TenantContext {
	if scope, ok := ctx.Value(scopeContextKey{}).(models.TenantContext); ok {
		return scope
	}
	return models.TenantContext{}
}

// SchemaVersionFromContext returns the resolved schema version for the
// request, or the default version when the middleware did not run.
func SchemaVersionFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(schemaVersionContextKey{}).(string); ok {
		return v
	}
	return models.DefaultSchemaVersion
}

// RequireTenantScope extracts and validates the tenant scope headers.
// Requests missing either header, or carrying a malformed UUID, are
// rejected with 401 before the body is read.
func RequireTenantScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(r.Header.Get(HeaderTenantID))
		if err != nil || tenantID == uuid.Nil {
			NewResponseWriter(w, r).Unauthorized("Missing or invalid " + HeaderTenantID + " header")
			return
		}
		workspaceID, err := uuid.Parse(r.Header.Get(HeaderWorkspaceID))
		if err != nil || workspaceID == uuid.Nil {
			NewResponseWriter(w, r).Unauthorized("Missing or invalid " + HeaderWorkspaceID + " header")
			return
		}

		scope := models.TenantContext{TenantID: tenantID, WorkspaceID: workspaceID}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scopeContextKey{}, scope)))
	})
}

// ResolveSchemaVersion resolves the optional X-Schema-Version header and
// stores the result in the request context. Absent and malformed tokens
// both resolve to the default version.
func ResolveSchemaVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version := validation.ResolveSchemaVersion(r.Header.Get(HeaderSchemaVersion))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), schemaVersionContextKey{}, version)))
	})
}

// LimitRequestBody caps the request body at maxBytes so oversized
// submissions fail during decode instead of buffering unbounded input.
func LimitRequestBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// corsHandler builds the CORS middleware for browser-originated SDK
// traffic. An empty origin list allows any origin; ingest endpoints are
// tenant-scoped rather than cookie-authenticated, so credentials stay off.
func corsHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Content-Type",
			HeaderTenantID, HeaderWorkspaceID, HeaderSchemaVersion, "X-Request-ID",
		},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})
}

// chiMiddleware adapts http.HandlerFunc middleware to Chi's
// func(http.Handler) http.Handler so it can be used with r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}
