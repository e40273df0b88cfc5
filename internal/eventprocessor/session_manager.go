// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package eventprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/vestigo-analytics/vestigo/internal/cache"
	"github.com/vestigo-analytics/vestigo/internal/logging"
	"github.com/vestigo-analytics/vestigo/internal/metrics"
	"github.com/vestigo-analytics/vestigo/internal/models"
)

// SessionManager resolves the active session for a visitor's event. A
// visitor's latest session is resumed while it is inside the inactivity
// window; otherwise a new one starts. Sessions never close explicitly.
//
// A small TTL cache fronts the latest-session lookup. Cached entries are
// refreshed on every resolution, so the cache can only ever lag storage by
// one concurrent writer, and expiry decisions re-check against the event
// timestamp rather than trusting cache freshness.
type SessionManager struct {
	store   SessionStore
	cache   *cache.Cache
	timeout time.Duration
}

// NewSessionManager creates a session manager. Zero values fall back to
// the 30-minute default timeout and a cache TTL matching the timeout.
func NewSessionManager(store SessionStore, timeout, cacheTTL time.Duration) *SessionManager {
	if timeout <= 0 {
		timeout = models.DefaultSessionTimeout
	}
	if cacheTTL <= 0 {
		cacheTTL = timeout
	}
	return &SessionManager{
		store:   store,
		cache:   cache.New(cacheTTL),
		timeout: timeout,
	}
}

// Timeout returns the configured inactivity window.
func (m *SessionManager) Timeout() time.Duration {
	return m.timeout
}

// Stop releases the cache cleanup goroutine.
func (m *SessionManager) Stop() {
	m.cache.Stop()
}

type sessionCacheKey struct {
	TenantID    string `json:"t"`
	WorkspaceID string `json:"w"`
	AnonymousID string `json:"a"`
}

func (m *SessionManager) cacheKey(scope models.TenantContext, anonymousID string) string {
	return cache.GenerateKey("session", sessionCacheKey{
		TenantID:    scope.TenantID.String(),
		WorkspaceID: scope.WorkspaceID.String(),
		AnonymousID: anonymousID,
	})
}

// ResolveSession returns the session the event at eventTime belongs to,
// creating one when the visitor has none or the latest lapsed. The
// returned bool reports whether a new session was started.
func (m *SessionManager) ResolveSession(ctx context.Context, scope models.TenantContext, anonymousID string, eventTime time.Time) (*models.Session, bool, error) {
	key := m.cacheKey(scope, anonymousID)

	session := m.cachedSession(key)
	if session == nil {
		var err error
		session, err = m.store.FindLatestSession(ctx, scope.TenantID, scope.WorkspaceID, anonymousID)
		if err != nil {
			return nil, false, fmt.Errorf("find latest session: %w", err)
		}
	}

	if session != nil && session.ActiveAt(eventTime, m.timeout) {
		if err := m.store.TouchSession(ctx, scope.TenantID, session.ID, eventTime); err != nil {
			return nil, false, fmt.Errorf("touch session: %w", err)
		}
		// Activity only moves forward; an out-of-order event keeps the
		// later timestamp.
		if eventTime.After(session.LastActivityAt) {
			session.LastActivityAt = eventTime
		}
		m.cache.Set(key, session)
		metrics.RecordSessionResume()
		return session, false, nil
	}

	created := &models.Session{
		ID:             NewSessionID(),
		TenantID:       scope.TenantID,
		WorkspaceID:    scope.WorkspaceID,
		AnonymousID:    anonymousID,
		StartedAt:      eventTime,
		LastActivityAt: eventTime,
	}
	if err := m.store.InsertSession(ctx, created); err != nil {
		return nil, false, fmt.Errorf("insert session: %w", err)
	}
	m.cache.Set(key, created)
	metrics.RecordSessionStart()
	logging.Debug().
		Str("session_id", created.ID).
		Str("anonymous_id", anonymousID).
		Msg("Started new session")
	return created, true, nil
}

// cachedSession returns a copy of the cached session, so callers never
// mutate the shared entry.
func (m *SessionManager) cachedSession(key string) *models.Session {
	v, ok := m.cache.Get(key)
	metrics.RecordSessionCacheLookup(ok)
	if !ok {
		return nil
	}
	cached, ok := v.(*models.Session)
	if !ok {
		return nil
	}
	copied := *cached
	return &copied
}
