// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTimeout is the inactivity window after which a visitor's
// next event starts a new session.
const DefaultSessionTimeout = 30 * time.Minute

// Session is a visitor activity window. Sessions have no explicit close:
// a session logically ends when the inactivity timeout elapses, and the
// next event starts a fresh one.
type Session struct {
	// ID is a server-assigned, time-sortable identifier ("ses_<ULID>").
	// Client-generated session identifiers use a different prefix and never
	// appear in this table.
	ID string `json:"id"`

	TenantID    uuid.UUID `json:"tenant_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	AnonymousID string    `json:"anonymous_id"`

	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// ActiveAt reports whether the session is still within the inactivity
// window at the given instant.
func (s *Session) ActiveAt(t time.Time, timeout time.Duration) bool {
	return t.Sub(s.LastActivityAt) <= timeout
}
