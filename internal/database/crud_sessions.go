// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vestigo-analytics/vestigo/internal/metrics"
	"github.com/vestigo-analytics/vestigo/internal/models"
)

// FindLatestSession returns the most recent session for a visitor, active
// or not; the caller decides whether it is still within the inactivity
// window. Returns (nil, nil) when the visitor has no sessions.
func (db *DB) FindLatestSession(ctx context.Context, tenantID, workspaceID uuid.UUID, anonymousID string) (*models.Session, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, tenant_id, workspace_id, anonymous_id, started_at, last_activity_at
	FROM sessions
	WHERE tenant_id = ? AND workspace_id = ? AND anonymous_id = ?
	ORDER BY last_activity_at DESC
	LIMIT 1`

	var s models.Session
	start := time.Now()
	err := db.conn.QueryRowContext(ctx, query, tenantID, workspaceID, anonymousID).Scan(
		&s.ID, &s.TenantID, &s.WorkspaceID, &s.AnonymousID, &s.StartedAt, &s.LastActivityAt,
	)
	metrics.RecordDBQuery("SELECT", "sessions", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest session: %w", err)
	}
	return &s, nil
}

// InsertSession persists a new session.
func (db *DB) InsertSession(ctx context.Context, session *models.Session) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `INSERT INTO sessions (id, tenant_id, workspace_id, anonymous_id, started_at, last_activity_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, query,
		session.ID, session.TenantID, session.WorkspaceID, session.AnonymousID,
		session.StartedAt, session.LastActivityAt,
	)
	metrics.RecordDBQuery("INSERT", "sessions", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// TouchSession advances a session's last activity time. The update is
// monotonic: an out-of-order event with an older timestamp never rewinds
// the activity clock.
func (db *DB) TouchSession(ctx context.Context, tenantID uuid.UUID, sessionID string, lastActivityAt time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `UPDATE sessions SET last_activity_at = ?
	WHERE tenant_id = ? AND id = ? AND last_activity_at < ?`

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, query, lastActivityAt, tenantID, sessionID, lastActivityAt)
	metrics.RecordDBQuery("UPDATE", "sessions", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// GetSessionByID retrieves a session by its server-assigned ID.
// Returns (nil, nil) when no such session exists.
func (db *DB) GetSessionByID(ctx context.Context, tenantID uuid.UUID, sessionID string) (*models.Session, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, tenant_id, workspace_id, anonymous_id, started_at, last_activity_at
	FROM sessions
	WHERE tenant_id = ? AND id = ?`

	var s models.Session
	start := time.Now()
	err := db.conn.QueryRowContext(ctx, query, tenantID, sessionID).Scan(
		&s.ID, &s.TenantID, &s.WorkspaceID, &s.AnonymousID, &s.StartedAt, &s.LastActivityAt,
	)
	metrics.RecordDBQuery("SELECT", "sessions", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}
