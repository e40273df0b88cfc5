// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package eventprocessor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vestigo-analytics/vestigo/internal/database"
	"github.com/vestigo-analytics/vestigo/internal/models"
)

// EventStore persists events with idempotency enforcement.
type EventStore interface {
	// InsertEvent returns inserted=false when the event's idempotency token
	// already has a persisted row.
	InsertEvent(ctx context.Context, event *models.Event) (inserted bool, err error)
	FindEventByClientID(ctx context.Context, tenantID, workspaceID uuid.UUID, clientEventID string) (*models.Event, error)
}

// VisitorStore maintains per-visitor rollup rows.
type VisitorStore interface {
	UpsertVisitor(ctx context.Context, visitor *models.Visitor) error
	GetVisitor(ctx context.Context, tenantID, workspaceID uuid.UUID, anonymousID string) (*models.Visitor, error)
}

// SessionStore persists visitor activity sessions.
type SessionStore interface {
	FindLatestSession(ctx context.Context, tenantID, workspaceID uuid.UUID, anonymousID string) (*models.Session, error)
	InsertSession(ctx context.Context, session *models.Session) error
	TouchSession(ctx context.Context, tenantID uuid.UUID, sessionID string, lastActivityAt time.Time) error
}

// IdentityStore persists leads and anonymous-id links.
type IdentityStore interface {
	GetIdentityLink(ctx context.Context, tenantID, workspaceID uuid.UUID, anonymousID string) (*models.IdentityLink, error)
	FindLeadByEmailFingerprint(ctx context.Context, tenantID, workspaceID uuid.UUID, fingerprint string) (*models.Lead, error)
	FindLeadByPhoneFingerprint(ctx context.Context, tenantID, workspaceID uuid.UUID, fingerprint string) (*models.Lead, error)
	GetLeadByID(ctx context.Context, tenantID uuid.UUID, leadID string) (*models.Lead, error)
	// InsertLeadWithLink and UpdateLeadWithLink write the lead and its
	// anonymous-id link atomically; a link failure must not leave the lead
	// mutation behind.
	InsertLeadWithLink(ctx context.Context, lead *models.Lead, link *models.IdentityLink) error
	UpdateLeadWithLink(ctx context.Context, lead *models.Lead, link *models.IdentityLink) error
}

// Store is the full persistence surface the processor needs. *database.DB
// satisfies it; tests substitute in-memory fakes.
type Store interface {
	EventStore
	VisitorStore
	SessionStore
	IdentityStore
}

var _ Store = (*database.DB)(nil)
