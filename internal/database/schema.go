// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package database

import (
	"context"
	"fmt"
	"time"
)

// createTables creates the core schema. All tables lead with tenant and
// workspace so every access path is tenant-scoped by construction.
func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tables := []string{
		// Append-only event log. The storage key is (tenant_id, id); the
		// ULID-based id keeps rows roughly time-ordered within a tenant.
		`CREATE TABLE IF NOT EXISTS events (
			id              VARCHAR NOT NULL,
			tenant_id       UUID NOT NULL,
			workspace_id    UUID NOT NULL,
			client_event_id VARCHAR,
			event_name      VARCHAR NOT NULL,
			anonymous_id    VARCHAR NOT NULL,
			lead_id         VARCHAR,
			session_id      VARCHAR,
			schema_version  VARCHAR NOT NULL,
			event_timestamp TIMESTAMP NOT NULL,
			page            VARCHAR,
			utm             VARCHAR,
			device          VARCHAR,
			geo             VARCHAR,
			properties      VARCHAR,
			created_at      TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, id)
		)`,

		// One row per (tenant, workspace, anonymous visitor); last-seen
		// snapshots are overwritten on every event.
		`CREATE TABLE IF NOT EXISTS visitors (
			tenant_id     UUID NOT NULL,
			workspace_id  UUID NOT NULL,
			anonymous_id  VARCHAR NOT NULL,
			last_utm      VARCHAR,
			last_device   VARCHAR,
			last_geo      VARCHAR,
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at  TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, workspace_id, anonymous_id)
		)`,

		// Sessions never close explicitly; expiry is computed from
		// last_activity_at against the inactivity timeout.
		`CREATE TABLE IF NOT EXISTS sessions (
			id               VARCHAR NOT NULL,
			tenant_id        UUID NOT NULL,
			workspace_id     UUID NOT NULL,
			anonymous_id     VARCHAR NOT NULL,
			started_at       TIMESTAMP NOT NULL,
			last_activity_at TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, id)
		)`,

		// PII lives here as ciphertext + fingerprint only. Fingerprints are
		// NULL when the field is absent so the unique indexes skip them.
		`CREATE TABLE IF NOT EXISTS leads (
			id                VARCHAR NOT NULL,
			tenant_id         UUID NOT NULL,
			workspace_id      UUID NOT NULL,
			email_ciphertext  VARCHAR,
			email_fingerprint VARCHAR,
			phone_ciphertext  VARCHAR,
			phone_fingerprint VARCHAR,
			key_version       INTEGER NOT NULL,
			user_id           VARCHAR,
			traits            VARCHAR,
			created_at        TIMESTAMP NOT NULL,
			updated_at        TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, id)
		)`,

		// At most one lead per anonymous id; re-identification updates the
		// row in place.
		`CREATE TABLE IF NOT EXISTS identity_links (
			tenant_id    UUID NOT NULL,
			workspace_id UUID NOT NULL,
			anonymous_id VARCHAR NOT NULL,
			lead_id      VARCHAR NOT NULL,
			created_at   TIMESTAMP NOT NULL,
			updated_at   TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, workspace_id, anonymous_id)
		)`,
	}

	for _, ddl := range tables {
		if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// createIndexes creates secondary and unique indexes
func (db *DB) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := []string{
		// Dedup constraint: NULL client_event_ids are distinct, so events
		// without an idempotency token never conflict.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_client_event_id
			ON events (tenant_id, workspace_id, client_event_id)`,

		`CREATE INDEX IF NOT EXISTS idx_events_visitor
			ON events (tenant_id, workspace_id, anonymous_id, event_timestamp)`,

		`CREATE INDEX IF NOT EXISTS idx_events_timestamp
			ON events (tenant_id, event_timestamp)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_visitor
			ON sessions (tenant_id, workspace_id, anonymous_id, last_activity_at)`,

		// Fingerprint lookups drive identity resolution; uniqueness also
		// guarantees at most one lead per email/phone per workspace.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_email_fingerprint
			ON leads (tenant_id, workspace_id, email_fingerprint)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_phone_fingerprint
			ON leads (tenant_id, workspace_id, phone_fingerprint)`,

		`CREATE INDEX IF NOT EXISTS idx_identity_links_lead
			ON identity_links (tenant_id, workspace_id, lead_id)`,
	}

	for _, ddl := range indexes {
		if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
