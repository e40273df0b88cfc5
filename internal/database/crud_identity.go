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

// FindLeadByFingerprint looks up a lead by a keyed fingerprint in the given
// column ("email_fingerprint" or "phone_fingerprint"). Returns (nil, nil)
// when no lead matches.
func (db *DB) FindLeadByFingerprint(ctx context.Context, tenantID, workspaceID uuid.UUID, column, fingerprint string) (*models.Lead, error) {
	if column != "email_fingerprint" && column != "phone_fingerprint" {
		return nil, fmt.Errorf("invalid fingerprint column: %s", column)
	}
	if fingerprint == "" {
		return nil, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	// Column name is whitelisted above; only the fingerprint is bound.
	query := fmt.Sprintf(`SELECT id, tenant_id, workspace_id,
		email_ciphertext, email_fingerprint, phone_ciphertext, phone_fingerprint,
		key_version, user_id, traits, created_at, updated_at
	FROM leads
	WHERE tenant_id = ? AND workspace_id = ? AND %s = ?`, column)

	start := time.Now()
	row := db.conn.QueryRowContext(ctx, query, tenantID, workspaceID, fingerprint)
	lead, err := scanLead(row)
	metrics.RecordDBQuery("SELECT", "leads", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find lead by fingerprint: %w", err)
	}
	return lead, nil
}

// FindLeadByEmailFingerprint looks up a lead by its email fingerprint.
func (db *DB) FindLeadByEmailFingerprint(ctx context.Context, tenantID, workspaceID uuid.UUID, fingerprint string) (*models.Lead, error) {
	return db.FindLeadByFingerprint(ctx, tenantID, workspaceID, "email_fingerprint", fingerprint)
}

// FindLeadByPhoneFingerprint looks up a lead by its phone fingerprint.
func (db *DB) FindLeadByPhoneFingerprint(ctx context.Context, tenantID, workspaceID uuid.UUID, fingerprint string) (*models.Lead, error) {
	return db.FindLeadByFingerprint(ctx, tenantID, workspaceID, "phone_fingerprint", fingerprint)
}

// GetLeadByID retrieves a lead by its server-assigned ID.
// Returns (nil, nil) when no such lead exists.
func (db *DB) GetLeadByID(ctx context.Context, tenantID uuid.UUID, leadID string) (*models.Lead, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, tenant_id, workspace_id,
		email_ciphertext, email_fingerprint, phone_ciphertext, phone_fingerprint,
		key_version, user_id, traits, created_at, updated_at
	FROM leads
	WHERE tenant_id = ? AND id = ?`

	start := time.Now()
	row := db.conn.QueryRowContext(ctx, query, tenantID, leadID)
	lead, err := scanLead(row)
	metrics.RecordDBQuery("SELECT", "leads", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return lead, nil
}

// InsertLeadWithLink writes a new lead and points the anonymous id at it
// in a single transaction, so a crash between the two writes cannot strand
// a lead with no anonymous id pointing at it. An existing link for the
// anonymous id is migrated to the new lead.
func (db *DB) InsertLeadWithLink(ctx context.Context, lead *models.Lead, link *models.IdentityLink) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		_, err := tx.ExecContext(ctx, `INSERT INTO leads (
			id, tenant_id, workspace_id,
			email_ciphertext, email_fingerprint, phone_ciphertext, phone_fingerprint,
			key_version, user_id, traits, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			lead.ID, lead.TenantID, lead.WorkspaceID,
			nullString(lead.EmailCiphertext), nullString(lead.EmailFingerprint),
			nullString(lead.PhoneCiphertext), nullString(lead.PhoneFingerprint),
			lead.KeyVersion, nullString(lead.UserID), lead.Traits,
			lead.CreatedAt, lead.UpdatedAt,
		)
		metrics.RecordDBQuery("INSERT", "leads", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("failed to insert lead: %w", err)
		}
		return upsertIdentityLinkTx(ctx, tx, link)
	})
}

// UpdateLeadWithLink rewrites a merged lead and points the anonymous id at
// it in the same transaction. Either both writes land or neither does, so
// a failed resolution never leaves a half-merged lead behind.
func (db *DB) UpdateLeadWithLink(ctx context.Context, lead *models.Lead, link *models.IdentityLink) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		_, err := tx.ExecContext(ctx, `UPDATE leads SET
			email_ciphertext = ?, email_fingerprint = ?,
			phone_ciphertext = ?, phone_fingerprint = ?,
			key_version = ?, user_id = ?, traits = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
			nullString(lead.EmailCiphertext), nullString(lead.EmailFingerprint),
			nullString(lead.PhoneCiphertext), nullString(lead.PhoneFingerprint),
			lead.KeyVersion, nullString(lead.UserID), lead.Traits, lead.UpdatedAt,
			lead.TenantID, lead.ID,
		)
		metrics.RecordDBQuery("UPDATE", "leads", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("failed to update lead: %w", err)
		}
		return upsertIdentityLinkTx(ctx, tx, link)
	})
}

// upsertIdentityLinkTx points an anonymous id at a lead inside an open
// transaction, migrating the link when the visitor was previously linked
// elsewhere. created_at survives the migration.
func upsertIdentityLinkTx(ctx context.Context, tx *sql.Tx, link *models.IdentityLink) error {
	start := time.Now()
	_, err := tx.ExecContext(ctx, `INSERT INTO identity_links (
		tenant_id, workspace_id, anonymous_id, lead_id, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (tenant_id, workspace_id, anonymous_id) DO UPDATE SET
		lead_id = excluded.lead_id,
		updated_at = excluded.updated_at`,
		link.TenantID, link.WorkspaceID, link.AnonymousID, link.LeadID,
		link.CreatedAt, link.UpdatedAt,
	)
	metrics.RecordDBQuery("UPSERT", "identity_links", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert identity link: %w", err)
	}
	return nil
}

// GetIdentityLink returns the link for an anonymous id, or (nil, nil) when
// the visitor has never been identified.
func (db *DB) GetIdentityLink(ctx context.Context, tenantID, workspaceID uuid.UUID, anonymousID string) (*models.IdentityLink, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT tenant_id, workspace_id, anonymous_id, lead_id, created_at, updated_at
	FROM identity_links
	WHERE tenant_id = ? AND workspace_id = ? AND anonymous_id = ?`

	var l models.IdentityLink
	start := time.Now()
	err := db.conn.QueryRowContext(ctx, query, tenantID, workspaceID, anonymousID).Scan(
		&l.TenantID, &l.WorkspaceID, &l.AnonymousID, &l.LeadID, &l.CreatedAt, &l.UpdatedAt,
	)
	metrics.RecordDBQuery("SELECT", "identity_links", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity link: %w", err)
	}
	return &l, nil
}

// CountLinksForLead reports how many anonymous ids point at a lead.
func (db *DB) CountLinksForLead(ctx context.Context, tenantID, workspaceID uuid.UUID, leadID string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT COUNT(*) FROM identity_links
	WHERE tenant_id = ? AND workspace_id = ? AND lead_id = ?`

	var count int64
	start := time.Now()
	err := db.conn.QueryRowContext(ctx, query, tenantID, workspaceID, leadID).Scan(&count)
	metrics.RecordDBQuery("SELECT", "identity_links", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to count identity links: %w", err)
	}
	return count, nil
}

// scanLead scans a full lead row, mapping NULL identifier columns back to
// empty strings.
func scanLead(row *sql.Row) (*models.Lead, error) {
	var l models.Lead
	var emailCT, emailFP, phoneCT, phoneFP, userID sql.NullString

	err := row.Scan(
		&l.ID, &l.TenantID, &l.WorkspaceID,
		&emailCT, &emailFP, &phoneCT, &phoneFP,
		&l.KeyVersion, &userID, &l.Traits, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.EmailCiphertext = emailCT.String
	l.EmailFingerprint = emailFP.String
	l.PhoneCiphertext = phoneCT.String
	l.PhoneFingerprint = phoneFP.String
	l.UserID = userID.String
	return &l, nil
}

// nullString maps the empty string to SQL NULL so absent identifiers do not
// collide on the unique fingerprint indexes.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
