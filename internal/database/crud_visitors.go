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

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/vestigo-analytics/vestigo/internal/metrics"
	"github.com/vestigo-analytics/vestigo/internal/models"
)

// UpsertVisitor creates the visitor row on first sight or refreshes the
// last-seen timestamp and snapshots on subsequent events. first_seen_at is
// never overwritten.
func (db *DB) UpsertVisitor(ctx context.Context, visitor *models.Visitor) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	lastUTM, err := marshalColumn(visitor.LastUTM != nil, visitor.LastUTM)
	if err != nil {
		return fmt.Errorf("failed to encode utm: %w", err)
	}
	lastDevice, err := marshalColumn(visitor.LastDevice != nil, visitor.LastDevice)
	if err != nil {
		return fmt.Errorf("failed to encode device: %w", err)
	}
	lastGeo, err := marshalColumn(visitor.LastGeo != nil, visitor.LastGeo)
	if err != nil {
		return fmt.Errorf("failed to encode geo: %w", err)
	}

	// COALESCE keeps the previous snapshot when the incoming event carried
	// none, so a sparse event does not erase attribution.
	query := `INSERT INTO visitors (
		tenant_id, workspace_id, anonymous_id,
		last_utm, last_device, last_geo, first_seen_at, last_seen_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (tenant_id, workspace_id, anonymous_id) DO UPDATE SET
		last_utm = COALESCE(excluded.last_utm, last_utm),
		last_device = COALESCE(excluded.last_device, last_device),
		last_geo = COALESCE(excluded.last_geo, last_geo),
		last_seen_at = excluded.last_seen_at`

	start := time.Now()
	_, err = db.conn.ExecContext(ctx, query,
		visitor.TenantID, visitor.WorkspaceID, visitor.AnonymousID,
		lastUTM, lastDevice, lastGeo, visitor.FirstSeenAt, visitor.LastSeenAt,
	)
	metrics.RecordDBQuery("UPSERT", "visitors", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert visitor: %w", err)
	}
	return nil
}

// GetVisitor retrieves a visitor record. Returns (nil, nil) when the
// visitor has never been seen.
func (db *DB) GetVisitor(ctx context.Context, tenantID, workspaceID uuid.UUID, anonymousID string) (*models.Visitor, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT tenant_id, workspace_id, anonymous_id,
		last_utm, last_device, last_geo, first_seen_at, last_seen_at
	FROM visitors
	WHERE tenant_id = ? AND workspace_id = ? AND anonymous_id = ?`

	var v models.Visitor
	var lastUTM, lastDevice, lastGeo sql.NullString

	start := time.Now()
	err := db.conn.QueryRowContext(ctx, query, tenantID, workspaceID, anonymousID).Scan(
		&v.TenantID, &v.WorkspaceID, &v.AnonymousID,
		&lastUTM, &lastDevice, &lastGeo, &v.FirstSeenAt, &v.LastSeenAt,
	)
	metrics.RecordDBQuery("SELECT", "visitors", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visitor: %w", err)
	}

	if lastUTM.Valid {
		v.LastUTM = &models.UTMParams{}
		if err := json.Unmarshal([]byte(lastUTM.String), v.LastUTM); err != nil {
			return nil, fmt.Errorf("failed to decode utm: %w", err)
		}
	}
	if lastDevice.Valid {
		v.LastDevice = &models.DeviceInfo{}
		if err := json.Unmarshal([]byte(lastDevice.String), v.LastDevice); err != nil {
			return nil, fmt.Errorf("failed to decode device: %w", err)
		}
	}
	if lastGeo.Valid {
		v.LastGeo = &models.GeoInfo{}
		if err := json.Unmarshal([]byte(lastGeo.String), v.LastGeo); err != nil {
			return nil, fmt.Errorf("failed to decode geo: %w", err)
		}
	}

	return &v, nil
}
