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

	"github.com/vestigo-analytics/vestigo/internal/logging"
	"github.com/vestigo-analytics/vestigo/internal/metrics"
	"github.com/vestigo-analytics/vestigo/internal/models"
)

// InsertEvent inserts an event with duplicate handling.
//
// Deduplication strategy:
//   - The unique index over (tenant_id, workspace_id, client_event_id)
//     rejects a second insert of the same client event ID; NULL IDs are
//     distinct and never conflict.
//   - ON CONFLICT DO NOTHING turns the constraint violation into zero
//     affected rows instead of an error, so a concurrent writer losing the
//     race gets inserted=false and can re-read the surviving row.
//
// Returns inserted=false when the row already existed.
func (db *DB) InsertEvent(ctx context.Context, event *models.Event) (inserted bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	page, err := marshalColumn(event.Page != nil, event.Page)
	if err != nil {
		return false, fmt.Errorf("failed to encode page: %w", err)
	}
	utm, err := marshalColumn(event.UTM != nil, event.UTM)
	if err != nil {
		return false, fmt.Errorf("failed to encode utm: %w", err)
	}
	device, err := marshalColumn(event.Device != nil, event.Device)
	if err != nil {
		return false, fmt.Errorf("failed to encode device: %w", err)
	}
	geo, err := marshalColumn(event.Geo != nil, event.Geo)
	if err != nil {
		return false, fmt.Errorf("failed to encode geo: %w", err)
	}

	query := `INSERT INTO events (
		id, tenant_id, workspace_id, client_event_id, event_name, anonymous_id,
		lead_id, session_id, schema_version, event_timestamp,
		page, utm, device, geo, properties, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING`

	start := time.Now()
	result, err := db.conn.ExecContext(ctx, query,
		event.ID, event.TenantID, event.WorkspaceID, event.ClientEventID,
		event.Name, event.AnonymousID, event.LeadID, event.SessionID,
		event.SchemaVersion, event.Timestamp,
		page, utm, device, geo, event.Properties, event.CreatedAt,
	)
	metrics.RecordDBQuery("INSERT", "events", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		clientEventID := "<nil>"
		if event.ClientEventID != nil {
			clientEventID = *event.ClientEventID
		}
		logging.Debug().
			Str("tenant_id", event.TenantID.String()).
			Str("client_event_id", clientEventID).
			Msg("Duplicate event detected on insert")
		return false, nil
	}

	return true, nil
}

// FindEventByClientID looks up the event persisted under a client event ID
// within the tenant/workspace scope. Returns (nil, nil) when no such event
// exists.
func (db *DB) FindEventByClientID(ctx context.Context, tenantID, workspaceID uuid.UUID, clientEventID string) (*models.Event, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, tenant_id, workspace_id, client_event_id, event_name, anonymous_id,
		lead_id, session_id, schema_version, event_timestamp,
		page, utm, device, geo, properties, created_at
	FROM events
	WHERE tenant_id = ? AND workspace_id = ? AND client_event_id = ?`

	start := time.Now()
	row := db.conn.QueryRowContext(ctx, query, tenantID, workspaceID, clientEventID)
	event, err := scanEvent(row)
	metrics.RecordDBQuery("SELECT", "events", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event by client ID: %w", err)
	}
	return event, nil
}

// GetEventByID retrieves an event by its server-assigned ID.
// Returns (nil, nil) when no such event exists.
func (db *DB) GetEventByID(ctx context.Context, tenantID uuid.UUID, eventID string) (*models.Event, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, tenant_id, workspace_id, client_event_id, event_name, anonymous_id,
		lead_id, session_id, schema_version, event_timestamp,
		page, utm, device, geo, properties, created_at
	FROM events
	WHERE tenant_id = ? AND id = ?`

	start := time.Now()
	row := db.conn.QueryRowContext(ctx, query, tenantID, eventID)
	event, err := scanEvent(row)
	metrics.RecordDBQuery("SELECT", "events", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// scanEvent scans a full event row, decoding the JSON snapshot columns.
func scanEvent(row *sql.Row) (*models.Event, error) {
	var e models.Event
	var page, utm, device, geo sql.NullString

	err := row.Scan(
		&e.ID, &e.TenantID, &e.WorkspaceID, &e.ClientEventID, &e.Name, &e.AnonymousID,
		&e.LeadID, &e.SessionID, &e.SchemaVersion, &e.Timestamp,
		&page, &utm, &device, &geo, &e.Properties, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if page.Valid {
		e.Page = &models.PageInfo{}
		if err := json.Unmarshal([]byte(page.String), e.Page); err != nil {
			return nil, fmt.Errorf("failed to decode page: %w", err)
		}
	}
	if utm.Valid {
		e.UTM = &models.UTMParams{}
		if err := json.Unmarshal([]byte(utm.String), e.UTM); err != nil {
			return nil, fmt.Errorf("failed to decode utm: %w", err)
		}
	}
	if device.Valid {
		e.Device = &models.DeviceInfo{}
		if err := json.Unmarshal([]byte(device.String), e.Device); err != nil {
			return nil, fmt.Errorf("failed to decode device: %w", err)
		}
	}
	if geo.Valid {
		e.Geo = &models.GeoInfo{}
		if err := json.Unmarshal([]byte(geo.String), e.Geo); err != nil {
			return nil, fmt.Errorf("failed to decode geo: %w", err)
		}
	}

	return &e, nil
}

// marshalColumn serializes a snapshot struct for a nullable JSON column.
// present guards against typed-nil pointers reaching the marshaler.
func marshalColumn(present bool, v interface{}) (interface{}, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
