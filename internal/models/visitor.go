// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package models

import (
	"time"

	"github.com/google/uuid"
)

// Visitor is the anonymous-visitor record for a (tenant, workspace,
// anonymous_id) triple. It is created on first sight and its last-seen
// snapshots are refreshed on every subsequent event. Visitors are never
// deleted by the ingestion core; retention is owned externally.
type Visitor struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`

	// AnonymousID is the client-generated handle, externally prefixed
	// (e.g. "a_...") to distinguish it from server-assigned identifiers.
	AnonymousID string `json:"anonymous_id"`

	LastUTM    *UTMParams  `json:"last_utm,omitempty"`
	LastDevice *DeviceInfo `json:"last_device,omitempty"`
	LastGeo    *GeoInfo    `json:"last_geo,omitempty"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}
