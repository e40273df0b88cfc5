// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package models

import (
	"errors"

	"github.com/google/uuid"
)

// ErrMissingTenantScope is returned when a tenant or workspace ID is absent.
var ErrMissingTenantScope = errors.New("tenant and workspace IDs are required")

// TenantContext carries the (tenant, workspace) isolation scope through
// every core call. It is resolved upstream (API-key auth at the gateway)
// and passed explicitly rather than read from ambient request state.
type TenantContext struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
}

// Validate reports whether both scope identifiers are present.
func (t TenantContext) Validate() error {
	if t.TenantID == uuid.Nil || t.WorkspaceID == uuid.Nil {
		return ErrMissingTenantScope
	}
	return nil
}
