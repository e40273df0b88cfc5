// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead is an identified user. Email and phone are held only as AEAD
// ciphertext plus a deterministic keyed fingerprint; plaintext never
// reaches storage or logs. KeyVersion records which encryption key wrote
// the ciphertexts so retired keys can still decrypt.
type Lead struct {
	ID          string    `json:"id"` // led_<ULID>
	TenantID    uuid.UUID `json:"tenant_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`

	EmailCiphertext  string `json:"-"`
	EmailFingerprint string `json:"email_fingerprint,omitempty"`
	PhoneCiphertext  string `json:"-"`
	PhoneFingerprint string `json:"phone_fingerprint,omitempty"`
	KeyVersion       int    `json:"key_version"`

	// UserID is the caller's own identifier for this user, when supplied.
	UserID string `json:"user_id,omitempty"`

	// Traits holds the non-PII remainder of identify traits.
	Traits Properties `json:"traits,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasEmail reports whether an email identifier is stored.
func (l *Lead) HasEmail() bool { return l.EmailFingerprint != "" }

// HasPhone reports whether a phone identifier is stored.
func (l *Lead) HasPhone() bool { return l.PhoneFingerprint != "" }

// IdentityLink maps a (tenant, workspace, anonymous_id) to a lead. At most
// one link exists per anonymous id; re-identification migrates the link.
type IdentityLink struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	AnonymousID string    `json:"anonymous_id"`
	LeadID      string    `json:"lead_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
