// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package models

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// DefaultSchemaVersion is stamped on events when the caller did not supply
// a recognizable version token.
const DefaultSchemaVersion = "1.0.0"

// UTMParams holds campaign attribution parameters.
type UTMParams struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Term     string `json:"utm_term,omitempty"`
	Content  string `json:"utm_content,omitempty"`
}

// DeviceInfo is the device snapshot produced by upstream enrichment.
type DeviceInfo struct {
	UserAgent      string `json:"user_agent,omitempty"`
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os,omitempty"`
	OSVersion      string `json:"os_version,omitempty"`
	DeviceType     string `json:"device_type,omitempty"` // desktop, mobile, tablet
}

// GeoInfo is the geo snapshot produced by upstream enrichment.
type GeoInfo struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// PageInfo describes the page context of a browser-originated event.
type PageInfo struct {
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`
	Title    string `json:"title,omitempty"`
	Referrer string `json:"referrer,omitempty"`
}

// TrackEvent is a single validated-and-enriched track submission as it
// enters the processor. EventID is the optional client-supplied idempotency
// token; uniqueness enforcement is opt-in per caller.
type TrackEvent struct {
	EventID     string    `json:"event_id,omitempty" validate:"omitempty,max=255"`
	Name        string    `json:"event_name" validate:"required,max=255"`
	AnonymousID string    `json:"anonymous_id" validate:"required,anonid"`
	SessionID   string    `json:"session_id,omitempty" validate:"omitempty,max=64"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`

	// SchemaVersion is resolved from the out-of-band version token by the
	// API layer; the processor stores it verbatim.
	SchemaVersion string `json:"schema_version,omitempty"`

	Page       *PageInfo   `json:"page,omitempty"`
	UTM        *UTMParams  `json:"utm,omitempty"`
	Device     *DeviceInfo `json:"device,omitempty"`
	Geo        *GeoInfo    `json:"geo,omitempty"`
	Properties Properties  `json:"properties,omitempty"`
}

// Event is the immutable persisted form of a track event. The storage key
// is the composite (tenant_id, id); the ULID-based id keeps rows roughly
// time-ordered within a tenant.
type Event struct {
	ID          string    `json:"id"` // evt_<ULID>
	TenantID    uuid.UUID `json:"tenant_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`

	// ClientEventID is the idempotency token; nil when the caller opted out
	// of deduplication.
	ClientEventID *string `json:"client_event_id,omitempty"`

	Name        string  `json:"event_name"`
	AnonymousID string  `json:"anonymous_id"`
	LeadID      *string `json:"lead_id,omitempty"`
	SessionID   *string `json:"session_id,omitempty"`

	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`

	Page       *PageInfo   `json:"page,omitempty"`
	UTM        *UTMParams  `json:"utm,omitempty"`
	Device     *DeviceInfo `json:"device,omitempty"`
	Geo        *GeoInfo    `json:"geo,omitempty"`
	Properties Properties  `json:"properties,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IdentifyEvent is a validated identify submission. At least one of UserID
// or Traits must be present (enforced by the ingest gate).
type IdentifyEvent struct {
	AnonymousID string    `json:"anonymous_id" validate:"required,anonid"`
	UserID      string    `json:"user_id,omitempty" validate:"omitempty,max=255"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	Traits      Traits    `json:"traits,omitempty"`
}

// Traits carries the identity-resolving fields split from the free-form
// remainder. Email and Phone are the only PII-bearing fields and are the
// fingerprint-matching keys; everything else rides along as Custom.
//
// On the wire traits are a flat object ({"email": ..., "plan": "pro"});
// the custom JSON methods split and rejoin the PII keys.
type Traits struct {
	Email  string     `validate:"omitempty,email"`
	Phone  string     `validate:"omitempty,max=32"`
	Custom Properties `validate:"omitempty"`
}

// Empty reports whether no trait of any kind was supplied.
func (t Traits) Empty() bool {
	return t.Email == "" && t.Phone == "" && len(t.Custom) == 0
}

// UnmarshalJSON decodes a flat traits object, splitting email and phone
// from the free-form remainder.
func (t *Traits) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["email"].(string); ok {
		t.Email = v
	}
	if v, ok := raw["phone"].(string); ok {
		t.Phone = v
	}
	delete(raw, "email")
	delete(raw, "phone")
	if len(raw) > 0 {
		t.Custom = Properties(raw)
	}
	return nil
}

// MarshalJSON re-flattens the traits into a single object.
func (t Traits) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(t.Custom)+2)
	for k, v := range t.Custom {
		out[k] = v
	}
	if t.Email != "" {
		out["email"] = t.Email
	}
	if t.Phone != "" {
		out["phone"] = t.Phone
	}
	return json.Marshal(out)
}
