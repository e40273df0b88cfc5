// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package eventprocessor

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/vestigo-analytics/vestigo/internal/models"
)

// Serializer handles event encoding/decoding for NATS messages. Persisted
// events serialize as-is; they carry only ciphertext references (via
// lead_id), never PII.
type Serializer struct{}

// NewSerializer creates a new serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Marshal converts an event to JSON bytes.
func (s *Serializer) Marshal(event *models.Event) ([]byte, error) {
	if event.ID == "" {
		return nil, fmt.Errorf("marshal event: missing id")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Unmarshal converts JSON bytes to an event.
func (s *Serializer) Unmarshal(data []byte) (*models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &event, nil
}

// SerializeEvent is a convenience function that marshals an event to JSON.
func SerializeEvent(event *models.Event) ([]byte, error) {
	return NewSerializer().Marshal(event)
}

// DeserializeEvent is a convenience function that unmarshals JSON to an event.
func DeserializeEvent(data []byte) (*models.Event, error) {
	return NewSerializer().Unmarshal(data)
}

// SerializeIdentityLink marshals an identity link to JSON. Links carry
// tenant scope, the anonymous id, and the lead id; no PII fields exist on
// the type.
func SerializeIdentityLink(link *models.IdentityLink) ([]byte, error) {
	if link.LeadID == "" || link.AnonymousID == "" {
		return nil, fmt.Errorf("marshal identity link: missing ids")
	}

	data, err := json.Marshal(link)
	if err != nil {
		return nil, fmt.Errorf("marshal identity link: %w", err)
	}
	return data, nil
}

// DeserializeIdentityLink unmarshals JSON to an identity link.
func DeserializeIdentityLink(data []byte) (*models.IdentityLink, error) {
	var link models.IdentityLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("unmarshal identity link: %w", err)
	}
	return &link, nil
}
