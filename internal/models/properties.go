// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// MaxPropertiesBytes caps the serialized size of a single property bag.
// Request-level payload budgets are enforced separately by the ingest gate;
// this cap bounds what a single event may carry into storage.
const MaxPropertiesBytes = 64 * 1024

// Properties is a size-bounded structured map for event properties and
// lead traits. It serializes as JSON and implements driver.Valuer /
// sql.Scanner so repositories can store it in a JSON column directly.
type Properties map[string]interface{}

// EncodedSize returns the serialized byte length of the bag.
func (p Properties) EncodedSize() (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("marshal properties: %w", err)
	}
	return len(data), nil
}

// Validate checks the serialized size against MaxPropertiesBytes.
func (p Properties) Validate() error {
	size, err := p.EncodedSize()
	if err != nil {
		return err
	}
	if size > MaxPropertiesBytes {
		return fmt.Errorf("properties exceed %d bytes (got %d)", MaxPropertiesBytes, size)
	}
	return nil
}

// Merge returns a copy of p with the entries of other applied on top.
// Existing keys are overwritten; p itself is not mutated.
func (p Properties) Merge(other Properties) Properties {
	merged := make(Properties, len(p)+len(other))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// Value implements driver.Valuer, storing the bag as a JSON string.
// Empty bags are stored as NULL.
func (p Properties) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal properties: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for JSON columns.
func (p *Properties) Scan(src interface{}) error {
	if src == nil {
		*p = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Properties", src)
	}

	if len(data) == 0 {
		*p = nil
		return nil
	}
	return json.Unmarshal(data, p)
}
