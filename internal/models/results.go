// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package models

// Error codes surfaced in processing results. Duplicate detection is a
// success variant, not an error, and has no code here.
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeTimestampOutOfWindow = "TIMESTAMP_OUT_OF_WINDOW"
	ErrCodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	ErrCodeBatchTooLarge        = "BATCH_TOO_LARGE"
	ErrCodeEncryption           = "ENCRYPTION_ERROR"
	ErrCodeProcessing           = "PROCESSING_ERROR"
)

// TrackResult is the outcome of processing one track event.
// IsDuplicate=true means the event's idempotency token matched an already
// persisted event; EventID then carries the existing internal id.
type TrackResult struct {
	Accepted    bool   `json:"accepted"`
	EventID     string `json:"event_id,omitempty"`
	IsDuplicate bool   `json:"is_duplicate,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BatchResult aggregates per-event results. Results preserves input order;
// a member failure never aborts the batch.
type BatchResult struct {
	Total    int           `json:"total"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Results  []TrackResult `json:"results"`
}

// IdentifyResult is the outcome of an identify call.
type IdentifyResult struct {
	Accepted bool   `json:"accepted"`
	LeadID   string `json:"lead_id,omitempty"`
	Error    string `json:"error,omitempty"`
}
