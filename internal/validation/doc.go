// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

// Package validation provides struct validation using go-playground/validator v10
// and the ingest gate that every event passes before processing.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance with custom validators and user-friendly error
// messages. It integrates with the application's API error format for consistent
// error responses. The Gate type layers the ingest-specific checks on top:
// timestamp recency window, payload size ceiling, batch size ceiling, and
// schema version resolution.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Custom validators: semver (schema versions), anonid (anonymous IDs)
//   - Comprehensive error translation to human-readable messages
//   - APIError conversion matching the application's error format
//   - Gate: timestamp window, payload/batch limits, schema version fallback
//
// # Quick Start
//
//	type TrackRequest struct {
//	    Name        string `validate:"required,min=1,max=255"`
//	    AnonymousID string `validate:"required,anonid"`
//	}
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    var req TrackRequest
//	    if err := json.Decode(r.Body, &req); err != nil {
//	        // handle decode error
//	    }
//
//	    if verr := validation.ValidateStruct(&req); verr != nil {
//	        apiErr := verr.ToAPIError()
//	        respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	        return
//	    }
//
//	    // proceed with valid request
//	}
//
// # Common Validation Tags
//
// String validations:
//   - required: Field must not be empty
//   - min=n: Minimum length n characters
//   - max=n: Maximum length n characters
//   - email: Valid email format
//   - uuid: Valid UUID format
//   - semver: MAJOR.MINOR.PATCH version string
//   - anonid: Client anonymous ID ("a_" prefix, 16-64 URL-safe characters)
//
// Numeric validations:
//   - gte=n, lte=n, gt=n, lt=n, min=n, max=n
//
// Enum validations:
//   - oneof=a b c: Must be one of the specified values
//
// # The Ingest Gate
//
// Gate applies the checks that cannot be expressed as struct tags because
// they depend on the receipt clock or on the serialized payload:
//
//	gate := validation.NewGate(validation.GateConfig{})
//	if err := gate.CheckTimestamp(evt.Timestamp, receivedAt); err != nil {
//	    // TIMESTAMP_OUT_OF_WINDOW
//	}
//
// Limits default to a ±5 minute timestamp window, 256 KiB payloads, and
// 50-event batches. ResolveSchemaVersion falls back to "1.0.0" when the
// supplied version is absent or malformed.
//
// # Error Types
//
// ValidationError represents a single field validation failure and exposes
// Field, Tag, Param, Value, and Error accessors. RequestValidationError
// aggregates multiple field errors and converts to the API error format
// via ToAPIError:
//
//	// Single field error
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "AnonymousID must be a client anonymous ID (a_ prefix)",
//	    "details": {"field": "AnonymousID", "tag": "anonid", "value": "xyz"}
//	}
//
// # Thread Safety
//
// The singleton validator is initialized once and safe for concurrent use;
// Gate is immutable after construction.
//
// # See Also
//
//   - internal/api: Request handlers using validation
//   - internal/eventprocessor: Processor invoking the gate per event
//   - github.com/go-playground/validator/v10: Underlying library
package validation
