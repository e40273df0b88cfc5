// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package validation

import (
	"fmt"
	"time"

	"github.com/vestigo-analytics/vestigo/internal/models"
)

// Default gate limits.
const (
	// DefaultTimestampWindow bounds how far an event timestamp may drift
	// from the receipt clock in either direction.
	DefaultTimestampWindow = 5 * time.Minute

	// DefaultMaxPayloadBytes is the serialized request body ceiling.
	DefaultMaxPayloadBytes = 256 * 1024

	// DefaultMaxBatchEvents is the per-batch event count ceiling.
	DefaultMaxBatchEvents = 50
)

// GateError is a rejected gate check, carrying the taxonomy code the API
// layer maps to a response.
type GateError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *GateError) Error() string {
	return e.Message
}

// GateConfig holds the configurable gate limits. Zero values fall back to
// the defaults.
type GateConfig struct {
	TimestampWindow time.Duration
	MaxPayloadBytes int
	MaxBatchEvents  int
}

// Gate applies the ingest-time checks that precede event processing. It is
// immutable after construction and safe for concurrent use.
type Gate struct {
	window          time.Duration
	maxPayloadBytes int
	maxBatchEvents  int
}

// NewGate builds a gate from the config, applying defaults for zero values.
func NewGate(cfg GateConfig) *Gate {
	g := &Gate{
		window:          cfg.TimestampWindow,
		maxPayloadBytes: cfg.MaxPayloadBytes,
		maxBatchEvents:  cfg.MaxBatchEvents,
	}
	if g.window <= 0 {
		g.window = DefaultTimestampWindow
	}
	if g.maxPayloadBytes <= 0 {
		g.maxPayloadBytes = DefaultMaxPayloadBytes
	}
	if g.maxBatchEvents <= 0 {
		g.maxBatchEvents = DefaultMaxBatchEvents
	}
	return g
}

// MaxPayloadBytes returns the payload ceiling, for use with
// http.MaxBytesReader at the transport edge.
func (g *Gate) MaxPayloadBytes() int {
	return g.maxPayloadBytes
}

// MaxBatchEvents returns the batch size ceiling.
func (g *Gate) MaxBatchEvents() int {
	return g.maxBatchEvents
}

// CheckTimestamp verifies the event timestamp sits within the window
// around receivedAt. The boundary is inclusive on both ends.
func (g *Gate) CheckTimestamp(eventTime, receivedAt time.Time) *GateError {
	drift := eventTime.Sub(receivedAt)
	if drift < 0 {
		drift = -drift
	}
	if drift > g.window {
		return &GateError{
			Code: models.ErrCodeTimestampOutOfWindow,
			Message: fmt.Sprintf("event timestamp %s is outside the ±%s ingest window",
				eventTime.UTC().Format(time.RFC3339), g.window),
		}
	}
	return nil
}

// CheckPayloadSize verifies a serialized payload does not exceed the
// configured ceiling.
func (g *Gate) CheckPayloadSize(sizeBytes int) *GateError {
	if sizeBytes > g.maxPayloadBytes {
		return &GateError{
			Code:    models.ErrCodePayloadTooLarge,
			Message: fmt.Sprintf("payload of %d bytes exceeds the %d byte limit", sizeBytes, g.maxPayloadBytes),
		}
	}
	return nil
}

// CheckBatchSize verifies a batch does not carry more events than allowed.
// Empty batches are rejected as well.
func (g *Gate) CheckBatchSize(count int) *GateError {
	if count == 0 {
		return &GateError{
			Code:    models.ErrCodeValidation,
			Message: "batch must contain at least one event",
		}
	}
	if count > g.maxBatchEvents {
		return &GateError{
			Code:    models.ErrCodeBatchTooLarge,
			Message: fmt.Sprintf("batch of %d events exceeds the %d event limit", count, g.maxBatchEvents),
		}
	}
	return nil
}

// ResolveSchemaVersion returns the supplied schema version when it is a
// well-formed MAJOR.MINOR.PATCH string, and the default version otherwise.
// Absence and malformation are treated identically.
func ResolveSchemaVersion(supplied string) string {
	if semverPattern.MatchString(supplied) {
		return supplied
	}
	return models.DefaultSchemaVersion
}
