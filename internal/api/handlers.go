// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/vestigo-analytics/vestigo/internal/database"
	"github.com/vestigo-analytics/vestigo/internal/eventprocessor"
	"github.com/vestigo-analytics/vestigo/internal/models"
	"github.com/vestigo-analytics/vestigo/internal/validation"
)

// HealthReporter reports the health of an optional downstream component,
// such as the JetStream event stream.
type HealthReporter interface {
	IsHealthy() bool
}

// Handler processes HTTP requests for the ingestion API.
type Handler struct {
	db        *database.DB
	processor *eventprocessor.Processor
	stream    HealthReporter // nil when fanout is disabled
	startTime time.Time
}

// NewHandler creates the API handler. stream may be nil when NATS fanout
// is disabled; readiness then depends on the database alone.
func NewHandler(db *database.DB, processor *eventprocessor.Processor, stream HealthReporter) *Handler {
	return &Handler{
		db:        db,
		processor: processor,
		stream:    stream,
		startTime: time.Now(),
	}
}

// BatchRequest is the envelope for POST /api/v1/batch. Events are
// processed in input order; member count limits are enforced by the
// ingest gate, structural member validation happens here.
type BatchRequest struct {
	Events []models.TrackEvent `json:"events" validate:"required,min=1,dive"`
}

// Track handles POST /api/v1/track.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var track models.TrackEvent
	if !decodeJSON(rw, r, &track) {
		return
	}
	resolveEventSchemaVersion(r, &track)
	if verr := validation.ValidateStruct(&track); verr != nil {
		rw.ValidationError("Invalid track event", verr.ToAPIError())
		return
	}

	result := h.processor.ProcessTrackEvent(r.Context(), ScopeFromContext(r.Context()), &track)
	if result.Error != "" {
		rw.Error(statusForCode(result.Error), result.Error, messageForCode(result.Error))
		return
	}
	rw.Success(result)
}

// Batch handles POST /api/v1/batch. A member failure never aborts the
// batch; each event gets its own result slot in input order. Only a
// wholesale rejection (oversized batch) produces an error envelope.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var batch BatchRequest
	if !decodeJSON(rw, r, &batch) {
		return
	}
	for i := range batch.Events {
		resolveEventSchemaVersion(r, &batch.Events[i])
	}
	if verr := validation.ValidateStruct(&batch); verr != nil {
		rw.ValidationError("Invalid batch request", verr.ToAPIError())
		return
	}

	result := h.processor.ProcessBatch(r.Context(), ScopeFromContext(r.Context()), batch.Events)
	if rejectedWholesale(result) {
		rw.ErrorWithDetails(http.StatusRequestEntityTooLarge, models.ErrCodeBatchTooLarge,
			messageForCode(models.ErrCodeBatchTooLarge), result)
		return
	}
	rw.Success(result)
}

// Identify handles POST /api/v1/identify.
func (h *Handler) Identify(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var identify models.IdentifyEvent
	if !decodeJSON(rw, r, &identify) {
		return
	}
	if verr := validation.ValidateStruct(&identify); verr != nil {
		rw.ValidationError("Invalid identify event", verr.ToAPIError())
		return
	}

	result := h.processor.ProcessIdentify(r.Context(), ScopeFromContext(r.Context()), &identify)
	if result.Error != "" {
		rw.Error(statusForCode(result.Error), result.Error, messageForCode(result.Error))
		return
	}
	rw.Success(result)
}

// resolveEventSchemaVersion stamps the event with the resolved schema
// version. An in-body version token takes precedence over the header;
// both resolve malformed values to the default.
func resolveEventSchemaVersion(r *http.Request, track *models.TrackEvent) {
	if track.SchemaVersion != "" {
		track.SchemaVersion = validation.ResolveSchemaVersion(track.SchemaVersion)
		return
	}
	track.SchemaVersion = SchemaVersionFromContext(r.Context())
}

// rejectedWholesale reports whether the batch was refused outright by the
// size gate rather than processed member by member.
func rejectedWholesale(result models.BatchResult) bool {
	return result.Total > 0 && result.Accepted == 0 &&
		len(result.Results) > 0 && result.Results[0].Error == models.ErrCodeBatchTooLarge
}

// decodeJSON decodes the request body into dst, writing the error
// response itself on failure. The body limit set by LimitRequestBody
// surfaces here as a MaxBytesError and maps to 413.
func decodeJSON(rw *ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			rw.Error(http.StatusRequestEntityTooLarge, models.ErrCodePayloadTooLarge,
				fmt.Sprintf("Request body exceeds the %d byte limit", maxErr.Limit))
			return false
		}
		rw.BadRequest("Malformed JSON request body")
		return false
	}
	return true
}

// statusForCode maps processing error codes onto HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case models.ErrCodeValidation:
		return http.StatusBadRequest
	case models.ErrCodeTimestampOutOfWindow:
		return http.StatusUnprocessableEntity
	case models.ErrCodePayloadTooLarge, models.ErrCodeBatchTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

var errorMessages = map[string]string{
	models.ErrCodeValidation:           "Event failed validation",
	models.ErrCodeTimestampOutOfWindow: "Event timestamp is outside the ingest window",
	models.ErrCodePayloadTooLarge:      "Payload exceeds the size limit",
	models.ErrCodeBatchTooLarge:        "Batch exceeds the event count limit",
	models.ErrCodeEncryption:           "Identity traits could not be protected",
	models.ErrCodeProcessing:           "Event could not be processed",
}

func messageForCode(code string) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "Event could not be processed"
}
