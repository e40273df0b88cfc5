// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package eventprocessor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vestigo-analytics/vestigo/internal/logging"
	"github.com/vestigo-analytics/vestigo/internal/metrics"
	"github.com/vestigo-analytics/vestigo/internal/models"
	"github.com/vestigo-analytics/vestigo/internal/pii"
	"github.com/vestigo-analytics/vestigo/internal/validation"
)

// EventPublisher fans persisted events and identity outcomes out to
// downstream consumers. Publishing is best effort; the processor logs
// failures and moves on.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *models.Event) error
	PublishIdentity(ctx context.Context, link *models.IdentityLink) error
}

// Processor orchestrates the ingestion pipeline. All methods are safe for
// concurrent use.
type Processor struct {
	store     Store
	gate      *validation.Gate
	sessions  *SessionManager
	resolver  *Resolver
	publisher EventPublisher // nil disables fanout
}

// NewProcessor wires the pipeline. publisher may be nil when fanout is
// disabled.
func NewProcessor(store Store, gate *validation.Gate, sessions *SessionManager, resolver *Resolver, publisher EventPublisher) *Processor {
	return &Processor{
		store:     store,
		gate:      gate,
		sessions:  sessions,
		resolver:  resolver,
		publisher: publisher,
	}
}

// ProcessTrackEvent runs one track event through admission, deduplication,
// session resolution, persistence, and fanout. Failures are reported as
// result codes, never panics; a duplicate is a success variant.
func (p *Processor) ProcessTrackEvent(ctx context.Context, scope models.TenantContext, track *models.TrackEvent) models.TrackResult {
	start := time.Now()

	if err := scope.Validate(); err != nil {
		metrics.RecordIngest("track", "rejected", time.Since(start))
		return models.TrackResult{Error: models.ErrCodeValidation}
	}
	if gateErr := p.gate.CheckTimestamp(track.Timestamp, time.Now().UTC()); gateErr != nil {
		metrics.RecordIngest("track", "rejected", time.Since(start))
		return models.TrackResult{Error: gateErr.Code}
	}
	if err := track.Properties.Validate(); err != nil {
		metrics.RecordIngest("track", "rejected", time.Since(start))
		return models.TrackResult{Error: models.ErrCodePayloadTooLarge}
	}

	// Cheap duplicate read-check before doing any work. The storage
	// constraint still backstops the race where two carriers of the same
	// token pass this check concurrently.
	if track.EventID != "" {
		existing, err := p.store.FindEventByClientID(ctx, scope.TenantID, scope.WorkspaceID, track.EventID)
		if err != nil {
			scopedError(scope, "track").Err(err).Msg("Duplicate lookup failed")
			metrics.RecordIngest("track", "error", time.Since(start))
			return models.TrackResult{Error: models.ErrCodeProcessing}
		}
		if existing != nil {
			metrics.RecordDuplicate("lookup")
			metrics.RecordIngest("track", "duplicate", time.Since(start))
			return models.TrackResult{Accepted: true, EventID: existing.ID, IsDuplicate: true}
		}
	}

	event, result := p.persistTrackEvent(ctx, scope, track)
	if result != nil {
		metrics.RecordIngest("track", resultLabel(*result), time.Since(start))
		return *result
	}

	p.publish(ctx, event)

	metrics.RecordIngest("track", "accepted", time.Since(start))
	return models.TrackResult{Accepted: true, EventID: event.ID}
}

// persistTrackEvent runs the post-dedup sequence: visitor upsert, session
// resolution, identity link lookup, then the event insert. A non-nil
// result short-circuits the caller (duplicate or error); otherwise the
// inserted event is returned. A failure anywhere in the sequence surfaces
// as a processing failure, never a partial success.
func (p *Processor) persistTrackEvent(ctx context.Context, scope models.TenantContext, track *models.TrackEvent) (*models.Event, *models.TrackResult) {
	if err := p.upsertVisitor(ctx, scope, track); err != nil {
		scopedError(scope, "track").Err(err).
			Str("anonymous_id", track.AnonymousID).
			Msg("Visitor upsert failed")
		return nil, &models.TrackResult{Error: models.ErrCodeProcessing}
	}

	sessionID, err := p.resolveSessionID(ctx, scope, track)
	if err != nil {
		scopedError(scope, "track").Err(err).Msg("Session resolution failed")
		return nil, &models.TrackResult{Error: models.ErrCodeProcessing}
	}

	var leadID *string
	link, err := p.store.GetIdentityLink(ctx, scope.TenantID, scope.WorkspaceID, track.AnonymousID)
	if err != nil {
		scopedError(scope, "track").Err(err).Msg("Identity link lookup failed")
		return nil, &models.TrackResult{Error: models.ErrCodeProcessing}
	}
	if link != nil {
		leadID = &link.LeadID
	}

	event := &models.Event{
		ID:            NewEventID(),
		TenantID:      scope.TenantID,
		WorkspaceID:   scope.WorkspaceID,
		Name:          track.Name,
		AnonymousID:   track.AnonymousID,
		LeadID:        leadID,
		SchemaVersion: track.SchemaVersion,
		Timestamp:     track.Timestamp.UTC(),
		Page:          track.Page,
		UTM:           track.UTM,
		Device:        track.Device,
		Geo:           track.Geo,
		Properties:    track.Properties,
		CreatedAt:     time.Now().UTC(),
	}
	if event.SchemaVersion == "" {
		event.SchemaVersion = models.DefaultSchemaVersion
	}
	if track.EventID != "" {
		clientID := track.EventID
		event.ClientEventID = &clientID
	}
	if sessionID != "" {
		event.SessionID = &sessionID
	}

	inserted, err := p.store.InsertEvent(ctx, event)
	if err != nil {
		scopedError(scope, "track").Err(err).Msg("Event insert failed")
		return nil, &models.TrackResult{Error: models.ErrCodeProcessing}
	}
	if !inserted {
		// Lost the constraint race; surface the surviving row as the
		// duplicate, same shape as the read-check path.
		existing, err := p.store.FindEventByClientID(ctx, scope.TenantID, scope.WorkspaceID, track.EventID)
		if err != nil || existing == nil {
			scopedError(scope, "track").Err(err).Msg("Post-conflict duplicate fetch failed")
			return nil, &models.TrackResult{Error: models.ErrCodeProcessing}
		}
		metrics.RecordDuplicate("conflict")
		return nil, &models.TrackResult{Accepted: true, EventID: existing.ID, IsDuplicate: true}
	}

	return event, nil
}

// resolveSessionID honors a client-supplied session id verbatim and falls
// back to server-side session tracking otherwise.
func (p *Processor) resolveSessionID(ctx context.Context, scope models.TenantContext, track *models.TrackEvent) (string, error) {
	if track.SessionID != "" {
		return track.SessionID, nil
	}
	if p.sessions == nil {
		return "", nil
	}
	session, _, err := p.sessions.ResolveSession(ctx, scope, track.AnonymousID, track.Timestamp.UTC())
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

// upsertVisitor refreshes the visitor rollup with the event's last-seen
// snapshots. Runs before event persistence so a visitor-store failure
// never leaves a persisted event behind an unrecorded visitor.
func (p *Processor) upsertVisitor(ctx context.Context, scope models.TenantContext, track *models.TrackEvent) error {
	ts := track.Timestamp.UTC()
	visitor := &models.Visitor{
		TenantID:    scope.TenantID,
		WorkspaceID: scope.WorkspaceID,
		AnonymousID: track.AnonymousID,
		LastUTM:     track.UTM,
		LastDevice:  track.Device,
		LastGeo:     track.Geo,
		FirstSeenAt: ts,
		LastSeenAt:  ts,
	}
	return p.store.UpsertVisitor(ctx, visitor)
}

// publish fans the event out, best effort.
func (p *Processor) publish(ctx context.Context, event *models.Event) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishEvent(ctx, event); err != nil {
		logging.Warn().Err(err).
			Str("tenant_id", event.TenantID.String()).
			Str("workspace_id", event.WorkspaceID.String()).
			Str("event_id", event.ID).
			Msg("Event publish failed, continuing")
	}
}

// publishIdentity fans the identify outcome out, best effort.
func (p *Processor) publishIdentity(ctx context.Context, scope models.TenantContext, anonymousID, leadID string) {
	if p.publisher == nil {
		return
	}
	now := time.Now().UTC()
	link := &models.IdentityLink{
		TenantID:    scope.TenantID,
		WorkspaceID: scope.WorkspaceID,
		AnonymousID: anonymousID,
		LeadID:      leadID,
		UpdatedAt:   now,
	}
	if err := p.publisher.PublishIdentity(ctx, link); err != nil {
		logging.Warn().Err(err).
			Str("tenant_id", scope.TenantID.String()).
			Str("workspace_id", scope.WorkspaceID.String()).
			Str("lead_id", leadID).
			Msg("Identity publish failed, continuing")
	}
}

// ProcessBatch processes events in input order. A member failure never
// aborts the batch; each event gets its own result slot.
func (p *Processor) ProcessBatch(ctx context.Context, scope models.TenantContext, events []models.TrackEvent) models.BatchResult {
	result := models.BatchResult{Total: len(events)}

	if gateErr := p.gate.CheckBatchSize(len(events)); gateErr != nil {
		result.Rejected = len(events)
		result.Results = make([]models.TrackResult, len(events))
		for i := range result.Results {
			result.Results[i] = models.TrackResult{Error: gateErr.Code}
		}
		return result
	}
	metrics.RecordBatchSize(len(events))

	result.Results = make([]models.TrackResult, 0, len(events))
	for i := range events {
		r := p.ProcessTrackEvent(ctx, scope, &events[i])
		if r.Accepted {
			result.Accepted++
		} else {
			result.Rejected++
		}
		result.Results = append(result.Results, r)
	}
	return result
}

// ProcessIdentify resolves an identify call to a lead.
func (p *Processor) ProcessIdentify(ctx context.Context, scope models.TenantContext, identify *models.IdentifyEvent) models.IdentifyResult {
	start := time.Now()

	if err := scope.Validate(); err != nil {
		metrics.RecordIngest("identify", "rejected", time.Since(start))
		return models.IdentifyResult{Error: models.ErrCodeValidation}
	}
	if !identify.Timestamp.IsZero() {
		if gateErr := p.gate.CheckTimestamp(identify.Timestamp, time.Now().UTC()); gateErr != nil {
			metrics.RecordIngest("identify", "rejected", time.Since(start))
			return models.IdentifyResult{Error: gateErr.Code}
		}
	}

	lead, err := p.resolver.Resolve(ctx, scope, identify)
	if err != nil {
		scopedError(scope, "identify").Err(err).Msg("Identity resolution failed")
		metrics.RecordIngest("identify", "error", time.Since(start))
		return models.IdentifyResult{Error: identifyErrorCode(err)}
	}

	p.publishIdentity(ctx, scope, identify.AnonymousID, lead.ID)

	metrics.RecordIngest("identify", "accepted", time.Since(start))
	return models.IdentifyResult{Accepted: true, LeadID: lead.ID}
}

// scopedError starts an error log line carrying the tenant and workspace
// identifiers plus the failing operation, so every boundary failure is
// attributable without consulting the request log.
func scopedError(scope models.TenantContext, operation string) *zerolog.Event {
	return logging.Error().
		Str("tenant_id", scope.TenantID.String()).
		Str("workspace_id", scope.WorkspaceID.String()).
		Str("operation", operation)
}

func identifyErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoIdentifiers):
		return models.ErrCodeValidation
	case errors.Is(err, pii.ErrEmptyPlaintext), errors.Is(err, pii.ErrUnknownKind),
		errors.Is(err, pii.ErrUnknownKeyVersion), errors.Is(err, pii.ErrDecryptionFailed):
		return models.ErrCodeEncryption
	default:
		return models.ErrCodeProcessing
	}
}

func resultLabel(r models.TrackResult) string {
	switch {
	case r.IsDuplicate:
		return "duplicate"
	case r.Accepted:
		return "accepted"
	case r.Error == models.ErrCodeProcessing:
		return "error"
	default:
		return "rejected"
	}
}
