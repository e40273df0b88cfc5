// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package eventprocessor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vestigo-analytics/vestigo/internal/logging"
	"github.com/vestigo-analytics/vestigo/internal/models"
	"github.com/vestigo-analytics/vestigo/internal/validation"
)

type processorFixture struct {
	processor *Processor
	store     *fakeStore
	publisher *fakePublisher
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()

	store := newFakeStore()
	publisher := &fakePublisher{}
	sessions := NewSessionManager(store, 30*time.Minute, time.Minute)
	t.Cleanup(sessions.Stop)
	resolver := NewResolver(store, newTestEncryptor(t))

	return &processorFixture{
		processor: NewProcessor(store, validation.NewGate(validation.GateConfig{}), sessions, resolver, publisher),
		store:     store,
		publisher: publisher,
	}
}

func trackFixture(eventID string) *models.TrackEvent {
	return &models.TrackEvent{
		EventID:     eventID,
		Name:        "page_viewed",
		AnonymousID: "a_visitor0000000001",
		Timestamp:   time.Now().UTC(),
		UTM:         &models.UTMParams{Source: "google", Medium: "cpc"},
		Properties:  models.Properties{"path": "/pricing"},
	}
}

func TestProcessTrackEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts and persists", func(t *testing.T) {
		f := newProcessorFixture(t)
		scope := testScope()

		result := f.processor.ProcessTrackEvent(ctx, scope, trackFixture("client-1"))
		if !result.Accepted {
			t.Fatalf("result = %+v, want accepted", result)
		}
		if result.IsDuplicate {
			t.Error("first event flagged duplicate")
		}
		if !strings.HasPrefix(result.EventID, "evt_") {
			t.Errorf("event id %q missing evt_ prefix", result.EventID)
		}

		stored, err := f.store.FindEventByClientID(ctx, scope.TenantID, scope.WorkspaceID, "client-1")
		if err != nil {
			t.Fatalf("FindEventByClientID() error: %v", err)
		}
		if stored == nil {
			t.Fatal("event not persisted")
		}
		if stored.SchemaVersion != models.DefaultSchemaVersion {
			t.Errorf("SchemaVersion = %q, want default", stored.SchemaVersion)
		}
		if stored.SessionID == nil || !strings.HasPrefix(*stored.SessionID, "ses_") {
			t.Errorf("SessionID = %v, want server-assigned session", stored.SessionID)
		}

		visitor, err := f.store.GetVisitor(ctx, scope.TenantID, scope.WorkspaceID, "a_visitor0000000001")
		if err != nil {
			t.Fatalf("GetVisitor() error: %v", err)
		}
		if visitor == nil {
			t.Fatal("visitor not recorded")
		}
		if visitor.LastUTM == nil || visitor.LastUTM.Source != "google" {
			t.Errorf("visitor UTM snapshot = %+v", visitor.LastUTM)
		}

		published := f.publisher.published()
		if len(published) != 1 || published[0].ID != result.EventID {
			t.Errorf("published = %v, want the persisted event", published)
		}
	})

	t.Run("duplicate event id returns existing event", func(t *testing.T) {
		f := newProcessorFixture(t)
		scope := testScope()

		first := f.processor.ProcessTrackEvent(ctx, scope, trackFixture("client-dup"))
		second := f.processor.ProcessTrackEvent(ctx, scope, trackFixture("client-dup"))

		if !second.Accepted || !second.IsDuplicate {
			t.Fatalf("second result = %+v, want accepted duplicate", second)
		}
		if second.EventID != first.EventID {
			t.Errorf("duplicate returned %s, want original %s", second.EventID, first.EventID)
		}
		if len(f.publisher.published()) != 1 {
			t.Error("duplicate was published")
		}
	})

	t.Run("insert race converts to duplicate", func(t *testing.T) {
		f := newProcessorFixture(t)
		scope := testScope()

		// A concurrent writer lands the same token between the read check
		// and our insert.
		raced := false
		f.store.insertEventHook = func(event *models.Event) {
			if raced || event.ClientEventID == nil {
				return
			}
			raced = true
			winner := *event
			winner.ID = "evt_01ARZ3NDEKTSV4RRFFQWINNER0"
			key := scopeKey(winner.TenantID, winner.WorkspaceID, *winner.ClientEventID)
			f.store.byClient[key] = winner.ID
			f.store.events[winner.TenantID.String()+"|"+winner.ID] = &winner
		}

		result := f.processor.ProcessTrackEvent(ctx, scope, trackFixture("client-race"))
		if !result.Accepted || !result.IsDuplicate {
			t.Fatalf("result = %+v, want accepted duplicate after losing race", result)
		}
		if result.EventID != "evt_01ARZ3NDEKTSV4RRFFQWINNER0" {
			t.Errorf("EventID = %s, want the surviving row's id", result.EventID)
		}
	})

	t.Run("no event id means no dedup", func(t *testing.T) {
		f := newProcessorFixture(t)
		scope := testScope()

		first := f.processor.ProcessTrackEvent(ctx, scope, trackFixture(""))
		second := f.processor.ProcessTrackEvent(ctx, scope, trackFixture(""))
		if !first.Accepted || !second.Accepted {
			t.Fatal("events without tokens rejected")
		}
		if second.IsDuplicate {
			t.Error("identical payload without token flagged duplicate")
		}
		if first.EventID == second.EventID {
			t.Error("two inserts share an event id")
		}
	})

	t.Run("same token across tenants stays distinct", func(t *testing.T) {
		f := newProcessorFixture(t)

		first := f.processor.ProcessTrackEvent(ctx, testScope(), trackFixture("client-shared"))
		second := f.processor.ProcessTrackEvent(ctx, testScope(), trackFixture("client-shared"))
		if second.IsDuplicate {
			t.Error("token deduplicated across tenants")
		}
		if !first.Accepted || !second.Accepted {
			t.Error("cross-tenant events rejected")
		}
	})

	t.Run("client session id stored verbatim", func(t *testing.T) {
		f := newProcessorFixture(t)
		scope := testScope()

		track := trackFixture("client-sid")
		track.SessionID = "custom-session-99"
		result := f.processor.ProcessTrackEvent(ctx, scope, track)
		if !result.Accepted {
			t.Fatalf("result = %+v", result)
		}

		stored, _ := f.store.FindEventByClientID(ctx, scope.TenantID, scope.WorkspaceID, "client-sid")
		if stored.SessionID == nil || *stored.SessionID != "custom-session-99" {
			t.Errorf("SessionID = %v, want client value verbatim", stored.SessionID)
		}
	})

	t.Run("identified visitor stamps lead id", func(t *testing.T) {
		f := newProcessorFixture(t)
		scope := testScope()

		identify := f.processor.ProcessIdentify(ctx, scope, identifyWith("a_visitor0000000001", "", "dana@example.com", ""))
		if !identify.Accepted {
			t.Fatalf("identify result = %+v", identify)
		}

		result := f.processor.ProcessTrackEvent(ctx, scope, trackFixture("client-lead"))
		if !result.Accepted {
			t.Fatalf("result = %+v", result)
		}
		stored, _ := f.store.FindEventByClientID(ctx, scope.TenantID, scope.WorkspaceID, "client-lead")
		if stored.LeadID == nil || *stored.LeadID != identify.LeadID {
			t.Errorf("LeadID = %v, want %s", stored.LeadID, identify.LeadID)
		}
	})

	t.Run("timestamp outside window rejected", func(t *testing.T) {
		f := newProcessorFixture(t)

		track := trackFixture("client-old")
		track.Timestamp = time.Now().UTC().Add(-6 * time.Minute)
		result := f.processor.ProcessTrackEvent(ctx, testScope(), track)
		if result.Accepted {
			t.Fatal("stale event accepted")
		}
		if result.Error != models.ErrCodeTimestampOutOfWindow {
			t.Errorf("Error = %q, want %q", result.Error, models.ErrCodeTimestampOutOfWindow)
		}
	})

	t.Run("missing tenant scope rejected", func(t *testing.T) {
		f := newProcessorFixture(t)

		result := f.processor.ProcessTrackEvent(ctx, models.TenantContext{TenantID: uuid.New()}, trackFixture(""))
		if result.Accepted || result.Error != models.ErrCodeValidation {
			t.Errorf("result = %+v, want validation rejection", result)
		}
	})

	t.Run("oversized properties rejected", func(t *testing.T) {
		f := newProcessorFixture(t)

		track := trackFixture("")
		track.Properties = models.Properties{"blob": strings.Repeat("x", models.MaxPropertiesBytes+1)}
		result := f.processor.ProcessTrackEvent(ctx, testScope(), track)
		if result.Accepted || result.Error != models.ErrCodePayloadTooLarge {
			t.Errorf("result = %+v, want payload rejection", result)
		}
	})

	t.Run("insert failure surfaces as processing error", func(t *testing.T) {
		f := newProcessorFixture(t)
		f.store.failInsertEvent = true

		result := f.processor.ProcessTrackEvent(ctx, testScope(), trackFixture(""))
		if result.Accepted || result.Error != models.ErrCodeProcessing {
			t.Errorf("result = %+v, want processing error", result)
		}
	})

	t.Run("visitor failure fails the whole event", func(t *testing.T) {
		f := newProcessorFixture(t)
		f.store.failUpsertVisitor = true
		scope := testScope()

		result := f.processor.ProcessTrackEvent(ctx, scope, trackFixture("client-vis"))
		if result.Accepted || result.Error != models.ErrCodeProcessing {
			t.Fatalf("result = %+v, want processing error", result)
		}

		stored, err := f.store.FindEventByClientID(ctx, scope.TenantID, scope.WorkspaceID, "client-vis")
		if err != nil {
			t.Fatalf("FindEventByClientID() error: %v", err)
		}
		if stored != nil {
			t.Error("event persisted despite visitor failure")
		}
		if len(f.publisher.published()) != 0 {
			t.Error("failed event was published")
		}
	})

	t.Run("persistence failures log tenant scope", func(t *testing.T) {
		var buf bytes.Buffer
		prev := logging.Logger()
		logging.SetLogger(zerolog.New(&buf))
		defer logging.SetLogger(prev)

		f := newProcessorFixture(t)
		f.store.failInsertEvent = true
		scope := testScope()

		result := f.processor.ProcessTrackEvent(ctx, scope, trackFixture(""))
		if result.Accepted {
			t.Fatalf("result = %+v, want rejection", result)
		}

		out := buf.String()
		for _, want := range []string{
			`"tenant_id":"` + scope.TenantID.String() + `"`,
			`"workspace_id":"` + scope.WorkspaceID.String() + `"`,
			`"operation":"track"`,
		} {
			if !strings.Contains(out, want) {
				t.Errorf("log output missing %s:\n%s", want, out)
			}
		}
	})

	t.Run("publish failure does not fail ingest", func(t *testing.T) {
		f := newProcessorFixture(t)
		f.publisher.err = fmt.Errorf("broker down")

		result := f.processor.ProcessTrackEvent(ctx, testScope(), trackFixture("client-pub"))
		if !result.Accepted {
			t.Errorf("result = %+v, want accepted despite publish failure", result)
		}
	})

	t.Run("nil publisher is fine", func(t *testing.T) {
		store := newFakeStore()
		sessions := NewSessionManager(store, 30*time.Minute, time.Minute)
		defer sessions.Stop()
		p := NewProcessor(store, validation.NewGate(validation.GateConfig{}), sessions, nil, nil)

		result := p.ProcessTrackEvent(ctx, testScope(), trackFixture(""))
		if !result.Accepted {
			t.Errorf("result = %+v", result)
		}
	})
}

func TestProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves order and isolates failures", func(t *testing.T) {
		f := newProcessorFixture(t)
		scope := testScope()

		stale := *trackFixture("client-2")
		stale.Timestamp = time.Now().UTC().Add(-time.Hour)

		events := []models.TrackEvent{
			*trackFixture("client-1"),
			stale,
			*trackFixture("client-3"),
		}
		result := f.processor.ProcessBatch(ctx, scope, events)

		if result.Total != 3 || result.Accepted != 2 || result.Rejected != 1 {
			t.Fatalf("batch counts = %+v", result)
		}
		if len(result.Results) != 3 {
			t.Fatalf("len(Results) = %d, want 3", len(result.Results))
		}
		if !result.Results[0].Accepted || !result.Results[2].Accepted {
			t.Error("valid members rejected")
		}
		if result.Results[1].Error != models.ErrCodeTimestampOutOfWindow {
			t.Errorf("Results[1].Error = %q", result.Results[1].Error)
		}
	})

	t.Run("intra-batch duplicate detected", func(t *testing.T) {
		f := newProcessorFixture(t)

		events := []models.TrackEvent{
			*trackFixture("client-same"),
			*trackFixture("client-same"),
		}
		result := f.processor.ProcessBatch(ctx, testScope(), events)

		if result.Accepted != 2 {
			t.Fatalf("Accepted = %d, want 2 (duplicate is a success variant)", result.Accepted)
		}
		if !result.Results[1].IsDuplicate {
			t.Error("second occurrence not flagged duplicate")
		}
		if result.Results[1].EventID != result.Results[0].EventID {
			t.Error("duplicate does not reference the first event")
		}
	})

	t.Run("empty batch rejected", func(t *testing.T) {
		f := newProcessorFixture(t)

		result := f.processor.ProcessBatch(ctx, testScope(), nil)
		if result.Total != 0 || result.Accepted != 0 {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("oversized batch rejected wholesale", func(t *testing.T) {
		f := newProcessorFixture(t)

		events := make([]models.TrackEvent, validation.DefaultMaxBatchEvents+1)
		for i := range events {
			events[i] = *trackFixture("")
		}
		result := f.processor.ProcessBatch(ctx, testScope(), events)

		if result.Accepted != 0 || result.Rejected != len(events) {
			t.Fatalf("batch counts = %+v, want wholesale rejection", result)
		}
		for i, r := range result.Results {
			if r.Error != models.ErrCodeBatchTooLarge {
				t.Fatalf("Results[%d].Error = %q", i, r.Error)
			}
		}
	})
}

func TestProcessIdentify(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts and returns lead id", func(t *testing.T) {
		f := newProcessorFixture(t)

		result := f.processor.ProcessIdentify(ctx, testScope(), identifyWith("a_visitor0000000001", "user-1", "dana@example.com", ""))
		if !result.Accepted {
			t.Fatalf("result = %+v", result)
		}
		if !strings.HasPrefix(result.LeadID, "led_") {
			t.Errorf("LeadID = %q", result.LeadID)
		}
	})

	t.Run("empty identify rejected as validation error", func(t *testing.T) {
		f := newProcessorFixture(t)

		result := f.processor.ProcessIdentify(ctx, testScope(), identifyWith("a_visitor0000000001", "", "", ""))
		if result.Accepted || result.Error != models.ErrCodeValidation {
			t.Errorf("result = %+v, want validation rejection", result)
		}
	})

	t.Run("missing scope rejected", func(t *testing.T) {
		f := newProcessorFixture(t)

		result := f.processor.ProcessIdentify(ctx, models.TenantContext{}, identifyWith("a_visitor0000000001", "user-1", "", ""))
		if result.Accepted || result.Error != models.ErrCodeValidation {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("stale timestamp rejected", func(t *testing.T) {
		f := newProcessorFixture(t)

		identify := identifyWith("a_visitor0000000001", "user-1", "", "")
		identify.Timestamp = time.Now().UTC().Add(time.Hour)
		result := f.processor.ProcessIdentify(ctx, testScope(), identify)
		if result.Accepted || result.Error != models.ErrCodeTimestampOutOfWindow {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("publishes resolved link", func(t *testing.T) {
		f := newProcessorFixture(t)

		result := f.processor.ProcessIdentify(ctx, testScope(), identifyWith("a_visitor0000000001", "", "dana@example.com", ""))
		if !result.Accepted {
			t.Fatalf("result = %+v", result)
		}

		links := f.publisher.publishedIdentities()
		if len(links) != 1 {
			t.Fatalf("published %d links, want 1", len(links))
		}
		if links[0].LeadID != result.LeadID || links[0].AnonymousID != "a_visitor0000000001" {
			t.Errorf("published link = %+v, want lead %s", links[0], result.LeadID)
		}
	})

	t.Run("publish failure does not fail identify", func(t *testing.T) {
		f := newProcessorFixture(t)
		f.publisher.err = fmt.Errorf("broker down")

		result := f.processor.ProcessIdentify(ctx, testScope(), identifyWith("a_visitor0000000001", "user-1", "", ""))
		if !result.Accepted {
			t.Errorf("result = %+v, want accepted despite publish failure", result)
		}
	})
}
