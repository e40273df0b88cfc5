// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vestigo-analytics/vestigo/internal/config"
	"github.com/vestigo-analytics/vestigo/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(&config.DatabaseConfig{
		Path:                   ":memory:",
		MaxMemory:              "512MB",
		PreserveInsertionOrder: true,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

func testEvent(tenantID, workspaceID uuid.UUID, id string) *models.Event {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Event{
		ID:            id,
		TenantID:      tenantID,
		WorkspaceID:   workspaceID,
		Name:          "page_viewed",
		AnonymousID:   "a_0123456789abcdef",
		SchemaVersion: "1.0.0",
		Timestamp:     now,
		Page: &models.PageInfo{
			URL:   "https://example.com/pricing",
			Title: "Pricing",
		},
		Properties: models.Properties{"plan": "pro"},
	}
}

func TestNew(t *testing.T) {
	db := newTestDB(t)

	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
	if got := db.GetDatabasePath(); got != ":memory:" {
		t.Errorf("GetDatabasePath() = %q, want :memory:", got)
	}

	events, sessions, leads, err := db.GetRecordCounts(context.Background())
	if err != nil {
		t.Fatalf("GetRecordCounts() error: %v", err)
	}
	if events != 0 || sessions != 0 || leads != 0 {
		t.Errorf("fresh database has counts %d/%d/%d, want 0/0/0", events, sessions, leads)
	}
}

func TestInsertEvent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tenantID := uuid.New()
	workspaceID := uuid.New()

	t.Run("insert and read back", func(t *testing.T) {
		event := testEvent(tenantID, workspaceID, "evt_01ARZ3NDEKTSV4RRFFQ69G5FAA")
		event.ClientEventID = strPtr("client-evt-1")

		inserted, err := db.InsertEvent(ctx, event)
		if err != nil {
			t.Fatalf("InsertEvent() error: %v", err)
		}
		if !inserted {
			t.Fatal("InsertEvent() = false, want true for new event")
		}

		got, err := db.GetEventByID(ctx, tenantID, event.ID)
		if err != nil {
			t.Fatalf("GetEventByID() error: %v", err)
		}
		if got == nil {
			t.Fatal("GetEventByID() = nil for persisted event")
		}
		if got.Name != "page_viewed" {
			t.Errorf("Name = %q, want page_viewed", got.Name)
		}
		if got.Page == nil || got.Page.URL != "https://example.com/pricing" {
			t.Errorf("Page snapshot not round-tripped: %+v", got.Page)
		}
		if got.Properties["plan"] != "pro" {
			t.Errorf("Properties = %v, want plan=pro", got.Properties)
		}
	})

	t.Run("duplicate client event id is dropped", func(t *testing.T) {
		first := testEvent(tenantID, workspaceID, "evt_01ARZ3NDEKTSV4RRFFQ69G5FAB")
		first.ClientEventID = strPtr("client-evt-dup")
		if _, err := db.InsertEvent(ctx, first); err != nil {
			t.Fatalf("InsertEvent() error: %v", err)
		}

		second := testEvent(tenantID, workspaceID, "evt_01ARZ3NDEKTSV4RRFFQ69G5FAC")
		second.ClientEventID = strPtr("client-evt-dup")
		inserted, err := db.InsertEvent(ctx, second)
		if err != nil {
			t.Fatalf("InsertEvent() duplicate error: %v", err)
		}
		if inserted {
			t.Error("InsertEvent() = true for duplicate client event id")
		}

		// The surviving row is the first insert.
		got, err := db.FindEventByClientID(ctx, tenantID, workspaceID, "client-evt-dup")
		if err != nil {
			t.Fatalf("FindEventByClientID() error: %v", err)
		}
		if got == nil || got.ID != first.ID {
			t.Errorf("surviving event = %+v, want id %s", got, first.ID)
		}
	})

	t.Run("same client event id in another tenant is distinct", func(t *testing.T) {
		otherTenant := uuid.New()
		event := testEvent(otherTenant, workspaceID, "evt_01ARZ3NDEKTSV4RRFFQ69G5FAD")
		event.ClientEventID = strPtr("client-evt-dup")

		inserted, err := db.InsertEvent(ctx, event)
		if err != nil {
			t.Fatalf("InsertEvent() error: %v", err)
		}
		if !inserted {
			t.Error("InsertEvent() = false, want true across tenants")
		}
	})

	t.Run("events without client id never conflict", func(t *testing.T) {
		for _, id := range []string{"evt_01ARZ3NDEKTSV4RRFFQ69G5FAE", "evt_01ARZ3NDEKTSV4RRFFQ69G5FAF"} {
			event := testEvent(tenantID, workspaceID, id)
			inserted, err := db.InsertEvent(ctx, event)
			if err != nil {
				t.Fatalf("InsertEvent() error: %v", err)
			}
			if !inserted {
				t.Errorf("InsertEvent() = false for event %s without client id", id)
			}
		}
	})

	t.Run("missing event is nil without error", func(t *testing.T) {
		got, err := db.FindEventByClientID(ctx, tenantID, workspaceID, "never-seen")
		if err != nil {
			t.Fatalf("FindEventByClientID() error: %v", err)
		}
		if got != nil {
			t.Errorf("FindEventByClientID() = %+v, want nil", got)
		}
	})
}

func TestVisitors(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tenantID := uuid.New()
	workspaceID := uuid.New()
	firstSeen := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	visitor := &models.Visitor{
		TenantID:    tenantID,
		WorkspaceID: workspaceID,
		AnonymousID: "a_visitor0000000001",
		LastUTM:     &models.UTMParams{Source: "google", Medium: "cpc"},
		FirstSeenAt: firstSeen,
		LastSeenAt:  firstSeen,
	}
	if err := db.UpsertVisitor(ctx, visitor); err != nil {
		t.Fatalf("UpsertVisitor() error: %v", err)
	}

	t.Run("second upsert keeps first_seen_at", func(t *testing.T) {
		later := firstSeen.Add(30 * time.Minute)
		update := &models.Visitor{
			TenantID:    tenantID,
			WorkspaceID: workspaceID,
			AnonymousID: "a_visitor0000000001",
			FirstSeenAt: later, // ignored on conflict
			LastSeenAt:  later,
		}
		if err := db.UpsertVisitor(ctx, update); err != nil {
			t.Fatalf("UpsertVisitor() update error: %v", err)
		}

		got, err := db.GetVisitor(ctx, tenantID, workspaceID, "a_visitor0000000001")
		if err != nil {
			t.Fatalf("GetVisitor() error: %v", err)
		}
		if got == nil {
			t.Fatal("GetVisitor() = nil")
		}
		if !got.FirstSeenAt.Equal(firstSeen) {
			t.Errorf("FirstSeenAt = %s, want original %s", got.FirstSeenAt, firstSeen)
		}
		if !got.LastSeenAt.Equal(later) {
			t.Errorf("LastSeenAt = %s, want %s", got.LastSeenAt, later)
		}
	})

	t.Run("sparse update keeps previous snapshots", func(t *testing.T) {
		got, err := db.GetVisitor(ctx, tenantID, workspaceID, "a_visitor0000000001")
		if err != nil {
			t.Fatalf("GetVisitor() error: %v", err)
		}
		if got.LastUTM == nil || got.LastUTM.Source != "google" {
			t.Errorf("LastUTM = %+v, want original google/cpc snapshot", got.LastUTM)
		}
	})

	t.Run("unknown visitor is nil without error", func(t *testing.T) {
		got, err := db.GetVisitor(ctx, tenantID, workspaceID, "a_neverseen00000001")
		if err != nil {
			t.Fatalf("GetVisitor() error: %v", err)
		}
		if got != nil {
			t.Errorf("GetVisitor() = %+v, want nil", got)
		}
	})
}

func TestSessions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tenantID := uuid.New()
	workspaceID := uuid.New()
	base := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Millisecond)

	old := &models.Session{
		ID:             "ses_01ARZ3NDEKTSV4RRFFQ69G5FAA",
		TenantID:       tenantID,
		WorkspaceID:    workspaceID,
		AnonymousID:    "a_visitor0000000001",
		StartedAt:      base,
		LastActivityAt: base.Add(10 * time.Minute),
	}
	recent := &models.Session{
		ID:             "ses_01ARZ3NDEKTSV4RRFFQ69G5FAB",
		TenantID:       tenantID,
		WorkspaceID:    workspaceID,
		AnonymousID:    "a_visitor0000000001",
		StartedAt:      base.Add(time.Hour),
		LastActivityAt: base.Add(90 * time.Minute),
	}
	for _, s := range []*models.Session{old, recent} {
		if err := db.InsertSession(ctx, s); err != nil {
			t.Fatalf("InsertSession(%s) error: %v", s.ID, err)
		}
	}

	t.Run("latest session wins", func(t *testing.T) {
		got, err := db.FindLatestSession(ctx, tenantID, workspaceID, "a_visitor0000000001")
		if err != nil {
			t.Fatalf("FindLatestSession() error: %v", err)
		}
		if got == nil || got.ID != recent.ID {
			t.Errorf("FindLatestSession() = %+v, want %s", got, recent.ID)
		}
	})

	t.Run("touch advances activity", func(t *testing.T) {
		newActivity := base.Add(95 * time.Minute)
		if err := db.TouchSession(ctx, tenantID, recent.ID, newActivity); err != nil {
			t.Fatalf("TouchSession() error: %v", err)
		}

		got, err := db.GetSessionByID(ctx, tenantID, recent.ID)
		if err != nil {
			t.Fatalf("GetSessionByID() error: %v", err)
		}
		if !got.LastActivityAt.Equal(newActivity) {
			t.Errorf("LastActivityAt = %s, want %s", got.LastActivityAt, newActivity)
		}
	})

	t.Run("touch never rewinds activity", func(t *testing.T) {
		older := base.Add(20 * time.Minute)
		if err := db.TouchSession(ctx, tenantID, recent.ID, older); err != nil {
			t.Fatalf("TouchSession() error: %v", err)
		}

		got, err := db.GetSessionByID(ctx, tenantID, recent.ID)
		if err != nil {
			t.Fatalf("GetSessionByID() error: %v", err)
		}
		if got.LastActivityAt.Equal(older) {
			t.Error("TouchSession rewound last_activity_at")
		}
	})

	t.Run("unknown visitor has no session", func(t *testing.T) {
		got, err := db.FindLatestSession(ctx, tenantID, workspaceID, "a_neverseen00000001")
		if err != nil {
			t.Fatalf("FindLatestSession() error: %v", err)
		}
		if got != nil {
			t.Errorf("FindLatestSession() = %+v, want nil", got)
		}
	})
}

func TestLeadsAndLinks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tenantID := uuid.New()
	workspaceID := uuid.New()
	now := time.Now().UTC().Truncate(time.Millisecond)

	lead := &models.Lead{
		ID:               "led_01ARZ3NDEKTSV4RRFFQ69G5FAA",
		TenantID:         tenantID,
		WorkspaceID:      workspaceID,
		EmailCiphertext:  "b64ciphertext-email",
		EmailFingerprint: "fp-email-1",
		KeyVersion:       1,
		Traits:           models.Properties{"plan": "trial"},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	link := &models.IdentityLink{
		TenantID:    tenantID,
		WorkspaceID: workspaceID,
		AnonymousID: "a_visitor0000000001",
		LeadID:      lead.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.InsertLeadWithLink(ctx, lead, link); err != nil {
		t.Fatalf("InsertLeadWithLink() error: %v", err)
	}

	t.Run("find by email fingerprint", func(t *testing.T) {
		got, err := db.FindLeadByEmailFingerprint(ctx, tenantID, workspaceID, "fp-email-1")
		if err != nil {
			t.Fatalf("FindLeadByEmailFingerprint() error: %v", err)
		}
		if got == nil || got.ID != lead.ID {
			t.Fatalf("FindLeadByEmailFingerprint() = %+v, want %s", got, lead.ID)
		}
		if got.EmailCiphertext != "b64ciphertext-email" {
			t.Errorf("EmailCiphertext = %q, not round-tripped", got.EmailCiphertext)
		}
		if got.HasPhone() {
			t.Error("HasPhone() = true for lead without phone")
		}
	})

	t.Run("fingerprint scoped by tenant", func(t *testing.T) {
		got, err := db.FindLeadByEmailFingerprint(ctx, uuid.New(), workspaceID, "fp-email-1")
		if err != nil {
			t.Fatalf("FindLeadByEmailFingerprint() error: %v", err)
		}
		if got != nil {
			t.Errorf("lead visible from foreign tenant: %+v", got)
		}
	})

	t.Run("empty fingerprint matches nothing", func(t *testing.T) {
		got, err := db.FindLeadByPhoneFingerprint(ctx, tenantID, workspaceID, "")
		if err != nil {
			t.Fatalf("FindLeadByPhoneFingerprint() error: %v", err)
		}
		if got != nil {
			t.Errorf("empty fingerprint matched lead %+v", got)
		}
	})

	t.Run("second lead without phone does not conflict", func(t *testing.T) {
		other := &models.Lead{
			ID:               "led_01ARZ3NDEKTSV4RRFFQ69G5FAB",
			TenantID:         tenantID,
			WorkspaceID:      workspaceID,
			EmailCiphertext:  "b64ciphertext-email-2",
			EmailFingerprint: "fp-email-2",
			KeyVersion:       1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		otherLink := &models.IdentityLink{
			TenantID:    tenantID,
			WorkspaceID: workspaceID,
			AnonymousID: "a_visitor0000000002",
			LeadID:      other.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		// Both leads have NULL phone_fingerprint; the unique index must skip them.
		if err := db.InsertLeadWithLink(ctx, other, otherLink); err != nil {
			t.Fatalf("InsertLeadWithLink() error: %v", err)
		}
	})

	t.Run("update lead merges identifiers", func(t *testing.T) {
		lead.PhoneCiphertext = "b64ciphertext-phone"
		lead.PhoneFingerprint = "fp-phone-1"
		lead.Traits = models.Properties{"plan": "pro"}
		lead.UpdatedAt = now.Add(time.Minute)
		if err := db.UpdateLeadWithLink(ctx, lead, link); err != nil {
			t.Fatalf("UpdateLeadWithLink() error: %v", err)
		}

		got, err := db.FindLeadByPhoneFingerprint(ctx, tenantID, workspaceID, "fp-phone-1")
		if err != nil {
			t.Fatalf("FindLeadByPhoneFingerprint() error: %v", err)
		}
		if got == nil || got.ID != lead.ID {
			t.Fatalf("FindLeadByPhoneFingerprint() = %+v, want %s", got, lead.ID)
		}
		if got.Traits["plan"] != "pro" {
			t.Errorf("Traits = %v, want plan=pro", got.Traits)
		}
	})

	t.Run("identity link round trip", func(t *testing.T) {
		got, err := db.GetIdentityLink(ctx, tenantID, workspaceID, "a_visitor0000000001")
		if err != nil {
			t.Fatalf("GetIdentityLink() error: %v", err)
		}
		if got == nil || got.LeadID != lead.ID {
			t.Errorf("GetIdentityLink() = %+v, want lead %s", got, lead.ID)
		}
	})

	t.Run("update migrates link to another lead", func(t *testing.T) {
		other, err := db.GetLeadByID(ctx, tenantID, "led_01ARZ3NDEKTSV4RRFFQ69G5FAB")
		if err != nil {
			t.Fatalf("GetLeadByID() error: %v", err)
		}
		migrated := &models.IdentityLink{
			TenantID:    tenantID,
			WorkspaceID: workspaceID,
			AnonymousID: "a_visitor0000000001",
			LeadID:      other.ID,
			CreatedAt:   now,
			UpdatedAt:   now.Add(2 * time.Minute),
		}
		other.UpdatedAt = now.Add(2 * time.Minute)
		if err := db.UpdateLeadWithLink(ctx, other, migrated); err != nil {
			t.Fatalf("UpdateLeadWithLink() error: %v", err)
		}

		got, err := db.GetIdentityLink(ctx, tenantID, workspaceID, "a_visitor0000000001")
		if err != nil {
			t.Fatalf("GetIdentityLink() error: %v", err)
		}
		if got.LeadID != other.ID {
			t.Errorf("LeadID = %s, want migrated lead", got.LeadID)
		}
		if !got.CreatedAt.Equal(now) {
			t.Errorf("CreatedAt = %s, want original %s preserved across migration", got.CreatedAt, now)
		}

		count, err := db.CountLinksForLead(ctx, tenantID, workspaceID, other.ID)
		if err != nil {
			t.Fatalf("CountLinksForLead() error: %v", err)
		}
		if count != 2 {
			t.Errorf("CountLinksForLead() = %d, want 2", count)
		}
	})

	t.Run("failed merge leaves lead and link untouched", func(t *testing.T) {
		other, err := db.GetLeadByID(ctx, tenantID, "led_01ARZ3NDEKTSV4RRFFQ69G5FAB")
		if err != nil {
			t.Fatalf("GetLeadByID() error: %v", err)
		}
		// fp-phone-1 already belongs to the first lead; the unique index
		// rejects the UPDATE and the whole transaction must roll back.
		other.PhoneCiphertext = "b64ciphertext-phone"
		other.PhoneFingerprint = "fp-phone-1"
		badLink := &models.IdentityLink{
			TenantID:    tenantID,
			WorkspaceID: workspaceID,
			AnonymousID: "a_visitor0000000098",
			LeadID:      other.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := db.UpdateLeadWithLink(ctx, other, badLink); err == nil {
			t.Fatal("UpdateLeadWithLink() = nil, want unique index error")
		}

		got, err := db.GetLeadByID(ctx, tenantID, other.ID)
		if err != nil {
			t.Fatalf("GetLeadByID() error: %v", err)
		}
		if got.HasPhone() {
			t.Error("phone persisted despite rolled back merge")
		}
		orphan, err := db.GetIdentityLink(ctx, tenantID, workspaceID, "a_visitor0000000098")
		if err != nil {
			t.Fatalf("GetIdentityLink() error: %v", err)
		}
		if orphan != nil {
			t.Errorf("link persisted despite rolled back merge: %+v", orphan)
		}
	})

	t.Run("transaction rolls back on duplicate lead id", func(t *testing.T) {
		dup := &models.Lead{
			ID:               lead.ID, // collides with existing primary key
			TenantID:         tenantID,
			WorkspaceID:      workspaceID,
			EmailFingerprint: "fp-email-rollback",
			KeyVersion:       1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		dupLink := &models.IdentityLink{
			TenantID:    tenantID,
			WorkspaceID: workspaceID,
			AnonymousID: "a_visitor0000000099",
			LeadID:      dup.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := db.InsertLeadWithLink(ctx, dup, dupLink); err == nil {
			t.Fatal("InsertLeadWithLink() = nil, want primary key error")
		}

		got, err := db.GetIdentityLink(ctx, tenantID, workspaceID, "a_visitor0000000099")
		if err != nil {
			t.Fatalf("GetIdentityLink() error: %v", err)
		}
		if got != nil {
			t.Errorf("link persisted despite rolled back transaction: %+v", got)
		}
	})

	t.Run("invalid fingerprint column rejected", func(t *testing.T) {
		if _, err := db.FindLeadByFingerprint(ctx, tenantID, workspaceID, "user_id; DROP TABLE leads", "x"); err == nil {
			t.Fatal("FindLeadByFingerprint() accepted unvetted column name")
		}
	})
}

func TestWithTx(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tenantID := uuid.New()
	now := time.Now().UTC().Truncate(time.Millisecond)

	insertSession := func(tx *sql.Tx, id string) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO sessions (id, tenant_id, workspace_id, anonymous_id, started_at, last_activity_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, tenantID, uuid.New(), "a_visitor0000000001", now, now)
		return err
	}

	t.Run("commit on success", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			return insertSession(tx, "ses_01ARZ3NDEKTSV4RRFFQ69G5FAA")
		})
		if err != nil {
			t.Fatalf("WithTx() error: %v", err)
		}

		got, err := db.GetSessionByID(ctx, tenantID, "ses_01ARZ3NDEKTSV4RRFFQ69G5FAA")
		if err != nil {
			t.Fatalf("GetSessionByID() error: %v", err)
		}
		if got == nil {
			t.Error("committed session not found")
		}
	})

	t.Run("rollback on error", func(t *testing.T) {
		wantErr := errors.New("abort")
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if err := insertSession(tx, "ses_01ARZ3NDEKTSV4RRFFQ69G5FAB"); err != nil {
				return err
			}
			return wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("WithTx() = %v, want %v", err, wantErr)
		}

		got, err := db.GetSessionByID(ctx, tenantID, "ses_01ARZ3NDEKTSV4RRFFQ69G5FAB")
		if err != nil {
			t.Fatalf("GetSessionByID() error: %v", err)
		}
		if got != nil {
			t.Error("session persisted despite rollback")
		}
	})
}
