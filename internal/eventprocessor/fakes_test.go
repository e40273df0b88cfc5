// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package eventprocessor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vestigo-analytics/vestigo/internal/models"
)

// fakeStore is an in-memory Store enforcing the same uniqueness rules as
// the real schema: client event ids unique per (tenant, workspace), one
// identity link per anonymous id, unique lead fingerprints.
type fakeStore struct {
	mu sync.Mutex

	events   map[string]*models.Event // key tenant|id
	byClient map[string]string        // key tenant|workspace|clientEventID -> event id
	visitors map[string]*models.Visitor
	sessions map[string]*models.Session
	leads    map[string]*models.Lead
	links    map[string]*models.IdentityLink

	failInsertEvent   bool
	failFindLatest    bool
	failUpsertVisitor bool
	failLinkWrite     bool
	insertEventHook   func(*models.Event) // runs under lock before insert
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:   map[string]*models.Event{},
		byClient: map[string]string{},
		visitors: map[string]*models.Visitor{},
		sessions: map[string]*models.Session{},
		leads:    map[string]*models.Lead{},
		links:    map[string]*models.IdentityLink{},
	}
}

func scopeKey(tenantID, workspaceID uuid.UUID, suffix string) string {
	return tenantID.String() + "|" + workspaceID.String() + "|" + suffix
}

func (s *fakeStore) InsertEvent(_ context.Context, event *models.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failInsertEvent {
		return false, fmt.Errorf("forced insert failure")
	}
	if s.insertEventHook != nil {
		s.insertEventHook(event)
	}

	if event.ClientEventID != nil {
		key := scopeKey(event.TenantID, event.WorkspaceID, *event.ClientEventID)
		if _, exists := s.byClient[key]; exists {
			return false, nil
		}
		s.byClient[key] = event.ID
	}

	copied := *event
	s.events[event.TenantID.String()+"|"+event.ID] = &copied
	return true, nil
}

func (s *fakeStore) FindEventByClientID(_ context.Context, tenantID, workspaceID uuid.UUID, clientEventID string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byClient[scopeKey(tenantID, workspaceID, clientEventID)]
	if !ok {
		return nil, nil
	}
	copied := *s.events[tenantID.String()+"|"+id]
	return &copied, nil
}

func (s *fakeStore) UpsertVisitor(_ context.Context, visitor *models.Visitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failUpsertVisitor {
		return fmt.Errorf("forced visitor failure")
	}

	key := scopeKey(visitor.TenantID, visitor.WorkspaceID, visitor.AnonymousID)
	if existing, ok := s.visitors[key]; ok {
		existing.LastSeenAt = visitor.LastSeenAt
		if visitor.LastUTM != nil {
			existing.LastUTM = visitor.LastUTM
		}
		if visitor.LastDevice != nil {
			existing.LastDevice = visitor.LastDevice
		}
		if visitor.LastGeo != nil {
			existing.LastGeo = visitor.LastGeo
		}
		return nil
	}
	copied := *visitor
	s.visitors[key] = &copied
	return nil
}

func (s *fakeStore) GetVisitor(_ context.Context, tenantID, workspaceID uuid.UUID, anonymousID string) (*models.Visitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visitors[scopeKey(tenantID, workspaceID, anonymousID)]
	if !ok {
		return nil, nil
	}
	copied := *v
	return &copied, nil
}

func (s *fakeStore) FindLatestSession(_ context.Context, tenantID, workspaceID uuid.UUID, anonymousID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFindLatest {
		return nil, fmt.Errorf("forced lookup failure")
	}

	var latest *models.Session
	for _, session := range s.sessions {
		if session.TenantID != tenantID || session.WorkspaceID != workspaceID || session.AnonymousID != anonymousID {
			continue
		}
		if latest == nil || session.LastActivityAt.After(latest.LastActivityAt) {
			latest = session
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (s *fakeStore) InsertSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *session
	s.sessions[session.TenantID.String()+"|"+session.ID] = &copied
	return nil
}

func (s *fakeStore) TouchSession(_ context.Context, tenantID uuid.UUID, sessionID string, lastActivityAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[tenantID.String()+"|"+sessionID]
	if ok && lastActivityAt.After(session.LastActivityAt) {
		session.LastActivityAt = lastActivityAt
	}
	return nil
}

func (s *fakeStore) GetIdentityLink(_ context.Context, tenantID, workspaceID uuid.UUID, anonymousID string) (*models.IdentityLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[scopeKey(tenantID, workspaceID, anonymousID)]
	if !ok {
		return nil, nil
	}
	copied := *link
	return &copied, nil
}

func (s *fakeStore) findLeadLocked(tenantID, workspaceID uuid.UUID, match func(*models.Lead) bool) *models.Lead {
	for _, lead := range s.leads {
		if lead.TenantID == tenantID && lead.WorkspaceID == workspaceID && match(lead) {
			copied := *lead
			return &copied
		}
	}
	return nil
}

func (s *fakeStore) FindLeadByEmailFingerprint(_ context.Context, tenantID, workspaceID uuid.UUID, fingerprint string) (*models.Lead, error) {
	if fingerprint == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLeadLocked(tenantID, workspaceID, func(l *models.Lead) bool {
		return l.EmailFingerprint == fingerprint
	}), nil
}

func (s *fakeStore) FindLeadByPhoneFingerprint(_ context.Context, tenantID, workspaceID uuid.UUID, fingerprint string) (*models.Lead, error) {
	if fingerprint == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLeadLocked(tenantID, workspaceID, func(l *models.Lead) bool {
		return l.PhoneFingerprint == fingerprint
	}), nil
}

func (s *fakeStore) GetLeadByID(_ context.Context, tenantID uuid.UUID, leadID string) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[tenantID.String()+"|"+leadID]
	if !ok {
		return nil, nil
	}
	copied := *lead
	return &copied, nil
}

// InsertLeadWithLink and UpdateLeadWithLink mimic the real store's
// transactional boundary: when the link write fails, neither map mutates.
func (s *fakeStore) InsertLeadWithLink(_ context.Context, lead *models.Lead, link *models.IdentityLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failLinkWrite {
		return fmt.Errorf("forced link failure")
	}

	leadCopy := *lead
	s.leads[lead.TenantID.String()+"|"+lead.ID] = &leadCopy
	s.upsertLinkLocked(link)
	return nil
}

func (s *fakeStore) UpdateLeadWithLink(_ context.Context, lead *models.Lead, link *models.IdentityLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failLinkWrite {
		return fmt.Errorf("forced link failure")
	}

	copied := *lead
	s.leads[lead.TenantID.String()+"|"+lead.ID] = &copied
	s.upsertLinkLocked(link)
	return nil
}

func (s *fakeStore) upsertLinkLocked(link *models.IdentityLink) {
	key := scopeKey(link.TenantID, link.WorkspaceID, link.AnonymousID)
	copied := *link
	if existing, ok := s.links[key]; ok {
		copied.CreatedAt = existing.CreatedAt
	}
	s.links[key] = &copied
}

var _ Store = (*fakeStore)(nil)

// fakePublisher records published events and identity links, optionally
// failing both paths.
type fakePublisher struct {
	mu         sync.Mutex
	events     []*models.Event
	identities []*models.IdentityLink
	err        error
}

func (p *fakePublisher) PublishEvent(_ context.Context, event *models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) PublishIdentity(_ context.Context, link *models.IdentityLink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.identities = append(p.identities, link)
	return nil
}

func (p *fakePublisher) published() []*models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.Event(nil), p.events...)
}

func (p *fakePublisher) publishedIdentities() []*models.IdentityLink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.IdentityLink(nil), p.identities...)
}
