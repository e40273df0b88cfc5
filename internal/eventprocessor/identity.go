// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package eventprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/vestigo-analytics/vestigo/internal/logging"
	"github.com/vestigo-analytics/vestigo/internal/metrics"
	"github.com/vestigo-analytics/vestigo/internal/models"
	"github.com/vestigo-analytics/vestigo/internal/pii"
)

// Resolver matches identify calls to leads by encrypted-PII fingerprints
// and maintains the anonymous-id to lead links.
//
// Matching is email-first: when both identifiers are supplied and each
// matches a different lead, the email match wins. Plaintext identifiers
// exist only on the stack during resolution; storage sees ciphertext and
// fingerprints, logs see at most a fingerprint preview.
type Resolver struct {
	store     IdentityStore
	encryptor *pii.Encryptor
}

// NewResolver creates an identity resolver.
func NewResolver(store IdentityStore, encryptor *pii.Encryptor) *Resolver {
	return &Resolver{store: store, encryptor: encryptor}
}

// Resolve processes one identify call: it finds or creates the lead for
// the supplied identifiers, merges traits, and links the anonymous id.
func (r *Resolver) Resolve(ctx context.Context, scope models.TenantContext, identify *models.IdentifyEvent) (*models.Lead, error) {
	if identify.UserID == "" && identify.Traits.Empty() {
		return nil, ErrNoIdentifiers
	}

	now := identify.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var email, phone *pii.EncryptedValue
	var err error
	if identify.Traits.Email != "" {
		email, err = r.encryptor.Encrypt(pii.KindEmail, identify.Traits.Email)
		metrics.RecordPIIOperation("encrypt", string(pii.KindEmail), err == nil)
		if err != nil {
			return nil, fmt.Errorf("encrypt email: %w", err)
		}
	}
	if identify.Traits.Phone != "" {
		phone, err = r.encryptor.Encrypt(pii.KindPhone, identify.Traits.Phone)
		metrics.RecordPIIOperation("encrypt", string(pii.KindPhone), err == nil)
		if err != nil {
			return nil, fmt.Errorf("encrypt phone: %w", err)
		}
	}

	matched, err := r.matchLead(ctx, scope, email, phone)
	if err != nil {
		return nil, err
	}

	priorLink, err := r.store.GetIdentityLink(ctx, scope.TenantID, scope.WorkspaceID, identify.AnonymousID)
	if err != nil {
		return nil, fmt.Errorf("get identity link: %w", err)
	}

	// No fingerprintable identifiers but a prior link: the call refreshes
	// the already-linked lead rather than minting a fresh one each time.
	if matched == nil && email == nil && phone == nil && priorLink != nil {
		matched, err = r.store.GetLeadByID(ctx, scope.TenantID, priorLink.LeadID)
		if err != nil {
			return nil, fmt.Errorf("get lead: %w", err)
		}
	}

	var lead *models.Lead
	if matched != nil {
		lead = mergeIntoLead(matched, identify, email, phone, now)
		link := &models.IdentityLink{
			TenantID:    scope.TenantID,
			WorkspaceID: scope.WorkspaceID,
			AnonymousID: identify.AnonymousID,
			LeadID:      lead.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := r.store.UpdateLeadWithLink(ctx, lead, link); err != nil {
			return nil, fmt.Errorf("update lead: %w", err)
		}
		metrics.RecordIdentityResolution("matched")
	} else {
		lead = r.buildLead(scope, identify, email, phone, now)
		link := &models.IdentityLink{
			TenantID:    scope.TenantID,
			WorkspaceID: scope.WorkspaceID,
			AnonymousID: identify.AnonymousID,
			LeadID:      lead.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := r.store.InsertLeadWithLink(ctx, lead, link); err != nil {
			return nil, fmt.Errorf("insert lead: %w", err)
		}
		metrics.RecordIdentityResolution("created")
	}

	if priorLink != nil && priorLink.LeadID != lead.ID {
		metrics.RecordIdentityRelink()
		logging.Warn().
			Str("tenant_id", scope.TenantID.String()).
			Str("workspace_id", scope.WorkspaceID.String()).
			Str("anonymous_id", identify.AnonymousID).
			Str("previous_lead_id", priorLink.LeadID).
			Str("lead_id", lead.ID).
			Msg("Anonymous ID re-identified as a different lead, link migrated")
	}

	return lead, nil
}

// matchLead finds an existing lead by fingerprint, email before phone.
func (r *Resolver) matchLead(ctx context.Context, scope models.TenantContext, email, phone *pii.EncryptedValue) (*models.Lead, error) {
	if email != nil {
		lead, err := r.store.FindLeadByEmailFingerprint(ctx, scope.TenantID, scope.WorkspaceID, email.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("find lead by email: %w", err)
		}
		if lead != nil {
			return lead, nil
		}
	}
	if phone != nil {
		lead, err := r.store.FindLeadByPhoneFingerprint(ctx, scope.TenantID, scope.WorkspaceID, phone.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("find lead by phone: %w", err)
		}
		if lead != nil {
			return lead, nil
		}
	}
	return nil, nil
}

// mergeIntoLead applies the identify payload onto an existing lead in
// memory; the caller persists lead and link in one transaction. Incoming
// values win on conflict; absent values never erase stored ones.
func mergeIntoLead(lead *models.Lead, identify *models.IdentifyEvent, email, phone *pii.EncryptedValue, now time.Time) *models.Lead {
	if email != nil {
		lead.EmailCiphertext = email.Ciphertext
		lead.EmailFingerprint = email.Fingerprint
		lead.KeyVersion = email.KeyVersion
	}
	if phone != nil {
		lead.PhoneCiphertext = phone.Ciphertext
		lead.PhoneFingerprint = phone.Fingerprint
		lead.KeyVersion = phone.KeyVersion
	}
	if identify.UserID != "" {
		lead.UserID = identify.UserID
	}
	if len(identify.Traits.Custom) > 0 {
		lead.Traits = lead.Traits.Merge(identify.Traits.Custom)
	}
	lead.UpdatedAt = now
	return lead
}

// buildLead constructs a fresh lead from the identify payload.
func (r *Resolver) buildLead(scope models.TenantContext, identify *models.IdentifyEvent, email, phone *pii.EncryptedValue, now time.Time) *models.Lead {
	lead := &models.Lead{
		ID:          NewLeadID(),
		TenantID:    scope.TenantID,
		WorkspaceID: scope.WorkspaceID,
		UserID:      identify.UserID,
		Traits:      identify.Traits.Custom,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if email != nil {
		lead.EmailCiphertext = email.Ciphertext
		lead.EmailFingerprint = email.Fingerprint
		lead.KeyVersion = email.KeyVersion
	}
	if phone != nil {
		lead.PhoneCiphertext = phone.Ciphertext
		lead.PhoneFingerprint = phone.Fingerprint
		lead.KeyVersion = phone.KeyVersion
	}
	return lead
}
