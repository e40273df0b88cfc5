// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

// Package models defines the core domain types for the ingestion pipeline:
// tenant scoping, track/identify inputs, persisted entities (Event, Visitor,
// Session, Lead, IdentityLink), size-bounded property bags, and the
// structured results returned by the event processor.
//
// All persisted entities are scoped by (tenant, workspace); the pair is a
// mandatory filter on every read and write.
package models
