// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

// Package eventprocessor implements the core ingestion pipeline: track,
// batch, and identify processing with idempotent persistence, visitor and
// session lifecycle, identity resolution, and best-effort event fanout
// over NATS JetStream.
//
// # Pipeline
//
// A track event moves through the processor in a fixed order:
//
//  1. Admission: the ingest gate checks the timestamp window and the
//     property payload budget.
//  2. Deduplication: when the caller supplied an event_id, an existing
//     event under that token short-circuits processing and returns the
//     persisted event's id with IsDuplicate=true.
//  3. Visitor: the visitor row is upserted with last-seen snapshots. A
//     failure here fails the whole event; the pipeline never persists an
//     event it could not attribute.
//  4. Session: the visitor's latest session is resumed when it is still
//     inside the inactivity window, otherwise a new one starts.
//  5. Persistence: the event row is inserted with ON CONFLICT DO NOTHING;
//     losing a concurrent insert race converts to a duplicate result, not
//     an error.
//  6. Fanout: the persisted event is published to JetStream. Publishing is
//     best effort and never fails the ingest.
//
// Identify calls run identity resolution instead: trait identifiers are
// normalized and fingerprinted, an existing lead is matched email-first
// with phone fallback, traits merge into the match (or a new lead is
// created), and the anonymous id is linked to the lead.
//
// # Duplicate semantics
//
// A duplicate is a success variant. Both detection paths (read-check and
// insert-conflict) produce the same result shape, carrying the id of the
// event that won.
//
// # Concurrency
//
// The processor is stateless apart from the hot-session cache; all methods
// are safe for concurrent use. Uniqueness under concurrency is enforced by
// storage constraints, never by check-then-act logic.
package eventprocessor
