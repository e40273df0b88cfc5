// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

/*
Package database provides the DuckDB persistence layer for the ingestion
pipeline: events, visitors, sessions, leads, and identity links.

# Overview

The package wraps database/sql with the DuckDB driver and exposes typed
CRUD methods per table. All tables are tenant-scoped: every key and every
query predicate leads with (tenant_id, workspace_id), so no statement can
cross a tenant boundary.

# Deduplication

Event idempotency rides on a unique index over (tenant_id, workspace_id,
client_event_id) with NULLs distinct. Inserts use ON CONFLICT DO NOTHING
and report RowsAffected: zero affected rows means a concurrent writer won
the race, and the caller re-reads the surviving row. Events without a
client event ID never participate in deduplication.

# Transactions

Identity writes (lead + identity link) must land atomically; WithTx wraps
a function in a transaction with rollback on error. Single-row inserts
and upserts run on the pooled connection directly.

# PII

The leads table stores only ciphertext and fingerprints; this package
never sees plaintext email or phone values. Fingerprint columns are
nullable so the per-field unique indexes ignore leads without that field.

# Lifecycle

New opens the database, configures the pool, creates tables and indexes,
and checkpoints. Close checkpoints again to flush the WAL so the next
startup replays nothing.
*/
package database
