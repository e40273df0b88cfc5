// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

/*
Package cache provides thread-safe in-memory caching with TTL support.

This package implements the hot-session read cache used by the session
manager: the latest session per (tenant, workspace, anonymous ID) is kept
for a short TTL so back-to-back events from the same visitor skip the
database lookup. The store is durable state; the cache is only a read
shortcut and is invalidated on every session write.

# Overview

The cache provides:
  - Thread-safe concurrent access (sync.RWMutex)
  - Time-to-live (TTL) expiration with background cleanup
  - Simple key-value storage with any value type (interface{})
  - Lazy expiration checking on Get, periodic sweep for the rest
  - Hit/miss/eviction statistics for monitoring

# Usage Example

	c := cache.New(30 * time.Second)
	defer c.Stop()

	key := cache.GenerateKey("session", lookupParams)
	if v, ok := c.Get(key); ok {
	    return v.(*models.Session), nil
	}
	// miss: read from the database, then c.Set(key, session)

# Consistency

Entries may be up to one TTL stale. Callers that mutate the underlying
row must Delete the corresponding key in the same call path, otherwise a
concurrent reader can observe the previous session for up to the TTL.
*/
package cache
