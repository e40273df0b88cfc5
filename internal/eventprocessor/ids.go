// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package eventprocessor

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID prefixes distinguish identifier families at a glance and keep
// server-assigned ids from ever colliding with client-supplied ones.
const (
	eventIDPrefix   = "evt_"
	sessionIDPrefix = "ses_"
	leadIDPrefix    = "led_"
)

// ulid.Monotonic is not safe for concurrent use; a single locked reader
// keeps ids strictly ordered within the process.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// NewEventID returns a time-sortable event identifier ("evt_<ULID>").
func NewEventID() string { return eventIDPrefix + newULID() }

// NewSessionID returns a time-sortable session identifier ("ses_<ULID>").
func NewSessionID() string { return sessionIDPrefix + newULID() }

// NewLeadID returns a time-sortable lead identifier ("led_<ULID>").
func NewLeadID() string { return leadIDPrefix + newULID() }
