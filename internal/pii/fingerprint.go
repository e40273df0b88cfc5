// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package pii

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/zeebo/blake3"
)

// FieldKind identifies which PII field a value belongs to. Encryption and
// fingerprint keys are derived per kind, so an email ciphertext can never
// be decrypted as a phone value.
type FieldKind string

// Supported field kinds.
const (
	KindEmail FieldKind = "email"
	KindPhone FieldKind = "phone"
)

// ErrUnknownKind indicates an unsupported FieldKind.
var ErrUnknownKind = errors.New("unknown PII field kind")

// Normalize canonicalizes a value before fingerprinting so that
// representation-equal inputs hash identically: emails are trimmed and
// lowercased, phones are reduced to their digits.
func Normalize(kind FieldKind, plaintext string) (string, error) {
	switch kind {
	case KindEmail:
		return strings.ToLower(strings.TrimSpace(plaintext)), nil
	case KindPhone:
		var b strings.Builder
		b.Grow(len(plaintext))
		for _, r := range plaintext {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		return b.String(), nil
	default:
		return "", ErrUnknownKind
	}
}

// fingerprint computes the hex-encoded keyed BLAKE3 digest of the
// normalized value. The 32-byte key must come from the fingerprint key
// family, never the encryption family.
func fingerprint(key []byte, kind FieldKind, plaintext string) (string, error) {
	normalized, err := Normalize(kind, plaintext)
	if err != nil {
		return "", err
	}

	hasher, err := blake3.NewKeyed(key)
	if err != nil {
		return "", err
	}
	if _, err := hasher.Write([]byte(normalized)); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
