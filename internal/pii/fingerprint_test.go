// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package pii

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		kind  FieldKind
		input string
		want  string
	}{
		{"email lowercased", KindEmail, "Test@Example.com", "test@example.com"},
		{"email trimmed", KindEmail, " test@example.com ", "test@example.com"},
		{"email already canonical", KindEmail, "test@example.com", "test@example.com"},
		{"phone formatted", KindPhone, "+1 (234) 567-8900", "12345678900"},
		{"phone bare digits", KindPhone, "12345678900", "12345678900"},
		{"phone with letters", KindPhone, "ext. 555-0100", "5550100"},
		{"empty email", KindEmail, "", ""},
		{"empty phone", KindPhone, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.kind, tt.input)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		if _, err := Normalize(FieldKind("ssn"), "x"); err == nil {
			t.Error("Expected error for unknown kind")
		}
	})
}

func TestFingerprint_Stability(t *testing.T) {
	enc := newTestEncryptor(t)

	t.Run("normalized-equal emails match", func(t *testing.T) {
		a, err := enc.Fingerprint(KindEmail, "Test@Example.com")
		if err != nil {
			t.Fatalf("Fingerprint failed: %v", err)
		}
		b, err := enc.Fingerprint(KindEmail, " test@example.com ")
		if err != nil {
			t.Fatalf("Fingerprint failed: %v", err)
		}
		if a != b {
			t.Errorf("Expected identical fingerprints, got %q vs %q", a, b)
		}
	})

	t.Run("normalized-equal phones match", func(t *testing.T) {
		a, err := enc.Fingerprint(KindPhone, "+1 (234) 567-8900")
		if err != nil {
			t.Fatalf("Fingerprint failed: %v", err)
		}
		b, err := enc.Fingerprint(KindPhone, "12345678900")
		if err != nil {
			t.Fatalf("Fingerprint failed: %v", err)
		}
		if a != b {
			t.Errorf("Expected identical fingerprints, got %q vs %q", a, b)
		}
	})

	t.Run("distinct values differ", func(t *testing.T) {
		a, err := enc.Fingerprint(KindEmail, "alice@example.com")
		if err != nil {
			t.Fatalf("Fingerprint failed: %v", err)
		}
		b, err := enc.Fingerprint(KindEmail, "bob@example.com")
		if err != nil {
			t.Fatalf("Fingerprint failed: %v", err)
		}
		if a == b {
			t.Error("Expected distinct fingerprints for distinct emails")
		}
	})

	t.Run("kinds use separate key families", func(t *testing.T) {
		a, err := enc.Fingerprint(KindEmail, "12345678900")
		if err != nil {
			t.Fatalf("Fingerprint failed: %v", err)
		}
		b, err := enc.Fingerprint(KindPhone, "12345678900")
		if err != nil {
			t.Fatalf("Fingerprint failed: %v", err)
		}
		if a == b {
			t.Error("Expected email and phone fingerprints of the same digits to differ")
		}
	})

	t.Run("fingerprint does not contain plaintext", func(t *testing.T) {
		fp, err := enc.Fingerprint(KindEmail, "secret@example.com")
		if err != nil {
			t.Fatalf("Fingerprint failed: %v", err)
		}
		if len(fp) != 64 {
			t.Errorf("Expected 64 hex chars, got %d", len(fp))
		}
		for _, r := range fp {
			if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
				t.Fatalf("Non-hex rune %q in fingerprint", r)
			}
		}
	})
}
