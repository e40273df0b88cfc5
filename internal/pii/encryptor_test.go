// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package pii

import (
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
)

// newTestEncryptor builds an encryptor with two retained key versions.
func newTestEncryptor(t *testing.T) *Encryptor {
	t.Helper()

	provider, err := NewStaticKeyProvider(map[int]string{
		1: base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")),
		2: base64.StdEncoding.EncodeToString([]byte("fedcba9876543210fedcba9876543210")),
	}, base64.StdEncoding.EncodeToString([]byte("fingerprint-secret-0123456789abc")))
	if err != nil {
		t.Fatalf("NewStaticKeyProvider failed: %v", err)
	}

	enc, err := NewEncryptor(provider)
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}
	return enc
}

func TestStaticKeyProvider(t *testing.T) {
	t.Run("highest version is current", func(t *testing.T) {
		enc := newTestEncryptor(t)
		if got := enc.provider.CurrentVersion(); got != 2 {
			t.Errorf("Expected current version 2, got %d", got)
		}
	})

	t.Run("no keys rejected", func(t *testing.T) {
		if _, err := NewStaticKeyProvider(nil, ""); !errors.Is(err, ErrNoKeys) {
			t.Errorf("Expected ErrNoKeys, got %v", err)
		}
	})

	t.Run("short key rejected", func(t *testing.T) {
		_, err := NewStaticKeyProvider(map[int]string{
			1: base64.StdEncoding.EncodeToString([]byte("short")),
		}, base64.StdEncoding.EncodeToString([]byte("fingerprint-secret-0123456789abc")))
		if err == nil {
			t.Error("Expected error for undersized master key")
		}
	})

	t.Run("invalid base64 rejected", func(t *testing.T) {
		_, err := NewStaticKeyProvider(map[int]string{1: "!!not-base64!!"},
			base64.StdEncoding.EncodeToString([]byte("fingerprint-secret-0123456789abc")))
		if err == nil {
			t.Error("Expected error for invalid base64 key")
		}
	})

	t.Run("unknown version", func(t *testing.T) {
		enc := newTestEncryptor(t)
		if _, err := enc.provider.EncryptionKey(99); !errors.Is(err, ErrUnknownKeyVersion) {
			t.Errorf("Expected ErrUnknownKeyVersion, got %v", err)
		}
	})
}

func TestEncryptor_RoundTrip(t *testing.T) {
	enc := newTestEncryptor(t)

	t.Run("email", func(t *testing.T) {
		ev, err := enc.Encrypt(KindEmail, "user@example.com")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if ev.KeyVersion != 2 {
			t.Errorf("Expected key version 2, got %d", ev.KeyVersion)
		}
		if ev.Fingerprint == "" {
			t.Error("Expected non-empty fingerprint")
		}
		if strings.Contains(ev.Ciphertext, "user@example.com") {
			t.Error("Plaintext leaked into ciphertext")
		}

		got, err := enc.Decrypt(KindEmail, ev.Ciphertext, ev.KeyVersion)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if got != "user@example.com" {
			t.Errorf("Round trip mismatch: %q", got)
		}
	})

	t.Run("phone", func(t *testing.T) {
		ev, err := enc.Encrypt(KindPhone, "+1 (234) 567-8900")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		got, err := enc.Decrypt(KindPhone, ev.Ciphertext, ev.KeyVersion)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if got != "+1 (234) 567-8900" {
			t.Errorf("Round trip mismatch: %q", got)
		}
	})

	t.Run("empty plaintext rejected", func(t *testing.T) {
		if _, err := enc.Encrypt(KindEmail, ""); !errors.Is(err, ErrEmptyPlaintext) {
			t.Errorf("Expected ErrEmptyPlaintext, got %v", err)
		}
	})

	t.Run("nonces are random", func(t *testing.T) {
		a, err := enc.Encrypt(KindEmail, "same@example.com")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		b, err := enc.Encrypt(KindEmail, "same@example.com")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if a.Ciphertext == b.Ciphertext {
			t.Error("Expected distinct ciphertexts for the same plaintext")
		}
		if a.Fingerprint != b.Fingerprint {
			t.Error("Expected identical fingerprints for the same plaintext")
		}
	})
}

func TestEncryptor_KeyVersions(t *testing.T) {
	enc := newTestEncryptor(t)

	t.Run("retired version still decrypts", func(t *testing.T) {
		aead, err := enc.aeadFor(KindEmail, 1)
		if err != nil {
			t.Fatalf("aeadFor failed: %v", err)
		}
		nonce := make([]byte, aead.NonceSize())
		sealed := aead.Seal(nonce, nonce, []byte("old@example.com"), nil)
		ciphertext := base64.StdEncoding.EncodeToString(sealed)

		got, err := enc.Decrypt(KindEmail, ciphertext, 1)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if got != "old@example.com" {
			t.Errorf("Round trip mismatch: %q", got)
		}
	})

	t.Run("unknown version fails", func(t *testing.T) {
		ev, err := enc.Encrypt(KindEmail, "user@example.com")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if _, err := enc.Decrypt(KindEmail, ev.Ciphertext, 99); !errors.Is(err, ErrUnknownKeyVersion) {
			t.Errorf("Expected ErrUnknownKeyVersion, got %v", err)
		}
	})

	t.Run("wrong version fails closed", func(t *testing.T) {
		ev, err := enc.Encrypt(KindEmail, "user@example.com")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if _, err := enc.Decrypt(KindEmail, ev.Ciphertext, 1); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Expected ErrDecryptionFailed, got %v", err)
		}
	})
}

func TestEncryptor_Tampering(t *testing.T) {
	enc := newTestEncryptor(t)

	ev, err := enc.Encrypt(KindEmail, "user@example.com")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	t.Run("flipped byte", func(t *testing.T) {
		raw, err := base64.StdEncoding.DecodeString(ev.Ciphertext)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		raw[len(raw)-1] ^= 0x01
		tampered := base64.StdEncoding.EncodeToString(raw)

		if _, err := enc.Decrypt(KindEmail, tampered, ev.KeyVersion); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Expected ErrDecryptionFailed, got %v", err)
		}
	})

	t.Run("kinds not interchangeable", func(t *testing.T) {
		if _, err := enc.Decrypt(KindPhone, ev.Ciphertext, ev.KeyVersion); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Expected ErrDecryptionFailed, got %v", err)
		}
	})

	t.Run("invalid base64", func(t *testing.T) {
		if _, err := enc.Decrypt(KindEmail, "!!not-base64!!", ev.KeyVersion); !errors.Is(err, ErrInvalidCiphertext) {
			t.Errorf("Expected ErrInvalidCiphertext, got %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		short := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02})
		if _, err := enc.Decrypt(KindEmail, short, ev.KeyVersion); !errors.Is(err, ErrInvalidCiphertext) {
			t.Errorf("Expected ErrInvalidCiphertext, got %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := enc.Decrypt(KindEmail, "", ev.KeyVersion); !errors.Is(err, ErrInvalidCiphertext) {
			t.Errorf("Expected ErrInvalidCiphertext, got %v", err)
		}
	})
}

func TestEncryptor_Concurrent(t *testing.T) {
	enc := newTestEncryptor(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ev, err := enc.Encrypt(KindEmail, "race@example.com")
				if err != nil {
					t.Errorf("Encrypt failed: %v", err)
					return
				}
				if _, err := enc.Decrypt(KindEmail, ev.Ciphertext, ev.KeyVersion); err != nil {
					t.Errorf("Decrypt failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
