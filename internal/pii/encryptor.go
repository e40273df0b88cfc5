// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package pii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Encryption errors.
var (
	// ErrDecryptionFailed indicates authentication or decryption failed.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidCiphertext indicates the ciphertext is malformed.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrEmptyPlaintext indicates an empty value was offered for encryption.
	ErrEmptyPlaintext = errors.New("empty plaintext")
)

// EncryptedValue is the storable form of a PII field: AEAD ciphertext,
// searchable fingerprint, and the key version the ciphertext was written
// under.
type EncryptedValue struct {
	Ciphertext  string
	Fingerprint string
	KeyVersion  int
}

// Encryptor performs envelope encryption and fingerprinting for PII
// fields. Derived AEADs and fingerprint keys are cached per (kind,
// version); the Encryptor is safe for concurrent use.
type Encryptor struct {
	provider KeyProvider

	mu     sync.RWMutex
	aeads  map[string]cipher.AEAD // keyed "<kind>/v<version>"
	fpKeys map[FieldKind][]byte   // 32-byte keyed-hash keys
}

// NewEncryptor creates an Encryptor backed by the given key provider.
// The current-version AEADs for both kinds are derived eagerly so key
// material problems surface at startup, not on the first identify call.
func NewEncryptor(provider KeyProvider) (*Encryptor, error) {
	if provider == nil {
		return nil, errors.New("key provider required")
	}

	e := &Encryptor{
		provider: provider,
		aeads:    make(map[string]cipher.AEAD),
		fpKeys:   make(map[FieldKind][]byte),
	}

	current := provider.CurrentVersion()
	for _, kind := range []FieldKind{KindEmail, KindPhone} {
		if _, err := e.aeadFor(kind, current); err != nil {
			return nil, err
		}
		if _, err := e.fingerprintKeyFor(kind); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Encrypt encrypts the plaintext under the current key version and
// computes its fingerprint. The random nonce is prepended to the
// ciphertext, which is returned base64-encoded.
func (e *Encryptor) Encrypt(kind FieldKind, plaintext string) (*EncryptedValue, error) {
	if plaintext == "" {
		return nil, ErrEmptyPlaintext
	}

	version := e.provider.CurrentVersion()
	aead, err := e.aeadFor(kind, version)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nonce, nonce, []byte(plaintext), nil)

	fp, err := e.Fingerprint(kind, plaintext)
	if err != nil {
		return nil, err
	}

	return &EncryptedValue{
		Ciphertext:  base64.StdEncoding.EncodeToString(ciphertext),
		Fingerprint: fp,
		KeyVersion:  version,
	}, nil
}

// Decrypt decrypts a base64 ciphertext written under any retained key
// version.
func (e *Encryptor) Decrypt(kind FieldKind, ciphertext string, keyVersion int) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCiphertext)
	}

	aead, err := e.aeadFor(kind, keyVersion)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrInvalidCiphertext)
	}
	if len(data) < aead.NonceSize() {
		return "", fmt.Errorf("%w: shorter than nonce", ErrInvalidCiphertext)
	}

	nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// Do not wrap the AEAD error; it carries no useful detail and the
		// distinction between tamper and wrong-key must not leak.
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// Fingerprint computes the deterministic keyed digest of the normalized
// plaintext.
func (e *Encryptor) Fingerprint(kind FieldKind, plaintext string) (string, error) {
	key, err := e.fingerprintKeyFor(kind)
	if err != nil {
		return "", err
	}
	return fingerprint(key, kind, plaintext)
}

// aeadFor returns the cached AEAD for (kind, version), deriving it on
// first use.
func (e *Encryptor) aeadFor(kind FieldKind, version int) (cipher.AEAD, error) {
	if kind != KindEmail && kind != KindPhone {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	cacheKey := fmt.Sprintf("%s/v%d", kind, version)

	e.mu.RLock()
	aead, ok := e.aeads[cacheKey]
	e.mu.RUnlock()
	if ok {
		return aead, nil
	}

	master, err := e.provider.EncryptionKey(version)
	if err != nil {
		return nil, err
	}
	derived, err := deriveKey(master, fmt.Sprintf("vestigo/pii/encrypt/%s", kind), 32)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err = cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}

	e.mu.Lock()
	e.aeads[cacheKey] = aead
	e.mu.Unlock()
	return aead, nil
}

// fingerprintKeyFor returns the cached keyed-hash key for the kind,
// deriving it from the fingerprint master secret on first use.
func (e *Encryptor) fingerprintKeyFor(kind FieldKind) ([]byte, error) {
	if kind != KindEmail && kind != KindPhone {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	e.mu.RLock()
	key, ok := e.fpKeys[kind]
	e.mu.RUnlock()
	if ok {
		return key, nil
	}

	secret, err := e.provider.FingerprintSecret()
	if err != nil {
		return nil, err
	}
	key, err = deriveKey(secret, fmt.Sprintf("vestigo/pii/fingerprint/%s", kind), 32)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.fpKeys[kind] = key
	e.mu.Unlock()
	return key, nil
}
