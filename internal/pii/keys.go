// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package pii

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/hkdf"
)

// Key management errors.
var (
	// ErrUnknownKeyVersion indicates a ciphertext references a key version
	// that is no longer retained.
	ErrUnknownKeyVersion = errors.New("unknown encryption key version")

	// ErrNoKeys indicates the provider was constructed without any keys.
	ErrNoKeys = errors.New("no encryption keys configured")
)

// minMasterKeyBytes is the minimum accepted master key length.
const minMasterKeyBytes = 32

// KeyProvider supplies versioned encryption master keys and the separate
// fingerprint master secret. Implementations are expected to be immutable
// after construction; rotation is performed by constructing a new provider
// with an additional version and a bumped current version.
type KeyProvider interface {
	// EncryptionKey returns the master key for the given version.
	EncryptionKey(version int) ([]byte, error)

	// FingerprintSecret returns the master secret for fingerprint keys.
	// This secret is never used for encryption.
	FingerprintSecret() ([]byte, error)

	// CurrentVersion returns the version new ciphertexts are written under.
	CurrentVersion() int
}

// StaticKeyProvider is a KeyProvider backed by a fixed in-memory key set,
// typically decoded from configuration at startup.
type StaticKeyProvider struct {
	keys              map[int][]byte
	fingerprintSecret []byte
	current           int
}

// NewStaticKeyProvider builds a provider from base64-encoded master keys
// (version → key) and a base64-encoded fingerprint secret. The highest
// version is the current one. Every key must carry at least 32 bytes.
func NewStaticKeyProvider(encodedKeys map[int]string, encodedFingerprintSecret string) (*StaticKeyProvider, error) {
	if len(encodedKeys) == 0 {
		return nil, ErrNoKeys
	}

	keys := make(map[int][]byte, len(encodedKeys))
	versions := make([]int, 0, len(encodedKeys))
	for version, encoded := range encodedKeys {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode master key v%d: %w", version, err)
		}
		if len(key) < minMasterKeyBytes {
			return nil, fmt.Errorf("master key v%d must be at least %d bytes", version, minMasterKeyBytes)
		}
		keys[version] = key
		versions = append(versions, version)
	}

	secret, err := base64.StdEncoding.DecodeString(encodedFingerprintSecret)
	if err != nil {
		return nil, fmt.Errorf("decode fingerprint secret: %w", err)
	}
	if len(secret) < minMasterKeyBytes {
		return nil, fmt.Errorf("fingerprint secret must be at least %d bytes", minMasterKeyBytes)
	}

	sort.Ints(versions)
	return &StaticKeyProvider{
		keys:              keys,
		fingerprintSecret: secret,
		current:           versions[len(versions)-1],
	}, nil
}

// EncryptionKey implements KeyProvider.
func (p *StaticKeyProvider) EncryptionKey(version int) ([]byte, error) {
	key, ok := p.keys[version]
	if !ok {
		return nil, fmt.Errorf("%w: v%d", ErrUnknownKeyVersion, version)
	}
	return key, nil
}

// FingerprintSecret implements KeyProvider.
func (p *StaticKeyProvider) FingerprintSecret() ([]byte, error) {
	return p.fingerprintSecret, nil
}

// CurrentVersion implements KeyProvider.
func (p *StaticKeyProvider) CurrentVersion() int {
	return p.current
}

// deriveKey derives a keyLen-byte key from a master secret with
// HKDF-SHA256, bound to a purpose/kind label.
func deriveKey(secret []byte, info string, keyLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, []byte(info))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key %q: %w", info, err)
	}
	return key, nil
}
