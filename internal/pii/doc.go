// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

// Package pii provides envelope encryption and searchable fingerprinting
// for personally-identifying fields (email, phone).
//
// Encryption is AES-256-GCM under a per-field-kind key derived with
// HKDF-SHA256 from a versioned master key, so key rotation only requires
// introducing a new master key version; ciphertexts written under retained
// historical versions stay decryptable.
//
// Fingerprints are keyed BLAKE3 digests of the normalized value (email:
// trim + lowercase; phone: digits only). The fingerprint key is derived
// from a master secret distinct from the encryption keys, so the two key
// families are not interchangeable. Normalized-equal inputs yield equal
// fingerprints, enabling equality search without decryption.
//
// Keys reach the package through the KeyProvider interface; nothing here
// reads the process environment.
package pii
