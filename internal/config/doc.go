// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

// Package config provides centralized configuration management for all
// application components: HTTP server, DuckDB storage, ingest limits, PII
// key material, NATS event publishing, and logging.
//
// # Loading
//
// Configuration is loaded with Koanf v2 from three layered sources, later
// layers overriding earlier ones:
//
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal("Failed to load config:", err)
//	}
//	db, err := database.New(&cfg.Database)
//
// # PII key material
//
// PII encryption keys are versioned. YAML configs supply them as a map:
//
//	pii:
//	  keys:
//	    1: <base64 32+ bytes>
//	    2: <base64 32+ bytes>
//	  fingerprint_secret: <base64 32+ bytes>
//
// The same material comes through the environment as
// PII_KEYS="1:<base64>,2:<base64>" and PII_FINGERPRINT_SECRET. Validation
// rejects keys shorter than 32 bytes and never echoes key material in
// error messages.
//
// # Thread safety
//
// Config is immutable after Load() and safe for concurrent reads.
package config
