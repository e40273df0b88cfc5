// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML config file, and environment variables (highest priority).
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Ingest   IngestConfig   `koanf:"ingest"`
	PII      PIIConfig      `koanf:"pii"`
	NATS     NATSConfig     `koanf:"nats"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_PORT: Listen port (default: 8941)
//   - HTTP_HOST: Bind address (default: 0.0.0.0)
//   - HTTP_TIMEOUT: Request timeout (default: 30s)
//   - ENVIRONMENT: "development" or "production"
//   - CORS_ORIGINS: Comma-separated allowed origins
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
	CORSOrigins []string      `koanf:"cors_origins"`
}

// DatabaseConfig holds DuckDB settings.
//
// Environment Variables:
//   - DUCKDB_PATH: Database file path, or ":memory:" (default: /data/vestigo.duckdb)
//   - DUCKDB_MAX_MEMORY: DuckDB memory limit (default: 2GB)
//   - DUCKDB_THREADS: Worker threads, 0 = runtime.NumCPU()
//   - DUCKDB_MAX_OPEN_CONNS: sql.DB pool size, 0 = thread count
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"`
	MaxOpenConns           int    `koanf:"max_open_conns"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// IngestConfig holds the admission limits applied to incoming events and
// the session lifecycle settings.
//
// Environment Variables:
//   - INGEST_TIMESTAMP_WINDOW: Max client clock drift either way (default: 5m)
//   - INGEST_MAX_PAYLOAD_BYTES: Max request body size (default: 262144)
//   - INGEST_MAX_BATCH_EVENTS: Max events per batch (default: 50)
//   - SESSION_TIMEOUT: Inactivity window before a new session starts (default: 30m)
//   - SESSION_CACHE_TTL: Hot-session cache entry lifetime (default: 5m)
type IngestConfig struct {
	TimestampWindow time.Duration `koanf:"timestamp_window"`
	MaxPayloadBytes int64         `koanf:"max_payload_bytes"`
	MaxBatchEvents  int           `koanf:"max_batch_events"`
	SessionTimeout  time.Duration `koanf:"session_timeout"`
	SessionCacheTTL time.Duration `koanf:"session_cache_ttl"`
}

// PIIConfig holds the encryption key material for PII fields. Keys and the
// fingerprint secret are base64-encoded and must decode to at least 32
// bytes. The highest key version is used for new ciphertexts; older
// versions stay available for decryption.
//
// Environment Variables:
//   - PII_KEYS: Comma-separated version:base64 pairs (e.g. "1:AAAA...,2:BBBB...")
//   - PII_FINGERPRINT_SECRET: Base64 fingerprint master secret
type PIIConfig struct {
	Keys              map[int]string `koanf:"keys"`
	FingerprintSecret string         `koanf:"fingerprint_secret"`
}

// NATSConfig holds event publishing settings for the NATS JetStream fanout.
//
// Environment Variables:
//   - NATS_ENABLED: Enable event publishing (default: true)
//   - NATS_URL: Server URL (default: nats://127.0.0.1:4222)
//   - NATS_EMBEDDED: Run an embedded server (default: true)
//   - NATS_STORE_DIR: JetStream storage directory
//   - NATS_STREAM_RETENTION_DAYS: Stream retention (default: 7)
type NATSConfig struct {
	Enabled             bool   `koanf:"enabled"`
	URL                 string `koanf:"url"`
	EmbeddedServer      bool   `koanf:"embedded_server"`
	StoreDir            string `koanf:"store_dir"`
	MaxMemory           int64  `koanf:"max_memory"`
	MaxStore            int64  `koanf:"max_store"`
	StreamRetentionDays int    `koanf:"stream_retention_days"`
}

// LoggingConfig holds log output settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json or console (default: json)
//   - LOG_CALLER: Include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the loaded configuration for missing or malformed values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Ingest.TimestampWindow <= 0 {
		return fmt.Errorf("ingest.timestamp_window must be positive, got %s", c.Ingest.TimestampWindow)
	}
	if c.Ingest.MaxPayloadBytes <= 0 {
		return fmt.Errorf("ingest.max_payload_bytes must be positive, got %d", c.Ingest.MaxPayloadBytes)
	}
	if c.Ingest.MaxBatchEvents <= 0 {
		return fmt.Errorf("ingest.max_batch_events must be positive, got %d", c.Ingest.MaxBatchEvents)
	}
	if c.Ingest.SessionTimeout <= 0 {
		return fmt.Errorf("ingest.session_timeout must be positive, got %s", c.Ingest.SessionTimeout)
	}

	if err := c.PII.validate(); err != nil {
		return err
	}

	if c.NATS.Enabled && !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled without an embedded server")
	}

	return nil
}

// validate checks key material without ever logging it.
func (p *PIIConfig) validate() error {
	if len(p.Keys) == 0 {
		return fmt.Errorf("pii.keys requires at least one versioned key")
	}
	for version, encoded := range p.Keys {
		if version < 1 {
			return fmt.Errorf("pii.keys version must be >= 1, got %d", version)
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("pii.keys version %d is not valid base64", version)
		}
		if len(raw) < 32 {
			return fmt.Errorf("pii.keys version %d must decode to at least 32 bytes, got %d", version, len(raw))
		}
	}

	if p.FingerprintSecret == "" {
		return fmt.Errorf("pii.fingerprint_secret is required")
	}
	raw, err := base64.StdEncoding.DecodeString(p.FingerprintSecret)
	if err != nil {
		return fmt.Errorf("pii.fingerprint_secret is not valid base64")
	}
	if len(raw) < 32 {
		return fmt.Errorf("pii.fingerprint_secret must decode to at least 32 bytes, got %d", len(raw))
	}

	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
