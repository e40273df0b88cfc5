// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vestigo/config.yaml",
	"/etc/vestigo/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. They are applied first, then
// overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8941,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Path:                   "/data/vestigo.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = runtime.NumCPU()
			MaxOpenConns:           0, // 0 = thread count
			PreserveInsertionOrder: true,
		},
		Ingest: IngestConfig{
			TimestampWindow: 5 * time.Minute,
			MaxPayloadBytes: 256 * 1024,
			MaxBatchEvents:  50,
			SessionTimeout:  30 * time.Minute,
			SessionCacheTTL: 5 * time.Minute,
		},
		PII: PIIConfig{
			Keys:              map[int]string{},
			FingerprintSecret: "",
		},
		NATS: NATSConfig{
			Enabled:             true,
			URL:                 "nats://127.0.0.1:4222",
			EmbeddedServer:      true,
			StoreDir:            "/data/nats/jetstream",
			MaxMemory:           1 << 30,  // 1GB
			MaxStore:            10 << 30, // 10GB
			StreamRetentionDays: 7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HTTP_PORT -> server.port, DUCKDB_PATH -> database.path, etc.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processKeyMap(k); err != nil {
		return nil, fmt.Errorf("failed to process pii keys: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, env override first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as
// comma-separated slices when they arrive as env var strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice from YAML
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// processKeyMap converts PII_KEYS given as "1:base64,2:base64" into the
// versioned key map. YAML configs supply the map directly and are left
// alone.
func processKeyMap(k *koanf.Koanf) error {
	val := k.Get("pii.keys")
	strVal, ok := val.(string)
	if !ok || strVal == "" {
		return nil
	}

	keys := map[int]string{}
	for _, pair := range strings.Split(strVal, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		version, encoded, found := strings.Cut(pair, ":")
		if !found {
			return fmt.Errorf("pii key entry %q must be version:base64", redactKeyEntry(pair))
		}
		v, err := strconv.Atoi(strings.TrimSpace(version))
		if err != nil {
			return fmt.Errorf("pii key version %q is not a number", version)
		}
		keys[v] = strings.TrimSpace(encoded)
	}

	return k.Set("pii.keys", keys)
}

// redactKeyEntry keeps key material out of error messages.
func redactKeyEntry(entry string) string {
	if len(entry) > 8 {
		return entry[:8] + "..."
	}
	return entry
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment noise cannot pollute
// the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",
		"cors_origins": "server.cors_origins",

		// Database mappings
		"duckdb_path":           "database.path",
		"duckdb_max_memory":     "database.max_memory",
		"duckdb_threads":        "database.threads",
		"duckdb_max_open_conns": "database.max_open_conns",

		// Ingest mappings
		"ingest_timestamp_window":  "ingest.timestamp_window",
		"ingest_max_payload_bytes": "ingest.max_payload_bytes",
		"ingest_max_batch_events":  "ingest.max_batch_events",
		"session_timeout":          "ingest.session_timeout",
		"session_cache_ttl":        "ingest.session_cache_ttl",

		// PII mappings
		"pii_keys":               "pii.keys",
		"pii_fingerprint_secret": "pii.fingerprint_secret",

		// NATS mappings
		"nats_enabled":        "nats.enabled",
		"nats_url":            "nats.url",
		"nats_embedded":       "nats.embedded_server",
		"nats_store_dir":      "nats.store_dir",
		"nats_max_memory":     "nats.max_memory",
		"nats_max_store":      "nats.max_store",
		"nats_retention_days": "nats.stream_retention_days",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
