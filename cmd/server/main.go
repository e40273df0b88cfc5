// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

// Package main is the entry point for the Vestigo ingestion server.
//
// Vestigo is a multi-tenant behavioral analytics pipeline that accepts
// track, batch, and identify calls from web and mobile SDKs, persists
// events idempotently in DuckDB, stitches anonymous activity into
// sessions, and resolves visitors to leads through encrypted identifier
// fingerprints.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Database: Initialize DuckDB with the events, sessions, visitors, and leads schema
//  3. PII: Build the versioned-key encryptor and fingerprint hasher
//  4. Validation gate: Timestamp window, payload ceiling, batch size limits
//  5. Session manager and identity resolver
//  6. NATS (optional): JetStream event fanout with an embedded server by default
//  7. Event processor: The track/batch/identify pipeline
//  8. HTTP server: REST API behind a Chi router with Prometheus metrics
//
// Components run under a suture supervisor tree so a crash in the
// messaging layer never takes down the API layer and vice versa.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (see internal/config)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Closes the NATS publisher and embedded server if enabled
//   - Stops the session cache janitor and closes the database
//
// # Example Usage
//
// Development with an in-memory database:
//
//	export DUCKDB_PATH=:memory:
//	export PII_KEYS=1:$(openssl rand -base64 32)
//	export PII_FINGERPRINT_SECRET=$(openssl rand -base64 32)
//	export NATS_ENABLED=false
//	./vestigo
//
// Production with persistent storage and the embedded JetStream server:
//
//	export DUCKDB_PATH=/data/vestigo.duckdb
//	export PII_KEYS=1:$(openssl rand -base64 32)
//	export PII_FINGERPRINT_SECRET=$(openssl rand -base64 32)
//	export NATS_STORE_DIR=/data/jetstream
//	export ENVIRONMENT=production
//	./vestigo
//
// Pointing at an external NATS cluster:
//
//	export NATS_EMBEDDED=false
//	export NATS_URL=nats://nats.internal:4222
//	./vestigo
//
// # Port 8941
//
// The default port 8941 is unassigned in the IANA registry and avoids
// collisions with common analytics tooling.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vestigo-analytics/vestigo/internal/api"
	"github.com/vestigo-analytics/vestigo/internal/config"
	"github.com/vestigo-analytics/vestigo/internal/database"
	"github.com/vestigo-analytics/vestigo/internal/eventprocessor"
	"github.com/vestigo-analytics/vestigo/internal/logging"
	"github.com/vestigo-analytics/vestigo/internal/pii"
	"github.com/vestigo-analytics/vestigo/internal/supervisor"
	"github.com/vestigo-analytics/vestigo/internal/supervisor/services"
	"github.com/vestigo-analytics/vestigo/internal/validation"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Vestigo with supervisor tree")
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Str("environment", cfg.Server.Environment).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	// Key material stays inside the provider; only versions are logged.
	keyProvider, err := pii.NewStaticKeyProvider(cfg.PII.Keys, cfg.PII.FingerprintSecret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load PII key material")
	}
	encryptor, err := pii.NewEncryptor(keyProvider)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize PII encryptor")
	}
	logging.Info().Int("key_versions", len(cfg.PII.Keys)).Msg("PII encryption initialized")

	gate := validation.NewGate(validation.GateConfig{
		TimestampWindow: cfg.Ingest.TimestampWindow,
		MaxPayloadBytes: int(cfg.Ingest.MaxPayloadBytes),
		MaxBatchEvents:  cfg.Ingest.MaxBatchEvents,
	})

	sessions := eventprocessor.NewSessionManager(db, cfg.Ingest.SessionTimeout, cfg.Ingest.SessionCacheTTL)
	defer sessions.Stop()

	resolver := eventprocessor.NewResolver(db, encryptor)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// NATS is best-effort fanout; a failure here is fatal only because it
	// indicates misconfiguration, not because the pipeline requires it.
	natsComponents, err := InitNATS(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize NATS components")
	}
	if natsComponents != nil {
		defer natsComponents.Shutdown(context.Background())
	}

	var publisher eventprocessor.EventPublisher
	var streamHealth api.HealthReporter
	if natsComponents != nil {
		publisher = natsComponents.Publisher()
		streamHealth = natsComponents
	}

	processor := eventprocessor.NewProcessor(db, gate, sessions, resolver, publisher)

	handler := api.NewHandler(db, processor, streamHealth)
	router := api.NewRouter(handler, gate, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Bridge zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if natsComponents != nil {
		tree.AddMessagingService(services.NewNATSService(natsComponents))
		logging.Info().Msg("NATS components added to supervisor tree (messaging layer)")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
