// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/vestigo-analytics/vestigo/internal/config"
	"github.com/vestigo-analytics/vestigo/internal/eventprocessor"
	"github.com/vestigo-analytics/vestigo/internal/logging"
)

// NATSComponents bundles the event fanout infrastructure: the optional
// embedded JetStream server, the client connection, the stream
// initializer, and the circuit-breaker-protected publisher.
//
// The bundle satisfies services.NATSRunner so the supervisor tree manages
// its lifecycle, and api.HealthReporter so /api/v1/health can report
// stream status.
type NATSComponents struct {
	server     *eventprocessor.EmbeddedServer
	conn       *natsgo.Conn
	streamInit *eventprocessor.StreamInitializer
	publisher  *eventprocessor.Publisher

	mu      sync.Mutex
	running bool
	closed  bool
}

// InitNATS creates the NATS components per configuration. Returns
// (nil, nil) when NATS is disabled; the processor then skips fanout
// entirely.
//
// Initialization order:
//
//  1. Embedded JetStream server (or external URL from config)
//  2. Client connection with unlimited reconnects
//  3. Stream creation via the initializer (idempotent)
//  4. Watermill publisher with circuit breaker
func InitNATS(ctx context.Context, cfg *config.Config) (*NATSComponents, error) {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("NATS disabled (NATS_ENABLED=false), event fanout off")
		return nil, nil
	}

	components := &NATSComponents{}

	natsURL := cfg.NATS.URL
	if cfg.NATS.EmbeddedServer {
		embedded, err := eventprocessor.NewEmbeddedServer(&eventprocessor.ServerConfig{
			Host:              "127.0.0.1",
			Port:              4222,
			StoreDir:          cfg.NATS.StoreDir,
			JetStreamMaxMem:   cfg.NATS.MaxMemory,
			JetStreamMaxStore: cfg.NATS.MaxStore,
		})
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		components.server = embedded
		natsURL = embedded.ClientURL()
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	}

	conn, err := natsgo.Connect(natsURL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("connect to NATS at %s: %w", natsURL, err)
	}
	components.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	maxBytes := cfg.NATS.MaxStore
	if maxBytes <= 0 {
		maxBytes = -1
	}
	streamCfg := eventprocessor.DefaultStreamConfig(cfg.NATS.StreamRetentionDays, maxBytes)
	streamInit, err := eventprocessor.NewStreamInitializer(js, streamCfg)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create stream initializer: %w", err)
	}
	components.streamInit = streamInit

	ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := streamInit.EnsureStream(ensureCtx); err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("ensure event stream: %w", err)
	}
	logging.Info().
		Str("stream", eventprocessor.StreamName).
		Int("retention_days", cfg.NATS.StreamRetentionDays).
		Msg("JetStream stream ready")

	publisher, err := eventprocessor.NewPublisher(eventprocessor.DefaultPublisherConfig(natsURL), nil)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create event publisher: %w", err)
	}
	publisher.SetCircuitBreaker(eventprocessor.NewCircuitBreaker(eventprocessor.DefaultCircuitBreakerConfig()))
	components.publisher = publisher

	logging.Info().Str("url", natsURL).Msg("NATS components initialized")
	return components, nil
}

// Publisher returns the event publisher for the processor.
func (c *NATSComponents) Publisher() *eventprocessor.Publisher {
	return c.publisher
}

// Start implements services.NATSRunner. The components are built eagerly
// in InitNATS so the publisher exists at wiring time; Start re-verifies
// the stream and marks the bundle running. Safe to call again after a
// supervisor restart.
func (c *NATSComponents) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("NATS components already shut down")
	}

	if c.streamInit != nil {
		ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := c.streamInit.EnsureStream(ensureCtx); err != nil {
			return fmt.Errorf("ensure event stream: %w", err)
		}
	}

	c.running = true
	return nil
}

// Shutdown implements services.NATSRunner. Closes the publisher, drains
// the connection, and stops the embedded server. Idempotent.
func (c *NATSComponents) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.running = false

	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing NATS publisher")
		}
	}

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			logging.Error().Err(err).Msg("Error draining NATS connection")
		}
	}

	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down embedded NATS server")
		}
	}

	logging.Info().Msg("NATS components shut down")
}

// IsRunning implements services.NATSRunner.
func (c *NATSComponents) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return false
	}
	if c.server != nil && !c.server.IsRunning() {
		return false
	}
	return true
}

// IsHealthy implements api.HealthReporter. Reports true when the
// connection is up and the stream is reachable.
func (c *NATSComponents) IsHealthy() bool {
	c.mu.Lock()
	conn := c.conn
	streamInit := c.streamInit
	closed := c.closed
	c.mu.Unlock()

	if closed || conn == nil || !conn.IsConnected() {
		return false
	}
	if streamInit == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return streamInit.IsHealthy(ctx)
}
