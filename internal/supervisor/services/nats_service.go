// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package services

import (
	"context"
	"fmt"
	"time"
)

// NATSRunner matches the NATS component bundle's lifecycle without
// importing the main package, avoiding a circular dependency.
type NATSRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
	IsRunning() bool
}

// NATSService wraps the NATS components (embedded server, publisher,
// stream) as a supervised service. If Start fails the error is returned
// immediately, and suture restarts the service per its backoff policy.
type NATSService struct {
	components      NATSRunner
	shutdownTimeout time.Duration
	name            string
}

// NewNATSService creates a NATS service wrapper with a 10 second
// shutdown timeout.
func NewNATSService(components NATSRunner) *NATSService {
	return NewNATSServiceWithTimeout(components, 10*time.Second)
}

// NewNATSServiceWithTimeout creates a NATS service with a custom
// shutdown timeout.
func NewNATSServiceWithTimeout(components NATSRunner, shutdownTimeout time.Duration) *NATSService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &NATSService{
		components:      components,
		shutdownTimeout: shutdownTimeout,
		name:            "nats-components",
	}
}

// Serve implements suture.Service.
func (s *NATSService) Serve(ctx context.Context) error {
	if err := s.components.Start(ctx); err != nil {
		return fmt.Errorf("NATS components start failed: %w", err)
	}

	<-ctx.Done()

	// The serve context is already canceled; shutdown needs its own.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.components.Shutdown(shutdownCtx)

	return ctx.Err()
}

// String implements fmt.Stringer; suture uses it to identify the service
// in log messages.
func (s *NATSService) String() string {
	return s.name
}
