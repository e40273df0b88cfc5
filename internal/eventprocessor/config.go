// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

package eventprocessor

import (
	"fmt"
	"time"
)

// Subject and stream naming for the event fanout.
const (
	// StreamName is the JetStream stream holding ingested events.
	StreamName = "VESTIGO_EVENTS"

	// TopicEvents is the subject events are published to. Subjects are
	// suffixed with the event name for consumer-side filtering
	// (events.track.page_viewed).
	TopicEvents = "events.track"

	// TopicIdentities is the subject identify outcomes are published to.
	TopicIdentities = "events.identify"
)

// PublisherConfig configures the resilient NATS publisher.
type PublisherConfig struct {
	// URL is the NATS server connection URL.
	URL string

	// MaxReconnects limits reconnection attempts (-1 for unlimited).
	MaxReconnects int

	// ReconnectWait is the delay between reconnection attempts.
	ReconnectWait time.Duration

	// ReconnectBuffer is the outgoing buffer size while disconnected.
	ReconnectBuffer int

	// EnableTrackMsgID enables JetStream server-side deduplication via
	// Nats-Msg-Id. The persisted event id doubles as the message id, so a
	// redelivered publish inside the duplicate window is dropped.
	EnableTrackMsgID bool
}

// DefaultPublisherConfig returns production defaults.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024,
		EnableTrackMsgID: true,
	}
}

// StreamConfig configures the JetStream stream lifecycle.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns the stream settings for the event fanout.
func DefaultStreamConfig(retentionDays int, maxBytes int64) *StreamConfig {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &StreamConfig{
		Name:            StreamName,
		Subjects:        []string{"events.>"},
		MaxAge:          time.Duration(retentionDays) * 24 * time.Hour,
		MaxBytes:        maxBytes,
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// Validate checks stream configuration.
func (c *StreamConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: stream name required", ErrInvalidConfig)
	}
	if len(c.Subjects) == 0 {
		return fmt.Errorf("%w: at least one subject required", ErrInvalidConfig)
	}
	return nil
}

// CircuitBreakerConfig configures publish-path circuit breaking.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultCircuitBreakerConfig returns conservative publish-path defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             "nats-publisher",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}
