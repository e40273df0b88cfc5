// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

/*
Package services adapts application components to suture's Serve pattern.

Each wrapper translates a component's native lifecycle (ListenAndServe,
Start/Shutdown) into a single blocking Serve(ctx) call:

  - HTTPServerService: wraps *http.Server
  - NATSService: wraps the NATS component bundle from cmd/server

Wrappers return ctx.Err() on graceful shutdown so suture treats the stop
as intentional rather than a crash, and use a fresh timeout context for
the shutdown call since the serve context is already canceled.
*/
package services
