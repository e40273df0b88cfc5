// Vestigo - Behavioral Analytics Event Ingestion
// Copyright 2026 Vestigo Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vestigo-analytics/vestigo

/*
Package supervisor provides the suture-based supervision tree.

The tree is organized into two layers under one root:

  - messaging: the NATS components (embedded server, publisher, stream)
  - api: the HTTP server

The split provides failure isolation. A crash in the messaging layer
restarts fanout without touching the HTTP listener; event persistence is
synchronous and unaffected either way.

Supervision events are logged through sutureslog, bridged onto the
zerolog root logger via logging.NewSlogLogger.

Usage:

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil { ... }
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
	tree.AddMessagingService(services.NewNATSService(components))
	err = tree.Serve(ctx)

Serve blocks until the context is canceled, then shuts services down in
reverse order with the configured timeout. UnstoppedServiceReport names
services that missed the deadline.
*/
package supervisor
