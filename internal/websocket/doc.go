// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

/*
Package websocket pushes live anomaly alerts and report snapshots to
connected dashboard clients.

It uses the gorilla/websocket library with a hub-client architecture:
the Hub is the central broker holding the set of active connections,
and each Client runs a read pump and a write pump goroutine around one
connection.

Message Types:

  - anomaly: an admitted anomaly, pushed as it is recorded
  - report_update: a periodic aggregate report snapshot
  - ping / pong: application-level liveness exchange

Broadcasts are fan-out with per-client buffered send channels; a client
that cannot keep up has its channel dropped and the connection closed
rather than blocking the hub. Clients are iterated in ID order so
delivery order is deterministic.

The hub runs under supervision: Serve blocks until the context is
canceled, then closes every client and returns.
*/
package websocket
