// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package notify

import (
	"context"

	"github.com/ballotwatch/scrutineer/internal/detection"
)

// Notifier delivers anomalies to an external or in-process sink.
type Notifier interface {
	// Send delivers one anomaly. Errors are logged by the dispatcher and
	// never retried; the anomaly stays in the registry either way.
	Send(ctx context.Context, anomaly detection.Anomaly) error

	// Name returns the notifier name for logs and metrics.
	Name() string

	// Enabled returns whether this notifier is enabled.
	Enabled() bool
}

// AnomalyBroadcaster pushes anomalies to connected WebSocket clients.
// Implemented by the websocket hub.
type AnomalyBroadcaster interface {
	BroadcastAnomaly(anomaly detection.Anomaly)
}

// BroadcastNotifier adapts the WebSocket hub to the Notifier interface.
type BroadcastNotifier struct {
	hub AnomalyBroadcaster
}

// NewBroadcastNotifier wraps a hub as a notifier.
func NewBroadcastNotifier(hub AnomalyBroadcaster) *BroadcastNotifier {
	return &BroadcastNotifier{hub: hub}
}

// Send pushes the anomaly to all connected clients. The hub's own
// per-client buffering makes this non-blocking.
func (n *BroadcastNotifier) Send(_ context.Context, anomaly detection.Anomaly) error {
	n.hub.BroadcastAnomaly(anomaly)
	return nil
}

// Name returns the notifier name.
func (n *BroadcastNotifier) Name() string {
	return "websocket"
}

// Enabled always reports true; the hub simply has no clients when nobody
// is watching.
func (n *BroadcastNotifier) Enabled() bool {
	return true
}
