// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package notify

import (
	"context"
	"time"

	"github.com/ballotwatch/scrutineer/internal/report"
)

// Snapshotter produces point-in-time reports. Implemented by the monitor.
type Snapshotter interface {
	Snapshot() report.Report
}

// ReportBroadcaster pushes report snapshots to connected clients.
// Implemented by the websocket hub.
type ReportBroadcaster interface {
	BroadcastReport(r report.Report)
}

// Refresher periodically broadcasts a fresh report snapshot. It runs on
// its own timer, fully decoupled from ingestion; ticks are coalesced by
// the ticker under load and skipping one is harmless.
type Refresher struct {
	snapshots Snapshotter
	broadcast ReportBroadcaster
	interval  time.Duration
}

// NewRefresher creates a refresher with the given cadence.
func NewRefresher(s Snapshotter, b ReportBroadcaster, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Refresher{snapshots: s, broadcast: b, interval: interval}
}

// String names the service in supervisor logs.
func (r *Refresher) String() string {
	return "report-refresher"
}

// Serve broadcasts until the context is canceled.
func (r *Refresher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.broadcast.BroadcastReport(r.snapshots.Snapshot())
		}
	}
}
