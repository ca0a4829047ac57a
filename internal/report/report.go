// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

// Package report produces point-in-time snapshots of aggregate vote state
// and anomaly counts. Snapshots are pure reads with no side effects; the
// monitor pipeline serializes them against ingestion.
package report

import (
	"time"

	"github.com/ballotwatch/scrutineer/internal/aggregate"
	"github.com/ballotwatch/scrutineer/internal/detection"
	"github.com/ballotwatch/scrutineer/internal/ledger"
)

// HighSeverityThreshold is the severity bar for the report's high-severity
// anomaly count.
const HighSeverityThreshold = 0.8

// Report is a point-in-time snapshot of the election's state. Valid at any
// moment including the zero-event state, where all values are zero or
// empty.
type Report struct {
	TotalVotes        int                     `json:"total_votes"`
	PerCandidate      map[string]int          `json:"per_candidate"`
	PerSlot           map[ledger.TimeSlot]int `json:"per_slot"`
	PerRegion         map[string]int          `json:"per_region"`
	AnomalyCount      int                     `json:"anomaly_count"`
	HighSeverityCount int                     `json:"high_severity_count"`
	GeneratedAt       time.Time               `json:"generated_at"`
}

// Generator renders reports from the aggregator and anomaly registry.
type Generator struct {
	agg      *aggregate.Aggregator
	registry *detection.Registry

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewGenerator creates a report generator over the given sources.
func NewGenerator(agg *aggregate.Aggregator, registry *detection.Registry) *Generator {
	return &Generator{
		agg:      agg,
		registry: registry,
		now:      time.Now,
	}
}

// Snapshot returns the current report. Two snapshots with no intervening
// ingestion differ only in GeneratedAt.
func (g *Generator) Snapshot() Report {
	return Report{
		TotalVotes:        g.agg.TotalVotes(),
		PerCandidate:      g.agg.CandidateTotals(),
		PerSlot:           g.agg.SlotTotals(),
		PerRegion:         g.agg.RegionTotals(),
		AnomalyCount:      g.registry.Count(),
		HighSeverityCount: g.registry.CountAbove(HighSeverityThreshold),
		GeneratedAt:       g.now().UTC(),
	}
}
