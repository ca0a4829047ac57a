// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

// Package aggregate maintains the rolling vote statistics detectors read:
// per-time-slot counts and velocity samples, per-region counts and
// densities, and per-candidate totals with bounded trend histories.
//
// The aggregator exclusively owns this state. Detectors and the report
// generator only see it through read accessors; nothing outside this
// package mutates the maps. Like the ledger, the aggregator performs no
// locking of its own - the monitor pipeline serializes access.
package aggregate

import (
	"time"

	"github.com/ballotwatch/scrutineer/internal/ledger"
)

// TimeBucketStats holds aggregate counts for one time slot.
type TimeBucketStats struct {
	Total        int
	PerCandidate map[string]int

	// VelocityHistory is a FIFO-bounded history of recent votes-per-minute
	// samples for the slot.
	VelocityHistory []float64
}

// LocationStats holds aggregate counts for one region.
type LocationStats struct {
	Total        int
	PerCandidate map[string]int

	// Density is the count of events in this region within the trailing
	// density window, recomputed on every ingest for the region.
	Density int
}

// TrendSample is one point of a candidate's bounded trend history.
type TrendSample struct {
	Timestamp  time.Time `json:"timestamp"`
	Cumulative int       `json:"cumulative"`

	// Share is the candidate's fraction of all votes at sample time.
	Share float64 `json:"share"`
}

// CandidateStats holds aggregate counts for one candidate.
type CandidateStats struct {
	Total     int
	PerSlot   map[ledger.TimeSlot]int
	PerRegion map[string]int
	Trend     []TrendSample
}

// Config holds the aggregator's windows and history caps.
type Config struct {
	// VelocityWindow is the trailing window velocity samples are computed
	// over.
	VelocityWindow time.Duration

	// DensityWindow is the trailing window region densities are computed
	// over.
	DensityWindow time.Duration

	// VelocityHistoryCap bounds each slot's velocity history (FIFO).
	VelocityHistoryCap int

	// TrendHistoryCap bounds each candidate's trend history (FIFO).
	TrendHistoryCap int

	// DefaultRegions seeds zero-valued location entries at startup. Regions
	// outside this set are still created lazily on first observation.
	DefaultRegions []string
}

// DefaultConfig returns the aggregator defaults.
func DefaultConfig() Config {
	return Config{
		VelocityWindow:     10 * time.Minute,
		DensityWindow:      60 * time.Minute,
		VelocityHistoryCap: 20,
		TrendHistoryCap:    50,
		DefaultRegions:     []string{"urban", "suburban", "rural", "remote"},
	}
}

// Aggregator owns all rolling vote statistics. Every accepted vote passes
// through Ingest exactly once.
type Aggregator struct {
	cfg    Config
	ledger *ledger.Ledger

	slots       map[ledger.TimeSlot]*TimeBucketStats
	regions     map[string]*LocationStats
	candidates  map[string]*CandidateStats
	voterRegion map[string]string
	total       int
}

// New creates an aggregator over the given ledger, seeding all time slots
// and the configured default regions with zero-valued entries.
func New(l *ledger.Ledger, cfg Config) *Aggregator {
	if cfg.VelocityHistoryCap <= 0 {
		cfg.VelocityHistoryCap = 20
	}
	if cfg.TrendHistoryCap <= 0 {
		cfg.TrendHistoryCap = 50
	}
	if cfg.VelocityWindow <= 0 {
		cfg.VelocityWindow = 10 * time.Minute
	}
	if cfg.DensityWindow <= 0 {
		cfg.DensityWindow = 60 * time.Minute
	}

	a := &Aggregator{
		cfg:         cfg,
		ledger:      l,
		slots:       make(map[ledger.TimeSlot]*TimeBucketStats),
		regions:     make(map[string]*LocationStats),
		candidates:  make(map[string]*CandidateStats),
		voterRegion: make(map[string]string),
	}
	for _, slot := range ledger.AllSlots() {
		a.slots[slot] = &TimeBucketStats{PerCandidate: make(map[string]int)}
	}
	for _, region := range cfg.DefaultRegions {
		a.regions[region] = &LocationStats{PerCandidate: make(map[string]int)}
	}
	return a
}

// Ingest folds one accepted vote into the aggregate state. The event must
// already be appended to the ledger. Ingest is deterministic and never
// fails.
func (a *Aggregator) Ingest(ev ledger.VoteEvent) {
	a.total++

	slot := ledger.SlotForTime(ev.Timestamp)
	ss := a.slots[slot]
	ss.Total++
	ss.PerCandidate[ev.Candidate]++
	a.sampleVelocity(ss, slot, ev.Timestamp)

	if ev.Region != "" {
		rs, ok := a.regions[ev.Region]
		if !ok {
			rs = &LocationStats{PerCandidate: make(map[string]int)}
			a.regions[ev.Region] = rs
		}
		rs.Total++
		rs.PerCandidate[ev.Candidate]++
		rs.Density = len(a.ledger.FilterByRegionWithin(ev.Region, a.cfg.DensityWindow, ev.Timestamp))

		a.voterRegion[ev.VoterID] = ev.Region
	}

	cs, ok := a.candidates[ev.Candidate]
	if !ok {
		cs = &CandidateStats{
			PerSlot:   make(map[ledger.TimeSlot]int),
			PerRegion: make(map[string]int),
		}
		a.candidates[ev.Candidate] = cs
	}
	cs.Total++
	cs.PerSlot[slot]++
	if ev.Region != "" {
		cs.PerRegion[ev.Region]++
	}
	cs.Trend = append(cs.Trend, TrendSample{
		Timestamp:  ev.Timestamp,
		Cumulative: cs.Total,
		Share:      float64(cs.Total) / float64(a.total),
	})
	if len(cs.Trend) > a.cfg.TrendHistoryCap {
		cs.Trend = cs.Trend[len(cs.Trend)-a.cfg.TrendHistoryCap:]
	}
}

// sampleVelocity appends a votes-per-minute sample for the slot, derived
// from ledger events in the trailing velocity window. Windows spanning
// zero time are skipped rather than sampled.
func (a *Aggregator) sampleVelocity(ss *TimeBucketStats, slot ledger.TimeSlot, asOf time.Time) {
	events := a.ledger.FilterByTimeSlotWithin(slot, a.cfg.VelocityWindow, asOf)
	if len(events) < 2 {
		return
	}
	span := events[len(events)-1].Timestamp.Sub(events[0].Timestamp).Minutes()
	if span <= 0 {
		return
	}
	ss.VelocityHistory = append(ss.VelocityHistory, float64(len(events))/span)
	if len(ss.VelocityHistory) > a.cfg.VelocityHistoryCap {
		ss.VelocityHistory = ss.VelocityHistory[len(ss.VelocityHistory)-a.cfg.VelocityHistoryCap:]
	}
}

// SetVelocityWindow updates the velocity sampling window for subsequent
// ingests.
func (a *Aggregator) SetVelocityWindow(d time.Duration) {
	a.cfg.VelocityWindow = d
}

// SetDensityWindow updates the density window for subsequent ingests.
func (a *Aggregator) SetDensityWindow(d time.Duration) {
	a.cfg.DensityWindow = d
}

// TotalVotes returns the overall accepted vote count.
func (a *Aggregator) TotalVotes() int {
	return a.total
}

// VelocitySamples returns a copy of the slot's velocity history.
func (a *Aggregator) VelocitySamples(slot ledger.TimeSlot) []float64 {
	ss, ok := a.slots[slot]
	if !ok {
		return nil
	}
	out := make([]float64, len(ss.VelocityHistory))
	copy(out, ss.VelocityHistory)
	return out
}

// SlotTotals returns per-slot vote totals.
func (a *Aggregator) SlotTotals() map[ledger.TimeSlot]int {
	out := make(map[ledger.TimeSlot]int, len(a.slots))
	for slot, ss := range a.slots {
		out[slot] = ss.Total
	}
	return out
}

// Densities returns the current density value per region, including
// seeded zero-valued regions.
func (a *Aggregator) Densities() map[string]float64 {
	out := make(map[string]float64, len(a.regions))
	for region, rs := range a.regions {
		out[region] = float64(rs.Density)
	}
	return out
}

// RegionTotals returns per-region vote totals.
func (a *Aggregator) RegionTotals() map[string]int {
	out := make(map[string]int, len(a.regions))
	for region, rs := range a.regions {
		out[region] = rs.Total
	}
	return out
}

// CandidateTotals returns per-candidate vote totals.
func (a *Aggregator) CandidateTotals() map[string]int {
	out := make(map[string]int, len(a.candidates))
	for candidate, cs := range a.candidates {
		out[candidate] = cs.Total
	}
	return out
}

// Trend returns a copy of the candidate's trend history.
func (a *Aggregator) Trend(candidate string) []TrendSample {
	cs, ok := a.candidates[candidate]
	if !ok {
		return nil
	}
	out := make([]TrendSample, len(cs.Trend))
	copy(out, cs.Trend)
	return out
}

// VoterRegion returns the last-observed region for a voter.
func (a *Aggregator) VoterRegion(voterID string) (string, bool) {
	region, ok := a.voterRegion[voterID]
	return region, ok
}

// Reset discards all aggregate state and re-seeds slots and default
// regions. Used when a new election starts.
func (a *Aggregator) Reset() {
	a.total = 0
	a.slots = make(map[ledger.TimeSlot]*TimeBucketStats)
	a.regions = make(map[string]*LocationStats)
	a.candidates = make(map[string]*CandidateStats)
	a.voterRegion = make(map[string]string)
	for _, slot := range ledger.AllSlots() {
		a.slots[slot] = &TimeBucketStats{PerCandidate: make(map[string]int)}
	}
	for _, region := range a.cfg.DefaultRegions {
		a.regions[region] = &LocationStats{PerCandidate: make(map[string]int)}
	}
}
