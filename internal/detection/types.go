// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package detection

import (
	"context"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/ballotwatch/scrutineer/internal/aggregate"
	"github.com/ballotwatch/scrutineer/internal/ledger"
)

// Kind identifies the detection rule that produced an anomaly.
type Kind string

const (
	// KindVelocity flags sudden vote-rate spikes within a time slot.
	KindVelocity Kind = "velocity"

	// KindLocation flags geographic over-concentration of votes.
	KindLocation Kind = "location"

	// KindCandidate flags abnormal drift in a candidate's vote share.
	KindCandidate Kind = "candidate"

	// KindVoterMultiCandidate flags one voter identity voting for more than
	// one candidate.
	KindVoterMultiCandidate Kind = "voter_multi_candidate"

	// KindVoterImpossibleTravel flags one voter appearing in two regions
	// implausibly fast.
	KindVoterImpossibleTravel Kind = "voter_impossible_travel"
)

// Anomaly is one detection result. Append-only once admitted to the
// registry; never mutated, only superseded by dedup suppression of new
// near-duplicates.
type Anomaly struct {
	ID string `json:"id"`

	Kind Kind `json:"kind"`

	// Dimension is the entity the anomaly concerns: a time slot, region,
	// candidate, or voter identifier depending on Kind.
	Dimension string `json:"dimension"`

	Timestamp time.Time `json:"timestamp"`

	// Expected and Actual are the magnitudes the rule compared. Their unit
	// depends on Kind (votes/minute, density, share).
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`

	// Severity is the normalized anomaly strength in [0,1].
	Severity float64 `json:"severity"`

	Description string `json:"description"`

	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// History provides detectors read-only access to the aggregate state and
// voter event history. Implemented by the monitor pipeline over its
// aggregator and ledger; detectors never mutate through it.
type History interface {
	// TotalVotes returns the overall accepted vote count.
	TotalVotes() int

	// VelocitySamples returns the slot's votes-per-minute sample history,
	// oldest first.
	VelocitySamples(slot ledger.TimeSlot) []float64

	// Densities returns the current trailing-window density per region.
	Densities() map[string]float64

	// CandidateTotals returns per-candidate vote totals.
	CandidateTotals() map[string]int

	// Trend returns the candidate's trend history, oldest first.
	Trend(candidate string) []aggregate.TrendSample

	// VoterEvents returns all events for one voter in insertion order,
	// including the event currently being processed.
	VoterEvents(voterID string) []ledger.VoteEvent
}

// Detector is the interface all detection rules implement.
type Detector interface {
	// Kind returns the anomaly kind this detector emits. The per-voter
	// detector reports its primary kind; dedup keys on each emitted
	// anomaly's own kind.
	Kind() Kind

	// Check evaluates the incoming event against the rule and returns zero
	// or more anomaly candidates for registry admission.
	Check(ctx context.Context, event ledger.VoteEvent) ([]Anomaly, error)

	// Configure updates the detector configuration.
	Configure(config json.RawMessage) error

	// Enabled returns whether this detector is currently enabled.
	Enabled() bool

	// SetEnabled enables or disables the detector.
	SetEnabled(enabled bool)
}

// VelocityMetadata contains details for velocity anomalies.
type VelocityMetadata struct {
	Slot        ledger.TimeSlot `json:"slot"`
	Mean        float64         `json:"mean"`
	StdDev      float64         `json:"std_dev"`
	SampleCount int             `json:"sample_count"`
}

// LocationMetadata contains details for location anomalies.
type LocationMetadata struct {
	Region      string  `json:"region"`
	MeanDensity float64 `json:"mean_density"`
	RegionCount int     `json:"region_count"`
}

// CandidateShareMetadata contains details for candidate-share anomalies.
type CandidateShareMetadata struct {
	Candidate      string  `json:"candidate"`
	TotalVotes     int     `json:"total_votes"`
	CandidateVotes int     `json:"candidate_votes"`
	TrendDelta     float64 `json:"trend_delta"`
	TrendDirection string  `json:"trend_direction"`
}

// VoterMetadata contains details for per-voter anomalies.
type VoterMetadata struct {
	VoterID       string   `json:"voter_id"`
	Candidates    []string `json:"candidates,omitempty"`
	FromRegion    string   `json:"from_region,omitempty"`
	ToRegion      string   `json:"to_region,omitempty"`
	TimeDeltaMins float64  `json:"time_delta_mins,omitempty"`
}

// zScoreSeverity maps a deviation from a baseline to [0,1]: the z-score
// divided by 4, capped. A zero spread yields 0.5 by convention so that a
// flagged condition with no measurable variance still registers as
// moderately severe.
func zScoreSeverity(actual, mean, stdDev float64) float64 {
	if stdDev == 0 {
		return 0.5
	}
	z := math.Abs(actual-mean) / stdDev
	return clamp(z/4, 0, 1)
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sampleMean returns the arithmetic mean, 0 for empty input.
func sampleMean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// popStdDev returns the population standard deviation around mean.
func popStdDev(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
