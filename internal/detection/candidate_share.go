// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package detection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ballotwatch/scrutineer/internal/ledger"
)

// CandidateShareDetector flags abnormal drift in a candidate's vote share.
// The expected share is a uniform prior (1/numCandidates); no historical
// baseline is modeled. A candidate is only flagged when its absolute
// deviation from uniform exceeds the threshold AND its share is moving
// fast across the recent trend samples. The rate-of-change gate keeps
// steady, legitimately popular candidates off the anomaly feed.
type CandidateShareDetector struct {
	config  CandidateShareConfig
	history History
	enabled bool
	mu      sync.RWMutex
}

// CandidateShareConfig configures the candidate-share detector.
type CandidateShareConfig struct {
	// DeviationThreshold is the minimum absolute deviation from the
	// uniform expected share before a candidate is considered.
	DeviationThreshold float64 `json:"deviation_threshold"`

	// MinTotalVotes is the insufficient-data guard: no checks run until
	// this many votes exist across all candidates.
	MinTotalVotes int `json:"min_total_votes"`

	// MinTrendSamples is the number of trend samples a candidate needs
	// before its rate of change is measurable.
	MinTrendSamples int `json:"min_trend_samples"`

	// TrendDeltaThreshold is the minimum share movement across the most
	// recent MinTrendSamples samples.
	TrendDeltaThreshold float64 `json:"trend_delta_threshold"`
}

// DefaultCandidateShareConfig returns sensible defaults.
func DefaultCandidateShareConfig() CandidateShareConfig {
	return CandidateShareConfig{
		DeviationThreshold:  0.1,
		MinTotalVotes:       10,
		MinTrendSamples:     5,
		TrendDeltaThreshold: 0.05,
	}
}

// Severity reference for the rate-of-change magnitude. The trend delta is
// scored against this fixed expected movement and spread rather than the
// share deviation itself.
const (
	trendDeltaExpected = 0.05
	trendDeltaSpread   = 0.03
)

// NewCandidateShareDetector creates a new candidate-share detector.
func NewCandidateShareDetector(history History) *CandidateShareDetector {
	return &CandidateShareDetector{
		config:  DefaultCandidateShareConfig(),
		history: history,
		enabled: true,
	}
}

// Kind returns the anomaly kind this detector emits.
func (d *CandidateShareDetector) Kind() Kind {
	return KindCandidate
}

// Check evaluates every candidate's share against the drift rule. The
// incoming event only triggers the pass; all candidates are examined so a
// share pushed down by someone else's surge is also visible. Registry
// dedup keeps repeat hits quiet.
func (d *CandidateShareDetector) Check(_ context.Context, event ledger.VoteEvent) ([]Anomaly, error) {
	d.mu.RLock()
	if !d.enabled {
		d.mu.RUnlock()
		return nil, nil
	}
	config := d.config
	d.mu.RUnlock()

	total := d.history.TotalVotes()
	if total < config.MinTotalVotes {
		return nil, nil
	}

	counts := d.history.CandidateTotals()
	if len(counts) == 0 {
		return nil, nil
	}
	expected := 1 / float64(len(counts))

	// Deterministic candidate order.
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var anomalies []Anomaly
	for _, name := range names {
		actual := float64(counts[name]) / float64(total)
		if math.Abs(actual-expected) <= config.DeviationThreshold {
			continue
		}

		trend := d.history.Trend(name)
		if len(trend) < config.MinTrendSamples {
			continue
		}
		recent := trend[len(trend)-config.MinTrendSamples:]
		delta := recent[len(recent)-1].Share - recent[0].Share
		if math.Abs(delta) <= config.TrendDeltaThreshold {
			continue
		}

		direction := "increasing"
		if delta < 0 {
			direction = "decreasing"
		}

		metadata, err := json.Marshal(CandidateShareMetadata{
			Candidate:      name,
			TotalVotes:     total,
			CandidateVotes: counts[name],
			TrendDelta:     delta,
			TrendDirection: direction,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}

		anomalies = append(anomalies, Anomaly{
			ID:        uuid.NewString(),
			Kind:      KindCandidate,
			Dimension: name,
			Timestamp: event.Timestamp,
			Expected:  expected,
			Actual:    actual,
			Severity:  zScoreSeverity(math.Abs(delta), trendDeltaExpected, trendDeltaSpread),
			Description: fmt.Sprintf(
				"Candidate %q share %.2f deviates from expected %.2f with %s trend (Δ%.3f over last %d samples)",
				name, actual, expected, direction, delta, config.MinTrendSamples,
			),
			Metadata: metadata,
		})
	}

	return anomalies, nil
}

// Configure updates the detector configuration.
func (d *CandidateShareDetector) Configure(config json.RawMessage) error {
	var newConfig CandidateShareConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if newConfig.DeviationThreshold <= 0 || newConfig.DeviationThreshold >= 1 {
		return fmt.Errorf("deviation_threshold must be in (0,1)")
	}
	if newConfig.MinTotalVotes < 1 {
		return fmt.Errorf("min_total_votes must be positive")
	}
	if newConfig.MinTrendSamples < 2 {
		return fmt.Errorf("min_trend_samples must be at least 2")
	}
	if newConfig.TrendDeltaThreshold <= 0 {
		return fmt.Errorf("trend_delta_threshold must be positive")
	}

	d.mu.Lock()
	d.config = newConfig
	d.mu.Unlock()

	return nil
}

// SetDeviationThreshold updates only the deviation threshold, keeping
// other settings.
func (d *CandidateShareDetector) SetDeviationThreshold(threshold float64) error {
	if threshold <= 0 || threshold >= 1 {
		return fmt.Errorf("deviation_threshold must be in (0,1)")
	}
	d.mu.Lock()
	d.config.DeviationThreshold = threshold
	d.mu.Unlock()
	return nil
}

// Enabled returns whether this detector is enabled.
func (d *CandidateShareDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *CandidateShareDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Config returns the current configuration.
func (d *CandidateShareDetector) Config() CandidateShareConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}
