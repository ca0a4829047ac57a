// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package detection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ballotwatch/scrutineer/internal/ledger"
)

// VoterBehaviorDetector runs two per-voter red-flag rules against the
// incoming event plus that voter's prior history:
//
//   - Multi-candidate: one identity voting for more than one distinct
//     candidate is definitionally suspicious regardless of magnitude, so
//     it carries a fixed severity.
//   - Impossible travel: the voter's previous event came from a different
//     region less than the travel window ago, modeling the physical
//     implausibility of relocating between regions that fast.
type VoterBehaviorDetector struct {
	config  VoterBehaviorConfig
	history History
	enabled bool
	mu      sync.RWMutex
}

// VoterBehaviorConfig configures the per-voter detector.
type VoterBehaviorConfig struct {
	// MultiCandidateSeverity is the fixed severity for multi-candidate
	// anomalies.
	MultiCandidateSeverity float64 `json:"multi_candidate_severity"`

	// TravelSeverity is the fixed severity for impossible-travel anomalies.
	TravelSeverity float64 `json:"travel_severity"`

	// TravelWindowMinutes is the maximum minutes between two same-voter
	// events in different regions for the transition to count as
	// impossible.
	TravelWindowMinutes int `json:"travel_window_minutes"`
}

// DefaultVoterBehaviorConfig returns sensible defaults.
func DefaultVoterBehaviorConfig() VoterBehaviorConfig {
	return VoterBehaviorConfig{
		MultiCandidateSeverity: 0.95,
		TravelSeverity:         0.9,
		TravelWindowMinutes:    10,
	}
}

// NewVoterBehaviorDetector creates a new per-voter behavior detector.
func NewVoterBehaviorDetector(history History) *VoterBehaviorDetector {
	return &VoterBehaviorDetector{
		config:  DefaultVoterBehaviorConfig(),
		history: history,
		enabled: true,
	}
}

// Kind returns the primary anomaly kind; Check may also emit
// KindVoterImpossibleTravel.
func (d *VoterBehaviorDetector) Kind() Kind {
	return KindVoterMultiCandidate
}

// Check evaluates the incoming event against both per-voter rules.
func (d *VoterBehaviorDetector) Check(_ context.Context, event ledger.VoteEvent) ([]Anomaly, error) {
	d.mu.RLock()
	if !d.enabled {
		d.mu.RUnlock()
		return nil, nil
	}
	config := d.config
	d.mu.RUnlock()

	events := d.history.VoterEvents(event.VoterID)
	if len(events) == 0 {
		return nil, fmt.Errorf("voter %q has no ledger history", event.VoterID)
	}

	var anomalies []Anomaly

	candidates := make(map[string]bool, 2)
	for _, ev := range events {
		candidates[ev.Candidate] = true
	}
	if len(candidates) > 1 {
		names := make([]string, 0, len(candidates))
		for name := range candidates {
			names = append(names, name)
		}
		sort.Strings(names)

		metadata, err := json.Marshal(VoterMetadata{
			VoterID:    event.VoterID,
			Candidates: names,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}

		anomalies = append(anomalies, Anomaly{
			ID:        uuid.NewString(),
			Kind:      KindVoterMultiCandidate,
			Dimension: event.VoterID,
			Timestamp: event.Timestamp,
			Expected:  1,
			Actual:    float64(len(candidates)),
			Severity:  config.MultiCandidateSeverity,
			Description: fmt.Sprintf(
				"Voter %q has voted for %d distinct candidates",
				event.VoterID, len(candidates),
			),
			Metadata: metadata,
		})
	}

	if len(events) >= 2 {
		prev := events[len(events)-2]
		delta := event.Timestamp.Sub(prev.Timestamp)
		window := time.Duration(config.TravelWindowMinutes) * time.Minute

		if prev.Region != "" && event.Region != "" && prev.Region != event.Region && delta < window {
			metadata, err := json.Marshal(VoterMetadata{
				VoterID:       event.VoterID,
				FromRegion:    prev.Region,
				ToRegion:      event.Region,
				TimeDeltaMins: delta.Minutes(),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to marshal metadata: %w", err)
			}

			anomalies = append(anomalies, Anomaly{
				ID:        uuid.NewString(),
				Kind:      KindVoterImpossibleTravel,
				Dimension: event.VoterID,
				Timestamp: event.Timestamp,
				Expected:  float64(config.TravelWindowMinutes),
				Actual:    delta.Minutes(),
				Severity:  config.TravelSeverity,
				Description: fmt.Sprintf(
					"Voter %q moved from %q to %q in %.1f minutes",
					event.VoterID, prev.Region, event.Region, delta.Minutes(),
				),
				Metadata: metadata,
			})
		}
	}

	return anomalies, nil
}

// Configure updates the detector configuration.
func (d *VoterBehaviorDetector) Configure(config json.RawMessage) error {
	var newConfig VoterBehaviorConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if newConfig.MultiCandidateSeverity < 0 || newConfig.MultiCandidateSeverity > 1 {
		return fmt.Errorf("multi_candidate_severity must be in [0,1]")
	}
	if newConfig.TravelSeverity < 0 || newConfig.TravelSeverity > 1 {
		return fmt.Errorf("travel_severity must be in [0,1]")
	}
	if newConfig.TravelWindowMinutes <= 0 {
		return fmt.Errorf("travel_window_minutes must be positive")
	}

	d.mu.Lock()
	d.config = newConfig
	d.mu.Unlock()

	return nil
}

// Enabled returns whether this detector is enabled.
func (d *VoterBehaviorDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *VoterBehaviorDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Config returns the current configuration.
func (d *VoterBehaviorDetector) Config() VoterBehaviorConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}
