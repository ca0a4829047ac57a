// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package detection

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ballotwatch/scrutineer/internal/ledger"
)

// VelocityDetector flags sudden vote-rate spikes within a time slot. A
// spike must clear both an absolute floor (the baseline) and a relative
// bar (mean + 2 standard deviations of the slot's prior samples), so that
// naturally busy periods are not flagged on volume alone.
type VelocityDetector struct {
	config  VelocityConfig
	history History
	enabled bool
	mu      sync.RWMutex
}

// VelocityConfig configures the velocity detector.
type VelocityConfig struct {
	// Baseline is the absolute votes-per-minute floor below which no spike
	// is flagged.
	Baseline float64 `json:"baseline"`

	// MinSamples is the minimum velocity sample count required before the
	// slot's statistics are considered meaningful.
	MinSamples int `json:"min_samples"`
}

// DefaultVelocityConfig returns sensible defaults.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		Baseline:   5,
		MinSamples: 3,
	}
}

// NewVelocityDetector creates a new velocity detector.
func NewVelocityDetector(history History) *VelocityDetector {
	return &VelocityDetector{
		config:  DefaultVelocityConfig(),
		history: history,
		enabled: true,
	}
}

// Kind returns the anomaly kind this detector emits.
func (d *VelocityDetector) Kind() Kind {
	return KindVelocity
}

// Check evaluates the event's time slot against the velocity rule.
func (d *VelocityDetector) Check(_ context.Context, event ledger.VoteEvent) ([]Anomaly, error) {
	d.mu.RLock()
	if !d.enabled {
		d.mu.RUnlock()
		return nil, nil
	}
	config := d.config
	d.mu.RUnlock()

	slot := ledger.SlotForTime(event.Timestamp)
	samples := d.history.VelocitySamples(slot)
	if len(samples) < config.MinSamples {
		return nil, nil
	}

	// Statistics cover only the history before the current sample. A spike
	// included in its own population inflates the mean and spread enough to
	// mask itself: within n samples no value can sit more than (n-1)/sqrt(n)
	// sigmas from the mean.
	prior := samples[:len(samples)-1]
	current := samples[len(samples)-1]
	mean := sampleMean(prior)
	stdDev := popStdDev(prior, mean)

	if current <= config.Baseline || current <= mean+2*stdDev {
		return nil, nil
	}

	metadata, err := json.Marshal(VelocityMetadata{
		Slot:        slot,
		Mean:        mean,
		StdDev:      stdDev,
		SampleCount: len(samples),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return []Anomaly{{
		ID:        uuid.NewString(),
		Kind:      KindVelocity,
		Dimension: string(slot),
		Timestamp: event.Timestamp,
		Expected:  mean,
		Actual:    current,
		Severity:  zScoreSeverity(current, mean, stdDev),
		Description: fmt.Sprintf(
			"Vote velocity in %s slot is %.2f/min, above baseline %.2f and %.2f+2σ",
			slot, current, config.Baseline, mean,
		),
		Metadata: metadata,
	}}, nil
}

// Configure updates the detector configuration.
func (d *VelocityDetector) Configure(config json.RawMessage) error {
	var newConfig VelocityConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if newConfig.Baseline <= 0 {
		return fmt.Errorf("baseline must be positive")
	}
	if newConfig.MinSamples < 2 {
		return fmt.Errorf("min_samples must be at least 2")
	}

	d.mu.Lock()
	d.config = newConfig
	d.mu.Unlock()

	return nil
}

// SetBaseline updates only the velocity baseline, keeping other settings.
func (d *VelocityDetector) SetBaseline(baseline float64) error {
	if baseline <= 0 {
		return fmt.Errorf("baseline must be positive")
	}
	d.mu.Lock()
	d.config.Baseline = baseline
	d.mu.Unlock()
	return nil
}

// Enabled returns whether this detector is enabled.
func (d *VelocityDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *VelocityDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Config returns the current configuration.
func (d *VelocityDetector) Config() VelocityConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}
