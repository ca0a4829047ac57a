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

// LocationDetector flags geographic over-concentration: a region whose
// trailing-window density exceeds the baseline and more than doubles the
// mean density across all regions. Comparing against the cross-region mean
// flags concentration rather than absolute volume, since regions naturally
// differ in population.
type LocationDetector struct {
	config  LocationConfig
	history History
	enabled bool
	mu      sync.RWMutex
}

// LocationConfig configures the location detector.
type LocationConfig struct {
	// DensityBaseline is the absolute density floor below which no region
	// is flagged.
	DensityBaseline float64 `json:"density_baseline"`

	// MeanMultiplier is how many times the cross-region mean density a
	// region must exceed to be flagged.
	MeanMultiplier float64 `json:"mean_multiplier"`
}

// DefaultLocationConfig returns sensible defaults.
func DefaultLocationConfig() LocationConfig {
	return LocationConfig{
		DensityBaseline: 10,
		MeanMultiplier:  2,
	}
}

// NewLocationDetector creates a new location detector.
func NewLocationDetector(history History) *LocationDetector {
	return &LocationDetector{
		config:  DefaultLocationConfig(),
		history: history,
		enabled: true,
	}
}

// Kind returns the anomaly kind this detector emits.
func (d *LocationDetector) Kind() Kind {
	return KindLocation
}

// Check evaluates the event's region against the location density rule.
func (d *LocationDetector) Check(_ context.Context, event ledger.VoteEvent) ([]Anomaly, error) {
	d.mu.RLock()
	if !d.enabled {
		d.mu.RUnlock()
		return nil, nil
	}
	config := d.config
	d.mu.RUnlock()

	// No region tag, nothing to concentrate on.
	if event.Region == "" {
		return nil, nil
	}

	densities := d.history.Densities()
	density, ok := densities[event.Region]
	if !ok {
		return nil, fmt.Errorf("region %q missing from aggregate state", event.Region)
	}
	if density <= config.DensityBaseline {
		return nil, nil
	}

	var sum float64
	for _, v := range densities {
		sum += v
	}
	mean := sum / float64(len(densities))
	if density <= config.MeanMultiplier*mean {
		return nil, nil
	}

	metadata, err := json.Marshal(LocationMetadata{
		Region:      event.Region,
		MeanDensity: mean,
		RegionCount: len(densities),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return []Anomaly{{
		ID:        uuid.NewString(),
		Kind:      KindLocation,
		Dimension: event.Region,
		Timestamp: event.Timestamp,
		Expected:  mean,
		Actual:    density,
		// Densities are not normally distributed and no true spread is
		// tracked; mean/2 is a heuristic estimate.
		Severity: zScoreSeverity(density, mean, mean/2),
		Description: fmt.Sprintf(
			"Region %q density %.0f exceeds %.0fx the cross-region mean %.2f",
			event.Region, density, config.MeanMultiplier, mean,
		),
		Metadata: metadata,
	}}, nil
}

// Configure updates the detector configuration.
func (d *LocationDetector) Configure(config json.RawMessage) error {
	var newConfig LocationConfig
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if newConfig.DensityBaseline <= 0 {
		return fmt.Errorf("density_baseline must be positive")
	}
	if newConfig.MeanMultiplier <= 1 {
		return fmt.Errorf("mean_multiplier must be greater than 1")
	}

	d.mu.Lock()
	d.config = newConfig
	d.mu.Unlock()

	return nil
}

// SetBaseline updates only the density baseline, keeping other settings.
func (d *LocationDetector) SetBaseline(baseline float64) error {
	if baseline <= 0 {
		return fmt.Errorf("density_baseline must be positive")
	}
	d.mu.Lock()
	d.config.DensityBaseline = baseline
	d.mu.Unlock()
	return nil
}

// Enabled returns whether this detector is enabled.
func (d *LocationDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *LocationDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Config returns the current configuration.
func (d *LocationDetector) Config() LocationConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}
