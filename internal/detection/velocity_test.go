// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package detection

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/ballotwatch/scrutineer/internal/ledger"
)

func morningEvent() ledger.VoteEvent {
	return ledger.VoteEvent{
		VoterID:   "voter-1",
		Candidate: "alice",
		Timestamp: time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC),
	}
}

func TestVelocityDetector_Check(t *testing.T) {
	tests := []struct {
		name        string
		samples     []float64
		wantAnomaly bool
	}{
		{
			name:        "too few samples",
			samples:     []float64{6, 7},
			wantAnomaly: false,
		},
		{
			name:        "below baseline",
			samples:     []float64{1, 1, 2},
			wantAnomaly: false,
		},
		{
			name: "above baseline but within two sigma of prior history",
			// prior mean 6, sigma ~1.41: 7 < 6+2*1.41
			samples:     []float64{4, 6, 8, 6, 7},
			wantAnomaly: false,
		},
		{
			name: "spike above baseline and two sigma of prior history",
			// prior mean 4, sigma 0: 12 > 5 and 12 > 4
			samples:     []float64{4, 4, 4, 4, 4, 4, 4, 4, 4, 12},
			wantAnomaly: true,
		},
		{
			name: "spike at the minimum sample count",
			// prior mean 0.875, sigma 0.125: 120 > 5 and 120 > 1.125
			samples:     []float64{1, 0.75, 120},
			wantAnomaly: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := &mockHistory{
				velocity: map[ledger.TimeSlot][]float64{
					ledger.SlotMorning: tt.samples,
				},
			}
			d := NewVelocityDetector(history)

			anomalies, err := d.Check(context.Background(), morningEvent())
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if got := len(anomalies) > 0; got != tt.wantAnomaly {
				t.Fatalf("Check() anomalies = %d, wantAnomaly %v", len(anomalies), tt.wantAnomaly)
			}

			if tt.wantAnomaly {
				a := anomalies[0]
				if a.Kind != KindVelocity {
					t.Errorf("Kind = %q, want %q", a.Kind, KindVelocity)
				}
				if a.Dimension != string(ledger.SlotMorning) {
					t.Errorf("Dimension = %q, want %q", a.Dimension, ledger.SlotMorning)
				}
				if a.Severity < 0 || a.Severity > 1 {
					t.Errorf("Severity %v out of [0,1]", a.Severity)
				}
				if a.Actual != tt.samples[len(tt.samples)-1] {
					t.Errorf("Actual = %v, want most recent sample %v", a.Actual, tt.samples[len(tt.samples)-1])
				}
			}
		})
	}
}

func TestVelocityDetector_ZeroSpreadSeverity(t *testing.T) {
	// A spike after perfectly uniform prior samples has sigma 0 and scores
	// exactly 0.5.
	history := &mockHistory{
		velocity: map[ledger.TimeSlot][]float64{
			ledger.SlotMorning: {4, 4, 4, 12},
		},
	}
	d := NewVelocityDetector(history)

	anomalies, err := d.Check(context.Background(), morningEvent())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(anomalies) != 1 {
		t.Fatalf("Check() anomalies = %d, want 1", len(anomalies))
	}
	if got := anomalies[0].Severity; got != 0.5 {
		t.Errorf("sigma=0 severity = %v, want 0.5", got)
	}
}

func TestVelocityDetector_Disabled(t *testing.T) {
	history := &mockHistory{
		velocity: map[ledger.TimeSlot][]float64{
			ledger.SlotMorning: {4, 4, 4, 4, 4, 4, 4, 4, 4, 12},
		},
	}
	d := NewVelocityDetector(history)
	d.SetEnabled(false)

	anomalies, err := d.Check(context.Background(), morningEvent())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if anomalies != nil {
		t.Errorf("disabled detector returned %d anomalies", len(anomalies))
	}
	if d.Enabled() {
		t.Error("Enabled() = true after SetEnabled(false)")
	}
}

func TestVelocityDetector_Configure(t *testing.T) {
	d := NewVelocityDetector(&mockHistory{})

	if err := d.Configure(json.RawMessage(`{"baseline": 8, "min_samples": 4}`)); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if cfg := d.Config(); cfg.Baseline != 8 || cfg.MinSamples != 4 {
		t.Errorf("Config() = %+v after update", cfg)
	}

	invalid := []string{
		`{"baseline": 0, "min_samples": 3}`,
		`{"baseline": 5, "min_samples": 1}`,
		`not json`,
	}
	for _, raw := range invalid {
		if err := d.Configure(json.RawMessage(raw)); err == nil {
			t.Errorf("Configure(%s) accepted invalid config", raw)
		}
	}

	// Prior configuration retained after rejection.
	if cfg := d.Config(); cfg.Baseline != 8 {
		t.Errorf("Baseline = %v after rejected config, want 8", cfg.Baseline)
	}
}
