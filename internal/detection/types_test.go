// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package detection

import (
	"testing"

	"github.com/ballotwatch/scrutineer/internal/aggregate"
	"github.com/ballotwatch/scrutineer/internal/ledger"
)

// mockHistory is a canned History implementation for detector tests.
type mockHistory struct {
	total       int
	velocity    map[ledger.TimeSlot][]float64
	densities   map[string]float64
	candidates  map[string]int
	trends      map[string][]aggregate.TrendSample
	voterEvents map[string][]ledger.VoteEvent
}

func (m *mockHistory) TotalVotes() int { return m.total }

func (m *mockHistory) VelocitySamples(slot ledger.TimeSlot) []float64 {
	return m.velocity[slot]
}

func (m *mockHistory) Densities() map[string]float64 { return m.densities }

func (m *mockHistory) CandidateTotals() map[string]int { return m.candidates }

func (m *mockHistory) Trend(candidate string) []aggregate.TrendSample {
	return m.trends[candidate]
}

func (m *mockHistory) VoterEvents(voterID string) []ledger.VoteEvent {
	return m.voterEvents[voterID]
}

func TestZScoreSeverity(t *testing.T) {
	tests := []struct {
		name   string
		actual float64
		mean   float64
		stdDev float64
		want   float64
	}{
		{name: "zero spread yields 0.5", actual: 10, mean: 2, stdDev: 0, want: 0.5},
		{name: "on the mean", actual: 5, mean: 5, stdDev: 1, want: 0},
		{name: "one sigma", actual: 6, mean: 5, stdDev: 1, want: 0.25},
		{name: "four sigma caps at 1", actual: 9, mean: 5, stdDev: 1, want: 1},
		{name: "beyond four sigma stays 1", actual: 100, mean: 5, stdDev: 1, want: 1},
		{name: "negative deviation uses magnitude", actual: 3, mean: 5, stdDev: 1, want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := zScoreSeverity(tt.actual, tt.mean, tt.stdDev)
			if got != tt.want {
				t.Errorf("zScoreSeverity(%v, %v, %v) = %v, want %v",
					tt.actual, tt.mean, tt.stdDev, got, tt.want)
			}
			if got < 0 || got > 1 {
				t.Errorf("severity %v out of [0,1]", got)
			}
		})
	}
}

func TestSampleStats(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	mean := sampleMean(xs)
	if mean != 5 {
		t.Errorf("sampleMean = %v, want 5", mean)
	}

	// Classic population std dev example: exactly 2.
	if got := popStdDev(xs, mean); got != 2 {
		t.Errorf("popStdDev = %v, want 2", got)
	}

	if got := sampleMean(nil); got != 0 {
		t.Errorf("sampleMean(nil) = %v, want 0", got)
	}
	if got := popStdDev(nil, 0); got != 0 {
		t.Errorf("popStdDev(nil) = %v, want 0", got)
	}
}
