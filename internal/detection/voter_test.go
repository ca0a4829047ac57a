// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package detection

import (
	"context"
	"testing"
	"time"

	"github.com/ballotwatch/scrutineer/internal/ledger"
)

func voterEvent(voter, candidate, region string, at time.Time) ledger.VoteEvent {
	return ledger.VoteEvent{
		VoterID:   voter,
		Candidate: candidate,
		Region:    region,
		Timestamp: at,
	}
}

func TestVoterBehaviorDetector_Check(t *testing.T) {
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		history   []ledger.VoteEvent
		incoming  ledger.VoteEvent
		wantKinds map[Kind]float64 // kind -> expected severity
	}{
		{
			name: "single vote is clean",
			history: []ledger.VoteEvent{
				voterEvent("v1", "alice", "urban", base),
			},
			incoming:  voterEvent("v1", "alice", "urban", base),
			wantKinds: map[Kind]float64{},
		},
		{
			name: "multi candidate",
			history: []ledger.VoteEvent{
				voterEvent("v1", "alice", "urban", base),
				voterEvent("v1", "bob", "urban", base.Add(time.Hour)),
			},
			incoming: voterEvent("v1", "bob", "urban", base.Add(time.Hour)),
			wantKinds: map[Kind]float64{
				KindVoterMultiCandidate: 0.95,
			},
		},
		{
			name: "impossible travel",
			history: []ledger.VoteEvent{
				voterEvent("v1", "alice", "urban", base),
				voterEvent("v1", "alice", "rural", base.Add(5*time.Minute)),
			},
			incoming: voterEvent("v1", "alice", "rural", base.Add(5*time.Minute)),
			wantKinds: map[Kind]float64{
				KindVoterImpossibleTravel: 0.9,
			},
		},
		{
			name: "travel and multi candidate together",
			history: []ledger.VoteEvent{
				voterEvent("v1", "alice", "urban", base),
				voterEvent("v1", "bob", "rural", base.Add(5*time.Minute)),
			},
			incoming: voterEvent("v1", "bob", "rural", base.Add(5*time.Minute)),
			wantKinds: map[Kind]float64{
				KindVoterMultiCandidate:   0.95,
				KindVoterImpossibleTravel: 0.9,
			},
		},
		{
			name: "slow region change is fine",
			history: []ledger.VoteEvent{
				voterEvent("v1", "alice", "urban", base),
				voterEvent("v1", "alice", "rural", base.Add(30*time.Minute)),
			},
			incoming:  voterEvent("v1", "alice", "rural", base.Add(30*time.Minute)),
			wantKinds: map[Kind]float64{},
		},
		{
			name: "same region rapid revote",
			history: []ledger.VoteEvent{
				voterEvent("v1", "alice", "urban", base),
				voterEvent("v1", "alice", "urban", base.Add(time.Minute)),
			},
			incoming:  voterEvent("v1", "alice", "urban", base.Add(time.Minute)),
			wantKinds: map[Kind]float64{},
		},
		{
			name: "missing prior region skips travel",
			history: []ledger.VoteEvent{
				voterEvent("v1", "alice", "", base),
				voterEvent("v1", "alice", "rural", base.Add(time.Minute)),
			},
			incoming:  voterEvent("v1", "alice", "rural", base.Add(time.Minute)),
			wantKinds: map[Kind]float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewVoterBehaviorDetector(&mockHistory{
				voterEvents: map[string][]ledger.VoteEvent{"v1": tt.history},
			})

			anomalies, err := d.Check(context.Background(), tt.incoming)
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if len(anomalies) != len(tt.wantKinds) {
				t.Fatalf("Check() emitted %d anomalies, want %d", len(anomalies), len(tt.wantKinds))
			}
			for _, a := range anomalies {
				wantSeverity, ok := tt.wantKinds[a.Kind]
				if !ok {
					t.Errorf("unexpected anomaly kind %q", a.Kind)
					continue
				}
				if a.Severity != wantSeverity {
					t.Errorf("%s severity = %v, want %v", a.Kind, a.Severity, wantSeverity)
				}
				if a.Dimension != "v1" {
					t.Errorf("%s dimension = %q, want voter id", a.Kind, a.Dimension)
				}
			}
		})
	}
}

func TestVoterBehaviorDetector_NoHistoryIsInconsistent(t *testing.T) {
	d := NewVoterBehaviorDetector(&mockHistory{})

	// The ledger appends before detection, so an empty history for the
	// incoming voter cannot happen without a pipeline bug.
	_, err := d.Check(context.Background(), voterEvent("ghost", "alice", "", time.Now()))
	if err == nil {
		t.Fatal("Check() with empty history did not return an error")
	}
}
