// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package ledger

import (
	"errors"
	"testing"
	"time"
)

func TestSlotForTime_CoversAllHours(t *testing.T) {
	// Every hour 0-23 maps to exactly one slot with no overlap or gap.
	counts := make(map[TimeSlot]int)
	for hour := 0; hour < 24; hour++ {
		ts := time.Date(2026, 8, 23, hour, 30, 0, 0, time.UTC)
		counts[SlotForTime(ts)]++
	}

	want := map[TimeSlot]int{
		SlotMorning:   7, // 05-11
		SlotAfternoon: 5, // 12-16
		SlotEvening:   5, // 17-21
		SlotNight:     7, // 22-04
	}
	total := 0
	for slot, n := range counts {
		if want[slot] != n {
			t.Errorf("slot %s covers %d hours, want %d", slot, n, want[slot])
		}
		total += n
	}
	if total != 24 {
		t.Errorf("slots cover %d hours, want 24", total)
	}
}

func TestSlotForTime_Boundaries(t *testing.T) {
	tests := []struct {
		hour int
		want TimeSlot
	}{
		{4, SlotNight},
		{5, SlotMorning},
		{11, SlotMorning},
		{12, SlotAfternoon},
		{16, SlotAfternoon},
		{17, SlotEvening},
		{21, SlotEvening},
		{22, SlotNight},
		{0, SlotNight},
	}
	for _, tt := range tests {
		ts := time.Date(2026, 8, 23, tt.hour, 0, 0, 0, time.UTC)
		if got := SlotForTime(ts); got != tt.want {
			t.Errorf("hour %d -> %s, want %s", tt.hour, got, tt.want)
		}
	}
}

func TestLedger_AppendValidation(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		event     VoteEvent
		wantField string
	}{
		{
			name:      "missing voter",
			event:     VoteEvent{Candidate: "alice", Timestamp: now},
			wantField: "voter_id",
		},
		{
			name:      "missing candidate",
			event:     VoteEvent{VoterID: "v1", Timestamp: now},
			wantField: "candidate",
		},
		{
			name:      "missing timestamp",
			event:     VoteEvent{VoterID: "v1", Candidate: "alice"},
			wantField: "timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			err := l.Append(tt.event)
			if err == nil {
				t.Fatal("Append() accepted invalid event")
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Append() error = %T, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
			if l.Len() != 0 {
				t.Error("rejected event changed ledger state")
			}
		})
	}
}

func TestLedger_AppendAndOrder(t *testing.T) {
	l := New()
	base := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)

	for i, voter := range []string{"v1", "v2", "v3"} {
		ev := VoteEvent{
			VoterID:   voter,
			Candidate: "alice",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := l.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all := l.All()
	if len(all) != 3 {
		t.Fatalf("All() returned %d events, want 3", len(all))
	}
	for i, ev := range all {
		want := []string{"v1", "v2", "v3"}[i]
		if ev.VoterID != want {
			t.Errorf("All()[%d].VoterID = %q, want %q", i, ev.VoterID, want)
		}
	}

	// All() returns a copy; mutating it must not touch ledger state.
	all[0].VoterID = "mutated"
	if l.All()[0].VoterID != "v1" {
		t.Error("mutating All() result changed ledger state")
	}
}

func TestLedger_FilterByVoter(t *testing.T) {
	l := New()
	base := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)

	events := []VoteEvent{
		{VoterID: "v1", Candidate: "alice", Timestamp: base},
		{VoterID: "v2", Candidate: "bob", Timestamp: base.Add(time.Minute)},
		{VoterID: "v1", Candidate: "bob", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		if err := l.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got := l.FilterByVoter("v1")
	if len(got) != 2 {
		t.Fatalf("FilterByVoter(v1) returned %d events, want 2", len(got))
	}
	if got[0].Candidate != "alice" || got[1].Candidate != "bob" {
		t.Errorf("FilterByVoter(v1) order wrong: %v", got)
	}
	if got := l.FilterByVoter("nobody"); len(got) != 0 {
		t.Errorf("FilterByVoter(nobody) returned %d events", len(got))
	}
}

func TestLedger_FilterByRegionWithin(t *testing.T) {
	l := New()
	base := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)

	events := []VoteEvent{
		{VoterID: "v1", Candidate: "a", Region: "urban", Timestamp: base},
		{VoterID: "v2", Candidate: "a", Region: "urban", Timestamp: base.Add(30 * time.Minute)},
		{VoterID: "v3", Candidate: "a", Region: "rural", Timestamp: base.Add(40 * time.Minute)},
		{VoterID: "v4", Candidate: "a", Region: "urban", Timestamp: base.Add(65 * time.Minute)},
	}
	for _, ev := range events {
		if err := l.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	asOf := base.Add(65 * time.Minute)
	got := l.FilterByRegionWithin("urban", 60*time.Minute, asOf)
	// base is exactly 65 minutes before asOf: outside the trailing hour.
	if len(got) != 2 {
		t.Fatalf("FilterByRegionWithin returned %d events, want 2", len(got))
	}
	if got[0].VoterID != "v2" || got[1].VoterID != "v4" {
		t.Errorf("unexpected events: %v", got)
	}
}

func TestLedger_FilterByTimeSlotWithin(t *testing.T) {
	l := New()
	morning := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 8, 23, 18, 0, 0, 0, time.UTC)

	events := []VoteEvent{
		{VoterID: "v1", Candidate: "a", Timestamp: morning},
		{VoterID: "v2", Candidate: "a", Timestamp: morning.Add(4 * time.Minute)},
		{VoterID: "v3", Candidate: "a", Timestamp: morning.Add(15 * time.Minute)},
		{VoterID: "v4", Candidate: "a", Timestamp: evening},
	}
	for _, ev := range events {
		if err := l.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got := l.FilterByTimeSlotWithin(SlotMorning, 10*time.Minute, morning.Add(15*time.Minute))
	// v1 is 15 minutes before asOf, outside the window; v4 is evening.
	if len(got) != 2 {
		t.Fatalf("FilterByTimeSlotWithin returned %d events, want 2", len(got))
	}
	if got[0].VoterID != "v2" || got[1].VoterID != "v3" {
		t.Errorf("unexpected events: %v", got)
	}
}

func TestLedger_Reset(t *testing.T) {
	l := New()
	ev := VoteEvent{VoterID: "v1", Candidate: "alice", Timestamp: time.Now()}
	if err := l.Append(ev); err != nil {
		t.Fatalf("Append: %v", err)
	}

	l.Reset()
	if l.Len() != 0 {
		t.Errorf("Len() = %d after Reset, want 0", l.Len())
	}
}
