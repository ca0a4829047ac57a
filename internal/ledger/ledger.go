// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

// Package ledger holds the append-only in-memory history of accepted
// votes. The ledger is the source of truth for every derived statistic.
//
// The ledger performs no locking of its own: it is owned by the monitor
// pipeline, which serializes all access (see monitor.Monitor). Filters are
// lazy linear scans, acceptable because the dataset is bounded by one
// election's lifetime.
package ledger

import "time"

// Ledger is the append-only vote history. Insertion order is preserved and
// assumed to match time order; events are never re-sorted.
type Ledger struct {
	events []VoteEvent
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append validates and stores a vote event. It fails only when a required
// field is missing; the event is then discarded with no state change.
func (l *Ledger) Append(ev VoteEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	l.events = append(l.events, ev)
	return nil
}

// Len returns the number of accepted events.
func (l *Ledger) Len() int {
	return len(l.events)
}

// All returns every event in insertion order. The returned slice is a copy;
// callers cannot mutate ledger state through it.
func (l *Ledger) All() []VoteEvent {
	out := make([]VoteEvent, len(l.events))
	copy(out, l.events)
	return out
}

// FilterByVoter returns all events for one voter identifier in insertion
// order.
func (l *Ledger) FilterByVoter(voterID string) []VoteEvent {
	var out []VoteEvent
	for _, ev := range l.events {
		if ev.VoterID == voterID {
			out = append(out, ev)
		}
	}
	return out
}

// FilterByRegionWithin returns events for a region whose timestamps fall in
// the trailing window ending at asOf.
func (l *Ledger) FilterByRegionWithin(region string, window time.Duration, asOf time.Time) []VoteEvent {
	since := asOf.Add(-window)
	var out []VoteEvent
	for _, ev := range l.events {
		if ev.Region != region {
			continue
		}
		if ev.Timestamp.After(since) && !ev.Timestamp.After(asOf) {
			out = append(out, ev)
		}
	}
	return out
}

// FilterByTimeSlotWithin returns events in a time slot whose timestamps
// fall in the trailing window ending at asOf.
func (l *Ledger) FilterByTimeSlotWithin(slot TimeSlot, window time.Duration, asOf time.Time) []VoteEvent {
	since := asOf.Add(-window)
	var out []VoteEvent
	for _, ev := range l.events {
		if SlotForTime(ev.Timestamp) != slot {
			continue
		}
		if ev.Timestamp.After(since) && !ev.Timestamp.After(asOf) {
			out = append(out, ev)
		}
	}
	return out
}

// Reset discards all events. Used when a new election starts.
func (l *Ledger) Reset() {
	l.events = nil
}
