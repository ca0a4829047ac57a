// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package ledger

import (
	"fmt"
	"time"
)

// TimeSlot is one of four fixed day-period buckets derived from an
// event's hour-of-day.
type TimeSlot string

const (
	SlotMorning   TimeSlot = "morning"   // 05:00-11:59
	SlotAfternoon TimeSlot = "afternoon" // 12:00-16:59
	SlotEvening   TimeSlot = "evening"   // 17:00-21:59
	SlotNight     TimeSlot = "night"     // 22:00-04:59
)

// AllSlots returns every time slot in display order.
func AllSlots() []TimeSlot {
	return []TimeSlot{SlotMorning, SlotAfternoon, SlotEvening, SlotNight}
}

// SlotForTime derives the TimeSlot for a timestamp. Every hour 0-23 maps
// to exactly one slot.
func SlotForTime(t time.Time) TimeSlot {
	switch h := t.Hour(); {
	case h >= 5 && h <= 11:
		return SlotMorning
	case h >= 12 && h <= 16:
		return SlotAfternoon
	case h >= 17 && h <= 21:
		return SlotEvening
	default:
		return SlotNight
	}
}

// Provenance carries informational chain metadata for a vote. It plays no
// role in detection; it is retained for reporting only.
type Provenance struct {
	BlockNumber uint64 `json:"block_number,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
}

// VoteEvent is one accepted ballot. Immutable once appended to the ledger.
// The upstream event source is responsible for authorization and
// uniqueness; the ledger only requires the fields detection reasons about.
type VoteEvent struct {
	VoterID    string      `json:"voter_id" validate:"required"`
	Candidate  string      `json:"candidate" validate:"required"`
	Timestamp  time.Time   `json:"timestamp" validate:"required"`
	Region     string      `json:"region,omitempty"`
	Provenance *Provenance `json:"provenance,omitempty"`
}

// ValidationError reports a missing required field on an incoming vote.
// Events failing validation are rejected before any state change.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("vote event missing required field %q", e.Field)
}

// Validate checks the required fields of a vote event.
func (ev *VoteEvent) Validate() error {
	if ev.VoterID == "" {
		return &ValidationError{Field: "voter_id"}
	}
	if ev.Candidate == "" {
		return &ValidationError{Field: "candidate"}
	}
	if ev.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp"}
	}
	return nil
}
