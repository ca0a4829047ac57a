// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// https://github.com/ballotwatch/scrutineer
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package detection implements the anomaly detection rules and the anomaly
// registry.
//
// Four rules run against every accepted vote: velocity (rate spikes within
// a time slot), location (geographic over-concentration), candidate share
// (abnormal share drift), and per-voter behavior (multi-candidate voting
// and impossible travel). Each rule is a Detector: it reads aggregate state
// through the History interface, never mutates it, and emits zero or more
// Anomaly candidates. The Registry deduplicates candidates by kind and
// dimension within a trailing window and retains everything it admits.
//
// Detectors are individually configurable at runtime via Configure and can
// be toggled with SetEnabled. A detector error never blocks ingestion; the
// caller logs it and skips that rule for the cycle.
package detection
