// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package detection

import (
	"testing"
	"time"
)

func anomalyAt(kind Kind, dimension string, at time.Time, severity float64) Anomaly {
	return Anomaly{
		Kind:      kind,
		Dimension: dimension,
		Timestamp: at,
		Severity:  severity,
	}
}

func TestRegistry_Dedup(t *testing.T) {
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	r := NewRegistry(30 * time.Minute)

	first := anomalyAt(KindVelocity, "morning", base, 0.7)
	if !r.ShouldAdmit(first) {
		t.Fatal("first anomaly rejected")
	}
	r.Admit(first)

	// Same kind+dimension inside the window: suppressed.
	repeat := anomalyAt(KindVelocity, "morning", base.Add(10*time.Minute), 0.9)
	if r.ShouldAdmit(repeat) {
		t.Error("repeat within dedup window admitted")
	}

	// Different dimension passes.
	other := anomalyAt(KindVelocity, "evening", base.Add(10*time.Minute), 0.7)
	if !r.ShouldAdmit(other) {
		t.Error("different dimension suppressed")
	}

	// Different kind on the same dimension passes.
	kindDiff := anomalyAt(KindLocation, "morning", base.Add(10*time.Minute), 0.7)
	if !r.ShouldAdmit(kindDiff) {
		t.Error("different kind suppressed")
	}

	// Past the window the same kind+dimension is admissible again.
	late := anomalyAt(KindVelocity, "morning", base.Add(31*time.Minute), 0.7)
	if !r.ShouldAdmit(late) {
		t.Error("anomaly past dedup window suppressed")
	}
}

func TestRegistry_ListAndCounts(t *testing.T) {
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	r := NewRegistry(0) // falls back to the default window

	r.Admit(anomalyAt(KindVelocity, "morning", base, 0.5))
	r.Admit(anomalyAt(KindLocation, "urban", base.Add(2*time.Hour), 0.95))
	r.Admit(anomalyAt(KindCandidate, "alice", base.Add(time.Hour), 0.85))

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List() returned %d anomalies, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].Timestamp.After(list[i-1].Timestamp) {
			t.Errorf("List() not sorted newest first at index %d", i)
		}
	}
	for _, a := range list {
		if a.ID == "" {
			t.Error("Admit() left anomaly ID empty")
		}
	}

	if got := r.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
	if got := r.CountAbove(0.8); got != 2 {
		t.Errorf("CountAbove(0.8) = %d, want 2", got)
	}
	if got := r.CountAbove(0.95); got != 0 {
		t.Errorf("CountAbove(0.95) = %d, want 0", got)
	}
}

func TestRegistry_SetDedupWindow(t *testing.T) {
	r := NewRegistry(30 * time.Minute)

	if err := r.SetDedupWindow(time.Hour); err != nil {
		t.Fatalf("SetDedupWindow() error = %v", err)
	}
	if got := r.DedupWindow(); got != time.Hour {
		t.Errorf("DedupWindow() = %v, want 1h", got)
	}

	if err := r.SetDedupWindow(-time.Minute); err == nil {
		t.Error("SetDedupWindow() accepted a negative window")
	}
	if got := r.DedupWindow(); got != time.Hour {
		t.Errorf("DedupWindow() = %v after rejected update, want 1h", got)
	}
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry(30 * time.Minute)
	a := anomalyAt(KindVelocity, "morning", time.Now(), 0.7)
	r.Admit(a)

	r.Reset()
	if got := r.Count(); got != 0 {
		t.Errorf("Count() = %d after Reset, want 0", got)
	}
	if !r.ShouldAdmit(a) {
		t.Error("dedup state survived Reset")
	}
}
