// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package detection

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry retains admitted anomalies and suppresses near-duplicates. An
// anomaly candidate is rejected when one of the same kind and dimension was
// admitted within the trailing dedup window, which keeps a sustained
// condition from re-triggering a notification on every event. Admitted
// anomalies are append-only; nothing is deleted except via Reset.
type Registry struct {
	mu          sync.RWMutex
	dedupWindow time.Duration
	anomalies   []Anomaly
}

// DefaultDedupWindow is the default suppression span for repeat anomalies
// of the same kind and dimension.
const DefaultDedupWindow = 30 * time.Minute

// NewRegistry creates an empty registry with the given dedup window; zero
// or negative falls back to the default.
func NewRegistry(dedupWindow time.Duration) *Registry {
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	return &Registry{dedupWindow: dedupWindow}
}

// ShouldAdmit reports whether the candidate passes dedup: no anomaly of
// the same kind and dimension admitted within the trailing window ending
// at the candidate's timestamp.
func (r *Registry) ShouldAdmit(candidate Anomaly) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	since := candidate.Timestamp.Add(-r.dedupWindow)
	for i := len(r.anomalies) - 1; i >= 0; i-- {
		prior := r.anomalies[i]
		if prior.Kind != candidate.Kind || prior.Dimension != candidate.Dimension {
			continue
		}
		if prior.Timestamp.After(since) && !prior.Timestamp.After(candidate.Timestamp) {
			return false
		}
	}
	return true
}

// Admit stores the anomaly. Assigns an ID if the detector left it empty.
func (r *Registry) Admit(anomaly Anomaly) {
	if anomaly.ID == "" {
		anomaly.ID = uuid.NewString()
	}
	r.mu.Lock()
	r.anomalies = append(r.anomalies, anomaly)
	r.mu.Unlock()
}

// List returns all admitted anomalies, newest first.
func (r *Registry) List() []Anomaly {
	r.mu.RLock()
	out := make([]Anomaly, len(r.anomalies))
	copy(out, r.anomalies)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Count returns the total number of admitted anomalies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.anomalies)
}

// CountAbove returns the number of admitted anomalies with severity
// strictly above the threshold.
func (r *Registry) CountAbove(threshold float64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, a := range r.anomalies {
		if a.Severity > threshold {
			count++
		}
	}
	return count
}

// SetDedupWindow updates the suppression window for subsequent admission
// checks. Never retroactive.
func (r *Registry) SetDedupWindow(window time.Duration) error {
	if window <= 0 {
		return fmt.Errorf("dedup window must be positive")
	}
	r.mu.Lock()
	r.dedupWindow = window
	r.mu.Unlock()
	return nil
}

// DedupWindow returns the current suppression window.
func (r *Registry) DedupWindow() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dedupWindow
}

// Reset discards all admitted anomalies. Used when a new election starts.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.anomalies = nil
	r.mu.Unlock()
}
