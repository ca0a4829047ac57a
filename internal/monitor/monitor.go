// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

// Package monitor owns the vote processing pipeline: ledger append,
// aggregation, detection, and anomaly admission run synchronously per
// event under a single mutex, so detectors always observe a consistent
// aggregate state and no two votes interleave. Read operations take the
// same lock shared.
//
// Notification dispatch is decoupled through a bounded channel: a slow
// consumer never stalls ingestion, and overflow drops the notification
// (never the vote).
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/ballotwatch/scrutineer/internal/aggregate"
	"github.com/ballotwatch/scrutineer/internal/config"
	"github.com/ballotwatch/scrutineer/internal/detection"
	"github.com/ballotwatch/scrutineer/internal/ledger"
	"github.com/ballotwatch/scrutineer/internal/logging"
	"github.com/ballotwatch/scrutineer/internal/metrics"
	"github.com/ballotwatch/scrutineer/internal/report"
)

// ErrNotRunning is returned by ProcessVote while monitoring is stopped.
var ErrNotRunning = fmt.Errorf("monitoring is stopped")

// ConfigurationError reports a rejected live configuration change. The
// prior configuration is always retained.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %q: %s", e.Setting, e.Reason)
}

// Monitor is the single entry point for vote ingestion and the owner of
// all aggregate state.
type Monitor struct {
	mu sync.RWMutex

	ledger   *ledger.Ledger
	agg      *aggregate.Aggregator
	registry *detection.Registry
	reports  *report.Generator

	velocity  *detection.VelocityDetector
	location  *detection.LocationDetector
	share     *detection.CandidateShareDetector
	voter     *detection.VoterBehaviorDetector
	detectors []detection.Detector

	started         bool
	notifyThreshold float64
	notifications   chan detection.Anomaly
}

// history adapts the aggregator and ledger to detection.History.
type history struct {
	agg    *aggregate.Aggregator
	ledger *ledger.Ledger
}

func (h *history) TotalVotes() int { return h.agg.TotalVotes() }

func (h *history) VelocitySamples(slot ledger.TimeSlot) []float64 {
	return h.agg.VelocitySamples(slot)
}

func (h *history) Densities() map[string]float64 { return h.agg.Densities() }

func (h *history) CandidateTotals() map[string]int { return h.agg.CandidateTotals() }

func (h *history) Trend(candidate string) []aggregate.TrendSample {
	return h.agg.Trend(candidate)
}

func (h *history) VoterEvents(voterID string) []ledger.VoteEvent {
	return h.ledger.FilterByVoter(voterID)
}

// New builds a monitor with its full pipeline from configuration. The
// monitor starts stopped; call Start to accept votes.
func New(cfg *config.Config) *Monitor {
	l := ledger.New()
	agg := aggregate.New(l, aggregate.Config{
		VelocityWindow:     cfg.Aggregate.VelocityWindow,
		DensityWindow:      cfg.Aggregate.DensityWindow,
		VelocityHistoryCap: cfg.Aggregate.VelocityHistoryCap,
		TrendHistoryCap:    cfg.Aggregate.TrendHistoryCap,
		DefaultRegions:     cfg.Aggregate.DefaultRegions,
	})
	registry := detection.NewRegistry(cfg.Detection.DedupWindow)
	hist := &history{agg: agg, ledger: l}

	m := &Monitor{
		ledger:          l,
		agg:             agg,
		registry:        registry,
		reports:         report.NewGenerator(agg, registry),
		velocity:        detection.NewVelocityDetector(hist),
		location:        detection.NewLocationDetector(hist),
		share:           detection.NewCandidateShareDetector(hist),
		voter:           detection.NewVoterBehaviorDetector(hist),
		notifyThreshold: cfg.Detection.NotifySeverityThreshold,
		notifications:   make(chan detection.Anomaly, cfg.Notify.QueueCapacity),
	}
	m.detectors = []detection.Detector{m.velocity, m.location, m.share, m.voter}

	m.applyDetectionConfig(cfg.Detection)
	return m
}

// applyDetectionConfig pushes construction-time thresholds into the
// detectors, which otherwise carry their own defaults.
func (m *Monitor) applyDetectionConfig(cfg config.DetectionConfig) {
	velocityCfg := detection.DefaultVelocityConfig()
	velocityCfg.Baseline = cfg.VelocityBaseline
	velocityCfg.MinSamples = cfg.VelocityMinSamples
	m.configureFromStruct(m.velocity, velocityCfg)

	locationCfg := detection.DefaultLocationConfig()
	locationCfg.DensityBaseline = cfg.DensityBaseline
	m.configureFromStruct(m.location, locationCfg)

	shareCfg := detection.DefaultCandidateShareConfig()
	shareCfg.DeviationThreshold = cfg.ShareDeviationThreshold
	m.configureFromStruct(m.share, shareCfg)

	voterCfg := detection.DefaultVoterBehaviorConfig()
	voterCfg.TravelWindowMinutes = int(cfg.TravelWindow.Minutes())
	m.configureFromStruct(m.voter, voterCfg)
}

func (m *Monitor) configureFromStruct(d detection.Detector, cfg any) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		logging.Err(err).Str("detector", string(d.Kind())).Msg("failed to encode detector config")
		return
	}
	if err := d.Configure(raw); err != nil {
		logging.Err(err).Str("detector", string(d.Kind())).Msg("failed to apply detector config")
	}
}

// Start enables vote ingestion.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	logging.Info().Msg("monitoring started")
}

// Stop disables vote ingestion. In-flight pipelines complete first since
// they hold the same lock.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	logging.Info().Msg("monitoring stopped")
}

// Running reports whether ProcessVote currently accepts events.
func (m *Monitor) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// ProcessVote runs one event through the full pipeline: validate, append
// to the ledger, fold into aggregates, run detectors, admit anomalies.
// The pipeline completes atomically with respect to other calls. A
// detector failure never prevents the ledger and aggregate updates, which
// have already committed by then.
func (m *Monitor) ProcessVote(ctx context.Context, ev ledger.VoteEvent) error {
	start := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		metrics.RecordRejection("stopped")
		return ErrNotRunning
	}

	if err := m.ledger.Append(ev); err != nil {
		metrics.RecordRejection("validation")
		logging.Warn().Err(err).Str("voter_id", ev.VoterID).Msg("vote event rejected")
		return err
	}
	m.agg.Ingest(ev)

	for _, d := range m.detectors {
		anomalies, err := d.Check(ctx, ev)
		if err != nil {
			// Downstream of the committed ledger/aggregate update. Skip
			// this detector for the cycle and keep ingesting.
			metrics.RecordDetectorError(string(d.Kind()))
			logging.Err(err).
				Str("detector", string(d.Kind())).
				Str("voter_id", ev.VoterID).
				Msg("detector pass skipped")
			continue
		}
		for _, a := range anomalies {
			m.admit(a)
		}
	}

	metrics.RecordIngest(time.Since(start))
	return nil
}

// admit runs dedup and stores the anomaly, forwarding it to the
// notification channel when severe enough. Must hold m.mu.
func (m *Monitor) admit(a detection.Anomaly) {
	// Registry invariant: severity stays in [0,1] no matter what a
	// detector produced.
	if a.Severity < 0 {
		a.Severity = 0
	} else if a.Severity > 1 {
		a.Severity = 1
	}

	if !m.registry.ShouldAdmit(a) {
		metrics.RecordAnomaly(string(a.Kind), false)
		return
	}
	m.registry.Admit(a)
	metrics.RecordAnomaly(string(a.Kind), true)

	logging.Info().
		Str("kind", string(a.Kind)).
		Str("dimension", a.Dimension).
		Float64("severity", a.Severity).
		Msg("anomaly admitted")

	if a.Severity < m.notifyThreshold {
		return
	}
	select {
	case m.notifications <- a:
		metrics.NotificationsPublished.Inc()
	default:
		metrics.NotificationsDropped.Inc()
		logging.Warn().
			Str("kind", string(a.Kind)).
			Str("dimension", a.Dimension).
			Msg("notification queue full, anomaly dropped from notification path")
	}
}

// Notifications returns the channel of admitted anomalies at or above the
// notification severity threshold. The channel is never closed; consumers
// stop via their own context.
func (m *Monitor) Notifications() <-chan detection.Anomaly {
	return m.notifications
}

// Snapshot returns a consistent point-in-time report.
func (m *Monitor) Snapshot() report.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reports.Snapshot()
}

// Anomalies returns all admitted anomalies, newest first.
func (m *Monitor) Anomalies() []detection.Anomaly {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.List()
}

// SetThreshold updates a named numeric threshold live. Subsequent detector
// passes read the new value; nothing is recomputed retroactively.
func (m *Monitor) SetThreshold(name string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case "velocity_baseline":
		if err := m.velocity.SetBaseline(value); err != nil {
			return &ConfigurationError{Setting: name, Reason: err.Error()}
		}
	case "density_baseline":
		if err := m.location.SetBaseline(value); err != nil {
			return &ConfigurationError{Setting: name, Reason: err.Error()}
		}
	case "share_deviation":
		if err := m.share.SetDeviationThreshold(value); err != nil {
			return &ConfigurationError{Setting: name, Reason: err.Error()}
		}
	case "notify_severity":
		if value < 0 || value > 1 {
			return &ConfigurationError{Setting: name, Reason: "must be in [0,1]"}
		}
		m.notifyThreshold = value
	default:
		return &ConfigurationError{Setting: name, Reason: "unknown threshold"}
	}

	logging.Info().Str("threshold", name).Float64("value", value).Msg("threshold updated")
	return nil
}

// SetWindow updates a named time window live.
func (m *Monitor) SetWindow(name string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d <= 0 {
		return &ConfigurationError{Setting: name, Reason: "must be positive"}
	}

	switch name {
	case "dedup":
		if err := m.registry.SetDedupWindow(d); err != nil {
			return &ConfigurationError{Setting: name, Reason: err.Error()}
		}
	case "velocity":
		m.agg.SetVelocityWindow(d)
	case "density":
		m.agg.SetDensityWindow(d)
	default:
		return &ConfigurationError{Setting: name, Reason: "unknown window"}
	}

	logging.Info().Str("window", name).Dur("value", d).Msg("window updated")
	return nil
}

// ConfigureDetector applies a raw JSON configuration to the detector of
// the given kind.
func (m *Monitor) ConfigureDetector(kind detection.Kind, raw json.RawMessage) error {
	d, ok := m.detectorByKind(kind)
	if !ok {
		return &ConfigurationError{Setting: string(kind), Reason: "unknown detector"}
	}
	if err := d.Configure(raw); err != nil {
		return &ConfigurationError{Setting: string(kind), Reason: err.Error()}
	}
	return nil
}

// SetDetectorEnabled toggles the detector of the given kind.
func (m *Monitor) SetDetectorEnabled(kind detection.Kind, enabled bool) error {
	d, ok := m.detectorByKind(kind)
	if !ok {
		return &ConfigurationError{Setting: string(kind), Reason: "unknown detector"}
	}
	d.SetEnabled(enabled)
	logging.Info().Str("detector", string(kind)).Bool("enabled", enabled).Msg("detector toggled")
	return nil
}

// DetectorStates returns the enablement of every detector by kind.
func (m *Monitor) DetectorStates() map[detection.Kind]bool {
	out := make(map[detection.Kind]bool, len(m.detectors))
	for _, d := range m.detectors {
		out[d.Kind()] = d.Enabled()
	}
	return out
}

// DetectorConfigs returns the current configuration of every detector.
func (m *Monitor) DetectorConfigs() map[detection.Kind]any {
	return map[detection.Kind]any{
		detection.KindVelocity:            m.velocity.Config(),
		detection.KindLocation:            m.location.Config(),
		detection.KindCandidate:           m.share.Config(),
		detection.KindVoterMultiCandidate: m.voter.Config(),
	}
}

func (m *Monitor) detectorByKind(kind detection.Kind) (detection.Detector, bool) {
	switch kind {
	case detection.KindVelocity:
		return m.velocity, true
	case detection.KindLocation:
		return m.location, true
	case detection.KindCandidate:
		return m.share, true
	case detection.KindVoterMultiCandidate, detection.KindVoterImpossibleTravel:
		return m.voter, true
	default:
		return nil, false
	}
}

// Reset discards all election state: ledger, aggregates, and admitted
// anomalies. Configuration and enablement survive.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ledger.Reset()
	m.agg.Reset()
	m.registry.Reset()
	logging.Info().Msg("election state reset")
}
