// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline, detectors, notification path, API, and WebSocket hub. Metrics
// are exposed at /metrics in Prometheus text format.
//
// All recording functions are safe for concurrent use; the Prometheus
// client handles synchronization internally. Label cardinality is kept
// low: anomaly kinds and detector names are fixed sets, endpoint labels
// are route patterns rather than raw paths, and status codes are grouped
// per class.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	VotesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "votes_ingested_total",
			Help: "Total number of vote events accepted into the ledger",
		},
	)

	VotesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votes_rejected_total",
			Help: "Total number of vote events rejected before the pipeline",
		},
		[]string{"reason"}, // "validation", "stopped"
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vote_ingest_duration_seconds",
			Help:    "Duration of one full ledger-aggregate-detect-admit pass",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	// Detection metrics
	AnomaliesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_emitted_total",
			Help: "Total anomaly candidates emitted by detectors",
		},
		[]string{"kind"},
	)

	AnomaliesAdmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_admitted_total",
			Help: "Total anomalies admitted to the registry after dedup",
		},
		[]string{"kind"},
	)

	AnomaliesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_suppressed_total",
			Help: "Total anomaly candidates suppressed by dedup",
		},
		[]string{"kind"},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_errors_total",
			Help: "Total detector passes skipped due to an error",
		},
		[]string{"detector"},
	)

	// Notification metrics
	NotificationsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Total admitted anomalies handed to the notification bus",
		},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Total anomalies dropped because the notification queue was full",
		},
	)

	NotifierSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_sends_total",
			Help: "Total notifier delivery attempts by outcome",
		},
		[]string{"notifier", "outcome"}, // outcome: "success", "error", "breaker_open", "rate_limited"
	)

	// API metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of connected WebSocket clients",
		},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total WebSocket messages broadcast to clients",
		},
		[]string{"message_type"},
	)

	// Circuit breaker metrics
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=open, 2=half-open",
		},
		[]string{"name"},
	)
)

// RecordIngest records one accepted vote and its pipeline duration.
func RecordIngest(duration time.Duration) {
	VotesIngested.Inc()
	IngestDuration.Observe(duration.Seconds())
}

// RecordRejection records a vote rejected before entering the pipeline.
func RecordRejection(reason string) {
	VotesRejected.WithLabelValues(reason).Inc()
}

// RecordAnomaly records a detector emission and its admission outcome.
func RecordAnomaly(kind string, admitted bool) {
	AnomaliesEmitted.WithLabelValues(kind).Inc()
	if admitted {
		AnomaliesAdmitted.WithLabelValues(kind).Inc()
	} else {
		AnomaliesSuppressed.WithLabelValues(kind).Inc()
	}
}

// RecordDetectorError records a skipped detector pass.
func RecordDetectorError(detector string) {
	DetectorErrors.WithLabelValues(detector).Inc()
}

// RecordNotifierSend records a notifier delivery attempt.
func RecordNotifierSend(notifier, outcome string) {
	NotifierSends.WithLabelValues(notifier, outcome).Inc()
}

// RecordHTTPRequest records one served HTTP request. Status codes are
// grouped per class to cap cardinality.
func RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	class := strconv.Itoa(status/100) + "xx"
	HTTPRequests.WithLabelValues(method, endpoint, class).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordWebSocketMessage records a broadcast message by type.
func RecordWebSocketMessage(messageType string) {
	WebSocketMessagesSent.WithLabelValues(messageType).Inc()
}

// SetBreakerState updates the state gauge for a named circuit breaker.
func SetBreakerState(name string, state int) {
	BreakerState.WithLabelValues(name).Set(float64(state))
}
