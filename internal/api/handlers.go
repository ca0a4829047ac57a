// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/ballotwatch/scrutineer/internal/config"
	"github.com/ballotwatch/scrutineer/internal/detection"
	"github.com/ballotwatch/scrutineer/internal/ledger"
	"github.com/ballotwatch/scrutineer/internal/logging"
	"github.com/ballotwatch/scrutineer/internal/monitor"
	"github.com/ballotwatch/scrutineer/internal/websocket"
)

// Handler provides HTTP handlers over the monitor and WebSocket hub.
type Handler struct {
	monitor   *monitor.Monitor
	hub       *websocket.Hub
	config    *config.Config
	startTime time.Time
}

// NewHandler creates a new Handler.
func NewHandler(m *monitor.Monitor, hub *websocket.Hub, cfg *config.Config) *Handler {
	return &Handler{
		monitor:   m,
		hub:       hub,
		config:    cfg,
		startTime: time.Now(),
	}
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"status":     "healthy",
		"uptime_s":   int(time.Since(h.startTime).Seconds()),
		"monitoring": h.monitor.Running(),
	}
	if h.hub != nil {
		data["websocket_clients"] = h.hub.GetClientCount()
	}
	respondOK(w, http.StatusOK, data)
}

// IngestVote handles POST /api/v1/votes.
//
// Status codes distinguish the rejection taxonomy: 400 for undecodable
// bodies, 422 for events missing required fields, 409 while monitoring
// is stopped.
func (h *Handler) IngestVote(w http.ResponseWriter, r *http.Request) {
	var ev ledger.VoteEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}

	if err := h.monitor.ProcessVote(r.Context(), ev); err != nil {
		var vErr *ledger.ValidationError
		switch {
		case errors.As(err, &vErr):
			respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", vErr.Error(), nil)
		case errors.Is(err, monitor.ErrNotRunning):
			respondError(w, http.StatusConflict, "NOT_RUNNING", "Monitoring is stopped", nil)
		default:
			respondError(w, http.StatusInternalServerError, "INGEST_ERROR", "Failed to process vote", err)
		}
		return
	}

	respondOK(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Report handles GET /api/v1/report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, h.monitor.Snapshot())
}

// Anomalies handles GET /api/v1/anomalies.
//
// Query parameters: min_severity filters below the given severity, kind
// filters by anomaly kind, limit caps the result count.
func (h *Handler) Anomalies(w http.ResponseWriter, r *http.Request) {
	minSeverity := getFloatParam(r, "min_severity", 0)
	limit := getIntParam(r, "limit", 0)
	kind := r.URL.Query().Get("kind")

	all := h.monitor.Anomalies()
	filtered := make([]detection.Anomaly, 0, len(all))
	for _, a := range all {
		if a.Severity < minSeverity {
			continue
		}
		if kind != "" && string(a.Kind) != kind {
			continue
		}
		filtered = append(filtered, a)
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}

	respondOK(w, http.StatusOK, map[string]interface{}{
		"anomalies": filtered,
		"total":     len(filtered),
	})
}

// detectorRule is one detector's state in rule listings.
type detectorRule struct {
	Kind    detection.Kind `json:"kind"`
	Enabled bool           `json:"enabled"`
	Config  interface{}    `json:"config"`
}

// ListRules handles GET /api/v1/detection/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	states := h.monitor.DetectorStates()
	configs := h.monitor.DetectorConfigs()

	rules := make([]detectorRule, 0, len(configs))
	for _, kind := range []detection.Kind{
		detection.KindVelocity,
		detection.KindLocation,
		detection.KindCandidate,
		detection.KindVoterMultiCandidate,
	} {
		rules = append(rules, detectorRule{
			Kind:    kind,
			Enabled: states[kind],
			Config:  configs[kind],
		})
	}

	respondOK(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// UpdateRule handles PUT /api/v1/detection/rules/{kind}.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	kind := detection.Kind(r.PathValue("kind"))

	var req struct {
		Enabled *bool           `json:"enabled"`
		Config  json.RawMessage `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}

	if len(req.Config) > 0 {
		if err := h.monitor.ConfigureDetector(kind, req.Config); err != nil {
			respondError(w, http.StatusBadRequest, "CONFIGURATION_ERROR", err.Error(), nil)
			return
		}
	}
	if req.Enabled != nil {
		if err := h.monitor.SetDetectorEnabled(kind, *req.Enabled); err != nil {
			respondError(w, http.StatusBadRequest, "CONFIGURATION_ERROR", err.Error(), nil)
			return
		}
	}

	respondOK(w, http.StatusOK, map[string]interface{}{
		"kind":    kind,
		"enabled": h.monitor.DetectorStates()[kind],
		"config":  h.monitor.DetectorConfigs()[kind],
	})
}

// SetRuleEnabled handles POST /api/v1/detection/rules/{kind}/enable.
func (h *Handler) SetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	kind := detection.Kind(r.PathValue("kind"))

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}

	if err := h.monitor.SetDetectorEnabled(kind, req.Enabled); err != nil {
		respondError(w, http.StatusBadRequest, "CONFIGURATION_ERROR", err.Error(), nil)
		return
	}

	respondOK(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

// UpdateThreshold handles PUT /api/v1/detection/thresholds/{name}.
func (h *Handler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req struct {
		Value float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}

	if err := h.monitor.SetThreshold(name, req.Value); err != nil {
		respondError(w, http.StatusBadRequest, "CONFIGURATION_ERROR", err.Error(), nil)
		return
	}

	respondOK(w, http.StatusOK, map[string]interface{}{
		"threshold": name,
		"value":     req.Value,
	})
}

// UpdateWindow handles PUT /api/v1/detection/windows/{name}. The window
// value is supplied in seconds.
func (h *Handler) UpdateWindow(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}

	if err := h.monitor.SetWindow(name, time.Duration(req.Seconds)*time.Second); err != nil {
		respondError(w, http.StatusBadRequest, "CONFIGURATION_ERROR", err.Error(), nil)
		return
	}

	respondOK(w, http.StatusOK, map[string]interface{}{
		"window":  name,
		"seconds": req.Seconds,
	})
}

// MonitoringStatus handles GET /api/v1/monitoring.
func (h *Handler) MonitoringStatus(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, map[string]bool{"running": h.monitor.Running()})
}

// StartMonitoring handles POST /api/v1/monitoring/start.
func (h *Handler) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	h.monitor.Start()
	respondOK(w, http.StatusOK, map[string]bool{"running": true})
}

// StopMonitoring handles POST /api/v1/monitoring/stop.
func (h *Handler) StopMonitoring(w http.ResponseWriter, r *http.Request) {
	h.monitor.Stop()
	respondOK(w, http.StatusOK, map[string]bool{"running": false})
}

// Reset handles POST /api/v1/admin/reset. Discards all election state;
// thresholds and detector enablement survive.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.monitor.Reset()
	respondOK(w, http.StatusOK, map[string]string{"status": "reset"})
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow-client attacks.
func (h *Handler) getUpgrader() gorillaws.Upgrader {
	return gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins. Browser
// WebSockets always carry an Origin header; an empty one means a
// non-browser client, which is allowed since there is no CORS bypass to
// protect against.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	// Fail open when no config is wired (tests, development)
	if h.config == nil {
		return true
	}

	for _, allowed := range h.config.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// WebSocket handles GET /ws: upgrades the connection and registers the
// client with the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket hub not available", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}
