// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/ballotwatch/scrutineer/internal/detection"
)

func testAnomaly() detection.Anomaly {
	return detection.Anomaly{
		ID:        "a-1",
		Kind:      detection.KindVelocity,
		Dimension: "morning",
		Timestamp: time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC),
		Severity:  0.9,
	}
}

func TestWebhookNotifier_Send(t *testing.T) {
	var received atomic.Int64
	var lastPayload WebhookPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-1" {
			t.Errorf("missing custom header, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&lastPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookOptions{
		URL:           srv.URL,
		Headers:       map[string]string{"Authorization": "Bearer token-1"},
		Enabled:       true,
		RatePerMinute: 600,
	})

	if err := n.Send(context.Background(), testAnomaly()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if received.Load() != 1 {
		t.Fatalf("endpoint received %d requests, want 1", received.Load())
	}
	if lastPayload.Source != "scrutineer" || lastPayload.EventType != "anomaly_admitted" {
		t.Errorf("payload envelope = %+v", lastPayload)
	}
	if lastPayload.Anomaly.ID != "a-1" {
		t.Errorf("payload anomaly ID = %q, want a-1", lastPayload.Anomaly.ID)
	}
}

func TestWebhookNotifier_DisabledSkipsDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("disabled notifier sent a request")
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookOptions{URL: srv.URL, Enabled: false})
	if n.Enabled() {
		t.Error("Enabled() = true")
	}
	if err := n.Send(context.Background(), testAnomaly()); err != nil {
		t.Errorf("Send() on disabled notifier error = %v", err)
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookOptions{URL: srv.URL, Enabled: true, RatePerMinute: 600})
	if err := n.Send(context.Background(), testAnomaly()); err == nil {
		t.Error("Send() to failing endpoint returned nil error")
	}
}

func TestWebhookNotifier_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// Burst of 1: the second immediate send must be dropped, not queued.
	n := NewWebhookNotifier(WebhookOptions{URL: srv.URL, Enabled: true, RatePerMinute: 1})
	if err := n.Send(context.Background(), testAnomaly()); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	if err := n.Send(context.Background(), testAnomaly()); !errors.Is(err, ErrRateLimited) {
		t.Errorf("second Send() error = %v, want ErrRateLimited", err)
	}
}

func TestWebhookNotifier_BreakerOpensOnRepeatedFailure(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookOptions{URL: srv.URL, Enabled: true, RatePerMinute: 6000})

	// Five consecutive failures trip the breaker; later sends fail fast
	// without reaching the endpoint.
	for i := 0; i < 5; i++ {
		if err := n.Send(context.Background(), testAnomaly()); err == nil {
			t.Fatalf("Send() %d succeeded against failing endpoint", i)
		}
	}
	before := hits.Load()
	if err := n.Send(context.Background(), testAnomaly()); err == nil {
		t.Fatal("Send() with open breaker returned nil error")
	}
	if hits.Load() != before {
		t.Errorf("open breaker still reached the endpoint (%d -> %d)", before, hits.Load())
	}
}
