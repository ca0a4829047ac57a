// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/ballotwatch/scrutineer/internal/detection"
	"github.com/ballotwatch/scrutineer/internal/metrics"
)

// ErrRateLimited is returned when a delivery is dropped by the local rate
// limiter rather than attempted.
var ErrRateLimited = errors.New("webhook rate limit exceeded")

// WebhookNotifier POSTs anomalies to a configured endpoint. Deliveries are
// rate limited locally and wrapped in a circuit breaker so a dead endpoint
// stops consuming connections quickly.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
	enabled bool
	mu      sync.RWMutex

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// WebhookOptions configures the webhook notifier.
type WebhookOptions struct {
	URL     string
	Headers map[string]string
	Enabled bool
	Timeout time.Duration

	// RatePerMinute caps deliveries; bursts beyond it are dropped, not
	// queued, so a flood of anomalies cannot back up the dispatcher.
	RatePerMinute int
}

// WebhookPayload is the JSON body sent to the webhook endpoint.
type WebhookPayload struct {
	Anomaly   detection.Anomaly `json:"anomaly"`
	EventType string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(opts WebhookOptions) *WebhookNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 60
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "webhook",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
		},
	})

	return &WebhookNotifier{
		url:     opts.URL,
		headers: headers,
		enabled: opts.Enabled,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60), opts.RatePerMinute),
		breaker: breaker,
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Enabled returns whether this notifier is enabled and configured.
func (n *WebhookNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.url != ""
}

// SetEnabled enables or disables the notifier.
func (n *WebhookNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// SetURL updates the webhook endpoint.
func (n *WebhookNotifier) SetURL(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.url = url
}

// Send delivers one anomaly to the webhook endpoint.
func (n *WebhookNotifier) Send(ctx context.Context, anomaly detection.Anomaly) error {
	n.mu.RLock()
	if !n.enabled || n.url == "" {
		n.mu.RUnlock()
		return nil
	}
	url := n.url
	headers := make(map[string]string, len(n.headers))
	for k, v := range n.headers {
		headers[k] = v
	}
	n.mu.RUnlock()

	if !n.limiter.Allow() {
		metrics.RecordNotifierSend(n.Name(), "rate_limited")
		return ErrRateLimited
	}

	body, err := json.Marshal(WebhookPayload{
		Anomaly:   anomaly,
		EventType: "anomaly_admitted",
		Timestamp: time.Now().UTC(),
		Source:    "scrutineer",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	_, err = n.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := n.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send webhook: %w", err)
		}
		resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordNotifierSend(n.Name(), "breaker_open")
		} else {
			metrics.RecordNotifierSend(n.Name(), "error")
		}
		return err
	}

	metrics.RecordNotifierSend(n.Name(), "success")
	return nil
}
