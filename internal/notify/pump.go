// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package notify

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/ballotwatch/scrutineer/internal/detection"
	"github.com/ballotwatch/scrutineer/internal/logging"
)

// Pump drains the monitor's notification channel onto the message bus.
// Runs as a supervised service; a publish failure is logged and the
// anomaly is dropped from the notification path only (it remains in the
// registry).
type Pump struct {
	source    <-chan detection.Anomaly
	publisher message.Publisher
}

// NewPump creates a pump from the given anomaly source to the bus.
func NewPump(source <-chan detection.Anomaly, publisher message.Publisher) *Pump {
	return &Pump{source: source, publisher: publisher}
}

// String names the service in supervisor logs.
func (p *Pump) String() string {
	return "notify-pump"
}

// Serve pumps anomalies until the context is canceled.
func (p *Pump) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-p.source:
			payload, err := json.Marshal(a)
			if err != nil {
				logging.Err(err).Str("anomaly_id", a.ID).Msg("failed to encode anomaly")
				continue
			}
			msg := message.NewMessage(watermill.NewUUID(), payload)
			if err := p.publisher.Publish(TopicAnomalies, msg); err != nil {
				logging.Err(err).Str("anomaly_id", a.ID).Msg("failed to publish anomaly")
			}
		}
	}
}
