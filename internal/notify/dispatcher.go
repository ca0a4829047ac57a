// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package notify

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/ballotwatch/scrutineer/internal/detection"
	"github.com/ballotwatch/scrutineer/internal/logging"
)

// Dispatcher subscribes to the anomaly topic and fans messages out to all
// enabled notifiers. Notifier failures are logged and dropped; there are
// no retries because the registry remains the durable record.
type Dispatcher struct {
	subscriber message.Subscriber
	notifiers  []Notifier
}

// NewDispatcher creates a dispatcher over the given bus and sinks.
func NewDispatcher(subscriber message.Subscriber, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{subscriber: subscriber, notifiers: notifiers}
}

// String names the service in supervisor logs.
func (d *Dispatcher) String() string {
	return "notify-dispatcher"
}

// Serve consumes anomalies until the context is canceled.
func (d *Dispatcher) Serve(ctx context.Context) error {
	messages, err := d.subscriber.Subscribe(ctx, TopicAnomalies)
	if err != nil {
		return err
	}

	for msg := range messages {
		var anomaly detection.Anomaly
		if err := json.Unmarshal(msg.Payload, &anomaly); err != nil {
			logging.Err(err).Str("message_id", msg.UUID).Msg("malformed anomaly message")
			msg.Ack()
			continue
		}

		for _, n := range d.notifiers {
			if !n.Enabled() {
				continue
			}
			if err := n.Send(ctx, anomaly); err != nil {
				logging.Err(err).
					Str("notifier", n.Name()).
					Str("anomaly_id", anomaly.ID).
					Msg("notifier delivery failed")
			}
		}
		msg.Ack()
	}

	return ctx.Err()
}
