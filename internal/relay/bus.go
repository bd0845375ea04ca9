package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Bus is the publish side of the relay. It encodes envelopes as JSON and
// hands them to the broker.
type Bus struct {
	broker Broker
}

// NewBus wraps broker.
func NewBus(broker Broker) *Bus { return &Bus{broker: broker} }

// Publish encodes v and sends it on channel.
func (b *Bus) Publish(ctx context.Context, channel string, v any) error {
	kind, _ := Classify(channel)
	ctx, span := otel.Tracer("relay/bus").Start(ctx, "Bus.Publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("relay.channel", channel),
		attribute.String("relay.kind", string(kind)),
	)

	payload, err := json.Marshal(v)
	if err != nil {
		failed.WithLabelValues(string(kind), "encode").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode")
		return fmt.Errorf("relay: encode %s: %w", channel, err)
	}
	if err := b.broker.Publish(ctx, channel, payload); err != nil {
		failed.WithLabelValues(string(kind), "publish").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish")
		return fmt.Errorf("relay: publish %s: %w", channel, err)
	}
	published.WithLabelValues(string(kind)).Inc()
	return nil
}
