package relay

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Sink receives routed events for local delivery.
type Sink interface {
	Deliver(topic string, payload []byte)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(topic string, payload []byte)

// Deliver calls f.
func (f SinkFunc) Deliver(topic string, payload []byte) { f(topic, payload) }

// Subscriber consumes every relay channel and routes each event to the
// local topics it belongs to.
type Subscriber struct {
	broker Broker
	sink   Sink
}

// NewSubscriber wires broker to sink.
func NewSubscriber(broker Broker, sink Sink) *Subscriber {
	return &Subscriber{broker: broker, sink: sink}
}

// Start subscribes to Patterns. Delivery runs until ctx is done.
func (s *Subscriber) Start(ctx context.Context) (Subscription, error) {
	sub, err := s.broker.Subscribe(ctx, Patterns, s.handle)
	if err != nil {
		return nil, fmt.Errorf("relay: subscribe: %w", err)
	}
	log.Info().Strs("patterns", Patterns).Msg("relay subscriber started")
	return sub, nil
}

// Run is Start followed by a wait for ctx or the subscription to end.
func (s *Subscriber) Run(ctx context.Context) error {
	sub, err := s.Start(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()
	select {
	case <-ctx.Done():
	case <-sub.Done():
	}
	log.Info().Msg("relay subscriber stopped")
	return nil
}

// Topics returns the local topics an event on channel is delivered to.
func Topics(channel string) []string {
	kind, roomID := Classify(channel)
	switch kind {
	case KindRoom:
		return []string{RoomTopic(roomID)}
	case KindRead:
		return []string{ReadTopic(roomID), OperatorReadsTopic}
	case KindActivity:
		return []string{OperatorRoomsTopic}
	case KindAssignment:
		return []string{OperatorAssignmentsTopic}
	default:
		return nil
	}
}

// handle processes one broker message in isolation: a bad payload or a
// panicking sink is logged and the next message is unaffected.
func (s *Subscriber) handle(channel string, payload []byte) {
	kind, _ := Classify(channel)
	received.WithLabelValues(string(kind)).Inc()

	defer func() {
		if r := recover(); r != nil {
			failed.WithLabelValues(string(kind), "deliver").Inc()
			log.Error().Str("channel", channel).Interface("panic", r).Msg("relay delivery panicked")
		}
	}()

	body := Unwrap(payload)
	if _, err := decodeFor(kind, body); err != nil {
		failed.WithLabelValues(string(kind), "decode").Inc()
		log.Warn().Err(err).Str("channel", channel).Int("bytes", len(payload)).Msg("relay payload dropped")
		return
	}
	for _, topic := range Topics(channel) {
		s.sink.Deliver(topic, body)
	}
}
