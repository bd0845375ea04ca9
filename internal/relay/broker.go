package relay

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by brokers after Close.
	ErrClosed = errors.New("relay: broker closed")

	errUnknownChannel = errors.New("relay: unknown channel")
)

// HandlerFunc receives one broker message. Calls are sequential per
// subscription.
type HandlerFunc func(channel string, payload []byte)

// Subscription is an active pattern subscription.
type Subscription interface {
	// Done is closed once delivery has stopped.
	Done() <-chan struct{}
	// Close stops delivery and releases broker resources.
	Close() error
}

// Broker is the transport under the relay. Publish preserves FIFO per
// channel for a single publisher. Subscribe returns once the subscription
// is active; delivery continues until ctx is done or the subscription is
// closed.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, patterns []string, fn HandlerFunc) (Subscription, error)
	Close() error
}
