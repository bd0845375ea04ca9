package relay

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroker relays over Redis pub/sub, matching patterns with PSUBSCRIBE.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker connects to redisURL and verifies the connection.
func NewRedisBroker(ctx context.Context, redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisBroker{client: client}, nil
}

// NewRedisBrokerFromClient wraps an existing client.
func NewRedisBrokerFromClient(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Ping checks the Redis connection.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish sends payload to channel.
func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe registers patterns and waits for the server's confirmation
// before returning, so a Publish issued afterwards is never missed.
func (b *RedisBroker) Subscribe(ctx context.Context, patterns []string, fn HandlerFunc) (Subscription, error) {
	ps := b.client.PSubscribe(ctx, patterns...)
	for range patterns {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, err
		}
	}

	sub := &redisSubscription{ps: ps, done: make(chan struct{})}
	ch := ps.Channel()
	go func() {
		defer close(sub.done)
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(msg.Channel, []byte(msg.Payload))
			}
		}
	}()
	return sub, nil
}

// Close closes the Redis connection.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

func (s *redisSubscription) Done() <-chan struct{} { return s.done }

func (s *redisSubscription) Close() error {
	s.once.Do(func() { s.err = s.ps.Close() })
	return s.err
}
