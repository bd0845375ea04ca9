package relay

import (
	"context"
	"path"
	"sync"
)

type memoryMessage struct {
	channel string
	payload []byte
}

type memorySub struct {
	patterns []string
	ch       chan memoryMessage
	done     chan struct{}
	stop     chan struct{}
	once     sync.Once
}

// MemoryBroker is an in-process broker for single-node deployments and
// tests. Patterns use path.Match syntax, which for dotted channel names
// behaves like Redis glob patterns.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[*memorySub]struct{}
	closed bool
	buffer int
}

// NewMemoryBroker returns a broker whose subscriptions buffer up to buffer
// messages before Publish blocks.
func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryBroker{subs: make(map[*memorySub]struct{}), buffer: buffer}
}

// Publish delivers payload to every matching subscription in order.
func (b *MemoryBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	msg := memoryMessage{channel: channel, payload: append([]byte(nil), payload...)}
	for s := range b.subs {
		if !s.matches(channel) {
			continue
		}
		select {
		case s.ch <- msg:
		case <-s.stop:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers patterns. It is active as soon as it returns.
func (b *MemoryBroker) Subscribe(ctx context.Context, patterns []string, fn HandlerFunc) (Subscription, error) {
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, err
		}
	}
	s := &memorySub{
		patterns: append([]string(nil), patterns...),
		ch:       make(chan memoryMessage, b.buffer),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer func() {
			_ = s.Close()
			b.remove(s)
			close(s.done)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case m := <-s.ch:
				fn(m.channel, m.payload)
			}
		}
	}()
	return s, nil
}

// Close stops every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*memorySub, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}

func (b *MemoryBroker) remove(s *memorySub) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

func (s *memorySub) matches(channel string) bool {
	for _, p := range s.patterns {
		if ok, _ := path.Match(p, channel); ok {
			return true
		}
	}
	return false
}

func (s *memorySub) Done() <-chan struct{} { return s.done }

func (s *memorySub) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}
