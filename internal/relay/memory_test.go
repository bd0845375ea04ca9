package relay

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

type recv struct {
	channel string
	payload string
}

func collect(buf int) (HandlerFunc, chan recv) {
	ch := make(chan recv, buf)
	return func(c string, p []byte) { ch <- recv{c, string(p)} }, ch
}

func waitRecv(t *testing.T, ch <-chan recv) recv {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
		return recv{}
	}
}

func TestMemoryBroker_PatternFanOutAndFIFO(t *testing.T) {
	b := NewMemoryBroker(16)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fn, got := collect(64)
	if _, err := b.Subscribe(ctx, []string{"chat.room.*", "chat.operator.activity"}, fn); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := b.Publish(ctx, "chat.room.1", []byte(strconv.Itoa(i))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	_ = b.Publish(ctx, "chat.read.1", []byte("ignored"))
	_ = b.Publish(ctx, "chat.operator.activity", []byte("act"))

	for i := 0; i < 10; i++ {
		r := waitRecv(t, got)
		if r.channel != "chat.room.1" || r.payload != strconv.Itoa(i) {
			t.Fatalf("message %d out of order: %+v", i, r)
		}
	}
	if r := waitRecv(t, got); r.channel != "chat.operator.activity" {
		t.Fatalf("expected activity, got %+v", r)
	}
}

func TestMemoryBroker_CloseStopsDelivery(t *testing.T) {
	b := NewMemoryBroker(0)
	fn, _ := collect(1)
	sub, err := b.Subscribe(context.Background(), []string{"*"}, fn)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	_ = b.Close()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription did not stop")
	}
	if err := b.Publish(context.Background(), "x", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish after Close: want ErrClosed, got %v", err)
	}
	if _, err := b.Subscribe(context.Background(), []string{"*"}, fn); !errors.Is(err, ErrClosed) {
		t.Fatalf("Subscribe after Close: want ErrClosed, got %v", err)
	}
}

func TestMemoryBroker_ContextCancelUnsubscribes(t *testing.T) {
	b := NewMemoryBroker(1)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	fn, _ := collect(1)
	sub, _ := b.Subscribe(ctx, []string{"a.*"}, fn)
	cancel()
	<-sub.Done()

	// Nothing subscribed any more, so publishing never blocks.
	for i := 0; i < 10; i++ {
		if err := b.Publish(context.Background(), "a.b", []byte("x")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
}

func TestMemoryBroker_BadPattern(t *testing.T) {
	b := NewMemoryBroker(1)
	defer b.Close()
	if _, err := b.Subscribe(context.Background(), []string{"["}, func(string, []byte) {}); err == nil {
		t.Fatalf("expected pattern error")
	}
}
