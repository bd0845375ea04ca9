package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/support-relay/internal/domain"
)

// Session is one authenticated STOMP connection. The identity is resolved
// once during CONNECT and never changes afterwards.
type Session struct {
	ID       string
	Identity domain.Identity

	conn *websocket.Conn
	hub  *Hub
	opts Options
	log  zerolog.Logger

	send       chan []byte
	done       chan struct{}
	drain      chan struct{}
	writerDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	subs  map[string]string // subscription id -> topic
	drops int

	closeOnce sync.Once
	drainOnce sync.Once
}

func newSession(ctx context.Context, id string, ident domain.Identity, conn *websocket.Conn, hub *Hub, opts Options, log zerolog.Logger) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		ID:         id,
		Identity:   ident,
		conn:       conn,
		hub:        hub,
		opts:       opts,
		log:        log,
		send:       make(chan []byte, opts.SendQueue),
		done:       make(chan struct{}),
		drain:      make(chan struct{}),
		writerDone: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		subs:       make(map[string]string),
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// enqueue hands a rendered frame to the write pump without blocking. A full
// queue drops the frame; MaxDrops consecutive drops close the session.
func (s *Session) enqueue(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- b:
		s.mu.Lock()
		s.drops = 0
		s.mu.Unlock()
		return true
	default:
	}

	dropped.WithLabelValues("queue_full").Inc()
	s.mu.Lock()
	s.drops++
	n := s.drops
	s.mu.Unlock()
	if n >= s.opts.MaxDrops {
		s.log.Warn().Int("drops", n).Msg("slow consumer, closing session")
		go s.Close()
	}
	return false
}

// write queues f for the client.
func (s *Session) write(f *frame.Frame) {
	b, err := encode(f)
	if err != nil {
		s.log.Error().Err(err).Str("command", f.Command).Msg("encode frame")
		return
	}
	s.enqueue(b)
}

// Close ends the session. Safe to call more than once and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
		s.hub.remove(s)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *Session) addSub(id, topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subs[id]; exists {
		return false
	}
	s.subs[id] = topic
	return true
}

func (s *Session) removeSub(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	topic, ok := s.subs[id]
	delete(s.subs, id)
	return topic, ok
}

// readPump feeds client frames to handle until the connection fails or the
// session is closed. It runs on the upgrade goroutine.
func (s *Session) readPump(handle func(*frame.Frame) bool) {
	defer s.Close()

	s.conn.SetReadLimit(s.opts.MaxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		f, err := decode(data)
		if errors.Is(err, errHeartbeat) {
			continue
		}
		if err != nil {
			dropped.WithLabelValues("invalid").Inc()
			s.log.Warn().Err(err).Int("bytes", len(data)).Msg("malformed frame")
			s.write(errorFrame("malformed frame", err.Error()))
			s.finish()
			return
		}
		framesIn.WithLabelValues(f.Command).Inc()
		if !handle(f) {
			s.finish()
			return
		}
	}
}

func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn().Int64("limit", s.opts.MaxFrameBytes).Msg("frame exceeded size limit")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		s.log.Debug().Msg("client closed connection")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		s.log.Warn().Err(err).Msg("unexpected close")
	default:
		s.log.Debug().Err(err).Msg("read ended")
	}
}

// writePump is the only writer on the connection after the handshake.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		close(s.writerDone)
		s.Close()
	}()

	for {
		select {
		case b := <-s.send:
			if !s.writeText(b) {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.drain:
			s.flush()
			return
		case <-s.done:
			return
		}
	}
}

func (s *Session) writeText(b []byte) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.log.Debug().Err(err).Msg("write failed")
		return false
	}
	return true
}

// flush writes whatever is already queued, then a close frame.
func (s *Session) flush() {
	for {
		select {
		case b := <-s.send:
			if !s.writeText(b) {
				return
			}
		default:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// finish ends the session from the read side after letting the write pump
// deliver queued frames, so a final RECEIPT or ERROR reaches the client.
func (s *Session) finish() {
	s.drainOnce.Do(func() { close(s.drain) })
	t := time.NewTimer(s.opts.WriteWait)
	defer t.Stop()
	select {
	case <-s.writerDone:
	case <-t.C:
	}
	s.Close()
}
