// Package stream is the STOMP-over-WebSocket edge. Each connection
// authenticates once with a CONNECT frame, then subscribes to room and
// operator topics and sends chat messages and read receipts.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/support-relay/internal/auth"
	"github.com/tbourn/support-relay/internal/config"
	"github.com/tbourn/support-relay/internal/domain"
	"github.com/tbourn/support-relay/internal/relay"
	"github.com/tbourn/support-relay/internal/services"
)

// Resolver turns a bearer token into an identity.
type Resolver interface {
	Resolve(token string) (domain.Identity, error)
}

// Rooms answers access questions and records read receipts.
type Rooms interface {
	CanAccess(ctx context.Context, roomID int64, id domain.Identity) (bool, error)
	MarkRead(ctx context.Context, roomID int64, reader domain.Identity) (int64, error)
}

// Messages runs the message pipeline.
type Messages interface {
	Send(ctx context.Context, roomID int64, sender domain.Identity, content string) (*domain.Message, error)
}

// Limiter meters SEND frames per session.
type Limiter interface {
	Allow(key string) bool
}

// Options bounds a session. Zero values take the defaults from
// config.Load.
type Options = config.StreamConfig

// SendPayload is the body of a SEND to /app/chat/{id}/send.
type SendPayload struct {
	Content string `json:"content"`
}

// Handler upgrades /ws requests and runs the STOMP session.
type Handler struct {
	hub      *Hub
	resolver Resolver
	rooms    Rooms
	msgs     Messages
	limiter  Limiter
	opts     Options
	upgrader websocket.Upgrader

	// OpTimeout bounds each service call made on behalf of a frame.
	OpTimeout time.Duration
}

// NewHandler wires a Handler. limiter may be nil. allowedOrigins empty means
// any origin may connect.
func NewHandler(hub *Hub, resolver Resolver, rooms Rooms, msgs Messages, limiter Limiter, opts Options, allowedOrigins []string) *Handler {
	return &Handler{
		hub:       hub,
		resolver:  resolver,
		rooms:     rooms,
		msgs:      msgs,
		limiter:   limiter,
		opts:      withDefaults(opts),
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: originChecker(allowedOrigins)},
		OpTimeout: 10 * time.Second,
	}
}

func withDefaults(o Options) Options {
	if o.SendQueue <= 0 {
		o.SendQueue = 256
	}
	if o.MaxDrops <= 0 {
		o.MaxDrops = 32
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 64 << 10
	}
	return o
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP upgrades the request, authenticates the CONNECT frame and then
// blocks in the read pump until the session ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	sid := uuid.NewString()
	ident, err := h.handshake(conn, sid)
	if err != nil {
		log.Info().Err(err).Str("session_id", sid).Str("remote", r.RemoteAddr).Msg("stream handshake rejected")
		_ = conn.Close()
		return
	}

	logger := log.With().
		Str("session_id", sid).
		Str("user_id", ident.Key()).
		Str("role", string(ident.Role)).
		Logger()
	s := newSession(r.Context(), sid, ident, conn, h.hub, h.opts, logger)
	h.hub.add(s)
	logger.Info().Msg("stream session opened")

	go s.writePump()
	s.readPump(func(f *frame.Frame) bool { return h.dispatch(s, f) })
	logger.Info().Msg("stream session closed")
}

var (
	errNotConnect    = errors.New("first frame must be CONNECT")
	errNoCredential  = errors.New("missing bearer credential")
	errBadCredential = errors.New("invalid credential")
)

// handshake reads the first frame, resolves its credential and answers
// CONNECTED. Any failure writes an ERROR frame and returns an error; the
// caller closes the connection.
func (h *Handler) handshake(conn *websocket.Conn, sid string) (domain.Identity, error) {
	deadline := time.Now().Add(h.opts.HandshakeTimeout)
	_ = conn.SetReadDeadline(deadline)
	conn.SetReadLimit(h.opts.MaxFrameBytes)

	var f *frame.Frame
	for f == nil {
		_, data, err := conn.ReadMessage()
		if err != nil {
			handshakes.WithLabelValues("timeout").Inc()
			return domain.Identity{}, err
		}
		f, err = decode(data)
		if errors.Is(err, errHeartbeat) {
			continue
		}
		if err != nil {
			handshakes.WithLabelValues("protocol").Inc()
			h.reject(conn, "malformed frame", err.Error())
			return domain.Identity{}, err
		}
	}

	if f.Command != frame.CONNECT && f.Command != frame.STOMP {
		handshakes.WithLabelValues("protocol").Inc()
		h.reject(conn, "protocol error", errNotConnect.Error())
		return domain.Identity{}, errNotConnect
	}

	token, ok := auth.BearerToken(header(f, "Authorization", "authorization"))
	if !ok {
		handshakes.WithLabelValues("unauthorized").Inc()
		h.reject(conn, "unauthorized", errNoCredential.Error())
		return domain.Identity{}, errNoCredential
	}
	ident, err := h.resolver.Resolve(token)
	if err != nil {
		handshakes.WithLabelValues("unauthorized").Inc()
		h.reject(conn, "unauthorized", errBadCredential.Error())
		return domain.Identity{}, errBadCredential
	}

	connected := frame.New(frame.CONNECTED,
		frame.Version, "1.2",
		frame.HeartBeat, "0,0",
		frame.Session, sid,
		"user-name", ident.Key(),
	)
	b, err := encode(connected)
	if err != nil {
		return domain.Identity{}, err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return domain.Identity{}, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	handshakes.WithLabelValues("ok").Inc()
	return ident, nil
}

// reject writes an ERROR frame and a close frame. Only used before the write
// pump starts.
func (h *Handler) reject(conn *websocket.Conn, message, detail string) {
	_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
	if b, err := encode(errorFrame(message, detail)); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}

// dispatch handles one frame after the handshake. It returns false when the
// session should end.
func (h *Handler) dispatch(s *Session, f *frame.Frame) bool {
	switch f.Command {
	case frame.SUBSCRIBE:
		h.subscribe(s, f)
	case frame.UNSUBSCRIBE:
		if id := f.Header.Get(frame.Id); !h.hub.unsubscribe(s, id) {
			s.log.Debug().Str("subscription", id).Msg("unsubscribe for unknown id")
		}
		h.receipt(s, f)
	case frame.SEND:
		h.send(s, f)
	case frame.DISCONNECT:
		h.receipt(s, f)
		return false
	case frame.CONNECT, frame.STOMP:
		s.write(errorFrame("protocol error", "already connected"))
		return false
	default:
		// ACK, NACK and transactions are accepted and ignored.
		s.log.Debug().Str("command", f.Command).Msg("frame ignored")
	}
	return true
}

func (h *Handler) receipt(s *Session, f *frame.Frame) {
	if id := f.Header.Get(frame.Receipt); id != "" {
		s.write(receiptFrame(id))
	}
}

func (h *Handler) opContext(s *Session) (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, h.OpTimeout)
}

// subscribe registers a subscription when the identity may see the topic.
// Denied subscriptions are dropped and logged; the session stays open.
func (h *Handler) subscribe(s *Session, f *frame.Frame) {
	id := f.Header.Get(frame.Id)
	topic := f.Header.Get(frame.Destination)
	ev := s.log.With().Str("topic", topic).Str("subscription", id).Logger()

	if id == "" || topic == "" {
		dropped.WithLabelValues("invalid").Inc()
		ev.Warn().Msg("subscribe without id or destination")
		return
	}
	if !h.canSubscribe(s, topic, &ev) {
		dropped.WithLabelValues("forbidden").Inc()
		return
	}
	if !h.hub.subscribe(s, id, topic) {
		ev.Debug().Msg("duplicate subscription id")
		return
	}
	ev.Debug().Msg("subscribed")
	h.receipt(s, f)
}

func (h *Handler) canSubscribe(s *Session, topic string, ev *zerolog.Logger) bool {
	if strings.HasPrefix(topic, relay.OperatorTopicPrefix) {
		if !s.Identity.IsOperator() {
			ev.Warn().Msg("operator topic denied")
			return false
		}
		return true
	}
	roomID, ok := relay.ParseRoomTopic(topic)
	if !ok {
		ev.Warn().Msg("unknown topic")
		return false
	}
	ctx, cancel := h.opContext(s)
	defer cancel()
	allowed, err := h.rooms.CanAccess(ctx, roomID, s.Identity)
	if err != nil {
		ev.Warn().Err(err).Int64("room_id", roomID).Msg("room topic check failed")
		return false
	}
	if !allowed {
		ev.Warn().Int64("room_id", roomID).Msg("room topic denied")
	}
	return allowed
}

// send routes a SEND frame to the pipeline or to read marking. Failures are
// logged and the frame dropped.
func (h *Handler) send(s *Session, f *frame.Frame) {
	dest := f.Header.Get(frame.Destination)
	ev := s.log.With().Str("destination", dest).Logger()

	if h.limiter != nil && !h.limiter.Allow(s.ID) {
		dropped.WithLabelValues("rate_limited").Inc()
		ev.Warn().Msg("send rate limited")
		return
	}

	roomID, action, ok := parseAppDestination(dest)
	if !ok {
		dropped.WithLabelValues("invalid").Inc()
		ev.Warn().Msg("unknown send destination")
		return
	}
	ev = ev.With().Int64("room_id", roomID).Logger()

	ctx, cancel := h.opContext(s)
	defer cancel()

	switch action {
	case "send":
		var p SendPayload
		if err := json.Unmarshal(f.Body, &p); err != nil {
			dropped.WithLabelValues("invalid").Inc()
			ev.Warn().Err(err).Msg("send body is not a message payload")
			return
		}
		m, err := h.msgs.Send(ctx, roomID, s.Identity, p.Content)
		if err != nil {
			dropped.WithLabelValues(dropReason(err)).Inc()
			ev.Warn().Err(err).Msg("send rejected")
			return
		}
		ev.Debug().Int64("message_id", m.ID).Msg("message sent")
	case "read":
		n, err := h.rooms.MarkRead(ctx, roomID, s.Identity)
		if err != nil {
			dropped.WithLabelValues(dropReason(err)).Inc()
			ev.Warn().Err(err).Msg("read rejected")
			return
		}
		ev.Debug().Int64("marked", n).Msg("room marked read")
	}
	h.receipt(s, f)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return "forbidden"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "invalid"
	}
}
