package stream

import (
	"sync"

	"github.com/google/uuid"
)

type subRef struct {
	s  *Session
	id string
}

// Hub tracks the live sessions of this instance and fans relay events out to
// their subscriptions. It implements relay.Sink and never blocks on a slow
// session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	topics   map[string]map[subRef]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[*Session]struct{}),
		topics:   make(map[string]map[subRef]struct{}),
	}
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	sessionsGauge.Inc()
}

// remove forgets s and every subscription it holds.
func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	s.mu.Lock()
	for id, topic := range s.subs {
		h.unlinkLocked(topic, subRef{s, id})
	}
	s.mu.Unlock()
	h.mu.Unlock()
	sessionsGauge.Dec()
}

func (h *Hub) subscribe(s *Session, id, topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, live := h.sessions[s]; !live {
		return false
	}
	if !s.addSub(id, topic) {
		return false
	}
	refs := h.topics[topic]
	if refs == nil {
		refs = make(map[subRef]struct{})
		h.topics[topic] = refs
	}
	refs[subRef{s, id}] = struct{}{}
	return true
}

func (h *Hub) unsubscribe(s *Session, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	topic, ok := s.removeSub(id)
	if ok {
		h.unlinkLocked(topic, subRef{s, id})
	}
	return ok
}

func (h *Hub) unlinkLocked(topic string, ref subRef) {
	refs := h.topics[topic]
	delete(refs, ref)
	if len(refs) == 0 {
		delete(h.topics, topic)
	}
}

// Deliver queues payload as a MESSAGE frame to every subscription on topic.
func (h *Hub) Deliver(topic string, payload []byte) {
	h.mu.RLock()
	refs := make([]subRef, 0, len(h.topics[topic]))
	for ref := range h.topics[topic] {
		refs = append(refs, ref)
	}
	h.mu.RUnlock()

	for _, ref := range refs {
		b, err := encode(messageFrame(topic, ref.id, uuid.NewString(), payload))
		if err != nil {
			ref.s.log.Error().Err(err).Str("topic", topic).Msg("encode message")
			continue
		}
		if ref.s.enqueue(b) {
			delivered.Inc()
		}
	}
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Subscribers returns how many subscriptions are registered for topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// CloseAll ends every live session. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()
	for _, s := range all {
		s.Close()
	}
}
