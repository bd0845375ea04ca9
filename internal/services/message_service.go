// Package services – MessageService
//
// This file implements MessageService, the pipeline every chat line goes
// through regardless of whether it arrived over the stream or over REST:
// validate, persist together with the room summary, then publish on the
// relay. End-user messages additionally refresh the operator console with
// the room's unread count.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// room and sender identifiers.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/support-relay/internal/domain"
	"github.com/tbourn/support-relay/internal/relay"
	"github.com/tbourn/support-relay/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxContentRunes caps a message when MaxContentRunes is unset.
const DefaultMaxContentRunes = 4000

// MessageService persists and relays chat messages.
type MessageService struct {
	DB    *gorm.DB
	Rooms *RoomService
	Bus   Publisher

	// MaxContentRunes caps message length; <= 0 uses DefaultMaxContentRunes.
	MaxContentRunes int
	// IdempotencyTTL is how long a Send with a key can be replayed.
	IdempotencyTTL time.Duration

	// Now is the clock used for message timestamps.
	Now func() time.Time
}

// NewMessageService constructs a MessageService sharing rooms' store and bus.
func NewMessageService(rooms *RoomService, maxRunes int) *MessageService {
	return &MessageService{
		DB:              rooms.DB,
		Rooms:           rooms,
		Bus:             rooms.Bus,
		MaxContentRunes: maxRunes,
		IdempotencyTTL:  24 * time.Hour,
		Now:             time.Now,
	}
}

func (s *MessageService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *MessageService) maxRunes() int {
	if s.MaxContentRunes > 0 {
		return s.MaxContentRunes
	}
	return DefaultMaxContentRunes
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// NormalizeContent converts CRLF/CR to LF, collapses runs of blank lines,
// and trims surrounding whitespace.
func NormalizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Validate normalizes content and checks it against the length rules.
func (s *MessageService) Validate(content string) (string, error) {
	content = NormalizeContent(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.maxRunes() {
		return "", ErrTooLong
	}
	return content, nil
}

// Send runs the full pipeline for one message from sender into roomID.
// Store failures are returned; relay failures after the commit are logged
// and swallowed, so a returned message is always durable.
func (s *MessageService) Send(ctx context.Context, roomID int64, sender domain.Identity, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.Int64("room.id", roomID),
			attribute.String("sender", sender.Key()),
		),
	)
	defer span.End()

	content, err := s.Validate(content)
	if err != nil {
		return nil, err
	}

	room, err := s.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !canAccess(room, sender) {
		return nil, ErrForbidden
	}

	at := s.now()
	var msg *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(ctx, tx, roomID, sender.ID, sender.Role, content, at)
		if err != nil {
			return err
		}
		if err := repo.UpdateLastMessage(ctx, tx, roomID, content, at); err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return nil, err
	}
	span.SetAttributes(attribute.Int64("message.id", msg.ID))

	publishQuietly(ctx, s.Bus, relay.RoomChannel(roomID), relay.MessageEnvelope{
		ID:         msg.ID,
		RoomID:     roomID,
		SenderID:   sender.ID,
		SenderType: sender.Role,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	})

	if sender.IsEndUser() {
		s.notifyOperators(ctx, room, msg)
	}
	return msg, nil
}

// notifyOperators publishes the room's new unread count to the console.
func (s *MessageService) notifyOperators(ctx context.Context, room *domain.Room, msg *domain.Message) {
	unread, err := s.Rooms.UnreadCountFor(ctx, room.ID, domain.RoleOperator)
	if err != nil {
		log.Warn().Err(err).Int64("room_id", room.ID).Msg("unread count for activity notice failed")
		return
	}
	publishQuietly(ctx, s.Bus, relay.ActivityChannel, relay.RoomActivityNotice{
		RoomID:             room.ID,
		OwnerID:            room.OwnerID,
		OwnerEmail:         room.Owner.Email,
		UnreadCount:        unread,
		LastMessageContent: msg.Content,
		LastMessageAt:      msg.CreatedAt,
		AssignedOperatorID: room.OperatorID,
	})
}

// SendOnce is Send guarded by an idempotency key. A repeated key from the
// same sender for the same room returns the originally stored message and
// replayed=true without sending again. An empty key behaves like Send.
func (s *MessageService) SendOnce(ctx context.Context, roomID int64, sender domain.Identity, content, key string) (msg *domain.Message, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		msg, err = s.Send(ctx, roomID, sender, content)
		return msg, false, err
	}

	if prev, ok := s.replay(ctx, roomID, sender, key); ok {
		return prev, true, nil
	}

	msg, err = s.Send(ctx, roomID, sender, content)
	if err != nil {
		return nil, false, err
	}

	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if _, err := repo.CreateIdempotency(ctx, s.DB, sender.Key(), roomID, key, msg.ID, 201, ttl); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// A concurrent request with the same key won; report its message.
			if prev, ok := s.replay(ctx, roomID, sender, key); ok {
				return prev, true, nil
			}
		}
		log.Warn().Err(err).Int64("room_id", roomID).Msg("idempotency record not stored")
	}
	return msg, false, nil
}

func (s *MessageService) replay(ctx context.Context, roomID int64, sender domain.Identity, key string) (*domain.Message, bool) {
	rec, err := repo.GetIdempotency(ctx, s.DB, sender.Key(), roomID, key, s.now())
	if err != nil {
		return nil, false
	}
	prev, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if err != nil {
		return nil, false
	}
	return prev, true
}

// ListPage returns paginated messages for a room, newest first.
func (s *MessageService) ListPage(ctx context.Context, roomID int64, page, pageSize int) ([]domain.Message, int64, error) {
	return s.Rooms.ListMessagesPage(ctx, roomID, page, pageSize)
}

// HasReplay reports whether principal has a live idempotency record for key
// in roomID. It matches middleware.IdempotencyLookup.
func (s *MessageService) HasReplay(ctx context.Context, principal string, roomID int64, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, principal, roomID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// HistoryStats summarizes a room's history for conditional GETs.
type HistoryStats struct {
	Count  int64
	Latest *time.Time
	Unread int64
}

// Stats returns the message count, newest timestamp and total unread count
// of a room.
func (s *MessageService) Stats(ctx context.Context, roomID int64) (HistoryStats, error) {
	count, latest, unread, err := repo.MessagesStats(ctx, s.DB, roomID)
	if err != nil {
		return HistoryStats{}, err
	}
	return HistoryStats{Count: count, Latest: latest, Unread: unread}, nil
}

// Purge deletes expired idempotency records.
func (s *MessageService) Purge(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, s.now())
}
