// Package services – RoomService
//
// RoomService coordinates the single conversation each end-user has with the
// support desk: creating it on first use, letting exactly one operator claim
// it, and tracking what each side has read. Every state change that other
// instances care about is published on the relay after the write commits.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/support-relay/internal/domain"
	"github.com/tbourn/support-relay/internal/relay"
	"github.com/tbourn/support-relay/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RoomView is the list/detail projection of a room.
type RoomView struct {
	ID                 int64      `json:"id"`
	OwnerID            int64      `json:"owner_id"`
	OwnerEmail         string     `json:"owner_email"`
	OperatorID         *int64     `json:"operator_id,omitempty"`
	OperatorEmail      string     `json:"operator_email,omitempty"`
	OperatorName       string     `json:"operator_name,omitempty"`
	AssignedAt         *time.Time `json:"assigned_at,omitempty"`
	LastMessageContent *string    `json:"last_message_content,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int64      `json:"unread_count"`
	CreatedAt          time.Time  `json:"created_at"`
}

// RoomDetail is a room with its full history, returned when a participant
// opens it.
type RoomDetail struct {
	Room     RoomView         `json:"room"`
	Messages []domain.Message `json:"messages"`
}

// RoomService implements room coordination.
type RoomService struct {
	DB  *gorm.DB
	Bus Publisher

	// Now is the clock for assignment and read timestamps.
	Now func() time.Time
}

// NewRoomService constructs a RoomService.
func NewRoomService(db *gorm.DB, bus Publisher) *RoomService {
	return &RoomService{DB: db, Bus: bus, Now: time.Now}
}

func (s *RoomService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func tracer() trace.Tracer { return otel.Tracer("services/RoomService") }

// GetOrCreateForUser returns the caller's room, creating it on first use.
// Two concurrent first calls converge on one row: the loser of the insert
// race re-reads the winner's room.
func (s *RoomService) GetOrCreateForUser(ctx context.Context, userID int64) (*RoomView, error) {
	ctx, span := tracer().Start(ctx, "GetOrCreateForUser",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	if _, err := repo.GetUser(ctx, s.DB, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	room, err := repo.GetRoomByOwner(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		if _, cerr := repo.CreateRoom(ctx, s.DB, userID); cerr != nil && !errors.Is(cerr, repo.ErrDuplicate) {
			return nil, cerr
		}
		room, err = repo.GetRoomByOwner(ctx, s.DB, userID)
	}
	if err != nil {
		return nil, err
	}

	unread, err := repo.CountUnread(ctx, s.DB, room.ID, domain.RoleEndUser)
	if err != nil {
		return nil, err
	}
	v := toView(room, unread)
	return &v, nil
}

// Get loads a room or returns ErrRoomNotFound.
func (s *RoomService) Get(ctx context.Context, roomID int64) (*domain.Room, error) {
	room, err := repo.GetRoom(ctx, s.DB, roomID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	return room, err
}

// CanAccess reports whether id may read and write roomID. End-users may only
// use their own room; operators may use any room.
func (s *RoomService) CanAccess(ctx context.Context, roomID int64, id domain.Identity) (bool, error) {
	room, err := s.Get(ctx, roomID)
	if err != nil {
		return false, err
	}
	return canAccess(room, id), nil
}

func canAccess(room *domain.Room, id domain.Identity) bool {
	switch id.Role {
	case domain.RoleOperator:
		return true
	case domain.RoleEndUser:
		return room.OwnerID == id.ID
	default:
		return false
	}
}

// Assign lets operatorID claim roomID. The write only succeeds while the room
// is unassigned, so concurrent claims produce exactly one winner.
func (s *RoomService) Assign(ctx context.Context, roomID, operatorID int64) (*RoomView, error) {
	ctx, span := tracer().Start(ctx, "Assign",
		trace.WithAttributes(
			attribute.Int64("room.id", roomID),
			attribute.Int64("operator.id", operatorID),
		),
	)
	defer span.End()

	if _, err := s.Get(ctx, roomID); err != nil {
		return nil, err
	}
	op, err := repo.GetOperator(ctx, s.DB, operatorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrOperatorNotFound
		}
		return nil, err
	}

	at := s.now()
	if err := repo.AssignRoom(ctx, s.DB, roomID, operatorID, at); err != nil {
		if errors.Is(err, repo.ErrAlreadyAssigned) {
			return nil, ErrAlreadyAssigned
		}
		return nil, err
	}

	publishQuietly(ctx, s.Bus, relay.AssignmentChannel, relay.AssignmentNotice{
		RoomID:        roomID,
		OperatorID:    op.ID,
		OperatorEmail: op.Email,
		AssignedAt:    at,
	})

	room, err := s.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	unread, err := repo.CountUnread(ctx, s.DB, roomID, domain.RoleOperator)
	if err != nil {
		return nil, err
	}
	v := toView(room, unread)
	return &v, nil
}

// MarkRead stamps every unread message from the other side as read by
// reader and returns how many rows changed. Repeating the call is harmless;
// a read receipt is published only when something changed.
func (s *RoomService) MarkRead(ctx context.Context, roomID int64, reader domain.Identity) (int64, error) {
	ctx, span := tracer().Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.Int64("room.id", roomID),
			attribute.String("reader", reader.Key()),
		),
	)
	defer span.End()

	room, err := s.Get(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if !canAccess(room, reader) {
		return 0, ErrForbidden
	}

	at := s.now()
	n, err := repo.MarkAllRead(ctx, s.DB, roomID, reader.Role, at)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("marked", n))
	if n > 0 {
		publishQuietly(ctx, s.Bus, relay.ReadChannel(roomID), relay.ReadNotice{
			RoomID:     roomID,
			ReadByType: reader.Role,
			ReadAt:     at,
		})
	}
	return n, nil
}

// UnreadCountFor counts unread messages in roomID not sent by excluding.
// UnreadCountFor(room, RoleOperator) is what operators have not read yet.
func (s *RoomService) UnreadCountFor(ctx context.Context, roomID int64, excluding domain.Role) (int64, error) {
	return repo.CountUnread(ctx, s.DB, roomID, excluding)
}

// ListUnassigned returns rooms waiting for an operator.
func (s *RoomService) ListUnassigned(ctx context.Context) ([]RoomView, error) {
	ctx, span := tracer().Start(ctx, "ListUnassigned")
	defer span.End()
	rooms, err := repo.ListUnassigned(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	return s.withUnread(ctx, rooms)
}

// ListAssignedTo returns the rooms claimed by operatorID.
func (s *RoomService) ListAssignedTo(ctx context.Context, operatorID int64) ([]RoomView, error) {
	ctx, span := tracer().Start(ctx, "ListAssignedTo",
		trace.WithAttributes(attribute.Int64("operator.id", operatorID)),
	)
	defer span.End()
	rooms, err := repo.ListAssignedTo(ctx, s.DB, operatorID)
	if err != nil {
		return nil, err
	}
	return s.withUnread(ctx, rooms)
}

// ListAllWithOwners returns every room for the operator console.
func (s *RoomService) ListAllWithOwners(ctx context.Context) ([]RoomView, error) {
	ctx, span := tracer().Start(ctx, "ListAllWithOwners")
	defer span.End()
	rooms, err := repo.ListAllWithOwners(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	return s.withUnread(ctx, rooms)
}

// withUnread projects rooms with the operators' unread count, fetched in one
// grouped query.
func (s *RoomService) withUnread(ctx context.Context, rooms []domain.Room) ([]RoomView, error) {
	ids := make([]int64, len(rooms))
	for i := range rooms {
		ids[i] = rooms[i].ID
	}
	counts, err := repo.CountUnreadByRoom(ctx, s.DB, ids, domain.RoleOperator)
	if err != nil {
		return nil, err
	}
	out := make([]RoomView, 0, len(rooms))
	for i := range rooms {
		out = append(out, toView(&rooms[i], counts[rooms[i].ID]))
	}
	return out, nil
}

// Enter opens a room for id: it marks the other side's messages read and
// returns the room with its full history in chronological order.
func (s *RoomService) Enter(ctx context.Context, roomID int64, id domain.Identity) (*RoomDetail, error) {
	ctx, span := tracer().Start(ctx, "Enter",
		trace.WithAttributes(
			attribute.Int64("room.id", roomID),
			attribute.String("identity", id.Key()),
		),
	)
	defer span.End()

	if _, err := s.MarkRead(ctx, roomID, id); err != nil {
		return nil, err
	}
	room, err := s.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	msgs, err := repo.ListMessages(ctx, s.DB, roomID, 0)
	if err != nil {
		return nil, err
	}
	unread, err := repo.CountUnread(ctx, s.DB, roomID, id.Role)
	if err != nil {
		return nil, err
	}
	return &RoomDetail{Room: toView(room, unread), Messages: msgs}, nil
}

// ListMessagesPage returns one page of a room's history, newest first, and
// the total number of messages.
func (s *RoomService) ListMessagesPage(ctx context.Context, roomID int64, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := tracer().Start(ctx, "ListMessagesPage",
		trace.WithAttributes(
			attribute.Int64("room.id", roomID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if _, err := s.Get(ctx, roomID); err != nil {
		return nil, 0, err
	}
	total, err := repo.CountMessages(ctx, s.DB, roomID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, roomID, offset, pageSize)
	return items, total, err
}

func toView(r *domain.Room, unread int64) RoomView {
	v := RoomView{
		ID:                 r.ID,
		OwnerID:            r.OwnerID,
		OwnerEmail:         r.Owner.Email,
		OperatorID:         r.OperatorID,
		AssignedAt:         r.AssignedAt,
		LastMessageContent: r.LastMessageContent,
		LastMessageAt:      r.LastMessageAt,
		UnreadCount:        unread,
		CreatedAt:          r.CreatedAt,
	}
	if r.Operator != nil {
		v.OperatorEmail = r.Operator.Email
		v.OperatorName = r.Operator.Name
	}
	return v
}
