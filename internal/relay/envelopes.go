package relay

import (
	"encoding/json"
	"time"

	"github.com/tbourn/support-relay/internal/domain"
)

// MessageEnvelope is the relay form of a persisted chat message.
type MessageEnvelope struct {
	ID         int64       `json:"id"`
	RoomID     int64       `json:"roomId"`
	SenderID   int64       `json:"senderId"`
	SenderType domain.Role `json:"senderType"`
	Content    string      `json:"content"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// RoomActivityNotice tells operators a room changed and how many end-user
// messages are still unread.
type RoomActivityNotice struct {
	RoomID             int64     `json:"roomId"`
	OwnerID            int64     `json:"ownerId"`
	OwnerEmail         string    `json:"ownerEmail"`
	UnreadCount        int64     `json:"unreadCount"`
	LastMessageContent string    `json:"lastMessageContent"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
	AssignedOperatorID *int64    `json:"assignedOperatorId,omitempty"`
}

// ReadNotice reports that one side read the other side's messages.
type ReadNotice struct {
	RoomID     int64       `json:"roomId"`
	ReadByType domain.Role `json:"readByType"`
	ReadAt     time.Time   `json:"readAt"`
}

// AssignmentNotice reports that an operator claimed a room.
type AssignmentNotice struct {
	RoomID        int64     `json:"roomId"`
	OperatorID    int64     `json:"operatorId"`
	OperatorEmail string    `json:"operatorEmail"`
	AssignedAt    time.Time `json:"assignedAt"`
}

// Unwrap undoes one level of string encoding: a payload that is itself a
// JSON string is replaced by that string's contents. Anything else is
// returned unchanged.
func Unwrap(payload []byte) []byte {
	if len(payload) == 0 || payload[0] != '"' {
		return payload
	}
	var inner string
	if err := json.Unmarshal(payload, &inner); err != nil {
		return payload
	}
	return []byte(inner)
}

// decodeFor parses payload into the envelope type carried by kind.
func decodeFor(kind Kind, payload []byte) (any, error) {
	var v any
	switch kind {
	case KindRoom:
		v = &MessageEnvelope{}
	case KindRead:
		v = &ReadNotice{}
	case KindActivity:
		v = &RoomActivityNotice{}
	case KindAssignment:
		v = &AssignmentNotice{}
	default:
		return nil, errUnknownChannel
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return nil, err
	}
	return v, nil
}
