// Package domain defines the persistence models for accounts, rooms, and
// messages. These types are mapped with GORM and form the core data layer
// of the support relay.
package domain

import (
	"time"
)

// User is an end-user account. Accounts are provisioned on first login and
// identified by e-mail.
//
// Fields:
//   - ID: auto-increment primary key; also the subject of issued credentials.
//   - Email: unique login address.
//   - CreatedAt: timestamp managed by GORM.
type User struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	Email     string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Operator is a support-desk account. Operators share a single pool and may
// claim any unassigned room.
type Operator struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	Email     string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_operators_email"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null;default:''"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Operator.
func (Operator) TableName() string { return "operators" }

// Room is the single conversation between one end-user and the support desk.
// Each user owns at most one room (enforced by a unique index on owner_id).
//
// Fields:
//   - OwnerID: the end-user that owns the room.
//   - OperatorID: the assigned operator; NULL until assigned, then never
//     changed (assignment is a conditional write).
//   - LastMessageContent / LastMessageAt: summary of the latest message,
//     overwritten on every send.
//   - Owner / Operator: eager-loadable associations for list views.
type Room struct {
	ID                 int64      `json:"id"                   gorm:"primaryKey;autoIncrement"`
	OwnerID            int64      `json:"owner_id"             gorm:"not null;uniqueIndex:ux_rooms_owner"`
	OperatorID         *int64     `json:"operator_id,omitempty" gorm:"index:idx_rooms_operator"`
	AssignedAt         *time.Time `json:"assigned_at,omitempty"`
	LastMessageContent *string    `json:"last_message_content,omitempty" gorm:"type:text"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Owner    User      `json:"-" gorm:"foreignKey:OwnerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Operator *Operator `json:"-" gorm:"foreignKey:OperatorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Room.
func (Room) TableName() string { return "rooms" }

// IsAssigned reports whether an operator has claimed the room.
func (r *Room) IsAssigned() bool { return r.OperatorID != nil }

// Message is a single chat line inside a room. Messages are never edited;
// ReadAt is the only field that changes, and only once.
type Message struct {
	ID         int64      `json:"id"          gorm:"primaryKey;autoIncrement"`
	RoomID     int64      `json:"room_id"     gorm:"not null;index:idx_room_msgs,priority:1"`
	SenderID   int64      `json:"sender_id"   gorm:"not null"`
	SenderRole Role       `json:"sender_type" gorm:"type:varchar(16);not null;check:sender_role IN ('USER','OPERATOR')"`
	Content    string     `json:"content"     gorm:"type:text;not null"`
	ReadAt     *time.Time `json:"read_at,omitempty" gorm:"index"`
	CreatedAt  time.Time  `json:"created_at"  gorm:"index:idx_room_msgs,priority:2"`

	// Room is the parent conversation. Messages are cascade-deleted with it.
	Room Room `json:"-" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// IsRead reports whether the recipient has read the message.
func (m *Message) IsRead() bool { return m.ReadAt != nil }
