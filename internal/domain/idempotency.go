// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed send,
// keyed by (principal, room_id, key). It lets clients retry
// POST /rooms/{id}/messages without persisting the same message twice.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Principal string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_principal_room_key,priority:1"`
	RoomID    int64     `gorm:"type:INTEGER NOT NULL;uniqueIndex:ux_principal_room_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_principal_room_key,priority:3"`
	MessageID int64     `gorm:"type:INTEGER NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
