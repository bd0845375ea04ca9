// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/support-relay/internal/domain"
)

// CreateMessage inserts a new message row.
func CreateMessage(ctx context.Context, db *gorm.DB, roomID, senderID int64, role domain.Role, content string, at time.Time) (*domain.Message, error) {
	m := &domain.Message{
		RoomID:     roomID,
		SenderID:   senderID,
		SenderRole: role,
		Content:    content,
		CreatedAt:  at,
	}
	return m, db.WithContext(ctx).Omit("Room").Create(m).Error
}

// ListMessages returns messages ordered deterministically (CreatedAt ASC, ID ASC).
func ListMessages(ctx context.Context, db *gorm.DB, roomID int64, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, roomID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages WHERE room_id = ?", roomID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice, newest first (CreatedAt DESC, ID DESC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, roomID int64, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id int64) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountUnread counts unread messages in a room whose sender role differs
// from excluding. Passing the reader's role yields what the reader has not
// seen yet.
func CountUnread(ctx context.Context, db *gorm.DB, roomID int64, excluding domain.Role) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Message{}).
		Where("room_id = ? AND sender_role <> ? AND read_at IS NULL", roomID, excluding).
		Count(&n).Error
	return n, err
}

// CountUnreadByRoom returns unread counts for many rooms in one grouped query.
// Rooms with no unread messages are absent from the map.
func CountUnreadByRoom(ctx context.Context, db *gorm.DB, roomIDs []int64, excluding domain.Role) (map[int64]int64, error) {
	out := make(map[int64]int64, len(roomIDs))
	if len(roomIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		RoomID int64
		N      int64
	}
	err := db.WithContext(ctx).Model(&domain.Message{}).
		Select("room_id, COUNT(*) AS n").
		Where("room_id IN ? AND sender_role <> ? AND read_at IS NULL", roomIDs, excluding).
		Group("room_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.RoomID] = r.N
	}
	return out, nil
}

// MarkAllRead stamps read_at on every unread message in the room written by
// the other side. It is idempotent: a second call affects zero rows.
func MarkAllRead(ctx context.Context, db *gorm.DB, roomID int64, reader domain.Role, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Message{}).
		Where("room_id = ? AND sender_role <> ? AND read_at IS NULL", roomID, reader).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}
