// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/support-relay/internal/domain"
)

// MessagesStats returns aggregate metadata for a room's history: the number
// of messages, the latest CreatedAt, and the number still unread. Read
// receipts change the response body, so the unread count is part of the
// validator.
//
// When the room has no messages, count is 0 and latest is nil.
func MessagesStats(ctx context.Context, db *gorm.DB, roomID int64) (count int64, latest *time.Time, unread int64, err error) {
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Message{}).Where("room_id = ?", roomID)
	}

	if err = base().Count(&count).Error; err != nil {
		return 0, nil, 0, err
	}
	if count == 0 {
		return 0, nil, 0, nil
	}

	// Latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = base().Select("created_at").Order("created_at DESC, id DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, 0, err
	}
	if err = base().Where("read_at IS NULL").Count(&unread).Error; err != nil {
		return 0, nil, 0, err
	}
	return count, &row.CreatedAt, unread, nil
}
