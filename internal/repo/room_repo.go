// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Room model.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/support-relay/internal/domain"
)

// ErrAlreadyAssigned is returned by AssignRoom when the conditional update
// finds the room already claimed.
var ErrAlreadyAssigned = errors.New("already assigned")

// GetRoom fetches a room by id with its owner and operator preloaded.
func GetRoom(ctx context.Context, db *gorm.DB, id int64) (*domain.Room, error) {
	var r domain.Room
	if err := db.WithContext(ctx).Preload("Owner").Preload("Operator").First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRoomByOwner fetches the single room owned by userID, or ErrNotFound.
func GetRoomByOwner(ctx context.Context, db *gorm.DB, userID int64) (*domain.Room, error) {
	var r domain.Room
	if err := db.WithContext(ctx).Preload("Owner").Preload("Operator").First(&r, "owner_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRoom inserts an unassigned room for userID. A concurrent insert for
// the same owner surfaces as ErrDuplicate.
func CreateRoom(ctx context.Context, db *gorm.DB, userID int64) (*domain.Room, error) {
	now := time.Now().UTC()
	r := &domain.Room{OwnerID: userID, CreatedAt: now, UpdatedAt: now}
	if err := db.WithContext(ctx).Omit("Owner", "Operator").Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// AssignRoom sets operator_id only while it is still NULL. Exactly one of
// several concurrent callers wins; the rest get ErrAlreadyAssigned.
func AssignRoom(ctx context.Context, db *gorm.DB, roomID, operatorID int64, at time.Time) error {
	res := db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ? AND operator_id IS NULL", roomID).
		Updates(map[string]any{
			"operator_id": operatorID,
			"assigned_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyAssigned
	}
	return nil
}

// UpdateLastMessage overwrites the room summary. Last write wins.
func UpdateLastMessage(ctx context.Context, db *gorm.DB, roomID int64, content string, at time.Time) error {
	res := db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", roomID).
		Updates(map[string]any{
			"last_message_content": content,
			"last_message_at":      at,
			"updated_at":           at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func listRooms(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx).
		Preload("Owner").
		Preload("Operator").
		Order("last_message_at IS NULL, last_message_at DESC, id DESC")
}

// ListUnassigned returns rooms no operator has claimed, most recently active first.
func ListUnassigned(ctx context.Context, db *gorm.DB) ([]domain.Room, error) {
	var out []domain.Room
	err := listRooms(ctx, db).Where("operator_id IS NULL").Find(&out).Error
	return out, err
}

// ListAssignedTo returns the rooms claimed by operatorID.
func ListAssignedTo(ctx context.Context, db *gorm.DB, operatorID int64) ([]domain.Room, error) {
	var out []domain.Room
	err := listRooms(ctx, db).Where("operator_id = ?", operatorID).Find(&out).Error
	return out, err
}

// ListAllWithOwners returns every room with owner and operator loaded.
func ListAllWithOwners(ctx context.Context, db *gorm.DB) ([]domain.Room, error) {
	var out []domain.Room
	err := listRooms(ctx, db).Find(&out).Error
	return out, err
}
