// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User and
// Operator account models.
//
// Accounts are provisioned on first login, so the main entry points are
// find-or-create helpers that tolerate two logins racing on the same e-mail:
// the loser of the race hits the unique index and re-reads the winner's row.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/support-relay/internal/domain"
)

// FindOrCreateUser returns the user with the given e-mail, creating it when
// absent. E-mails are compared case-insensitively (stored lower-cased).
func FindOrCreateUser(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	email = normalizeEmail(email)
	var u domain.User
	err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	u = domain.User{Email: email, CreatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Create(&u).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		var existing domain.User
		if err := db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	return &u, nil
}

// GetUser fetches a user by id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindOrCreateOperator returns the operator with the given e-mail, creating
// it with the supplied display name when absent.
func FindOrCreateOperator(ctx context.Context, db *gorm.DB, email, name string) (*domain.Operator, error) {
	email = normalizeEmail(email)
	var op domain.Operator
	err := db.WithContext(ctx).Where("email = ?", email).First(&op).Error
	if err == nil {
		return &op, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	op = domain.Operator{Email: email, Name: name, CreatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Create(&op).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		var existing domain.Operator
		if err := db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	return &op, nil
}

// GetOperator fetches an operator by id, or ErrNotFound.
func GetOperator(ctx context.Context, db *gorm.DB, id int64) (*domain.Operator, error) {
	var op domain.Operator
	if err := db.WithContext(ctx).First(&op, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
