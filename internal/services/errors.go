// Package services defines the business logic for rooms, messages, and
// accounts. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Account errors.
var (
	// ErrUserNotFound indicates the end-user account does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrOperatorNotFound indicates the operator account does not exist.
	ErrOperatorNotFound = errors.New("operator not found")

	// ErrInvalidEmail is returned by login when the address is malformed.
	ErrInvalidEmail = errors.New("invalid email")
)

// Room errors.
var (
	// ErrRoomNotFound indicates that the requested room does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrAlreadyAssigned is returned when a room already has an operator,
	// including when the same operator asks again.
	ErrAlreadyAssigned = errors.New("room already assigned")

	// ErrForbidden is returned when an end-user touches a room they do not own.
	ErrForbidden = errors.New("forbidden")
)

// Message errors.
var (
	// ErrEmptyContent is returned when a message is blank after trimming.
	ErrEmptyContent = errors.New("content is empty")

	// ErrTooLong is returned when a message exceeds the configured rune cap.
	ErrTooLong = errors.New("content too long")
)
