package domain

import (
	"errors"
	"strconv"
	"strings"
)

// Role is the closed set of participant kinds. The string values are the
// wire and storage representation.
type Role string

const (
	// RoleEndUser is a customer talking to the support desk.
	RoleEndUser Role = "USER"
	// RoleOperator is a support-desk member.
	RoleOperator Role = "OPERATOR"
)

// ErrUnknownRole is returned by ParseRole for anything outside the enum.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole converts a wire string to a Role. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleEndUser:
		return RoleEndUser, nil
	case RoleOperator:
		return RoleOperator, nil
	default:
		return "", ErrUnknownRole
	}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool { return r == RoleEndUser || r == RoleOperator }

// Counterpart returns the other side of the conversation.
func (r Role) Counterpart() Role {
	if r == RoleOperator {
		return RoleEndUser
	}
	return RoleOperator
}

// Identity is an authenticated principal rebuilt from a credential on every
// request or connection. It is never persisted as a session.
type Identity struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// IsOperator reports whether the identity belongs to the support desk.
func (i Identity) IsOperator() bool { return i.Role == RoleOperator }

// IsEndUser reports whether the identity belongs to a customer.
func (i Identity) IsEndUser() bool { return i.Role == RoleEndUser }

// Key is a stable "<role>:<id>" string, used where a single opaque key per
// principal is needed (rate limiting, idempotency records, logs).
func (i Identity) Key() string {
	return string(i.Role) + ":" + strconv.FormatInt(i.ID, 10)
}
