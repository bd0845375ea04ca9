// Package services – AuthService
//
// AuthService provisions accounts on first login and issues credentials.
// There are no passwords: an e-mail address identifies the account, and the
// signed token is the only proof carried on later requests.
package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/support-relay/internal/domain"
	"github.com/tbourn/support-relay/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Issuer signs credentials. *auth.Resolver satisfies it.
type Issuer interface {
	Issue(id domain.Identity) (string, time.Time, error)
}

// LoginResult is returned by the login operations.
type LoginResult struct {
	Identity  domain.Identity `json:"identity"`
	Email     string          `json:"email"`
	Name      string          `json:"name,omitempty"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// AuthService implements login and "who am I".
type AuthService struct {
	DB     *gorm.DB
	Issuer Issuer

	// NameLocale drives casing of derived operator names.
	NameLocale language.Tag
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, issuer Issuer) *AuthService {
	return &AuthService{DB: db, Issuer: issuer, NameLocale: language.Und}
}

// LoginUser finds or creates the end-user for email and issues a token.
func (s *AuthService) LoginUser(ctx context.Context, email string) (*LoginResult, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "LoginUser")
	defer span.End()

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	u, err := repo.FindOrCreateUser(ctx, s.DB, email)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("user.id", u.ID))
	return s.issue(domain.Identity{ID: u.ID, Role: domain.RoleEndUser}, u.Email, "")
}

// LoginOperator finds or creates the operator for email and issues a token.
// New operators are named after the local part of their address.
func (s *AuthService) LoginOperator(ctx context.Context, email string) (*LoginResult, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "LoginOperator")
	defer span.End()

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	op, err := repo.FindOrCreateOperator(ctx, s.DB, email, s.DisplayName(email))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("operator.id", op.ID))
	return s.issue(domain.Identity{ID: op.ID, Role: domain.RoleOperator}, op.Email, op.Name)
}

func (s *AuthService) issue(id domain.Identity, email, name string) (*LoginResult, error) {
	tok, exp, err := s.Issuer.Issue(id)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Identity: id, Email: email, Name: name, Token: tok, ExpiresAt: exp}, nil
}

// CurrentUser loads the account behind an end-user identity.
func (s *AuthService) CurrentUser(ctx context.Context, id domain.Identity) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "CurrentUser",
		trace.WithAttributes(attribute.Int64("user.id", id.ID)),
	)
	defer span.End()

	if !id.IsEndUser() {
		return nil, ErrForbidden
	}
	u, err := repo.GetUser(ctx, s.DB, id.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// CurrentOperator loads the account behind an operator identity.
func (s *AuthService) CurrentOperator(ctx context.Context, id domain.Identity) (*domain.Operator, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "CurrentOperator",
		trace.WithAttributes(attribute.Int64("operator.id", id.ID)),
	)
	defer span.End()

	if !id.IsOperator() {
		return nil, ErrForbidden
	}
	op, err := repo.GetOperator(ctx, s.DB, id.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOperatorNotFound
	}
	return op, err
}

// DisplayName derives a name from the local part of email with its first
// letter upper-cased ("jane.doe@x" -> "Jane.doe").
func (s *AuthService) DisplayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(local)
	return cases.Upper(s.NameLocale).String(string(r)) + local[size:]
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
