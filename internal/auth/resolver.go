// Package auth turns bearer credentials into domain identities and back.
// Tokens are HS256 JWTs; resolution is a pure function of the token, the
// signing secret, and the clock, so any instance can verify any token.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/support-relay/internal/domain"
)

// ErrInvalidCredential covers every reason a token is rejected.
var ErrInvalidCredential = errors.New("invalid credential")

// MinSecretBytes is the shortest HMAC secret accepted by NewResolver.
const MinSecretBytes = 32

// Claims is the token payload.
type Claims struct {
	UID  int64  `json:"uid"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Resolver issues and verifies credentials.
type Resolver struct {
	secret []byte
	ttl    time.Duration

	// Now is the clock used for issuing and expiry checks.
	Now func() time.Time
}

// NewResolver builds a Resolver. The secret must be at least MinSecretBytes.
func NewResolver(secret string, ttl time.Duration) (*Resolver, error) {
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf("auth: secret must be at least %d bytes", MinSecretBytes)
	}
	if ttl <= 0 {
		return nil, errors.New("auth: ttl must be > 0")
	}
	return &Resolver{secret: []byte(secret), ttl: ttl, Now: time.Now}, nil
}

// TTL returns the lifetime of issued tokens.
func (r *Resolver) TTL() time.Duration { return r.ttl }

// Issue signs a token for id.
func (r *Resolver) Issue(id domain.Identity) (string, time.Time, error) {
	if !id.Role.Valid() || id.ID <= 0 {
		return "", time.Time{}, fmt.Errorf("auth: cannot issue for %+v", id)
	}
	now := r.Now().UTC()
	exp := now.Add(r.ttl)
	claims := Claims{
		UID:  id.ID,
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// Resolve verifies token and returns the identity it carries. Any failure
// (malformed, wrong algorithm, bad signature, expired, unknown role) yields
// ErrInvalidCredential wrapping the cause.
func (r *Resolver) Resolve(token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, ErrInvalidCredential
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	id := claims.UID
	if id <= 0 {
		id, err = strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || id <= 0 {
			return domain.Identity{}, fmt.Errorf("%w: bad subject", ErrInvalidCredential)
		}
	}
	return domain.Identity{ID: id, Role: role}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}
