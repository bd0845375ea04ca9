// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file authenticates REST requests. Every protected request carries a
// bearer credential that is resolved into a domain.Identity; nothing is kept
// server-side between requests.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-relay/internal/auth"
	"github.com/tbourn/support-relay/internal/domain"
)

const (
	// ctxKeyIdentity holds the resolved domain.Identity.
	ctxKeyIdentity = "identity"
	// ctxKeyUserID holds Identity.Key(); rate limiting and logging key on it.
	ctxKeyUserID = "userID"
)

// IdentityResolver turns a raw credential into an identity.
type IdentityResolver interface {
	Resolve(token string) (domain.Identity, error)
}

// Authenticate rejects requests without a valid bearer credential with 401.
// On success the identity is stored in the Gin context (see IdentityFrom).
func Authenticate(res IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing bearer credential")
			return
		}
		id, err := res.Resolve(token)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid credential")
			return
		}
		c.Set(ctxKeyIdentity, id)
		c.Set(ctxKeyUserID, id.Key())
		c.Next()
	}
}

// RequireRole allows only identities with the given role. It must run after
// Authenticate.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing bearer credential")
			return
		}
		if id.Role != role {
			abortJSON(c, http.StatusForbidden, "forbidden", "role not permitted")
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok
}

// abortJSON writes the shared error envelope and stops the chain.
func abortJSON(c *gin.Context, status int, code, msg string) {
	rid, _ := c.Get(requestIDKey)
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": asString(rid),
		"code":       code,
		"message":    msg,
	})
}
