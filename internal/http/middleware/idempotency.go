// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on message sends. A valid
// key is stashed for the handler; when the lookup reports that the caller
// already completed a send with the same key in the same room, the request
// is flagged as a replay and exempted from rate limiting. Serving the stored
// result stays with the handler.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the key validated by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the lookup found a stored result for this key.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Get(ctxKeyIdemReplay)
	v, _ := b.(bool)
	return v
}

// IdempotencyOptions configures key validation. MaxLen <= 0 means 200;
// a nil Pattern means ^[A-Za-z0-9._~\-:]+$.
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether principal already completed a send with
// key in roomID that is still valid at now. Lookup errors never block the
// request.
type IdempotencyLookup func(ctx context.Context, principal string, roomID int64, key string, now time.Time) (bool, error)

// IdempotencyValidator rejects malformed keys with 400 bad_idempotency_key.
// Requests without the header pass through untouched. The lookup runs only
// when both a principal (set by Authenticate) and a numeric :id are present.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		principal := principalFromCtx(c)
		roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if lookup != nil && principal != "" && err == nil && roomID > 0 {
			if exists, _ := lookup(c.Request.Context(), principal, roomID, key, time.Now().UTC()); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// principalFromCtx returns the "<role>:<id>" key set by Authenticate, or "".
func principalFromCtx(c *gin.Context) string {
	v, _ := c.Get(ctxKeyUserID)
	return asString(v)
}
