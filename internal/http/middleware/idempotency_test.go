package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIdempotencyHelpers_Defaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected no key")
	}
	if IsReplay(c) || principalFromCtx(c) != "" {
		t.Fatalf("expected empty state")
	}
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key must read as absent")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("non-bool replay must read as false")
	}
	c.Set(ctxKeyUserID, "USER:1")
	if principalFromCtx(c) != "USER:1" {
		t.Fatalf("principal not read from context")
	}
}

func TestIdempotencyValidator_NoHeader_NoLookup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	called := false
	lookup := func(context.Context, string, int64, string, time.Time) (bool, error) {
		called = true
		return false, nil
	}
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.POST("/rooms/:id/messages", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rooms/1/messages", nil))
	if w.Code != http.StatusNoContent || called {
		t.Fatalf("code=%d called=%v", w.Code, called)
	}
}

func TestIdempotencyValidator_RejectsBadKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]struct {
		opts IdempotencyOptions
		key  string
	}{
		"too long":        {IdempotencyOptions{MaxLen: 5}, "abcdef"},
		"custom pattern":  {IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123"},
		"default pattern": {IdempotencyOptions{}, "has space"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := gin.New()
			r.Use(IdempotencyValidator(tc.opts, nil))
			r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			req.Header.Set(HeaderIdempotencyKey, tc.key)
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["code"] != "bad_idempotency_key" {
				t.Fatalf("unexpected body %s (%v)", w.Body.String(), err)
			}
		})
	}
}

func TestIdempotencyValidator_LookupMissAndHit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(hit bool, gotPrincipal *string, gotRoom *int64) *gin.Engine {
		r := gin.New()
		r.Use(func(c *gin.Context) { c.Set(ctxKeyUserID, "USER:9"); c.Next() })
		r.Use(IdempotencyValidator(IdempotencyOptions{}, func(_ context.Context, p string, room int64, key string, now time.Time) (bool, error) {
			if key != "k-9" || now.IsZero() {
				t.Errorf("lookup args: key=%q now=%v", key, now)
			}
			*gotPrincipal, *gotRoom = p, room
			return hit, nil
		}))
		r.POST("/rooms/:id/messages", func(c *gin.Context) {
			if IsReplay(c) != hit || IsRateBypass(c) != hit {
				t.Errorf("replay=%v bypass=%v, want %v", IsReplay(c), IsRateBypass(c), hit)
			}
			c.Status(http.StatusOK)
		})
		return r
	}

	for _, hit := range []bool{false, true} {
		var p string
		var room int64
		r := newRouter(hit, &p, &room)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/rooms/42/messages", nil)
		req.Header.Set(HeaderIdempotencyKey, "k-9")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK || p != "USER:9" || room != 42 {
			t.Fatalf("hit=%v code=%d principal=%q room=%d", hit, w.Code, p, room)
		}
	}
}

func TestIdempotencyValidator_SkipsLookupWithoutPrincipalOrRoom(t *testing.T) {
	gin.SetMode(gin.TestMode)
	called := 0
	lookup := func(context.Context, string, int64, string, time.Time) (bool, error) {
		called++
		return true, nil
	}

	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.POST("/rooms/:id/messages", func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); !ok {
			t.Errorf("key should still be stashed")
		}
		c.Status(http.StatusOK)
	})

	// no principal
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rooms/3/messages", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	r.ServeHTTP(w, req)

	// principal but non-numeric room
	r2 := gin.New()
	r2.Use(func(c *gin.Context) { c.Set(ctxKeyUserID, "USER:1"); c.Next() })
	r2.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r2.POST("/rooms/:id/messages", func(c *gin.Context) { c.Status(http.StatusOK) })
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/rooms/abc/messages", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	r2.ServeHTTP(w, req)

	if called != 0 {
		t.Fatalf("lookup should be skipped, called %d times", called)
	}
}
