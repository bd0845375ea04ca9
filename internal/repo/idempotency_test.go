package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/support-relay/internal/domain"
)

func TestIdempotency_CreateGetDuplicate(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "USER:1", 7, "k1", 42, 201, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" || rec.MessageID != 42 || !rec.ExpiresAt.After(rec.CreatedAt) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "USER:1", 7, "k1", time.Now().UTC())
	if err != nil || got.MessageID != 42 || got.Status != 201 {
		t.Fatalf("get: err=%v got=%+v", err, got)
	}

	if _, err := CreateIdempotency(ctx, db, "USER:1", 7, "k1", 43, 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}

	// Same key from another principal or room is independent.
	if _, err := CreateIdempotency(ctx, db, "OPERATOR:1", 7, "k1", 44, 201, time.Hour); err != nil {
		t.Fatalf("other principal: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "USER:1", 8, "k1", 45, 201, time.Hour); err != nil {
		t.Fatalf("other room: %v", err)
	}
}

func TestGetIdempotency_MissingExpiredAndBlank(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := GetIdempotency(ctx, db, "USER:1", 1, "nope", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: want ErrNotFound, got %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "USER:1", 1, "   ", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank key: want ErrNotFound, got %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "USER:1", 0, "k", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("zero room: want ErrNotFound, got %v", err)
	}

	if _, err := CreateIdempotency(ctx, db, "USER:1", 1, "old", 1, 201, time.Millisecond); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "USER:1", 1, "old", now.Add(time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired: want ErrNotFound, got %v", err)
	}
}

func TestGetIdempotency_DBError(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	_, err := GetIdempotency(context.Background(), db, "USER:1", 1, "k", time.Now())
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a raw db error, got %v", err)
	}
}

func TestPurgeExpiredIdempotency(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()

	_, _ = CreateIdempotency(ctx, db, "USER:1", 1, "a", 1, 201, time.Millisecond)
	_, _ = CreateIdempotency(ctx, db, "USER:1", 1, "b", 2, 201, time.Hour)

	n, err := PurgeExpiredIdempotency(ctx, db, time.Now().UTC().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("purge: err=%v n=%d", err, n)
	}
	var left int64
	db.Model(&domain.Idempotency{}).Count(&left)
	if left != 1 {
		t.Fatalf("expected 1 record left, got %d", left)
	}
}
