package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/support-relay/internal/domain"
)

func TestMessagesStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, _, err := MessagesStats(context.Background(), db, 1); err == nil {
		t.Fatalf("expected error due to missing messages table")
	}
}

func TestMessagesStats_ZeroRows(t *testing.T) {
	db := newMigratedDB(t)
	_, rid := seedRoom(t, db, "u@example.com")

	count, latest, unread, err := MessagesStats(context.Background(), db, rid)
	if err != nil {
		t.Fatalf("MessagesStats: %v", err)
	}
	if count != 0 || latest != nil || unread != 0 {
		t.Fatalf("expected (0, nil, 0), got (%d, %v, %d)", count, latest, unread)
	}
}

func TestMessagesStats_FilterLatestAndUnread(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	uid, rid := seedRoom(t, db, "a@example.com")
	other, orid := seedRoom(t, db, "b@example.com")

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	t3 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _ = CreateMessage(ctx, db, rid, uid, domain.RoleEndUser, "a", t1)
	_, _ = CreateMessage(ctx, db, rid, uid, domain.RoleEndUser, "b", t2)
	_, _ = CreateMessage(ctx, db, orid, other, domain.RoleEndUser, "c", t3)

	count, latest, unread, err := MessagesStats(ctx, db, rid)
	if err != nil {
		t.Fatalf("MessagesStats: %v", err)
	}
	if count != 2 || unread != 2 {
		t.Fatalf("count=%d unread=%d, want 2/2", count, unread)
	}
	if latest == nil || !latest.Equal(t2) {
		t.Fatalf("latest=%v, want %v", latest, t2)
	}

	_, _ = MarkAllRead(ctx, db, rid, domain.RoleOperator, time.Now().UTC())
	_, _, unread, _ = MessagesStats(ctx, db, rid)
	if unread != 0 {
		t.Fatalf("unread after read=%d, want 0", unread)
	}
}
