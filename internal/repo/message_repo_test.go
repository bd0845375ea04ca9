package repo

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/support-relay/internal/domain"
)

// seedRoom creates a user with a room and returns both ids.
func seedRoom(t *testing.T, db *gorm.DB, email string) (userID, roomID int64) {
	t.Helper()
	ctx := context.Background()
	u, err := FindOrCreateUser(ctx, db, email)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	r, err := CreateRoom(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return u.ID, r.ID
}

func TestCreateAndListMessages_Ordering(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	uid, rid := seedRoom(t, db, "u@example.com")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range []string{"one", "two", "three"} {
		if _, err := CreateMessage(ctx, db, rid, uid, domain.RoleEndUser, c, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	asc, err := ListMessages(ctx, db, rid, 0)
	if err != nil || len(asc) != 3 {
		t.Fatalf("ListMessages: err=%v n=%d", err, len(asc))
	}
	if asc[0].Content != "one" || asc[2].Content != "three" {
		t.Fatalf("unexpected ascending order: %q..%q", asc[0].Content, asc[2].Content)
	}

	limited, _ := ListMessages(ctx, db, rid, 2)
	if len(limited) != 2 {
		t.Fatalf("limit not applied: %d", len(limited))
	}

	page, err := ListMessagesPage(ctx, db, rid, 0, 2)
	if err != nil || len(page) != 2 {
		t.Fatalf("ListMessagesPage: err=%v n=%d", err, len(page))
	}
	if page[0].Content != "three" || page[1].Content != "two" {
		t.Fatalf("expected newest first, got %q,%q", page[0].Content, page[1].Content)
	}
	rest, _ := ListMessagesPage(ctx, db, rid, 2, 2)
	if len(rest) != 1 || rest[0].Content != "one" {
		t.Fatalf("second page: %+v", rest)
	}

	n, err := CountMessages(ctx, db, rid)
	if err != nil || n != 3 {
		t.Fatalf("CountMessages: err=%v n=%d", err, n)
	}

	got, err := GetMessage(ctx, db, asc[1].ID)
	if err != nil || got.Content != "two" || got.SenderRole != domain.RoleEndUser {
		t.Fatalf("GetMessage: err=%v got=%+v", err, got)
	}
}

func TestCountMessages_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, err := CountMessages(context.Background(), db, 1); err == nil {
		t.Fatalf("expected error due to missing messages table")
	}
}

func TestUnreadAndMarkAllRead(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	uid, rid := seedRoom(t, db, "u@example.com")
	op, _ := FindOrCreateOperator(ctx, db, "op@desk.io", "Op")

	now := time.Now().UTC()
	mustMsg := func(sender int64, role domain.Role, c string) {
		if _, err := CreateMessage(ctx, db, rid, sender, role, c, now); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}
	mustMsg(uid, domain.RoleEndUser, "hello")
	mustMsg(uid, domain.RoleEndUser, "anyone?")
	mustMsg(op.ID, domain.RoleOperator, "hi there")

	fromUser, _ := CountUnread(ctx, db, rid, domain.RoleOperator)
	fromOp, _ := CountUnread(ctx, db, rid, domain.RoleEndUser)
	if fromUser != 2 || fromOp != 1 {
		t.Fatalf("unread fromUser=%d fromOp=%d, want 2/1", fromUser, fromOp)
	}

	// Operator reads: only end-user messages are stamped.
	n, err := MarkAllRead(ctx, db, rid, domain.RoleOperator, now)
	if err != nil || n != 2 {
		t.Fatalf("MarkAllRead: err=%v n=%d", err, n)
	}
	again, _ := MarkAllRead(ctx, db, rid, domain.RoleOperator, now)
	if again != 0 {
		t.Fatalf("second MarkAllRead should affect 0 rows, got %d", again)
	}

	fromUser, _ = CountUnread(ctx, db, rid, domain.RoleOperator)
	fromOp, _ = CountUnread(ctx, db, rid, domain.RoleEndUser)
	if fromUser != 0 || fromOp != 1 {
		t.Fatalf("after read fromUser=%d fromOp=%d, want 0/1", fromUser, fromOp)
	}
}

func TestCountUnreadByRoom_Grouped(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	u1, r1 := seedRoom(t, db, "a@example.com")
	u2, r2 := seedRoom(t, db, "b@example.com")
	_, r3 := seedRoom(t, db, "c@example.com")

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, _ = CreateMessage(ctx, db, r1, u1, domain.RoleEndUser, "x", now)
	}
	_, _ = CreateMessage(ctx, db, r2, u2, domain.RoleEndUser, "y", now)

	got, err := CountUnreadByRoom(ctx, db, []int64{r1, r2, r3}, domain.RoleOperator)
	if err != nil {
		t.Fatalf("CountUnreadByRoom: %v", err)
	}
	if got[r1] != 3 || got[r2] != 1 || got[r3] != 0 {
		t.Fatalf("unexpected counts: %v", got)
	}

	empty, err := CountUnreadByRoom(ctx, db, nil, domain.RoleOperator)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty input: err=%v got=%v", err, empty)
	}
}
