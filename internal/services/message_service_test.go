package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/support-relay/internal/domain"
	"github.com/tbourn/support-relay/internal/relay"
	"github.com/tbourn/support-relay/internal/repo"
)

func TestNormalizeContent(t *testing.T) {
	cases := map[string]string{
		"  hi  ":            "hi",
		"a\r\nb":            "a\nb",
		"a\rb":              "a\nb",
		"a\n\n\n\n\nb":      "a\n\nb",
		"\n\n  \n":          "",
		"keep\n\nparagraph": "keep\n\nparagraph",
	}
	for in, want := range cases {
		if got := NormalizeContent(in); got != want {
			t.Errorf("NormalizeContent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.msgs.Send(ctx, f.roomID, f.user, "   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("blank: want ErrEmptyContent, got %v", err)
	}
	if _, err := f.msgs.Send(ctx, f.roomID, f.user, strings.Repeat("é", 101)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("long: want ErrTooLong, got %v", err)
	}
	if _, err := f.msgs.Send(ctx, f.roomID, f.user, strings.Repeat("é", 100)); err != nil {
		t.Fatalf("exactly at cap should pass: %v", err)
	}
	if _, err := f.msgs.Send(ctx, 999, f.user, "hi"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("missing room: want ErrRoomNotFound, got %v", err)
	}
	stranger := domain.Identity{ID: f.user.ID + 50, Role: domain.RoleEndUser}
	if _, err := f.msgs.Send(ctx, f.roomID, stranger, "hi"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger: want ErrForbidden, got %v", err)
	}
	if got := len(f.bus.all()); got != 2 {
		t.Fatalf("only the accepted message should publish (envelope + activity), got %d", got)
	}
}

// The user says "Hello", the operator answers "Hi there": both land in
// order, the summary tracks the latest, and only the user's message
// produces an operator activity notice.
func TestSend_ConversationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hello, err := f.msgs.Send(ctx, f.roomID, f.user, "Hello")
	if err != nil {
		t.Fatalf("Send Hello: %v", err)
	}
	if _, err := f.rooms.Assign(ctx, f.roomID, f.op.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	hi, err := f.msgs.Send(ctx, f.roomID, f.op, "Hi there")
	if err != nil {
		t.Fatalf("Send Hi there: %v", err)
	}
	if !hi.CreatedAt.After(hello.CreatedAt) {
		t.Fatalf("timestamps not increasing")
	}

	envs := f.bus.on(relay.RoomChannel(f.roomID))
	if len(envs) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(envs))
	}
	first := envs[0].(relay.MessageEnvelope)
	second := envs[1].(relay.MessageEnvelope)
	if first.Content != "Hello" || first.SenderType != domain.RoleEndUser || first.ID != hello.ID {
		t.Fatalf("unexpected first envelope: %+v", first)
	}
	if second.Content != "Hi there" || second.SenderType != domain.RoleOperator {
		t.Fatalf("unexpected second envelope: %+v", second)
	}

	acts := f.bus.on(relay.ActivityChannel)
	if len(acts) != 1 {
		t.Fatalf("expected 1 activity notice, got %d", len(acts))
	}
	act := acts[0].(relay.RoomActivityNotice)
	if act.UnreadCount != 1 || act.LastMessageContent != "Hello" || act.OwnerEmail != "customer@example.com" {
		t.Fatalf("unexpected activity notice: %+v", act)
	}

	room, _ := f.rooms.Get(ctx, f.roomID)
	if room.LastMessageContent == nil || *room.LastMessageContent != "Hi there" {
		t.Fatalf("summary not updated: %v", room.LastMessageContent)
	}
	if room.LastMessageAt == nil || !room.LastMessageAt.Equal(hi.CreatedAt) {
		t.Fatalf("summary time %v, want %v", room.LastMessageAt, hi.CreatedAt)
	}

	history, _ := repo.ListMessages(ctx, f.db, f.roomID, 0)
	if len(history) != 2 || history[0].Content != "Hello" || history[1].Content != "Hi there" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestSend_ActivityCountsAccumulate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = f.msgs.Send(ctx, f.roomID, f.user, "again")
	}
	acts := f.bus.on(relay.ActivityChannel)
	for i, a := range acts {
		if got := a.(relay.RoomActivityNotice).UnreadCount; got != int64(i+1) {
			t.Fatalf("notice %d unread=%d, want %d", i, got, i+1)
		}
	}
}

func TestSend_RelayFailureStillPersists(t *testing.T) {
	f := newFixture(t)
	f.bus.err = errRelayDown
	ctx := context.Background()

	m, err := f.msgs.Send(ctx, f.roomID, f.user, "durable")
	if err != nil {
		t.Fatalf("relay failure must not fail Send: %v", err)
	}
	got, err := repo.GetMessage(ctx, f.db, m.ID)
	if err != nil || got.Content != "durable" {
		t.Fatalf("message not persisted: err=%v got=%+v", err, got)
	}
}

func TestSend_StoreFailureReturned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.db.Migrator().DropTable(&domain.Message{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, err := f.msgs.Send(ctx, f.roomID, f.user, "lost"); err == nil {
		t.Fatalf("expected store error")
	}
	if n := len(f.bus.on(relay.RoomChannel(f.roomID))); n != 0 {
		t.Fatalf("nothing should publish after a failed write, got %d", n)
	}
}

func TestSendOnce_ReplaysByKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m1, replayed, err := f.msgs.SendOnce(ctx, f.roomID, f.user, "once", "key-1")
	if err != nil || replayed {
		t.Fatalf("first: err=%v replayed=%v", err, replayed)
	}
	m2, replayed, err := f.msgs.SendOnce(ctx, f.roomID, f.user, "once", "key-1")
	if err != nil || !replayed || m2.ID != m1.ID {
		t.Fatalf("replay: err=%v replayed=%v id=%d/%d", err, replayed, m2.ID, m1.ID)
	}
	if n, _ := repo.CountMessages(ctx, f.db, f.roomID); n != 1 {
		t.Fatalf("expected 1 stored message, got %d", n)
	}

	// No key, or another sender with the same key, sends normally.
	if _, replayed, _ := f.msgs.SendOnce(ctx, f.roomID, f.user, "again", ""); replayed {
		t.Fatalf("empty key must not replay")
	}
	if _, replayed, _ := f.msgs.SendOnce(ctx, f.roomID, f.op, "op", "key-1"); replayed {
		t.Fatalf("key is scoped per sender")
	}
}

func TestListPage_DelegatesToRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.msgs.Send(ctx, f.roomID, f.user, "x")
	items, total, err := f.msgs.ListPage(ctx, f.roomID, 1, 10)
	if err != nil || total != 1 || len(items) != 1 {
		t.Fatalf("ListPage: err=%v total=%d n=%d", err, total, len(items))
	}
}

func TestHasReplayStatsAndPurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if ok, err := f.msgs.HasReplay(ctx, f.user.Key(), f.roomID, "k", time.Now()); ok || err != nil {
		t.Fatalf("fresh key: ok=%v err=%v", ok, err)
	}
	if _, _, err := f.msgs.SendOnce(ctx, f.roomID, f.user, "hi", "k"); err != nil {
		t.Fatalf("SendOnce: %v", err)
	}
	if ok, err := f.msgs.HasReplay(ctx, f.user.Key(), f.roomID, "k", time.Now()); !ok || err != nil {
		t.Fatalf("stored key: ok=%v err=%v", ok, err)
	}

	st, err := f.msgs.Stats(ctx, f.roomID)
	if err != nil || st.Count != 1 || st.Unread != 1 || st.Latest == nil {
		t.Fatalf("Stats: %+v err=%v", st, err)
	}

	// Move the clock past the TTL; the record is purged.
	f.msgs.Now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if n, err := f.msgs.Purge(ctx); err != nil || n != 1 {
		t.Fatalf("Purge: n=%d err=%v", n, err)
	}
	if ok, _ := f.msgs.HasReplay(ctx, f.user.Key(), f.roomID, "k", time.Now()); ok {
		t.Fatalf("record should be gone")
	}
}
