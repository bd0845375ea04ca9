package repo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCreateRoom_DuplicateOwner(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	u, _ := FindOrCreateUser(ctx, db, "owner@example.com")

	r, err := CreateRoom(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if r.ID == 0 || r.OperatorID != nil {
		t.Fatalf("unexpected room: %+v", r)
	}
	if _, err := CreateRoom(ctx, db, u.ID); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second CreateRoom: want ErrDuplicate, got %v", err)
	}

	got, err := GetRoomByOwner(ctx, db, u.ID)
	if err != nil || got.ID != r.ID {
		t.Fatalf("GetRoomByOwner: err=%v got=%+v", err, got)
	}
	if got.Owner.Email != "owner@example.com" {
		t.Fatalf("owner not preloaded: %+v", got.Owner)
	}
}

func TestCreateRoom_UnknownOwnerFails(t *testing.T) {
	db := newMigratedDB(t)
	if _, err := CreateRoom(context.Background(), db, 4242); err == nil {
		t.Fatalf("expected foreign key failure")
	}
}

func TestAssignRoom_ExactlyOneWinner(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	u, _ := FindOrCreateUser(ctx, db, "u@example.com")
	r, _ := CreateRoom(ctx, db, u.ID)
	a, _ := FindOrCreateOperator(ctx, db, "a@desk.io", "A")
	b, _ := FindOrCreateOperator(ctx, db, "b@desk.io", "B")

	var wins, losses int32
	var wg sync.WaitGroup
	for _, opID := range []int64{a.ID, b.ID, a.ID, b.ID} {
		wg.Add(1)
		go func(opID int64) {
			defer wg.Done()
			switch err := AssignRoom(ctx, db, r.ID, opID, time.Now().UTC()); {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, ErrAlreadyAssigned):
				atomic.AddInt32(&losses, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(opID)
	}
	wg.Wait()

	if wins != 1 || losses != 3 {
		t.Fatalf("wins=%d losses=%d, want 1/3", wins, losses)
	}
	got, _ := GetRoom(ctx, db, r.ID)
	if got.OperatorID == nil || got.AssignedAt == nil || got.Operator == nil {
		t.Fatalf("room not assigned: %+v", got)
	}
}

func TestUpdateLastMessage(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	u, _ := FindOrCreateUser(ctx, db, "u@example.com")
	r, _ := CreateRoom(ctx, db, u.ID)

	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := UpdateLastMessage(ctx, db, r.ID, "first", at); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := UpdateLastMessage(ctx, db, r.ID, "second", at.Add(time.Second)); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := GetRoom(ctx, db, r.ID)
	if got.LastMessageContent == nil || *got.LastMessageContent != "second" {
		t.Fatalf("want last=second, got %+v", got.LastMessageContent)
	}
	if got.LastMessageAt == nil || !got.LastMessageAt.Equal(at.Add(time.Second)) {
		t.Fatalf("unexpected last_message_at: %v", got.LastMessageAt)
	}

	if err := UpdateLastMessage(ctx, db, 9999, "x", at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing room: want ErrNotFound, got %v", err)
	}
}

func TestListRooms_Projections(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	op, _ := FindOrCreateOperator(ctx, db, "op@desk.io", "Op")

	var rooms []int64
	for _, email := range []string{"a@x.io", "b@x.io", "c@x.io"} {
		u, _ := FindOrCreateUser(ctx, db, email)
		r, err := CreateRoom(ctx, db, u.ID)
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		rooms = append(rooms, r.ID)
	}
	if err := AssignRoom(ctx, db, rooms[1], op.ID, time.Now().UTC()); err != nil {
		t.Fatalf("assign: %v", err)
	}

	un, err := ListUnassigned(ctx, db)
	if err != nil || len(un) != 2 {
		t.Fatalf("ListUnassigned: err=%v n=%d", err, len(un))
	}
	mine, err := ListAssignedTo(ctx, db, op.ID)
	if err != nil || len(mine) != 1 || mine[0].ID != rooms[1] {
		t.Fatalf("ListAssignedTo: err=%v got=%+v", err, mine)
	}
	if mine[0].Operator == nil || mine[0].Operator.Email != "op@desk.io" {
		t.Fatalf("operator not preloaded: %+v", mine[0].Operator)
	}
	all, err := ListAllWithOwners(ctx, db)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListAllWithOwners: err=%v n=%d", err, len(all))
	}
	for _, r := range all {
		if r.Owner.Email == "" {
			t.Fatalf("owner not preloaded for room %d", r.ID)
		}
	}
}
