package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/support-relay/internal/domain"
	"github.com/tbourn/support-relay/internal/repo"
)

// ---------- test helpers ----------

// newServiceDB opens a migrated, file-backed SQLite database. A single
// connection keeps concurrent tests free of SQLITE_BUSY.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "svc.db")
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type published struct {
	channel string
	v       any
}

// recordingBus captures publications; err makes every Publish fail.
type recordingBus struct {
	mu  sync.Mutex
	got []published
	err error
}

func (b *recordingBus) Publish(_ context.Context, channel string, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.got = append(b.got, published{channel, v})
	return nil
}

func (b *recordingBus) all() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.got...)
}

func (b *recordingBus) on(channel string) []any {
	var out []any
	for _, p := range b.all() {
		if p.channel == channel {
			out = append(out, p.v)
		}
	}
	return out
}

var errRelayDown = errors.New("relay down")

// fixture seeds a user with a room and an operator.
type fixture struct {
	db    *gorm.DB
	bus   *recordingBus
	rooms *RoomService
	msgs  *MessageService

	user   domain.Identity
	op     domain.Identity
	roomID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := newServiceDB(t)
	bus := &recordingBus{}
	rooms := NewRoomService(db, bus)
	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	rooms.Now = tick
	msgs := NewMessageService(rooms, 100)
	msgs.Now = tick

	u, err := repo.FindOrCreateUser(ctx, db, "customer@example.com")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	op, err := repo.FindOrCreateOperator(ctx, db, "agent@desk.io", "Agent")
	if err != nil {
		t.Fatalf("seed operator: %v", err)
	}
	view, err := rooms.GetOrCreateForUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return &fixture{
		db: db, bus: bus, rooms: rooms, msgs: msgs,
		user:   domain.Identity{ID: u.ID, Role: domain.RoleEndUser},
		op:     domain.Identity{ID: op.ID, Role: domain.RoleOperator},
		roomID: view.ID,
	}
}
