package auth

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/database"
	_ "github.com/HLeNam/user-registration-system-backend/migrations"
)

const testSecret = "test-secret-key-at-least-32-chars!"

// testDB creates a temporary SQLite database with every migration applied.
// The database is closed when the test completes.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Dialect:     database.DialectSQLite,
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db
}

// fakeClock is a settable clock in whole seconds.
type fakeClock struct {
	now atomic.Int64
}

func newFakeClock(start int64) *fakeClock {
	c := &fakeClock{}
	c.now.Store(start)
	return c
}

func (c *fakeClock) Now() time.Time { return time.Unix(c.now.Load(), 0) }
func (c *fakeClock) Set(sec int64)  { c.now.Store(sec) }

func testCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	var opts []CodecOption
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	codec, err := NewCodec(testSecret, "authd-test", "authd-test-clients", opts...)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return codec
}

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Record(_ context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

// fixture bundles a fully wired auth stack over a temporary database.
type fixture struct {
	db      *database.DB
	store   *SQLAccountRepository
	clock   *fakeClock
	codec   *Codec
	manager *Manager
	service *Service
	sink    *recordingSink
}

func newFixture(t *testing.T, cfg LifecycleConfig) *fixture {
	t.Helper()

	db := testDB(t)
	store := NewAccountRepository(db)
	clock := newFakeClock(time.Now().Unix())
	codec := testCodec(t, clock)
	sink := &recordingSink{}

	manager, err := NewManager(store, codec, cfg, WithEventSink(sink))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	hasher, err := NewPasswordHasher(AlgorithmBcrypt, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewPasswordHasher() error = %v", err)
	}
	service, err := NewService(store, hasher, manager, sink)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	return &fixture{
		db:      db,
		store:   store,
		clock:   clock,
		codec:   codec,
		manager: manager,
		service: service,
		sink:    sink,
	}
}

func defaultLifecycle() LifecycleConfig {
	return LifecycleConfig{AccessTTL: 900, RenewalTTL: 604800, MinRotationTTL: 60}
}

// seedAccount creates an account directly in the store.
func seedAccount(t *testing.T, store AccountStore, email string) *Account {
	t.Helper()

	acc, err := store.Create(context.Background(), email, "not-a-real-hash")
	if err != nil {
		t.Fatalf("creating test account %s: %v", email, err)
	}
	return acc
}
