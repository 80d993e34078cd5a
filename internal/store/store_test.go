package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/events"
	"github.com/soyeahso/botkit/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db.SQL())
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "botkit.db")
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, db.Set(context.Background(), "k", []byte("v")))
	require.NoError(t, db.Close())

	db, err = Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()
	v, ok, err := db.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate())

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"kv", "activities"} {
		var name string
		err := db.sql.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

// --- Storage tests ---

func TestStorageBackends(t *testing.T) {
	backends := map[string]Storage{
		"memory": NewMemoryStorage(),
		"sqlite": testDB(t),
	}

	for name, s := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "user/u1", []byte(`{"n":1}`)))
			require.NoError(t, s.Set(ctx, "user/u1", []byte(`{"n":2}`)))
			v, ok, err := s.Get(ctx, "user/u1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.JSONEq(t, `{"n":2}`, string(v))

			require.NoError(t, s.Delete(ctx, "user/u1"))
			require.NoError(t, s.Delete(ctx, "user/u1"))
			_, ok, err = s.Get(ctx, "user/u1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemoryStorage_CopiesValues(t *testing.T) {
	m := NewMemoryStorage()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf))
	buf[0] = 'x'

	v, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(v))
	v[0] = 'y'
	v2, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(v2))
	assert.Equal(t, 1, m.Len())
}

// --- ActivityLog tests ---

func msg(conv, text string) *domain.Activity {
	a := domain.NewMessage(text)
	a.Conversation = domain.Conversation{ID: conv}
	a.From = domain.Account{ID: "u1"}
	return a
}

func TestActivityLog_RecordAndList(t *testing.T) {
	log := NewActivityLog(testDB(t))
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, DirectionIn, msg("c1", "one")))
	require.NoError(t, log.Record(ctx, DirectionOut, msg("c1", "two")))
	require.NoError(t, log.Record(ctx, DirectionIn, msg("c2", "other")))
	require.NoError(t, log.Record(ctx, DirectionIn, msg("c1", "three")))

	all, err := log.List(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Activity.Text)
	assert.Equal(t, DirectionOut, all[1].Direction)

	recent, err := log.List(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Activity.Text)
	assert.Equal(t, "three", recent[1].Activity.Text)
}

func TestActivityLog_Subscribe(t *testing.T) {
	log := NewActivityLog(testDB(t))
	bus := events.NewBus(logging.New(nil, "silent"))
	log.Subscribe(bus)
	ctx := context.Background()

	bus.Emit(ctx, "app", events.TypeActivity, events.ActivityEvent{Activity: msg("c1", "hi")})

	reply := domain.NewMessage("hello back")
	bus.Emit(ctx, "http", events.TypeActivitySent, events.ActivitySentEvent{
		Activity: reply,
		Ref:      domain.ConversationReference{Conversation: domain.Conversation{ID: "c1"}},
	})

	rows, err := log.List(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, DirectionIn, rows[0].Direction)
	assert.Equal(t, "hello back", rows[1].Activity.Text)
	assert.Equal(t, "c1", rows[1].ConversationID)
	assert.Empty(t, reply.Conversation.ID, "subscriber must not mutate the event payload")
}
