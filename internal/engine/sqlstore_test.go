package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/safari/pkg/engine"
	"github.com/celerix-dev/safari/pkg/schema"
)

func openTestSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQL(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "safari.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore(t *testing.T) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := openTestSQLite(t)

		item := schema.ActionItem{
			Creator:         &schema.Actor{ID: "u1", Email: "a@b.com"},
			CreatorNote:     "fix light",
			Building:        3,
			TimeRequiredSec: 600,
		}
		id, err := s.Create(ctx, &item)
		require.NoError(t, err)
		assert.Equal(t, id, item.ID)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "fix light", got.CreatorNote)
		assert.Equal(t, 3, got.Building)
		assert.Equal(t, 600, got.TimeRequiredSec)
		assert.False(t, got.Completed)
		require.NotNil(t, got.Creator)
		assert.Equal(t, "a@b.com", got.Creator.Email)
		assert.Nil(t, got.Completer)
		assert.Nil(t, got.TimeCompleted)
		assert.True(t, item.TimeCreated.Equal(got.TimeCreated))
	})

	t.Run("anonymous creator stays absent", func(t *testing.T) {
		s := openTestSQLite(t)

		id, err := s.Create(ctx, &schema.ActionItem{Building: 1})
		require.NoError(t, err)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got.Creator)
	})

	t.Run("get not found", func(t *testing.T) {
		s := openTestSQLite(t)

		_, err := s.Get(ctx, "nonexistent")
		assert.ErrorIs(t, err, engine.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		s := openTestSQLite(t)

		id, err := s.Create(ctx, &schema.ActionItem{Building: 4})
		require.NoError(t, err)
		got, err := s.Get(ctx, id)
		require.NoError(t, err)

		done := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		got.Completed = true
		got.TimeCompleted = &done
		got.CompleterNote = "done"
		got.Completer = &schema.Actor{ID: "u2", Email: "c@d.com"}
		require.NoError(t, s.Update(ctx, got))

		after, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, after.Completed)
		assert.Equal(t, "done", after.CompleterNote)
		require.NotNil(t, after.TimeCompleted)
		assert.True(t, done.Equal(*after.TimeCompleted))
		assert.Equal(t, "u2", after.Completer.ID)
	})

	t.Run("update missing", func(t *testing.T) {
		s := openTestSQLite(t)

		err := s.Update(ctx, schema.ActionItem{ID: "nope"})
		assert.ErrorIs(t, err, engine.ErrNotFound)
	})

	t.Run("list recent ordered and capped", func(t *testing.T) {
		s := openTestSQLite(t)
		s.now = steppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

		for i := 0; i < 4; i++ {
			_, err := s.Create(ctx, &schema.ActionItem{Building: i})
			require.NoError(t, err)
		}

		items, err := s.ListRecent(ctx, 3)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, 3, items[0].Building)
		assert.Equal(t, 2, items[1].Building)
		assert.Equal(t, 1, items[2].Building)

		all, err := s.ListRecent(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("list empty", func(t *testing.T) {
		s := openTestSQLite(t)

		items, err := s.ListRecent(ctx, 1000)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("universes are isolated", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "shared.db")
		a, err := OpenSQL(ctx, DriverSQLite, path, "a")
		require.NoError(t, err)
		defer func() { _ = a.Close() }()
		b, err := OpenSQL(ctx, DriverSQLite, path, "b")
		require.NoError(t, err)
		defer func() { _ = b.Close() }()

		id, err := a.Create(ctx, &schema.ActionItem{Building: 1})
		require.NoError(t, err)

		_, err = b.Get(ctx, id)
		assert.ErrorIs(t, err, engine.ErrNotFound)
	})

	t.Run("put upserts", func(t *testing.T) {
		s := openTestSQLite(t)
		created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, s.Put(ctx, schema.ActionItem{ID: "x", TimeCreated: created, Building: 1}))
		require.NoError(t, s.Put(ctx, schema.ActionItem{ID: "x", TimeCreated: created, Building: 2}))

		got, err := s.Get(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Building)
		assert.True(t, created.Equal(got.TimeCreated))
	})
}

func TestOpenSQL_UnknownDriver(t *testing.T) {
	_, err := OpenSQL(context.Background(), "mysql", "x", "")
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &SQLStore{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	src := NewMemStore("", Snapshot{}, nil)
	src.now = steppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := src.Create(ctx, &schema.ActionItem{Building: i})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	dst := openTestSQLite(t)
	n, err := Migrate(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	srcItems, err := src.ListRecent(ctx, 0)
	require.NoError(t, err)
	dstItems, err := dst.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dstItems, 3)
	for i := range srcItems {
		assert.Equal(t, srcItems[i].ID, dstItems[i].ID)
		assert.True(t, srcItems[i].TimeCreated.Equal(dstItems[i].TimeCreated))
	}

	for _, id := range ids {
		_, err := dst.Get(ctx, id)
		assert.NoError(t, err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory with data dir", func(t *testing.T) {
		dir := t.TempDir()
		b, err := Open(ctx, Options{Driver: DriverMemory, DataDir: dir, Universe: "u"})
		require.NoError(t, err)
		id, err := b.Create(ctx, &schema.ActionItem{Building: 9})
		require.NoError(t, err)
		require.NoError(t, b.Close())

		reopened, err := Open(ctx, Options{Driver: DriverMemory, DataDir: dir, Universe: "u"})
		require.NoError(t, err)
		got, err := reopened.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 9, got.Building)
	})

	t.Run("sqlite defaults dsn into data dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested")
		b, err := Open(ctx, Options{Driver: DriverSQLite, DataDir: dir})
		require.NoError(t, err)
		defer func() { _ = b.Close() }()
		assert.FileExists(t, filepath.Join(dir, "safari.db"))
	})

	t.Run("postgres requires dsn", func(t *testing.T) {
		_, err := Open(ctx, Options{Driver: DriverPostgres})
		assert.ErrorIs(t, err, engine.ErrInvalidInput)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, Options{Driver: "bolt"})
		assert.ErrorIs(t, err, engine.ErrInvalidInput)
	})
}
