package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/safari/pkg/engine"
	"github.com/celerix-dev/safari/pkg/schema"
)

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func TestMemStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore("", Snapshot{}, nil)

	item := schema.ActionItem{Building: 3, CreatorNote: "fix light", TimeRequiredSec: 600}
	id, err := ms.Create(ctx, &item)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, item.ID)
	assert.False(t, item.TimeCreated.IsZero())

	got, err := ms.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Building)
	assert.Equal(t, "fix light", got.CreatorNote)

	now := time.Now().UTC()
	got.Completed = true
	got.TimeCompleted = &now
	got.Completer = &schema.Actor{ID: "u1", Email: "a@b.com"}
	got.TimeCreated = time.Time{}
	require.NoError(t, ms.Update(ctx, got))

	again, err := ms.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, again.Completed)
	assert.Equal(t, "u1", again.Completer.ID)
	assert.Equal(t, item.TimeCreated, again.TimeCreated, "time_created must not change on update")
}

func TestMemStore_NotFound(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore("", Snapshot{}, nil)

	_, err := ms.Get(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	err = ms.Update(ctx, schema.ActionItem{ID: "missing"})
	assert.ErrorIs(t, err, engine.ErrNotFound)

	items, err := ms.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemStore_ListRecentOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore("", Snapshot{}, nil)
	ms.now = steppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	for i := 0; i < 5; i++ {
		_, err := ms.Create(ctx, &schema.ActionItem{Building: i})
		require.NoError(t, err)
	}

	all, err := ms.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].TimeCreated.After(all[i-1].TimeCreated))
	}
	assert.Equal(t, 4, all[0].Building)

	top, err := ms.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, 4, top[0].Building)
	assert.Equal(t, 3, top[1].Building)
}

func TestMemStore_SameTimestampKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore("", Snapshot{}, nil)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ms.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		_, err := ms.Create(ctx, &schema.ActionItem{Building: i})
		require.NoError(t, err)
	}

	items, err := ms.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, []int{items[0].Building, items[1].Building, items[2].Building})
}

func TestMemStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore("", Snapshot{}, nil)

	item := schema.ActionItem{Creator: &schema.Actor{ID: "u1"}}
	id, err := ms.Create(ctx, &item)
	require.NoError(t, err)

	got, err := ms.Get(ctx, id)
	require.NoError(t, err)
	got.Creator.ID = "mutated"

	again, err := ms.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u1", again.Creator.ID)
}

func TestPersistence(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := NewPersistence(tmpDir)
	require.NoError(t, err)

	snap := Snapshot{Version: 2, Items: []schema.ActionItem{{ID: "a", Building: 1}}}
	require.NoError(t, p.Save("universe", snap))

	_, err = os.Stat(filepath.Join(tmpDir, "universe.json"))
	require.NoError(t, err, "universe file was not created")

	// Older snapshots never overwrite newer ones.
	require.NoError(t, p.Save("universe", Snapshot{Version: 1}))

	loaded, err := p.Load("universe")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.Version)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, "a", loaded.Items[0].ID)

	empty, err := p.Load("other")
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
}

func TestMemStore_Persistence(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	p, err := NewPersistence(tmpDir)
	require.NoError(t, err)
	ms := NewMemStore("safari", Snapshot{}, p)

	id, err := ms.Create(ctx, &schema.ActionItem{Building: 7, CreatorNote: "door"})
	require.NoError(t, err)

	// A fresh handler reads what the first one wrote.
	p2, err := NewPersistence(tmpDir)
	require.NoError(t, err)
	snap, err := p2.Load("safari")
	require.NoError(t, err)
	ms2 := NewMemStore("safari", snap, p2)

	got, err := ms2.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Building)
	assert.Equal(t, "door", got.CreatorNote)
}

func TestMemStore_WritesFailWhenDataDirIsGone(t *testing.T) {
	ctx := context.Background()
	dataDir := filepath.Join(t.TempDir(), "data")

	p, err := NewPersistence(dataDir)
	require.NoError(t, err)
	ms := NewMemStore("", Snapshot{}, p)

	kept, err := ms.Create(ctx, &schema.ActionItem{Building: 1, CreatorNote: "kept"})
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dataDir))

	item := schema.ActionItem{Building: 3, CreatorNote: "fix light"}
	_, err = ms.Create(ctx, &item)
	assert.ErrorIs(t, err, engine.ErrStoreUnavailable)
	assert.Empty(t, item.ID, "failed create must not hand out an id")

	items, err := ms.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1, "failed create must be rolled back")
	assert.Equal(t, kept, items[0].ID)

	done := items[0]
	now := time.Now().UTC()
	done.Completed = true
	done.TimeCompleted = &now
	assert.ErrorIs(t, ms.Update(ctx, done), engine.ErrStoreUnavailable)

	got, err := ms.Get(ctx, kept)
	require.NoError(t, err)
	assert.False(t, got.Completed, "failed update must be rolled back")
	assert.Nil(t, got.TimeCompleted)

	assert.ErrorIs(t, ms.Put(ctx, schema.ActionItem{ID: "imported"}), engine.ErrStoreUnavailable)
	_, err = ms.Get(ctx, "imported")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestMemStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore("", Snapshot{}, nil)
	const (
		numGoroutines = 10
		numOps        = 50
	)

	var wg sync.WaitGroup
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < numOps; i++ {
				id, err := ms.Create(ctx, &schema.ActionItem{CreatorNote: fmt.Sprintf("%d-%d", g, i)})
				if err != nil {
					t.Errorf("create failed: %v", err)
					return
				}
				if _, err := ms.Get(ctx, id); err != nil {
					t.Errorf("get failed: %v", err)
					return
				}
				if _, err := ms.ListRecent(ctx, 10); err != nil {
					t.Errorf("list failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	items, err := ms.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, items, numGoroutines*numOps)
}

func TestMemStore_Put(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore("", Snapshot{}, nil)
	created := time.Date(2020, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, ms.Put(ctx, schema.ActionItem{ID: "fixed", TimeCreated: created, Building: 2}))
	got, err := ms.Get(ctx, "fixed")
	require.NoError(t, err)
	assert.Equal(t, created, got.TimeCreated)

	assert.ErrorIs(t, ms.Put(ctx, schema.ActionItem{}), engine.ErrInvalidInput)
}
