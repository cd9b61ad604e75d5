package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/safari/internal/engine"
	contract "github.com/celerix-dev/safari/pkg/engine"
	"github.com/celerix-dev/safari/pkg/schema"
)

// countingStore fails on a second Close, like a backend whose Close is not
// idempotent.
type countingStore struct {
	*engine.MemStore
	closes   int
	closeErr error
}

func (c *countingStore) Close() error {
	c.closes++
	if c.closes > 1 {
		return errors.New("closed twice")
	}
	return c.closeErr
}

func seeded(t *testing.T, n int) *countingStore {
	t.Helper()
	ms := engine.NewMemStore("", engine.Snapshot{}, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, ms.Put(context.Background(), schema.ActionItem{
			ID:          fmt.Sprintf("item-%d", i),
			TimeCreated: base.Add(time.Duration(i) * time.Minute),
			Building:    i,
		}))
	}
	return &countingStore{MemStore: ms}
}

func openerFor(src, dst contract.Backend) openFunc {
	return func(_ context.Context, opts engine.Options) (contract.Backend, error) {
		if opts.Driver == "src" {
			return src, nil
		}
		return dst, nil
	}
}

func TestMigrateBackendsClosesOnce(t *testing.T) {
	src := seeded(t, 3)
	dst := seeded(t, 0)

	n, err := migrateBackends(context.Background(), openerFor(src, dst),
		engine.Options{Driver: "src"}, engine.Options{Driver: "dst"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, src.closes)
	assert.Equal(t, 1, dst.closes)

	items, err := dst.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestMigrateBackendsReportsFlushFailure(t *testing.T) {
	src := seeded(t, 1)
	dst := seeded(t, 0)
	dst.closeErr = contract.ErrStoreUnavailable

	_, err := migrateBackends(context.Background(), openerFor(src, dst),
		engine.Options{Driver: "src"}, engine.Options{Driver: "dst"})
	assert.ErrorIs(t, err, contract.ErrStoreUnavailable)
	assert.Equal(t, 1, dst.closes)
}

func TestMigrateBackendsMemoryToSQLite(t *testing.T) {
	ctx := context.Background()
	from := engine.Options{Driver: engine.DriverMemory, DataDir: t.TempDir(), Universe: contract.DefaultUniverse}
	to := engine.Options{Driver: engine.DriverSQLite, DataDir: t.TempDir(), Universe: contract.DefaultUniverse}

	src, err := engine.Open(ctx, from)
	require.NoError(t, err)
	_, err = src.Create(ctx, &schema.ActionItem{Building: 4, CreatorNote: "gate", TimeRequiredSec: 600})
	require.NoError(t, err)
	require.NoError(t, src.Close())

	n, err := migrateBackends(ctx, engine.Open, from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dst, err := engine.Open(ctx, to)
	require.NoError(t, err)
	defer dst.Close()
	items, err := dst.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "gate", items[0].CreatorNote)
}
