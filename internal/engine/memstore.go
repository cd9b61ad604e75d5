package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/celerix-dev/safari/pkg/engine"
	"github.com/celerix-dev/safari/pkg/schema"
)

type memEntry struct {
	item schema.ActionItem
	seq  uint64
}

// MemStore is a thread-safe in-memory Item Store for a single universe,
// optionally snapshotted to disk. With a persister set, every write is saved
// before it is acknowledged and rolled back if the save fails.
type MemStore struct {
	mu        sync.RWMutex
	universe  string
	items     map[string]*memEntry
	seq       uint64
	version   uint64
	persister *Persistence

	now func() time.Time
}

var (
	_ engine.Backend  = (*MemStore)(nil)
	_ engine.Importer = (*MemStore)(nil)
)

// NewMemStore initializes a store.
// It accepts existing data (from Persistence.Load) and a persister, which may be nil.
func NewMemStore(universe string, initial Snapshot, p *Persistence) *MemStore {
	if universe == "" {
		universe = engine.DefaultUniverse
	}
	m := &MemStore{
		universe:  universe,
		items:     make(map[string]*memEntry),
		version:   initial.Version,
		persister: p,
		now:       time.Now,
	}

	loaded := make([]schema.ActionItem, len(initial.Items))
	copy(loaded, initial.Items)
	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].TimeCreated.Before(loaded[j].TimeCreated)
	})
	for _, it := range loaded {
		m.seq++
		m.items[it.ID] = &memEntry{item: it.Clone(), seq: m.seq}
	}
	return m
}

// Close releases the store. Writes are already on disk when they return.
func (m *MemStore) Close() error {
	return nil
}

func (m *MemStore) ListRecent(_ context.Context, limit int) ([]schema.ActionItem, error) {
	m.mu.RLock()
	entries := make([]*memEntry, 0, len(m.items))
	for _, e := range m.items {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.item.TimeCreated.Equal(b.item.TimeCreated) {
			return a.item.TimeCreated.After(b.item.TimeCreated)
		}
		return a.seq > b.seq
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]schema.ActionItem, len(entries))
	for i, e := range entries {
		out[i] = e.item.Clone()
	}
	m.mu.RUnlock()
	return out, nil
}

func (m *MemStore) Get(_ context.Context, id string) (schema.ActionItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.items[id]
	if !ok {
		return schema.ActionItem{}, engine.ErrNotFound
	}
	return e.item.Clone(), nil
}

func (m *MemStore) Create(_ context.Context, item *schema.ActionItem) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := item.Clone()
	stored.ID = uuid.NewString()
	stored.TimeCreated = m.now().UTC()
	m.seq++
	m.items[stored.ID] = &memEntry{item: stored, seq: m.seq}

	if err := m.commitLocked(func() { delete(m.items, stored.ID) }); err != nil {
		return "", err
	}
	item.ID = stored.ID
	item.TimeCreated = stored.TimeCreated
	return stored.ID, nil
}

func (m *MemStore) Update(_ context.Context, item schema.ActionItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[item.ID]
	if !ok {
		return engine.ErrNotFound
	}
	prev := e.item
	// TimeCreated is fixed at creation.
	item.TimeCreated = prev.TimeCreated
	e.item = item.Clone()

	return m.commitLocked(func() { e.item = prev })
}

// Put stores item verbatim, inserting or replacing by id.
func (m *MemStore) Put(_ context.Context, item schema.ActionItem) error {
	if item.ID == "" {
		return engine.ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.items[item.ID]; ok {
		prev := e.item
		e.item = item.Clone()
		return m.commitLocked(func() { e.item = prev })
	}
	m.seq++
	m.items[item.ID] = &memEntry{item: item.Clone(), seq: m.seq}
	return m.commitLocked(func() { delete(m.items, item.ID) })
}

// commitLocked saves the universe when a persister is set. On failure undo
// restores the previous in-memory state and the write is reported as
// ErrStoreUnavailable. It MUST be called while holding m.mu.Lock.
func (m *MemStore) commitLocked(undo func()) error {
	if m.persister == nil {
		return nil
	}
	if err := m.persister.Save(m.universe, m.snapshotLocked()); err != nil {
		undo()
		return fmt.Errorf("%w: save %s: %v", engine.ErrStoreUnavailable, m.universe, err)
	}
	return nil
}

// snapshotLocked deep-copies the universe for saving.
// It MUST be called while holding m.mu.Lock.
func (m *MemStore) snapshotLocked() Snapshot {
	if m.persister == nil {
		return Snapshot{}
	}
	m.version++
	entries := make([]*memEntry, 0, len(m.items))
	for _, e := range m.items {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	items := make([]schema.ActionItem, len(entries))
	for i, e := range entries {
		items[i] = e.item.Clone()
	}
	return Snapshot{Version: m.version, Items: items}
}
