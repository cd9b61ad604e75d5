// Package engine defines the storage contract for the Safari board.
package engine

import (
	"context"
	"errors"

	"github.com/celerix-dev/safari/pkg/schema"
)

var (
	// ErrInvalidInput is returned when a request carries malformed data,
	// such as a non-integer building.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when an id does not resolve to an item in the universe.
	ErrNotFound = errors.New("item not found")
	// ErrStoreUnavailable is returned when the backing persistence cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// DefaultUniverse is the single partition every item lives in.
const DefaultUniverse = "universe"

// ItemReader covers the read side of the store.
type ItemReader interface {
	// ListRecent returns items ordered by TimeCreated descending, capped at limit.
	// A limit <= 0 returns every item.
	ListRecent(ctx context.Context, limit int) ([]schema.ActionItem, error)
	// Get returns the item with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (schema.ActionItem, error)
}

// ItemWriter covers the write side of the store.
type ItemWriter interface {
	// Create assigns ID and TimeCreated on item, persists it and returns the ID.
	Create(ctx context.Context, item *schema.ActionItem) (string, error)
	// Update saves an existing item. Returns ErrNotFound if it no longer exists.
	Update(ctx context.Context, item schema.ActionItem) error
}

// ItemStore is the full Item Store contract.
type ItemStore interface {
	ItemReader
	ItemWriter
}

// Importer writes an item verbatim, keeping its id and timestamps.
// It is used to move data between backends.
type Importer interface {
	Put(ctx context.Context, item schema.ActionItem) error
}

// Backend is an ItemStore that owns resources.
type Backend interface {
	ItemStore
	Close() error
}
