// Package board implements the action item lifecycle on top of an Item Store.
package board

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/celerix-dev/safari/pkg/engine"
	"github.com/celerix-dev/safari/pkg/schema"
)

const (
	// DefaultFetchLimit caps how many items a snapshot holds.
	DefaultFetchLimit = 1000
	// DefaultTimeRequiredSec is the fixed estimate stamped on every new item.
	DefaultTimeRequiredSec = 10 * 60
)

// Snapshot is the fetched page of items and the counts over that page.
// Stats never reflect items beyond the fetch limit.
type Snapshot struct {
	Items []schema.ActionItem
	Stats schema.Stats
}

// Service mediates between the store and the acting user.
type Service struct {
	store  engine.ItemStore
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a Service. logger may be nil.
func NewService(store engine.ItemStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// ListWithStats fetches up to limit recent items and counts them.
func (s *Service) ListWithStats(ctx context.Context, limit int) (Snapshot, error) {
	items, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list items: %w", err)
	}
	return Snapshot{Items: items, Stats: schema.CountStats(items)}, nil
}

// CreateItem stores a new incomplete item for building. actor may be nil
// for anonymous creation.
func (s *Service) CreateItem(ctx context.Context, building, note string, actor *schema.Actor) (schema.ActionItem, error) {
	b, err := strconv.Atoi(strings.TrimSpace(building))
	if err != nil {
		s.logger.Warn("rejected create", zap.String("building", building))
		return schema.ActionItem{}, fmt.Errorf("%w: building %q is not an integer", engine.ErrInvalidInput, building)
	}

	item := schema.ActionItem{
		Creator:         copyActor(actor),
		CreatorNote:     note,
		Building:        b,
		TimeRequiredSec: DefaultTimeRequiredSec,
		Completed:       false,
	}
	if _, err := s.store.Create(ctx, &item); err != nil {
		return schema.ActionItem{}, fmt.Errorf("create item: %w", err)
	}

	s.logger.Debug("item created", zap.String("id", item.ID), zap.Int("building", item.Building))
	return item, nil
}

// CompleteItem marks the item done. Completing an already completed item
// overwrites the completion time, note, and (when actor is set) completer.
// Concurrent completions are last-write-wins.
func (s *Service) CompleteItem(ctx context.Context, id, note string, actor *schema.Actor) (schema.ActionItem, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return schema.ActionItem{}, fmt.Errorf("complete item %q: %w", id, err)
	}

	if actor != nil {
		item.Completer = copyActor(actor)
	}
	now := s.now().UTC()
	item.Completed = true
	item.TimeCompleted = &now
	item.CompleterNote = note

	if err := s.store.Update(ctx, item); err != nil {
		return schema.ActionItem{}, fmt.Errorf("complete item %q: %w", id, err)
	}

	s.logger.Debug("item completed", zap.String("id", item.ID), zap.Bool("anonymous", actor == nil))
	return item, nil
}

func copyActor(a *schema.Actor) *schema.Actor {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
