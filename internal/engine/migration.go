package engine

import (
	"context"
	"fmt"

	"github.com/celerix-dev/safari/pkg/engine"
)

// Migrate copies every item from src into dst, oldest first, keeping ids and
// timestamps. This works for:
// - memory -> sqlite/postgres (the "upgrade")
// - sqlite/postgres -> memory (backup/offline)
// It returns the number of items copied.
func Migrate(ctx context.Context, src engine.ItemReader, dst engine.Importer) (int, error) {
	items, err := src.ListRecent(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list source items: %w", err)
	}

	copied := 0
	for i := len(items) - 1; i >= 0; i-- {
		if err := dst.Put(ctx, items[i]); err != nil {
			return copied, fmt.Errorf("failed to put item %s in destination: %w", items[i].ID, err)
		}
		copied++
	}
	return copied, nil
}
