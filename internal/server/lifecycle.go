package server

import (
	"fmt"

	"github.com/celerix-dev/safari/internal/board"
	"github.com/celerix-dev/safari/pkg/engine"
	"github.com/celerix-dev/safari/pkg/schema"
)

// checkCreate makes a CREATE payload a valid new item: incomplete, with the
// fixed time estimate. Identity and creation time are assigned by the store.
func checkCreate(item *schema.ActionItem) error {
	if item.Completed || item.TimeCompleted != nil || item.Completer != nil || item.CompleterNote != "" {
		return fmt.Errorf("%w: a new item cannot carry completion fields", engine.ErrInvalidInput)
	}
	item.ID = ""
	item.TimeRequiredSec = board.DefaultTimeRequiredSec
	return nil
}

// checkUpdate restricts an UPDATE to the completion transition. Creation
// fields always come from prev, completed and time_completed travel together,
// and a completed item never reopens.
func checkUpdate(prev schema.ActionItem, next *schema.ActionItem) error {
	if next.Completed != (next.TimeCompleted != nil) {
		return fmt.Errorf("%w: completed and time_completed must be set together", engine.ErrInvalidInput)
	}
	if prev.Completed && !next.Completed {
		return fmt.Errorf("%w: item %s is already completed", engine.ErrInvalidInput, prev.ID)
	}

	next.Creator = prev.Creator
	next.TimeCreated = prev.TimeCreated
	next.CreatorNote = prev.CreatorNote
	next.Building = prev.Building
	next.TimeRequiredSec = prev.TimeRequiredSec
	return nil
}
