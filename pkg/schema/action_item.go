// Package schema defines the data structures shared by the Safari board,
// its stores and its remote clients.
package schema

import "time"

// Actor is the identity attached to a creation or completion event.
// It is embedded by value into items and never stored on its own.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ActionItem is a unit of work tied to a building.
type ActionItem struct {
	ID          string    `json:"id"`
	Creator     *Actor    `json:"creator,omitempty"`
	TimeCreated time.Time `json:"time_created"`
	CreatorNote string    `json:"creator_note"`

	Completer     *Actor     `json:"completer,omitempty"`
	TimeCompleted *time.Time `json:"time_completed,omitempty"`
	CompleterNote string     `json:"completer_note"`

	Building        int  `json:"building"`
	TimeRequiredSec int  `json:"time_required_sec"`
	Completed       bool `json:"completed"`
}

// Clone returns a deep copy so stores can hand out items without sharing
// the Actor and time pointers.
func (a ActionItem) Clone() ActionItem {
	out := a
	if a.Creator != nil {
		c := *a.Creator
		out.Creator = &c
	}
	if a.Completer != nil {
		c := *a.Completer
		out.Completer = &c
	}
	if a.TimeCompleted != nil {
		t := *a.TimeCompleted
		out.TimeCompleted = &t
	}
	return out
}

// Stats are simple counts over a fetched set of items.
type Stats struct {
	Total      int `json:"total"`
	Complete   int `json:"complete"`
	Incomplete int `json:"incomplete"`
}

// CountStats computes Stats over items.
func CountStats(items []ActionItem) Stats {
	s := Stats{Total: len(items)}
	for _, it := range items {
		if it.Completed {
			s.Complete++
		} else {
			s.Incomplete++
		}
	}
	return s
}
