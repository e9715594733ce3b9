// Package tracker reads and updates the external task tracker that holds
// completion state for action items.
package tracker

import (
	"context"
	"time"
)

// Entry is one task in the tracker.
type Entry struct {
	ID        string
	List      string
	Title     string
	Notes     string
	Completed bool
	Due       *time.Time
	Priority  int // 0 none, 1-4 high, 5 medium, 6-9 low
}

// HighPriority reports whether the tracker flags the entry as high priority.
func (e Entry) HighPriority() bool {
	return e.Priority >= 1 && e.Priority <= 4
}

// EmailID returns the email this entry was created for, if any.
func (e Entry) EmailID() (string, bool) {
	return ParseBackRef(e.Notes)
}

// Draft describes a new tracker entry.
type Draft struct {
	Title    string
	Notes    string
	Due      *time.Time
	Priority int
}

// Lister is the read side of the tracker.
type Lister interface {
	List(ctx context.Context, list string) ([]Entry, error)
}

// Tracker is the full tracker capability.
type Tracker interface {
	Lister
	Create(ctx context.Context, list string, d Draft) error
	CompleteByID(ctx context.Context, list, id string) error
	// CompleteByBackRef completes every open entry linked to emailID.
	// Completing an email with no linked entry is not an error.
	CompleteByBackRef(ctx context.Context, list, emailID string) error
}
