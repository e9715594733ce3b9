package model

import (
	"sort"
	"time"
)

// Source identifies where an ActionItem came from.
type Source string

const (
	SourceAnalysis Source = "from-analysis"
	SourceTracker  Source = "from-tracker"
)

// Urgency is the display tier of an ActionItem. Tiers order as
// overdue < this_week < when_you_can.
type Urgency string

const (
	UrgencyOverdue    Urgency = "overdue"
	UrgencyThisWeek   Urgency = "this_week"
	UrgencyWhenYouCan Urgency = "when_you_can"
)

// Urgencies lists the tiers in display order.
var Urgencies = []Urgency{UrgencyOverdue, UrgencyThisWeek, UrgencyWhenYouCan}

// Rank returns the sort position of the tier. Unknown tiers sort last.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyOverdue:
		return 0
	case UrgencyThisWeek:
		return 1
	case UrgencyWhenYouCan:
		return 2
	default:
		return 3
	}
}

// Valid reports whether u is one of the known tiers.
func (u Urgency) Valid() bool {
	return u.Rank() < 3
}

// Label is the section header text for the tier.
func (u Urgency) Label() string {
	switch u {
	case UrgencyOverdue:
		return "Overdue"
	case UrgencyThisWeek:
		return "This Week"
	case UrgencyWhenYouCan:
		return "When You Can"
	default:
		return string(u)
	}
}

// DeadlineLayout is the format of ActionItem.Deadline for every source.
const DeadlineLayout = "2006-01-02"

// TrackerState is the completion state reported by the external tracker.
type TrackerState string

const (
	TrackerNone      TrackerState = "none"
	TrackerPending   TrackerState = "pending"
	TrackerCompleted TrackerState = "completed"
)

// ActionItem is one unit of required action shown to the user.
//
// EmailID is set for SourceAnalysis items, TrackerID for SourceTracker
// items; never both.
type ActionItem struct {
	Source    Source       `json:"source"`
	EmailID   string       `json:"email_id,omitempty"`
	ThreadID  string       `json:"thread_id,omitempty"`
	TrackerID string       `json:"tracker_id,omitempty"`
	Account   string       `json:"account"`
	Group     string       `json:"group,omitempty"`
	Summary   string       `json:"summary"`
	Urgency   Urgency      `json:"urgency"`
	Reason    string       `json:"reason,omitempty"`
	Date      time.Time    `json:"date"`
	IsStarred bool         `json:"is_starred,omitempty"`
	Person    string       `json:"person,omitempty"`
	Deadline  string       `json:"deadline,omitempty"`
	State     TrackerState `json:"-"`
}

// ID returns the source-specific identity of the item.
func (a ActionItem) ID() string {
	if a.Source == SourceTracker {
		return a.TrackerID
	}
	return a.EmailID
}

// SortByUrgency orders items by tier, keeping merge order within a tier.
func SortByUrgency(items []ActionItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Urgency.Rank() < items[j].Urgency.Rank()
	})
}

// SortByDate orders items oldest first, keeping merge order for equal dates.
func SortByDate(items []ActionItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.Before(items[j].Date)
	})
}
