// Package reconcile merges analysis results with the external tracker,
// which is the source of truth for completion state.
package reconcile

import (
	"context"
	"time"

	"github.com/abelbrown/triage/internal/logging"
	"github.com/abelbrown/triage/internal/model"
	"github.com/abelbrown/triage/internal/otel"
	"github.com/abelbrown/triage/internal/tracker"
)

// DefaultStaleness is how old an analysis item may get before it moves to
// the backlog.
const DefaultStaleness = 30 * 24 * time.Hour

// Result is the reconciled, ordered view.
type Result struct {
	Active  []model.ActionItem
	Backlog []model.ActionItem

	// TrackerErr is set when the tracker could not be queried. The result
	// is still complete, with every analysis item at state none.
	TrackerErr error
}

// Reconciler holds the collaborators of a reconciliation.
type Reconciler struct {
	Tracker   tracker.Lister // nil disables the tracker
	List      string
	Staleness time.Duration
	Events    *otel.Logger
}

// Reconcile queries the tracker once and merges its state into items.
// Items are copied; the input slice is not modified.
func (r *Reconciler) Reconcile(ctx context.Context, items []model.ActionItem, ref time.Time) Result {
	staleness := r.Staleness
	if staleness <= 0 {
		staleness = DefaultStaleness
	}

	var (
		entries []tracker.Entry
		res     Result
	)
	if r.Tracker != nil {
		var err error
		entries, err = r.Tracker.List(ctx, r.List)
		if err != nil {
			logging.Warn("tracker unavailable, continuing without it", "list", r.List, "error", err)
			r.Events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindTrackerError, Comp: "reconcile", Err: err.Error()})
			entries = nil
			res.TrackerErr = err
		}
	}

	states := make(map[string]model.TrackerState)
	var userEntries []tracker.Entry
	for _, e := range entries {
		emailID, linked := e.EmailID()
		if !linked {
			if !e.Completed {
				userEntries = append(userEntries, e)
			}
			continue
		}
		// An open linked entry outranks a completed one for the same email.
		if e.Completed {
			if states[emailID] != model.TrackerPending {
				states[emailID] = model.TrackerCompleted
			}
		} else {
			states[emailID] = model.TrackerPending
		}
	}

	for _, item := range items {
		item.State = model.TrackerNone
		if s, ok := states[item.EmailID]; ok {
			item.State = s
		}
		if ref.Sub(item.Date) > staleness {
			res.Backlog = append(res.Backlog, item)
		} else {
			res.Active = append(res.Active, item)
		}
	}

	for _, e := range userEntries {
		res.Active = append(res.Active, fromTracker(e, r.List, ref))
	}

	model.SortByUrgency(res.Active)
	model.SortByDate(res.Backlog)

	r.Events.Emit(otel.Event{Kind: otel.KindReconcileComplete, Comp: "reconcile", Count: len(res.Active),
		Extra: map[string]any{"backlog": len(res.Backlog), "tracker_items": len(userEntries)}})
	return res
}

func fromTracker(e tracker.Entry, list string, ref time.Time) model.ActionItem {
	item := model.ActionItem{
		Source:    model.SourceTracker,
		TrackerID: e.ID,
		Account:   list,
		Group:     e.List,
		Summary:   e.Title,
		Urgency:   Classify(e.Due, e.HighPriority(), ref),
		Reason:    e.Notes,
		Date:      ref,
		State:     model.TrackerPending,
	}
	if e.Due != nil {
		item.Date = *e.Due
		item.Deadline = e.Due.Format(model.DeadlineLayout)
	}
	return item
}

// Classify derives an urgency tier from a tracker entry's due date and
// priority flag, relative to the calendar day of ref.
func Classify(due *time.Time, high bool, ref time.Time) model.Urgency {
	today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	if due != nil && due.Before(today) {
		return model.UrgencyOverdue
	}
	if high || (due != nil && due.Before(today.AddDate(0, 0, 7))) {
		return model.UrgencyThisWeek
	}
	return model.UrgencyWhenYouCan
}
