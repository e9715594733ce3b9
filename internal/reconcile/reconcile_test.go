package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abelbrown/triage/internal/model"
	"github.com/abelbrown/triage/internal/tracker"
	"github.com/google/go-cmp/cmp"
)

var ref = time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)

type fakeLister struct {
	entries []tracker.Entry
	err     error
	calls   int
}

func (f *fakeLister) List(ctx context.Context, list string) ([]tracker.Entry, error) {
	f.calls++
	return f.entries, f.err
}

func analysisItem(id string, u model.Urgency, age time.Duration) model.ActionItem {
	return model.ActionItem{
		Source:  model.SourceAnalysis,
		EmailID: id,
		Account: "work",
		Summary: "do " + id,
		Urgency: u,
		Date:    ref.Add(-age),
	}
}

func ids(items []model.ActionItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID()
	}
	return out
}

func TestReconcileAppliesTrackerState(t *testing.T) {
	lister := &fakeLister{entries: []tracker.Entry{
		{ID: "R1", Notes: tracker.BackRef("a")},
		{ID: "R2", Notes: tracker.BackRef("b"), Completed: true},
		{ID: "R3", Notes: tracker.BackRef("c"), Completed: true},
		{ID: "R4", Notes: tracker.BackRef("c")},
	}}
	r := &Reconciler{Tracker: lister, List: "Triage"}

	items := []model.ActionItem{
		analysisItem("a", model.UrgencyThisWeek, time.Hour),
		analysisItem("b", model.UrgencyThisWeek, time.Hour),
		analysisItem("c", model.UrgencyThisWeek, time.Hour),
		analysisItem("d", model.UrgencyThisWeek, time.Hour),
	}
	items[3].State = model.TrackerCompleted // stale state from elsewhere is overwritten

	res := r.Reconcile(context.Background(), items, ref)
	if lister.calls != 1 {
		t.Errorf("tracker queried %d times, want 1", lister.calls)
	}

	got := map[string]model.TrackerState{}
	for _, it := range res.Active {
		got[it.EmailID] = it.State
	}
	want := map[string]model.TrackerState{
		"a": model.TrackerPending,
		"b": model.TrackerCompleted,
		"c": model.TrackerPending,
		"d": model.TrackerNone,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if items[0].State != "" {
		t.Error("input items must not be modified")
	}
}

func TestReconcileTrackerFailure(t *testing.T) {
	lister := &fakeLister{
		err: errors.New("reminders: command not found"),
		entries: []tracker.Entry{
			{ID: "R9", Title: "should not appear"},
		},
	}
	r := &Reconciler{Tracker: lister, List: "Triage"}

	items := []model.ActionItem{
		analysisItem("a", model.UrgencyOverdue, time.Hour),
		analysisItem("b", model.UrgencyWhenYouCan, 40*24*time.Hour),
	}
	res := r.Reconcile(context.Background(), items, ref)

	if res.TrackerErr == nil {
		t.Error("TrackerErr should report the failure")
	}
	for _, it := range append(res.Active, res.Backlog...) {
		if it.Source == model.SourceTracker {
			t.Errorf("no tracker items expected on failure, got %+v", it)
		}
		if it.State != model.TrackerNone {
			t.Errorf("%s state = %q, want none", it.ID(), it.State)
		}
	}
	if len(res.Active) != 1 || len(res.Backlog) != 1 {
		t.Errorf("active=%d backlog=%d, want 1 and 1", len(res.Active), len(res.Backlog))
	}
}

func TestReconcileNoTracker(t *testing.T) {
	r := &Reconciler{}
	res := r.Reconcile(context.Background(), []model.ActionItem{analysisItem("a", model.UrgencyOverdue, 0)}, ref)
	if len(res.Active) != 1 || res.Active[0].State != model.TrackerNone || res.TrackerErr != nil {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestReconcileStalenessBoundary(t *testing.T) {
	r := &Reconciler{}
	window := 30 * 24 * time.Hour

	items := []model.ActionItem{
		analysisItem("exact", model.UrgencyThisWeek, window),
		analysisItem("older", model.UrgencyThisWeek, window+time.Second),
		analysisItem("fresh", model.UrgencyThisWeek, 0),
	}
	res := r.Reconcile(context.Background(), items, ref)

	if diff := cmp.Diff([]string{"exact", "fresh"}, ids(res.Active)); diff != "" {
		t.Errorf("active mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"older"}, ids(res.Backlog)); diff != "" {
		t.Errorf("backlog mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileOrdering(t *testing.T) {
	due := ref.AddDate(0, 0, -2)
	lister := &fakeLister{entries: []tracker.Entry{
		{ID: "T-late", Title: "Renew passport", Due: &due},
		{ID: "T-someday", Title: "Clean garage"},
		{ID: "T-done", Title: "Old chore", Completed: true},
	}}
	r := &Reconciler{Tracker: lister, List: "Triage"}

	items := []model.ActionItem{
		analysisItem("w1", model.UrgencyWhenYouCan, time.Hour),
		analysisItem("t1", model.UrgencyThisWeek, time.Hour),
		analysisItem("o1", model.UrgencyOverdue, time.Hour),
		analysisItem("w2", model.UrgencyWhenYouCan, 2*time.Hour),
		analysisItem("t2", model.UrgencyThisWeek, 3*time.Hour),
		analysisItem("b-new", model.UrgencyOverdue, 35*24*time.Hour),
		analysisItem("b-old", model.UrgencyThisWeek, 60*24*time.Hour),
		analysisItem("b-mid", model.UrgencyWhenYouCan, 45*24*time.Hour),
	}
	res := r.Reconcile(context.Background(), items, ref)

	wantActive := []string{"o1", "T-late", "t1", "t2", "w1", "w2", "T-someday"}
	if diff := cmp.Diff(wantActive, ids(res.Active)); diff != "" {
		t.Errorf("active order mismatch (-want +got):\n%s", diff)
	}
	wantBacklog := []string{"b-old", "b-mid", "b-new"}
	if diff := cmp.Diff(wantBacklog, ids(res.Backlog)); diff != "" {
		t.Errorf("backlog order mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileTrackerItems(t *testing.T) {
	due := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{entries: []tracker.Entry{
		{ID: "R7", List: "Triage", Title: "Call plumber", Notes: "ask about boiler", Due: &due},
	}}
	res := (&Reconciler{Tracker: lister, List: "Triage"}).Reconcile(context.Background(), nil, ref)

	want := []model.ActionItem{{
		Source:    model.SourceTracker,
		TrackerID: "R7",
		Account:   "Triage",
		Group:     "Triage",
		Summary:   "Call plumber",
		Urgency:   model.UrgencyThisWeek,
		Reason:    "ask about boiler",
		Date:      due,
		Deadline:  "2026-10-18",
		State:     model.TrackerPending,
	}}
	if diff := cmp.Diff(want, res.Active); diff != "" {
		t.Errorf("tracker item mismatch (-want +got):\n%s", diff)
	}
	if len(res.Backlog) != 0 {
		t.Error("tracker items never go to the backlog")
	}
}

func TestClassify(t *testing.T) {
	at := func(d time.Time) *time.Time { return &d }
	today := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		due  *time.Time
		high bool
		want model.Urgency
	}{
		{"no due, normal", nil, false, model.UrgencyWhenYouCan},
		{"no due, high priority", nil, true, model.UrgencyThisWeek},
		{"yesterday", at(today.Add(-time.Minute)), false, model.UrgencyOverdue},
		{"earlier today is not overdue", at(today.Add(time.Hour)), false, model.UrgencyThisWeek},
		{"in six days", at(today.AddDate(0, 0, 6)), false, model.UrgencyThisWeek},
		{"in seven days", at(today.AddDate(0, 0, 7)), false, model.UrgencyWhenYouCan},
		{"far but high priority", at(today.AddDate(0, 1, 0)), true, model.UrgencyThisWeek},
		{"overdue beats priority", at(today.AddDate(0, 0, -3)), true, model.UrgencyOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.due, tt.high, ref); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}
