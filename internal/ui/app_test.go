package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/triage/internal/analysis"
	"github.com/abelbrown/triage/internal/coord"
	"github.com/abelbrown/triage/internal/model"
	"github.com/abelbrown/triage/internal/reconcile"
	tea "github.com/charmbracelet/bubbletea"
)

// fakePipeline records calls and returns canned results.
type fakePipeline struct {
	report   coord.Report
	runErr   error
	progress []analysis.Progress
	actErr   error

	done    []string
	tracked []string
	starred []string
}

func (f *fakePipeline) Run(ctx context.Context, progress func(analysis.Progress)) (coord.Report, error) {
	for _, p := range f.progress {
		progress(p)
	}
	return f.report, f.runErr
}

func (f *fakePipeline) MarkDone(ctx context.Context, item model.ActionItem) error {
	f.done = append(f.done, item.ID())
	return f.actErr
}

func (f *fakePipeline) SendToTracker(ctx context.Context, item model.ActionItem) error {
	f.tracked = append(f.tracked, item.ID())
	return f.actErr
}

func (f *fakePipeline) Star(ctx context.Context, item model.ActionItem) error {
	f.starred = append(f.starred, item.ID())
	return f.actErr
}

func item(id string, u model.Urgency) model.ActionItem {
	return model.ActionItem{
		Source:  model.SourceAnalysis,
		EmailID: id,
		Account: "work",
		Summary: "Summary " + id,
		Urgency: u,
		Date:    time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func press(t *testing.T, a App, r rune) (App, tea.Cmd) {
	t.Helper()
	m, cmd := a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	return m.(App), cmd
}

// loaded returns an App that already finished a run with the given items.
func loaded(t *testing.T, p Pipeline, active, backlog []model.ActionItem) App {
	t.Helper()
	app := NewApp(context.Background(), p, false)
	m, _ := app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = m.Update(RunFinished{Report: coord.Report{Result: reconcile.Result{Active: active, Backlog: backlog}}})
	return m.(App)
}

func threeItems() []model.ActionItem {
	return []model.ActionItem{
		item("a", model.UrgencyOverdue),
		item("b", model.UrgencyThisWeek),
		item("c", model.UrgencyWhenYouCan),
	}
}

func TestAppInit(t *testing.T) {
	app := NewApp(context.Background(), &fakePipeline{}, false)
	if cmd := app.Init(); cmd == nil {
		t.Fatal("Init should start a run")
	}
}

func TestAppInitNilPipeline(t *testing.T) {
	app := NewApp(context.Background(), nil, false)
	if cmd := app.Init(); cmd != nil {
		t.Error("Init should return nil without a pipeline")
	}
}

func TestRunPipelineStreamsProgress(t *testing.T) {
	fake := &fakePipeline{
		progress: []analysis.Progress{
			{Cached: 10, Pending: 50, Batch: 1, Batches: 2},
			{Cached: 60, Pending: 0, Batch: 2, Batches: 2},
		},
		report: coord.Report{Emails: 60},
	}
	ch := make(chan analysis.Progress, 4)

	msg := runPipeline(context.Background(), fake, ch)()
	fin, ok := msg.(RunFinished)
	if !ok {
		t.Fatalf("expected RunFinished, got %T", msg)
	}
	if fin.Report.Emails != 60 || fin.Err != nil {
		t.Errorf("unexpected result %+v", fin)
	}

	for i, want := range fake.progress {
		got, ok := listen(ch)().(RunProgress)
		if !ok {
			t.Fatalf("update %d: expected RunProgress", i)
		}
		if got.Progress != want {
			t.Errorf("update %d = %+v, want %+v", i, got.Progress, want)
		}
	}
	if msg := listen(ch)(); msg != nil {
		t.Errorf("closed channel should yield nil, got %T", msg)
	}
}

func TestAppProgressShownInTitle(t *testing.T) {
	app := NewApp(context.Background(), &fakePipeline{}, false)
	m, _ := app.Update(tea.WindowSizeMsg{Width: 120, Height: 20})
	m, cmd := m.Update(RunProgress{Progress: analysis.Progress{Cached: 5, Pending: 45, Batch: 1, Batches: 3}})
	if cmd == nil {
		t.Error("progress should keep listening")
	}
	view := m.(App).View()
	if !strings.Contains(view, "batch 1/3") || !strings.Contains(view, "45 pending") {
		t.Errorf("title should show batch progress, got:\n%s", view)
	}
}

func TestAppRunFinished(t *testing.T) {
	app := loaded(t, &fakePipeline{}, threeItems(), []model.ActionItem{item("old", model.UrgencyWhenYouCan)})
	if app.running {
		t.Error("run should be marked finished")
	}
	if len(app.active) != 3 || len(app.backlog) != 1 {
		t.Errorf("active=%d backlog=%d", len(app.active), len(app.backlog))
	}
}

func TestAppRunFinishedError(t *testing.T) {
	app := NewApp(context.Background(), &fakePipeline{}, false)
	m, _ := app.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	m, _ = m.Update(RunFinished{Err: errors.New("boom")})
	view := m.(App).View()
	if !strings.Contains(view, "Error: boom") {
		t.Errorf("view should show the run error, got:\n%s", view)
	}
}

func TestAppViewHeightIsFixed(t *testing.T) {
	// Three sections, the last one exactly filling the list area.
	var items []model.ActionItem
	for i := 0; i < 10; i++ {
		items = append(items, item(fmt.Sprintf("w%02d", i), model.UrgencyThisWeek))
	}
	for i := 0; i < 3; i++ {
		items = append(items, item(fmt.Sprintf("c%02d", i), model.UrgencyWhenYouCan))
	}
	app := loaded(t, &fakePipeline{}, items, nil)
	m, _ := app.Update(tea.WindowSizeMsg{Width: 100, Height: 8})
	app = m.(App)

	for sel := range items {
		app.selected = sel
		if lines := strings.Count(app.View(), "\n") + 1; lines != 8 {
			t.Fatalf("selected=%d: view has %d lines, want 8", sel, lines)
		}
	}

	long := errors.New(strings.Repeat("analyze: backend unavailable\n", 10))
	m, _ = app.Update(RunFinished{Err: long})
	if lines := strings.Count(m.(App).View(), "\n") + 1; lines != 8 {
		t.Errorf("long error: view has %d lines, want 8", lines)
	}
}

func TestAppNavigation(t *testing.T) {
	app := loaded(t, &fakePipeline{}, threeItems(), nil)

	steps := []struct {
		key  rune
		want int
	}{
		{'j', 1},
		{'j', 2},
		{'j', 2},
		{'k', 1},
		{'g', 0},
		{'k', 0},
		{'G', 2},
	}
	for _, s := range steps {
		app, _ = press(t, app, s.key)
		if app.Selected() != s.want {
			t.Fatalf("after %q selected = %d, want %d", s.key, app.Selected(), s.want)
		}
	}

	m, _ := app.Update(tea.KeyMsg{Type: tea.KeyUp})
	if got := m.(App).Selected(); got != 1 {
		t.Errorf("up arrow: selected = %d, want 1", got)
	}
}

func TestAppBacklogToggle(t *testing.T) {
	app := loaded(t, &fakePipeline{}, threeItems(), []model.ActionItem{item("old", model.UrgencyWhenYouCan)})
	app, _ = press(t, app, 'j')

	app, _ = press(t, app, 'b')
	if !app.showBacklog || app.Selected() != 0 {
		t.Fatalf("b should show backlog and reset selection, got show=%v sel=%d", app.showBacklog, app.Selected())
	}
	cur, ok := app.current()
	if !ok || cur.EmailID != "old" {
		t.Errorf("current = %+v, want backlog item", cur)
	}
	if !strings.Contains(app.View(), "Summary old") {
		t.Error("backlog view should list backlog items")
	}

	app, _ = press(t, app, 'b')
	if app.showBacklog {
		t.Error("second b should return to active")
	}
}

func TestAppMarkDone(t *testing.T) {
	fake := &fakePipeline{}
	app := loaded(t, fake, threeItems(), nil)
	app, _ = press(t, app, 'j')

	app, cmd := press(t, app, 'd')
	if cmd == nil {
		t.Fatal("d should return a command")
	}
	msg := cmd()
	if len(fake.done) != 1 || fake.done[0] != "b" {
		t.Fatalf("MarkDone calls = %v, want [b]", fake.done)
	}

	m, _ := app.Update(msg)
	app = m.(App)
	if len(app.active) != 2 {
		t.Fatalf("item should be removed, active = %d", len(app.active))
	}
	for _, it := range app.active {
		if it.EmailID == "b" {
			t.Error("done item still listed")
		}
	}
	if !strings.Contains(app.View(), "Done: Summary b") {
		t.Error("view should confirm the action")
	}
}

func TestAppMarkDoneFailureKeepsItem(t *testing.T) {
	fake := &fakePipeline{actErr: errors.New("mail down")}
	app := loaded(t, fake, threeItems(), nil)

	app, cmd := press(t, app, 'd')
	m, _ := app.Update(cmd())
	app = m.(App)
	if len(app.active) != 3 {
		t.Errorf("failed action must keep the item, active = %d", len(app.active))
	}
	if app.err == nil {
		t.Error("failure should be shown")
	}
}

func TestAppMarkDoneClampsSelection(t *testing.T) {
	app := loaded(t, &fakePipeline{}, threeItems(), nil)
	app, _ = press(t, app, 'G')

	app, cmd := press(t, app, 'd')
	m, _ := app.Update(cmd())
	if got := m.(App).Selected(); got != 1 {
		t.Errorf("selected = %d, want 1 after removing the last item", got)
	}
}

func TestAppSendToTracker(t *testing.T) {
	fake := &fakePipeline{}
	app := loaded(t, fake, threeItems(), nil)

	app, cmd := press(t, app, 't')
	if cmd == nil {
		t.Fatal("t should return a command")
	}
	m, _ := app.Update(cmd())
	app = m.(App)
	if app.active[0].State != model.TrackerPending {
		t.Errorf("state = %q, want pending", app.active[0].State)
	}

	if _, cmd := press(t, app, 't'); cmd != nil {
		t.Error("already tracked item should not be sent again")
	}
	if len(fake.tracked) != 1 {
		t.Errorf("SendToTracker calls = %v", fake.tracked)
	}
}

func TestAppTrackerItemsIgnoreMailActions(t *testing.T) {
	fake := &fakePipeline{}
	trackerItem := model.ActionItem{Source: model.SourceTracker, TrackerID: "r1", Summary: "Renew passport", Urgency: model.UrgencyThisWeek}
	app := loaded(t, fake, []model.ActionItem{trackerItem}, nil)

	if _, cmd := press(t, app, 't'); cmd != nil {
		t.Error("tracker items cannot be sent to the tracker")
	}
	if _, cmd := press(t, app, 's'); cmd != nil {
		t.Error("tracker items cannot be starred")
	}

	_, cmd := press(t, app, 'd')
	if cmd == nil {
		t.Fatal("tracker items can be completed")
	}
	cmd()
	if len(fake.done) != 1 || fake.done[0] != "r1" {
		t.Errorf("MarkDone calls = %v, want [r1]", fake.done)
	}
}

func TestAppStar(t *testing.T) {
	fake := &fakePipeline{}
	app := loaded(t, fake, threeItems(), nil)

	_, cmd := press(t, app, 's')
	if cmd == nil {
		t.Fatal("s should return a command")
	}
	if msg, ok := cmd().(ActionStarred); !ok || msg.Item.EmailID != "a" {
		t.Errorf("unexpected message %+v", msg)
	}
	if len(fake.starred) != 1 {
		t.Errorf("Star calls = %v", fake.starred)
	}
}

func TestAppActionsOnEmptyList(t *testing.T) {
	app := loaded(t, &fakePipeline{}, nil, nil)
	for _, k := range []rune{'d', 't', 's'} {
		if _, cmd := press(t, app, k); cmd != nil {
			t.Errorf("%q on empty list should do nothing", k)
		}
	}
	if !strings.Contains(app.View(), "Nothing needs you right now.") {
		t.Error("empty view should say so")
	}
}

func TestAppRefresh(t *testing.T) {
	app := NewApp(context.Background(), &fakePipeline{}, false)
	if _, cmd := press(t, app, 'r'); cmd != nil {
		t.Error("refresh during a run should be ignored")
	}

	app = loaded(t, &fakePipeline{}, threeItems(), nil)
	app, cmd := press(t, app, 'r')
	if cmd == nil {
		t.Fatal("r should start a run")
	}
	if !app.running {
		t.Error("app should be running after refresh")
	}
}

func TestAppQuit(t *testing.T) {
	app := loaded(t, &fakePipeline{}, nil, nil)
	for _, msg := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := app.Update(msg)
		if cmd == nil {
			t.Fatalf("%s should return quit command", msg)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s should quit", msg)
		}
	}
}

func TestAppViewNotReady(t *testing.T) {
	app := NewApp(context.Background(), nil, false)
	if got := app.View(); got != "Loading..." {
		t.Errorf("View() = %q, want Loading...", got)
	}
}

func TestAppViewMoreIndicators(t *testing.T) {
	var items []model.ActionItem
	for i := 0; i < 20; i++ {
		items = append(items, item(fmt.Sprintf("m%02d", i), model.UrgencyThisWeek))
	}
	app := loaded(t, &fakePipeline{}, items, nil)
	m, _ := app.Update(tea.WindowSizeMsg{Width: 100, Height: 10})
	app = m.(App)

	view := app.View()
	if !strings.Contains(view, "more below") {
		t.Errorf("top of a long list should show more below:\n%s", view)
	}
	if strings.Contains(view, "more above") {
		t.Errorf("top of list should not show more above:\n%s", view)
	}
	if lines := strings.Count(view, "\n") + 1; lines != 10 {
		t.Errorf("view has %d lines, want 10", lines)
	}

	app, _ = press(t, app, 'G')
	view = app.View()
	if !strings.Contains(view, "more above") || strings.Contains(view, "more below") {
		t.Errorf("bottom of list should only show more above:\n%s", view)
	}
	if !strings.Contains(view, "Summary m19") {
		t.Error("selected item must be visible")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"a longer summary", 10, "a longe..."},
		{"héllo wörld", 8, "héllo..."},
		{"abc", 2, "ab"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
