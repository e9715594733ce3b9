package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/abelbrown/triage/internal/analysis"
	"github.com/abelbrown/triage/internal/coord"
	"github.com/abelbrown/triage/internal/model"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// chromeLines is everything around the list: title, the two "more"
// indicators, the message line and the status bar.
const chromeLines = 5

// Pipeline is what the App drives. *coord.Coordinator satisfies it.
type Pipeline interface {
	Run(ctx context.Context, progress func(analysis.Progress)) (coord.Report, error)
	MarkDone(ctx context.Context, item model.ActionItem) error
	SendToTracker(ctx context.Context, item model.ActionItem) error
	Star(ctx context.Context, item model.ActionItem) error
}

// App is the root Bubble Tea model.
// App does not hold the store or the mail client; results arrive as messages.
type App struct {
	ctx      context.Context
	pipeline Pipeline

	active  []model.ActionItem
	backlog []model.ActionItem
	report  coord.Report

	showBacklog bool
	selected    int

	running  bool
	progress chan analysis.Progress
	last     analysis.Progress
	spinner  spinner.Model

	err    error
	notice string
	width  int
	height int
	ready  bool
}

// NewApp creates an App that starts a pipeline run on Init.
func NewApp(ctx context.Context, p Pipeline, showBacklog bool) App {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(colorHighlight)
	return App{
		ctx:         ctx,
		pipeline:    p,
		showBacklog: showBacklog,
		spinner:     sp,
		running:     p != nil,
		progress:    make(chan analysis.Progress, 16),
	}
}

// Init starts the first run.
func (a App) Init() tea.Cmd {
	if a.pipeline == nil {
		return nil
	}
	return tea.Batch(a.spinner.Tick, runPipeline(a.ctx, a.pipeline, a.progress), listen(a.progress))
}

// runPipeline runs one pass and reports each batch on ch. ch is closed when
// the run ends.
func runPipeline(ctx context.Context, p Pipeline, ch chan<- analysis.Progress) tea.Cmd {
	return func() tea.Msg {
		defer close(ch)
		rep, err := p.Run(ctx, func(pr analysis.Progress) {
			select {
			case ch <- pr:
			case <-ctx.Done():
			}
		})
		return RunFinished{Report: rep, Err: err}
	}
}

// listen waits for the next progress update. A closed channel yields no message.
func listen(ch <-chan analysis.Progress) tea.Cmd {
	return func() tea.Msg {
		pr, ok := <-ch
		if !ok {
			return nil
		}
		return RunProgress{Progress: pr}
	}
}

func (a App) startRun() (App, tea.Cmd) {
	if a.running || a.pipeline == nil {
		return a, nil
	}
	a.running = true
	a.last = analysis.Progress{}
	a.progress = make(chan analysis.Progress, 16)
	return a, tea.Batch(a.spinner.Tick, runPipeline(a.ctx, a.pipeline, a.progress), listen(a.progress))
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		return a, nil

	case spinner.TickMsg:
		if !a.running {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case RunProgress:
		a.last = msg.Progress
		return a, listen(a.progress)

	case RunFinished:
		a.running = false
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.report = msg.Report
		a.active = msg.Report.Active
		a.backlog = msg.Report.Backlog
		a.err = nil
		a.notice = runNotice(msg.Report)
		a.clampSelection()
		return a, nil

	case ActionDone:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.active = without(a.active, msg.Item)
		a.backlog = without(a.backlog, msg.Item)
		a.notice = "Done: " + msg.Item.Summary
		a.clampSelection()
		return a, nil

	case ActionTracked:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		setState(a.active, msg.Item, model.TrackerPending)
		setState(a.backlog, msg.Item, model.TrackerPending)
		a.notice = "Sent to tracker: " + msg.Item.Summary
		return a, nil

	case ActionStarred:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.notice = "Starred: " + msg.Item.Summary
		return a, nil
	}

	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Any key dismisses the last error or notice.
	a.err = nil
	a.notice = ""

	n := len(a.visible())
	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, keys.Down):
		if a.selected < n-1 {
			a.selected++
		}
		return a, nil

	case key.Matches(msg, keys.Up):
		if a.selected > 0 {
			a.selected--
		}
		return a, nil

	case key.Matches(msg, keys.Top):
		a.selected = 0
		return a, nil

	case key.Matches(msg, keys.Bottom):
		if n > 0 {
			a.selected = n - 1
		}
		return a, nil

	case key.Matches(msg, keys.Backlog):
		a.showBacklog = !a.showBacklog
		a.selected = 0
		return a, nil

	case key.Matches(msg, keys.Refresh):
		return a.startRun()

	case key.Matches(msg, keys.Done):
		item, ok := a.current()
		if !ok || a.pipeline == nil {
			return a, nil
		}
		return a, a.itemCmd(item, a.pipeline.MarkDone, func(it model.ActionItem, err error) tea.Msg {
			return ActionDone{Item: it, Err: err}
		})

	case key.Matches(msg, keys.Track):
		item, ok := a.current()
		if !ok || a.pipeline == nil || item.Source == model.SourceTracker || item.State == model.TrackerPending {
			return a, nil
		}
		return a, a.itemCmd(item, a.pipeline.SendToTracker, func(it model.ActionItem, err error) tea.Msg {
			return ActionTracked{Item: it, Err: err}
		})

	case key.Matches(msg, keys.Star):
		item, ok := a.current()
		if !ok || a.pipeline == nil || item.Source == model.SourceTracker {
			return a, nil
		}
		return a, a.itemCmd(item, a.pipeline.Star, func(it model.ActionItem, err error) tea.Msg {
			return ActionStarred{Item: it, Err: err}
		})
	}

	return a, nil
}

func (a App) itemCmd(item model.ActionItem, do func(context.Context, model.ActionItem) error, wrap func(model.ActionItem, error) tea.Msg) tea.Cmd {
	ctx := a.ctx
	return func() tea.Msg {
		return wrap(item, do(ctx, item))
	}
}

// visible returns the items of the current view in display order.
func (a App) visible() []model.ActionItem {
	if a.showBacklog {
		return a.backlog
	}
	return a.active
}

func (a App) rows() []Row {
	if a.showBacklog {
		return SingleSection("Backlog", a.backlog)
	}
	return BuildRows(a.active)
}

// current returns the selected item. Selection counts item rows, which
// BuildRows may reorder relative to the items slice.
func (a App) current() (model.ActionItem, bool) {
	items := a.visible()
	rows := a.rows()
	idx := ItemRows(rows)
	if a.selected < 0 || a.selected >= len(idx) {
		return model.ActionItem{}, false
	}
	return items[rows[idx[a.selected]].Item], true
}

func (a *App) clampSelection() {
	n := len(a.visible())
	if a.selected >= n {
		a.selected = n - 1
	}
	if a.selected < 0 {
		a.selected = 0
	}
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(a.renderTitle())
	b.WriteString("\n")

	listHeight := max(1, a.height-chromeLines)
	items := a.visible()
	rows := a.rows()
	w := ComputeWindow(rows, a.selected, listHeight)

	b.WriteString(moreLine(w.ItemsAbove, "above"))
	b.WriteString("\n")

	lines := 0
	if len(rows) == 0 {
		b.WriteString(MetaText.Padding(0, 1).Render(a.emptyText()))
		b.WriteString("\n")
		lines++
	}
	selRow := -1
	if idx := ItemRows(rows); a.selected < len(idx) {
		selRow = idx[a.selected]
	}
	for i := w.Start; i < w.End; i++ {
		r := rows[i]
		if r.Kind == RowHeader {
			b.WriteString(SectionHeader.Render(r.Title))
		} else {
			b.WriteString(renderItemLine(items[r.Item], i == selRow, a.width))
		}
		b.WriteString("\n")
		lines++
	}
	for ; lines < listHeight; lines++ {
		b.WriteString("\n")
	}

	b.WriteString(moreLine(w.ItemsBelow, "below"))
	b.WriteString("\n")
	b.WriteString(a.renderMessage())
	b.WriteString("\n")
	b.WriteString(a.renderStatusBar())
	return b.String()
}

func (a App) renderTitle() string {
	view := "Active"
	count := len(a.active)
	if a.showBacklog {
		view = "Backlog"
		count = len(a.backlog)
	}
	title := TitleStyle.Render("triage")
	meta := MetaText.Render(fmt.Sprintf("%s · %d", view, count))
	if a.running {
		meta += " " + a.spinner.View() + " " + ProgressCount.Render(progressText(a.last))
	}
	return title + meta
}

func (a App) emptyText() string {
	switch {
	case a.running:
		return "Working..."
	case a.showBacklog:
		return "Backlog is empty."
	default:
		return "Nothing needs you right now."
	}
}

func (a App) renderMessage() string {
	switch {
	case a.err != nil:
		return ErrorStyle.Render(oneLine("Error: "+a.err.Error(), a.width-2))
	case a.notice != "":
		return NoticeStyle.Render(oneLine(a.notice, a.width-2))
	}
	return ""
}

// renderStatusBar renders the key hints.
func (a App) renderStatusBar() string {
	parts := make([]string, 0, len(statusHints))
	for _, k := range statusHints {
		h := k.Help()
		parts = append(parts, StatusBarKey.Render(h.Key)+" "+StatusBarText.Render(h.Desc))
	}
	return StatusBar.Width(a.width).MaxHeight(1).Render(strings.Join(parts, "  "))
}

func progressText(p analysis.Progress) string {
	if p.Batches == 0 {
		return "fetching mail"
	}
	return fmt.Sprintf("batch %d/%d · %d cached · %d pending", p.Batch, p.Batches, p.Cached, p.Pending)
}

func moreLine(n int, where string) string {
	if n == 0 {
		return ""
	}
	return MoreIndicator.Render(fmt.Sprintf("↕ %d more %s", n, where))
}

func runNotice(rep coord.Report) string {
	var parts []string
	if len(rep.FailedAccounts) > 0 {
		parts = append(parts, fmt.Sprintf("%d account(s) skipped", len(rep.FailedAccounts)))
	}
	if rep.TrackerErr != nil {
		parts = append(parts, "tracker unavailable")
	}
	if rep.CacheErr != nil {
		parts = append(parts, "results not cached")
	}
	return strings.Join(parts, " · ")
}

// renderItemLine renders a single action item.
func renderItemLine(it model.ActionItem, selected bool, width int) string {
	marker := urgencyStyles[string(it.Urgency)].Render("●")

	var meta []string
	if it.Person != "" {
		meta = append(meta, it.Person)
	}
	if it.Deadline != "" {
		meta = append(meta, "due "+it.Deadline)
	}
	switch it.State {
	case model.TrackerPending:
		meta = append(meta, "tracked")
	case model.TrackerCompleted:
		meta = append(meta, "completed")
	}
	if it.Source == model.SourceTracker {
		meta = append(meta, "tracker")
	}

	badge := AccountBadge.Render(it.Account)
	suffix := ""
	if len(meta) > 0 {
		suffix = "  " + strings.Join(meta, " · ")
	}

	// Leave room for padding, marker and badge.
	avail := width - lipgloss.Width(badge) - 6
	summary := truncate(it.Summary, avail-len([]rune(suffix)))

	line := marker + " " + badge + summary
	switch {
	case selected:
		return SelectedItem.Render(line + suffix)
	case it.State == model.TrackerCompleted:
		return DoneItem.Render(line + suffix)
	default:
		return NormalItem.Render(line + MetaText.Render(suffix))
	}
}

// oneLine flattens s onto a single line of at most n runes.
func oneLine(s string, n int) string {
	return truncate(strings.Join(strings.Fields(s), " "), n)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 {
		return ""
	}
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func without(items []model.ActionItem, it model.ActionItem) []model.ActionItem {
	out := items[:0:0]
	for _, x := range items {
		if x.Source == it.Source && x.ID() == it.ID() {
			continue
		}
		out = append(out, x)
	}
	return out
}

func setState(items []model.ActionItem, it model.ActionItem, s model.TrackerState) {
	for i := range items {
		if items[i].Source == it.Source && items[i].ID() == it.ID() {
			items[i].State = s
		}
	}
}

// Selected returns the selection index (for testing).
func (a App) Selected() int {
	return a.selected
}
