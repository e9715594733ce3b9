// Package coord runs the triage pipeline and the user commands that act on
// its results.
package coord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/triage/internal/analysis"
	"github.com/abelbrown/triage/internal/logging"
	"github.com/abelbrown/triage/internal/mail"
	"github.com/abelbrown/triage/internal/model"
	"github.com/abelbrown/triage/internal/otel"
	"github.com/abelbrown/triage/internal/reconcile"
	"github.com/abelbrown/triage/internal/store"
	"github.com/abelbrown/triage/internal/tracker"
)

// fetchTimeout is the timeout for each account's fetch.
const fetchTimeout = 60 * time.Second

// maxConcurrentFetches limits parallel fetch operations.
const maxConcurrentFetches = 5

// Pipeline stages named in StageError.
const (
	StageFetch   = "fetch"
	StageAnalyze = "analyze"
)

var (
	// ErrNoTracker is returned by tracker commands when no tracker is configured.
	ErrNoTracker = errors.New("no task tracker configured")

	// ErrWrongSource is returned when a command does not apply to the item's source.
	ErrWrongSource = errors.New("command does not apply to this item")
)

// StageError reports which pipeline stage made a run fail.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// analyzer is the analysis stage. *analysis.Orchestrator implements it.
type analyzer interface {
	Analyze(ctx context.Context, byAccount map[string][]model.Email, ref time.Time, progress func(analysis.Progress)) ([]model.ActionItem, error)
}

// Deps are the collaborators of a Coordinator. Tracker may be nil.
type Deps struct {
	Store       *store.Store
	Mail        mail.Source
	Accounts    []string
	Analyzer    analyzer
	Tracker     tracker.Tracker
	TrackerList string
	Staleness   time.Duration
	Events      *otel.Logger
}

// Coordinator owns one triage session: sequential pipeline runs plus the
// commands the user issues against their results.
type Coordinator struct {
	store       *store.Store
	mail        mail.Source
	accounts    []string // IMMUTABLE: set at construction, never modified
	analyzer    analyzer
	tracker     tracker.Tracker
	trackerList string
	reconciler  *reconcile.Reconciler
	events      *otel.Logger
	now         func() time.Time
}

// New creates a Coordinator.
func New(d Deps) *Coordinator {
	accounts := make([]string, len(d.Accounts))
	copy(accounts, d.Accounts)

	r := &reconcile.Reconciler{
		List:      d.TrackerList,
		Staleness: d.Staleness,
		Events:    d.Events,
	}
	if d.Tracker != nil {
		r.Tracker = d.Tracker
	}

	return &Coordinator{
		store:       d.Store,
		mail:        d.Mail,
		accounts:    accounts,
		analyzer:    d.Analyzer,
		tracker:     d.Tracker,
		trackerList: d.TrackerList,
		reconciler:  r,
		events:      d.Events,
		now:         time.Now,
	}
}

// Report is the outcome of one pipeline run.
type Report struct {
	reconcile.Result

	Emails         int              // emails fetched across accounts
	FailedAccounts map[string]error // accounts skipped this run
	CacheErr       error            // results computed but not all cached
	Started        time.Time
	Elapsed        time.Duration
}

// Run fetches every account, analyzes the emails and reconciles the result
// with the tracker. Failed accounts are skipped; the run fails only when no
// account could be fetched or analysis fails. progress may be nil.
func (c *Coordinator) Run(ctx context.Context, progress func(analysis.Progress)) (Report, error) {
	start := c.now()
	rep := Report{Started: start}

	byAccount, failed := c.fetchAll(ctx)
	rep.FailedAccounts = failed
	for _, emails := range byAccount {
		rep.Emails += len(emails)
	}
	if len(c.accounts) > 0 && len(failed) == len(c.accounts) {
		errs := make([]error, 0, len(failed))
		for _, name := range c.accounts {
			errs = append(errs, fmt.Errorf("%s: %w", name, failed[name]))
		}
		return rep, &StageError{Stage: StageFetch, Err: errors.Join(errs...)}
	}
	if err := ctx.Err(); err != nil {
		return rep, &StageError{Stage: StageFetch, Err: err}
	}

	items, err := c.analyzer.Analyze(ctx, byAccount, start, progress)
	if err != nil {
		if !errors.Is(err, analysis.ErrCacheWrite) {
			return rep, &StageError{Stage: StageAnalyze, Err: err}
		}
		logging.Warn("some results were not cached", "error", err)
		rep.CacheErr = err
	}

	rep.Result = c.reconciler.Reconcile(ctx, items, start)
	rep.Elapsed = c.now().Sub(start)
	logging.Info("run complete", "emails", rep.Emails, "active", len(rep.Active), "backlog", len(rep.Backlog),
		"failed_accounts", len(failed), "elapsed", rep.Elapsed)
	return rep, nil
}

// fetchAll lists every account in parallel with a per-account timeout.
func (c *Coordinator) fetchAll(ctx context.Context) (map[string][]model.Email, map[string]error) {
	var (
		mu     sync.Mutex
		out    = make(map[string][]model.Email)
		failed = make(map[string]error)
	)

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)

	for _, account := range c.accounts {
		g.Go(func() error {
			// Early exit if context cancelled
			if err := ctx.Err(); err != nil {
				mu.Lock()
				failed[account] = err
				mu.Unlock()
				return nil
			}

			fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()

			start := c.now()
			c.events.Emit(otel.Event{Kind: otel.KindFetchStart, Comp: "coord", Account: account})
			emails, err := c.mail.List(fetchCtx, account)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logging.Warn("fetch failed, skipping account", "account", account, "error", err)
				c.events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindFetchError, Comp: "coord", Account: account, Err: err.Error()})
				failed[account] = err
				return nil // never fail the group - errors reported per-account
			}
			out[account] = emails
			c.events.Emit(otel.Event{Kind: otel.KindFetchComplete, Comp: "coord", Account: account, Count: len(emails), Dur: c.now().Sub(start)})
			return nil
		})
	}

	_ = g.Wait() // All goroutines return nil
	return out, failed
}

// MarkDone resolves an item. For an analysis item the email is marked
// resolved, its cache entry is removed so it cannot resurface, and any linked
// tracker entry is completed. A tracker item is completed in the tracker.
func (c *Coordinator) MarkDone(ctx context.Context, item model.ActionItem) error {
	if item.Source == model.SourceTracker {
		if c.tracker == nil {
			return ErrNoTracker
		}
		if err := c.tracker.CompleteByID(ctx, c.trackerList, item.TrackerID); err != nil {
			c.actionError("done", item, err)
			return fmt.Errorf("complete tracker entry: %w", err)
		}
		c.events.Emit(otel.Event{Kind: otel.KindActionDone, Comp: "coord", ItemID: item.TrackerID})
		return nil
	}

	var errs []error
	if err := c.mail.MarkResolved(ctx, item.Account, item.EmailID); err != nil {
		c.actionError("resolve", item, err)
		errs = append(errs, fmt.Errorf("mark resolved: %w", err))
	}
	if err := c.store.Remove(item.EmailID); err != nil {
		c.actionError("uncache", item, err)
		errs = append(errs, fmt.Errorf("remove cache entry: %w", err))
	}
	if c.tracker != nil {
		if err := c.tracker.CompleteByBackRef(ctx, c.trackerList, item.EmailID); err != nil {
			// Optional collaborator: logged, not reported.
			c.actionError("complete-linked", item, err)
		}
	}

	c.events.Emit(otel.Event{Kind: otel.KindActionDone, Comp: "coord", Account: item.Account, ItemID: item.EmailID})
	return errors.Join(errs...)
}

// SendToTracker creates a tracker entry for an analysis item, linked back
// to its email.
func (c *Coordinator) SendToTracker(ctx context.Context, item model.ActionItem) error {
	if c.tracker == nil {
		return ErrNoTracker
	}
	if item.Source != model.SourceAnalysis {
		return fmt.Errorf("%w: already a tracker entry", ErrWrongSource)
	}

	draft := tracker.Draft{
		Title: item.Summary,
		Notes: trackerNotes(item),
		Due:   parseDeadline(item.Deadline, c.now().Location()),
	}
	if item.Urgency == model.UrgencyOverdue {
		draft.Priority = 1
	}

	if err := c.tracker.Create(ctx, c.trackerList, draft); err != nil {
		c.actionError("track", item, err)
		return fmt.Errorf("create tracker entry: %w", err)
	}
	c.events.Emit(otel.Event{Kind: otel.KindActionTrack, Comp: "coord", Account: item.Account, ItemID: item.EmailID})
	return nil
}

// Star stars the email behind an analysis item.
func (c *Coordinator) Star(ctx context.Context, item model.ActionItem) error {
	if item.Source != model.SourceAnalysis {
		return fmt.Errorf("%w: tracker entries have no email", ErrWrongSource)
	}
	if err := c.mail.MarkStarred(ctx, item.Account, item.EmailID); err != nil {
		c.actionError("star", item, err)
		return fmt.Errorf("star email: %w", err)
	}
	return nil
}

// ClearCache forgets every analysis result.
func (c *Coordinator) ClearCache() error {
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	logging.Info("analysis cache cleared")
	return nil
}

// CacheStats reports the analysis cache contents.
func (c *Coordinator) CacheStats() (store.Stats, error) {
	return c.store.Stats()
}

func (c *Coordinator) actionError(action string, item model.ActionItem, err error) {
	logging.Warn("action failed", "action", action, "item", item.ID(), "error", err)
	c.events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindActionError, Comp: "coord",
		Account: item.Account, ItemID: item.ID(), Err: err.Error(), Msg: action})
}

func trackerNotes(item model.ActionItem) string {
	var lines []string
	if item.Reason != "" {
		lines = append(lines, item.Reason)
	}
	if item.Person != "" {
		lines = append(lines, "From: "+item.Person)
	}
	lines = append(lines, tracker.BackRef(item.EmailID))
	return strings.Join(lines, "\n")
}

// parseDeadline reads the YYYY-MM-DD deadline the analysis produces.
func parseDeadline(s string, loc *time.Location) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(model.DeadlineLayout, s, loc)
	if err != nil {
		logging.Debug("ignoring unparseable deadline", "deadline", s)
		return nil
	}
	return &t
}
