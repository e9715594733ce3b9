// Package analysis turns emails into action items, reusing cached results
// and sending only changed emails to the reasoning backend.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/abelbrown/triage/internal/brain"
	"github.com/abelbrown/triage/internal/logging"
	"github.com/abelbrown/triage/internal/model"
	"github.com/abelbrown/triage/internal/otel"
	"github.com/abelbrown/triage/internal/store"
)

// DefaultBatchSize bounds how many emails go into one backend request.
const DefaultBatchSize = 50

// ErrCacheWrite marks a batch whose results were computed but could not be
// cached. The returned items are still complete.
var ErrCacheWrite = errors.New("cache write failed")

// Invoker is the reasoning backend. *brain.Adapter implements it.
type Invoker interface {
	Invoke(ctx context.Context, req brain.Request, out brain.Validator) error
}

// Progress is reported after each batch.
type Progress struct {
	Cached  int // emails with a known outcome so far
	Pending int // emails still waiting for analysis
	Batch   int // batches done
	Batches int // total batches in this run
}

// Orchestrator runs the cache-then-analyze loop.
type Orchestrator struct {
	store     *store.Store
	backend   Invoker
	events    *otel.Logger
	batchSize int
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize overrides DefaultBatchSize. Non-positive values are ignored.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithEvents emits run events to l.
func WithEvents(l *otel.Logger) Option {
	return func(o *Orchestrator) { o.events = l }
}

// New creates an Orchestrator over st and backend.
func New(st *store.Store, backend Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		backend:   backend,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type pending struct {
	email       model.Email
	fingerprint string
}

// Analyze returns the action items for every email in byAccount.
//
// Emails whose fingerprint matches the cache are answered from it. The rest
// are sent to the backend in batches, strictly one after another, and each
// batch is cached atomically before the next starts. A backend failure on
// any batch aborts the call; batches already cached stay cached.
func (o *Orchestrator) Analyze(ctx context.Context, byAccount map[string][]model.Email, ref time.Time, progress func(Progress)) ([]model.ActionItem, error) {
	start := o.now()

	accounts := make([]string, 0, len(byAccount))
	for name := range byAccount {
		accounts = append(accounts, name)
	}
	sort.Strings(accounts)

	var (
		items  []model.ActionItem
		misses []pending
		hits   int
	)
	for _, account := range accounts {
		for _, e := range byAccount[account] {
			if e.Account == "" {
				e.Account = account
			}
			fp := e.Fingerprint()
			entry, ok := o.store.Lookup(e.ID, fp)
			if !ok {
				misses = append(misses, pending{email: e, fingerprint: fp})
				continue
			}
			hits++
			if entry.Actionable && entry.Action != nil {
				items = append(items, *entry.Action)
			}
		}
	}

	o.events.Emit(otel.Event{Kind: otel.KindCacheSplit, Comp: "analysis", Cached: hits, Pending: len(misses)})
	logging.Info("cache split", "hits", hits, "misses", len(misses), "actionable_cached", len(items))

	if len(misses) == 0 {
		return items, nil
	}

	batches := (len(misses) + o.batchSize - 1) / o.batchSize
	o.events.Emit(otel.Event{Kind: otel.KindAnalyzeStart, Comp: "analysis", Count: len(misses), Extra: map[string]any{"batches": batches}})

	var writeErrs []error
	done := 0
	for n := 0; n < batches; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lo := n * o.batchSize
		hi := min(lo+o.batchSize, len(misses))
		batch := misses[lo:hi]

		produced, err := o.runBatch(ctx, n+1, batches, batch, ref)
		if err != nil {
			if errors.Is(err, ErrCacheWrite) {
				writeErrs = append(writeErrs, err)
			} else {
				o.events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindAnalyzeError, Comp: "analysis", Batch: n + 1, Err: err.Error()})
				return nil, fmt.Errorf("batch %d/%d: %w", n+1, batches, err)
			}
		}
		items = append(items, produced...)

		done += len(batch)
		if progress != nil {
			progress(Progress{
				Cached:  hits + done,
				Pending: len(misses) - done,
				Batch:   n + 1,
				Batches: batches,
			})
		}
	}

	o.events.Emit(otel.Event{Kind: otel.KindAnalyzeComplete, Comp: "analysis", Count: len(items), Dur: o.now().Sub(start)})
	logging.Info("analysis complete", "items", len(items), "analyzed", len(misses), "elapsed", o.now().Sub(start))

	if len(writeErrs) > 0 {
		return items, errors.Join(writeErrs...)
	}
	return items, nil
}

// runBatch invokes the backend once and caches an outcome for every email in
// the batch. A cache write failure is reported with ErrCacheWrite alongside
// the produced items.
func (o *Orchestrator) runBatch(ctx context.Context, n, total int, batch []pending, ref time.Time) ([]model.ActionItem, error) {
	start := o.now()

	var result batchResult
	if err := o.backend.Invoke(ctx, buildRequest(batch, ref), &result); err != nil {
		return nil, err
	}

	byID := make(map[string]model.Email, len(batch))
	for _, p := range batch {
		byID[p.email.ID] = p.email
	}

	produced := make(map[string]model.ActionItem, len(result.Actions))
	var items []model.ActionItem
	for _, r := range result.Actions {
		e, ok := byID[r.EmailID]
		if !ok {
			logging.Warn("dropping result for unknown email", "email_id", r.EmailID, "batch", n)
			o.events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindAnalyzeOrphan, Comp: "analysis", ItemID: r.EmailID, Batch: n})
			continue
		}
		if _, dup := produced[r.EmailID]; dup {
			logging.Debug("duplicate result ignored", "email_id", r.EmailID)
			continue
		}
		item := toActionItem(r, e)
		produced[r.EmailID] = item
		items = append(items, item)
	}

	analyzedAt := o.now()
	entries := make([]store.CacheEntry, 0, len(batch))
	for _, p := range batch {
		entry := store.CacheEntry{
			ItemID:      p.email.ID,
			Fingerprint: p.fingerprint,
			AnalyzedAt:  analyzedAt,
		}
		if item, ok := produced[p.email.ID]; ok {
			entry.Actionable = true
			entry.Action = &item
		}
		entries = append(entries, entry)
	}

	o.events.Emit(otel.Event{Kind: otel.KindAnalyzeBatch, Comp: "analysis", Batch: n, Count: len(batch), Dur: o.now().Sub(start),
		Extra: map[string]any{"actionable": len(items), "total": total}})

	if err := o.store.BulkWrite(entries); err != nil {
		logging.Error("failed to cache batch", "batch", n, "error", err)
		o.events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindCacheError, Comp: "analysis", Batch: n, Err: err.Error()})
		return items, fmt.Errorf("%w: batch %d: %v", ErrCacheWrite, n, err)
	}
	return items, nil
}
