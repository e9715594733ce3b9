// Package otel records structured run events for triage.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Mail fetch
	KindFetchStart    EventKind = "fetch.start"
	KindFetchComplete EventKind = "fetch.complete"
	KindFetchError    EventKind = "fetch.error"

	// Analysis cache
	KindCacheSplit EventKind = "cache.split"
	KindCacheError EventKind = "cache.error"

	// Batch analysis
	KindAnalyzeStart    EventKind = "analyze.start"
	KindAnalyzeBatch    EventKind = "analyze.batch"
	KindAnalyzeOrphan   EventKind = "analyze.orphan"
	KindAnalyzeComplete EventKind = "analyze.complete"
	KindAnalyzeError    EventKind = "analyze.error"

	// Tracker and reconciliation
	KindTrackerError      EventKind = "tracker.error"
	KindReconcileComplete EventKind = "reconcile.complete"

	// User commands
	KindActionDone  EventKind = "action.done"
	KindActionTrack EventKind = "action.track"
	KindActionError EventKind = "action.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "coord", "analysis", "store", "main"
	SessionID string         `json:"session_id,omitempty"` // same for the whole process
	Account   string         `json:"account,omitempty"`
	ItemID    string         `json:"item_id,omitempty"`
	Batch     int            `json:"batch,omitempty"`
	Dur       time.Duration  `json:"-"`                // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Cached    int            `json:"cached,omitempty"`
	Pending   int            `json:"pending,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
