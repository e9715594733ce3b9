// Package ui provides the Bubble Tea TUI for triage.
package ui

import (
	"github.com/abelbrown/triage/internal/analysis"
	"github.com/abelbrown/triage/internal/coord"
	"github.com/abelbrown/triage/internal/model"
)

// RunStarted is sent when a pipeline run begins.
type RunStarted struct{}

// RunProgress is sent after each analysis batch.
type RunProgress struct {
	Progress analysis.Progress
}

// RunFinished is sent when a pipeline run ends.
type RunFinished struct {
	Report coord.Report
	Err    error
}

// ActionDone is sent when an item was marked done.
type ActionDone struct {
	Item model.ActionItem
	Err  error
}

// ActionTracked is sent when an item was sent to the tracker.
type ActionTracked struct {
	Item model.ActionItem
	Err  error
}

// ActionStarred is sent when an item's email was starred.
type ActionStarred struct {
	Item model.ActionItem
	Err  error
}
