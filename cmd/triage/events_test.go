package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/triage/internal/otel"
	"github.com/google/go-cmp/cmp"
)

// writeEvents produces a JSONL log through the real event logger.
func writeEvents(t *testing.T, events ...otel.Event) string {
	t.Helper()
	var buf bytes.Buffer
	l := otel.NewLogger(&buf)
	for _, e := range events {
		l.Emit(e)
	}
	l.Close()
	return buf.String()
}

func kinds(lines []parsedLine) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.ev.Kind
	}
	return out
}

func TestReadTailLines(t *testing.T) {
	log := writeEvents(t,
		otel.Event{Kind: otel.KindFetchStart, Level: otel.LevelInfo, Comp: "coord", Account: "work"},
		otel.Event{Kind: otel.KindFetchError, Level: otel.LevelError, Comp: "coord", Account: "personal", Err: "token expired"},
		otel.Event{Kind: otel.KindAnalyzeBatch, Level: otel.LevelInfo, Comp: "analysis", Batch: 1},
		otel.Event{Kind: otel.KindAnalyzeBatch, Level: otel.LevelInfo, Comp: "analysis", Batch: 2},
		otel.Event{Kind: otel.KindAnalyzeComplete, Level: otel.LevelInfo, Comp: "analysis"},
	)
	log += "not json\n\n"

	tests := []struct {
		name   string
		n      int
		filter eventFilter
		want   []string
	}{
		{"all", 10, eventFilter{}, []string{"fetch.start", "fetch.error", "analyze.batch", "analyze.batch", "analyze.complete"}},
		{"tail", 2, eventFilter{}, []string{"analyze.batch", "analyze.complete"}},
		{"kind prefix", 10, eventFilter{kind: "fetch"}, []string{"fetch.start", "fetch.error"}},
		{"min level", 10, eventFilter{level: "warn"}, []string{"fetch.error"}},
		{"account", 10, eventFilter{account: "work"}, []string{"fetch.start"}},
		{"component", 1, eventFilter{comp: "coord"}, []string{"fetch.error"}},
		{"zero", 0, eventFilter{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readTailLines(strings.NewReader(log), tt.n, tt.filter.match)
			var gotKinds []string
			if len(got) > 0 {
				gotKinds = kinds(got)
			}
			if diff := cmp.Diff(tt.want, gotKinds); diff != "" {
				t.Errorf("kinds mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatEvent(t *testing.T) {
	ev := eventRecord{
		Time:     time.Date(2026, 10, 16, 9, 30, 0, 0, time.Local),
		Level:    "warn",
		Kind:     "analyze.orphan",
		Comp:     "analysis",
		Account:  "work",
		Batch:    3,
		ItemID:   "m42",
		Provider: "claude-cli",
		DurMs:    12.34,
		Msg:      "result for unknown email",
	}
	got := formatEvent(ev)
	for _, want := range []string{
		"09:30:00.000 WARN",
		"[analysis]",
		"analyze.orphan",
		"- result for unknown email",
		"(12.3ms)",
		"acct=work",
		"batch=3",
		"via=claude-cli",
		"item=m42",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("formatEvent missing %q in %q", want, got)
		}
	}
}

func TestTrimLine(t *testing.T) {
	if got := string(trimLine([]byte("abc\r\n"))); got != "abc" {
		t.Errorf("trimLine = %q", got)
	}
}
