package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abelbrown/triage/internal/config"
	flag "github.com/spf13/pflag"
)

// eventRecord mirrors otel.Event for JSON decoding. Decoding from JSONL
// keeps old logs readable after the event schema changes.
type eventRecord struct {
	Time      time.Time      `json:"t"`
	Level     string         `json:"level"`
	Kind      string         `json:"kind"`
	Comp      string         `json:"comp"`
	SessionID string         `json:"session_id"`
	Account   string         `json:"account"`
	ItemID    string         `json:"item_id"`
	Batch     int            `json:"batch"`
	DurMs     float64        `json:"dur_ms"`
	Count     int            `json:"count"`
	Cached    int            `json:"cached"`
	Pending   int            `json:"pending"`
	Provider  string         `json:"provider"`
	Err       string         `json:"err"`
	Msg       string         `json:"msg"`
	Extra     map[string]any `json:"extra"`
}

// levelRank returns a numeric rank for filtering (higher = more severe).
func levelRank(level string) int {
	switch level {
	case "debug":
		return 0
	case "info":
		return 1
	case "warn":
		return 2
	case "error":
		return 3
	default:
		return 0
	}
}

type eventFilter struct {
	kind    string
	level   string
	comp    string
	account string
	session string
}

func (f eventFilter) match(ev eventRecord) bool {
	if f.kind != "" && !strings.HasPrefix(ev.Kind, f.kind) {
		return false
	}
	if f.level != "" && levelRank(ev.Level) < levelRank(f.level) {
		return false
	}
	if f.comp != "" && ev.Comp != f.comp {
		return false
	}
	if f.account != "" && ev.Account != f.account {
		return false
	}
	if f.session != "" && ev.SessionID != f.session {
		return false
	}
	return true
}

func runEvents(args []string) int {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	tail := fs.IntP("tail", "n", 50, "Number of recent lines to show")
	follow := fs.BoolP("follow", "f", false, "Follow mode (like tail -f)")
	rawJSON := fs.Bool("json", false, "Output raw JSON lines")
	path := fs.String("file", "", "Event log (default <data_dir>/events.jsonl)")
	var filter eventFilter
	fs.StringVar(&filter.kind, "kind", "", "Filter by event kind prefix (e.g. 'analyze')")
	fs.StringVar(&filter.level, "level", "", "Minimum level: debug, info, warn, error")
	fs.StringVar(&filter.comp, "comp", "", "Filter by component name")
	fs.StringVar(&filter.account, "account", "", "Filter by mail account")
	fs.StringVar(&filter.session, "session", "", "Filter by session id")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logPath := *path
	if logPath == "" {
		cfg, err := config.Load("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		logPath = cfg.EventsPath()
	}

	f, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintf(os.Stderr, "  Event log not found at %s\n", logPath)
		fmt.Fprintf(os.Stderr, "  Run triage first to generate events.\n")
		return 1
	}
	defer f.Close()

	format := func(ev eventRecord, raw []byte) string {
		if *rawJSON {
			return string(raw)
		}
		return formatEvent(ev)
	}

	for _, l := range readTailLines(f, *tail, filter.match) {
		fmt.Println(format(l.ev, l.raw))
	}
	if !*follow {
		return 0
	}

	// The scanner consumed the file; keep polling from the end.
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return 1
		}
		line = trimLine(line)
		if len(line) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(line, &ev) != nil {
			continue
		}
		if filter.match(ev) {
			fmt.Println(format(ev, line))
		}
	}
}

func formatEvent(ev eventRecord) string {
	ts := ev.Time.Local().Format("15:04:05.000")
	lvl := strings.ToUpper(ev.Level)
	if lvl == "" {
		lvl = "?"
	}

	parts := []string{fmt.Sprintf("%s %-5s [%-8s] %-20s", ts, lvl, ev.Comp, ev.Kind)}
	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Account != "" {
		parts = append(parts, "acct="+ev.Account)
	}
	if ev.Batch > 0 {
		parts = append(parts, fmt.Sprintf("batch=%d", ev.Batch))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Cached > 0 || ev.Pending > 0 {
		parts = append(parts, fmt.Sprintf("cached=%d pending=%d", ev.Cached, ev.Pending))
	}
	if ev.Provider != "" {
		parts = append(parts, "via="+ev.Provider)
	}
	if ev.ItemID != "" {
		parts = append(parts, "item="+ev.ItemID)
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}
	return strings.Join(parts, " ")
}

type parsedLine struct {
	ev  eventRecord
	raw []byte
}

// readTailLines returns the last n lines of r matching the filter.
func readTailLines(r io.Reader, n int, match func(eventRecord) bool) []parsedLine {
	scanner := bufio.NewScanner(r)
	// Allow large lines (some events may have big Extra maps)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	if n <= 0 {
		return nil
	}
	ring := make([]parsedLine, 0, n)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(raw, &ev) != nil {
			continue
		}
		if !match(ev) {
			continue
		}
		// Copy raw since the scanner reuses its buffer
		rawCopy := make([]byte, len(raw))
		copy(rawCopy, raw)

		if len(ring) < n {
			ring = append(ring, parsedLine{ev: ev, raw: rawCopy})
		} else {
			copy(ring, ring[1:])
			ring[n-1] = parsedLine{ev: ev, raw: rawCopy}
		}
	}
	return ring
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
