package ui

import "github.com/abelbrown/triage/internal/model"

// RowKind distinguishes section headers from items in the flat list.
type RowKind int

const (
	RowHeader RowKind = iota
	RowItem
)

// Row is one line of the sectioned list.
type Row struct {
	Kind  RowKind
	Title string // header text; empty for items
	Item  int    // index into the items slice; -1 for headers
}

// BuildRows groups items into urgency sections in fixed order (overdue,
// this week, when you can), each preceded by its header. Empty sections
// are skipped. Items keep their relative order within a section.
func BuildRows(items []model.ActionItem) []Row {
	var rows []Row
	for _, u := range model.Urgencies {
		header := false
		for i, it := range items {
			if it.Urgency != u {
				continue
			}
			if !header {
				rows = append(rows, Row{Kind: RowHeader, Title: u.Label(), Item: -1})
				header = true
			}
			rows = append(rows, Row{Kind: RowItem, Item: i})
		}
	}
	return rows
}

// SingleSection puts every item under one header, in input order.
func SingleSection(title string, items []model.ActionItem) []Row {
	if len(items) == 0 {
		return nil
	}
	rows := make([]Row, 0, len(items)+1)
	rows = append(rows, Row{Kind: RowHeader, Title: title, Item: -1})
	for i := range items {
		rows = append(rows, Row{Kind: RowItem, Item: i})
	}
	return rows
}

// ItemRows returns the flat index of every item row, in display order.
// Selection indexes into this slice.
func ItemRows(rows []Row) []int {
	var out []int
	for i, r := range rows {
		if r.Kind == RowItem {
			out = append(out, i)
		}
	}
	return out
}

// Window is the visible slice rows[Start:End] plus what lies outside it.
type Window struct {
	Start, End int

	Above, Below           int // rows outside the window, headers included
	ItemsAbove, ItemsBelow int // items outside the window
}

// ComputeWindow picks at most height rows to show around the selected item
// (an index over item rows only). The window is centered on the selection,
// clamped to the list ends, and pulls in the section header directly above
// its first row when the window can give up its last row for it. The window
// never exceeds height rows; when the selection is the last visible row the
// first row is left headerless instead.
func ComputeWindow(rows []Row, selected, height int) Window {
	n := len(rows)
	items := ItemRows(rows)
	if n == 0 || height <= 0 || len(items) == 0 {
		return Window{}
	}

	selected = max(0, min(selected, len(items)-1))
	focus := items[selected]

	start, end := 0, n
	if height < n {
		start = focus - height/2
		if start < 0 {
			start = 0
		}
		if start+height > n {
			start = n - height
		}
		end = start + height

		if start > 0 && rows[start].Kind == RowItem && rows[start-1].Kind == RowHeader && focus < end-1 {
			start--
			end--
		}
	}

	w := Window{Start: start, End: end, Above: start, Below: n - end}
	for _, idx := range items {
		switch {
		case idx < start:
			w.ItemsAbove++
		case idx >= end:
			w.ItemsBelow++
		}
	}
	return w
}
