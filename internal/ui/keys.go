package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Top     key.Binding
	Bottom  key.Binding
	Done    key.Binding
	Track   key.Binding
	Star    key.Binding
	Refresh key.Binding
	Backlog key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
	Down:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
	Top:     key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
	Bottom:  key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),
	Done:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "done")),
	Track:   key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "track")),
	Star:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "star")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Backlog: key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "backlog")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// statusHints are shown in the status bar, in order.
var statusHints = []key.Binding{keys.Down, keys.Up, keys.Done, keys.Track, keys.Star, keys.Refresh, keys.Backlog, keys.Quit}
