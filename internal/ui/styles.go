package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorDanger    = lipgloss.Color("196") // Red
	colorWarn      = lipgloss.Color("214") // Orange
)

// TitleStyle for the top line.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// SelectedItem style for the currently highlighted item.
var SelectedItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalItem style for unselected items.
var NormalItem = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// DoneItem style for items the tracker reports completed.
var DoneItem = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Strikethrough(true).
	Padding(0, 1)

// SectionHeader style for urgency section labels.
var SectionHeader = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// urgencyStyles color the marker in front of each item.
var urgencyStyles = map[string]lipgloss.Style{
	"overdue":      lipgloss.NewStyle().Foreground(colorDanger).Bold(true),
	"this_week":    lipgloss.NewStyle().Foreground(colorWarn),
	"when_you_can": lipgloss.NewStyle().Foreground(colorSuccess),
}

// AccountBadge style for account name badges.
var AccountBadge = lipgloss.NewStyle().
	Foreground(colorPrimary).
	Background(lipgloss.Color("236")).
	Padding(0, 1).
	MarginRight(1)

// MetaText style for person, deadline and state.
var MetaText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// MoreIndicator style for the "N more above/below" lines.
var MoreIndicator = lipgloss.NewStyle().
	Foreground(colorMuted).
	Italic(true).
	Padding(0, 1)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorDanger).
	Bold(true).
	Padding(0, 1)

// NoticeStyle for transient confirmations.
var NoticeStyle = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// ProgressCount style for the batch counter.
var ProgressCount = lipgloss.NewStyle().
	Foreground(colorMuted)
