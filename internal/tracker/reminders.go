package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/abelbrown/triage/internal/logging"
)

// Compile-time interface satisfaction check
var _ Tracker = (*RemindersCLI)(nil)

// ErrUnavailable means the reminders command is not installed.
var ErrUnavailable = errors.New("reminders command not found")

// RemindersCLI drives a reminders command-line client
// (github.com/keith/reminders-cli) that prints lists as JSON.
type RemindersCLI struct {
	command string
	timeout time.Duration
}

// NewRemindersCLI creates a tracker backed by command ("reminders" if empty).
func NewRemindersCLI(command string, timeout time.Duration) *RemindersCLI {
	if command == "" {
		command = "reminders"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RemindersCLI{command: command, timeout: timeout}
}

// Available reports whether the command is on PATH.
func (r *RemindersCLI) Available() bool {
	_, err := exec.LookPath(r.command)
	return err == nil
}

type reminderJSON struct {
	ExternalID  string `json:"externalId"`
	List        string `json:"list"`
	Title       string `json:"title"`
	Notes       string `json:"notes"`
	IsCompleted bool   `json:"isCompleted"`
	Priority    int    `json:"priority"`
	DueDate     string `json:"dueDate"`
}

// List returns every entry in list, completed ones included.
func (r *RemindersCLI) List(ctx context.Context, list string) ([]Entry, error) {
	out, err := r.run(ctx, "show", list, "--include-completed", "--format", "json")
	if err != nil {
		return nil, err
	}

	var raw []reminderJSON
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parse reminders output: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, rj := range raw {
		e := Entry{
			ID:        rj.ExternalID,
			List:      rj.List,
			Title:     rj.Title,
			Notes:     rj.Notes,
			Completed: rj.IsCompleted,
			Priority:  rj.Priority,
		}
		if e.List == "" {
			e.List = list
		}
		if due, ok := parseDue(rj.DueDate); ok {
			e.Due = &due
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Create adds an entry to list.
func (r *RemindersCLI) Create(ctx context.Context, list string, d Draft) error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("reminder title is empty")
	}
	args := []string{"add", list, d.Title}
	if d.Notes != "" {
		args = append(args, "--notes", d.Notes)
	}
	if d.Due != nil {
		args = append(args, "--due-date", d.Due.Format("2006-01-02"))
	}
	if p := priorityName(d.Priority); p != "" {
		args = append(args, "--priority", p)
	}
	_, err := r.run(ctx, args...)
	return err
}

// CompleteByID marks the entry with the given external id complete.
func (r *RemindersCLI) CompleteByID(ctx context.Context, list, id string) error {
	if id == "" {
		return errors.New("reminder id is empty")
	}
	_, err := r.run(ctx, "complete", list, id)
	return err
}

func (r *RemindersCLI) CompleteByBackRef(ctx context.Context, list, emailID string) error {
	entries, err := r.List(ctx, list)
	if err != nil {
		return err
	}
	var errs []error
	matched := 0
	for _, e := range entries {
		ref, ok := e.EmailID()
		if !ok || ref != emailID || e.Completed {
			continue
		}
		matched++
		if err := r.CompleteByID(ctx, list, e.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if matched == 0 {
		logging.Debug("no tracker entry linked to email", "email_id", emailID, "list", list)
	}
	return errors.Join(errs...)
}

func (r *RemindersCLI) run(ctx context.Context, args ...string) ([]byte, error) {
	path, err := exec.LookPath(r.command)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", r.command, args[0], err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", r.command, args[0], err)
	}
	return stdout.Bytes(), nil
}

func parseDue(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	logging.Debug("unparseable reminder due date", "value", s)
	return time.Time{}, false
}

func priorityName(p int) string {
	switch {
	case p >= 1 && p <= 4:
		return "high"
	case p == 5:
		return "medium"
	case p >= 6 && p <= 9:
		return "low"
	default:
		return ""
	}
}
