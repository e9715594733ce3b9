package ui

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/abelbrown/triage/internal/coord"
	"github.com/abelbrown/triage/internal/model"
)

// RenderPlain writes the report as unstyled text, one section per urgency,
// followed by the backlog when requested.
func RenderPlain(w io.Writer, rep coord.Report, backlog bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d emails, %d active, %d backlog (%s)\n",
		rep.Emails, len(rep.Active), len(rep.Backlog), rep.Elapsed.Round(time.Millisecond))
	for _, name := range slices.Sorted(maps.Keys(rep.FailedAccounts)) {
		fmt.Fprintf(&b, "! %s skipped: %v\n", name, rep.FailedAccounts[name])
	}
	if rep.TrackerErr != nil {
		fmt.Fprintf(&b, "! tracker unavailable: %v\n", rep.TrackerErr)
	}

	writeRows(&b, BuildRows(rep.Active), rep.Active)
	if backlog {
		writeRows(&b, SingleSection("Backlog", rep.Backlog), rep.Backlog)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeRows(b *strings.Builder, rows []Row, items []model.ActionItem) {
	for _, r := range rows {
		if r.Kind == RowHeader {
			fmt.Fprintf(b, "\n%s\n", r.Title)
			continue
		}
		it := items[r.Item]
		fmt.Fprintf(b, "  [%s] %s", it.Account, it.Summary)
		if it.Person != "" {
			fmt.Fprintf(b, " (%s)", it.Person)
		}
		if it.Deadline != "" {
			fmt.Fprintf(b, " due %s", it.Deadline)
		}
		if it.State == model.TrackerPending || it.State == model.TrackerCompleted {
			fmt.Fprintf(b, " <%s>", it.State)
		}
		b.WriteString("\n")
	}
}
