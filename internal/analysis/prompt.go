package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/triage/internal/brain"
	"github.com/abelbrown/triage/internal/model"
)

const systemPrompt = `You are an executive assistant triaging an inbox.
For each email decide whether the user must personally do something: reply, decide, pay, sign, attend, review or deliver.
Newsletters, receipts, notifications and FYI messages are not actionable.
Only include actionable emails in your answer. Use the exact email_id you were given.

Urgency tiers:
- overdue: a deadline or expected reply date is already past
- this_week: needs action within 7 days of the reference date
- when_you_can: no time pressure`

const resultSchema = `{
  "actions": [
    {
      "email_id": "string, copied from the input",
      "summary": "string, imperative, under 80 characters",
      "urgency": "overdue | this_week | when_you_can",
      "reason": "string, one sentence",
      "person": "string, who is waiting on the user",
      "deadline": "string, YYYY-MM-DD if a date is stated, else empty",
      "group": "string, short topic label"
    }
  ]
}`

// maxSnippet bounds how much body text each email contributes.
const maxSnippet = 600

// buildRequest serializes one batch into a backend request.
func buildRequest(batch []pending, ref time.Time) brain.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Reference date: %s (%s)\n\n", ref.Format("2006-01-02"), ref.Weekday())
	fmt.Fprintf(&b, "%d emails follow.\n", len(batch))

	for _, p := range batch {
		e := p.email
		b.WriteString("\n---\n")
		fmt.Fprintf(&b, "email_id: %s\n", e.ID)
		fmt.Fprintf(&b, "account: %s\n", e.Account)
		fmt.Fprintf(&b, "from: %s\n", e.From)
		fmt.Fprintf(&b, "date: %s\n", e.Date.Format("2006-01-02 15:04"))
		fmt.Fprintf(&b, "subject: %s\n", e.Subject)
		fmt.Fprintf(&b, "starred: %t, unread: %t\n", e.IsStarred, e.IsUnread)
		fmt.Fprintf(&b, "snippet: %s\n", clip(e.Snippet, maxSnippet))
	}

	return brain.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   b.String(),
		Schema:       resultSchema,
		MaxTokens:    8192,
	}
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// toActionItem joins a backend result with the email it refers to.
func toActionItem(r actionResult, e model.Email) model.ActionItem {
	person := r.Person
	if person == "" {
		person = model.SenderName(e.From)
	}
	group := r.Group
	if group == "" {
		group = e.Account
	}
	return model.ActionItem{
		Source:    model.SourceAnalysis,
		EmailID:   e.ID,
		ThreadID:  e.ThreadID,
		Account:   e.Account,
		Group:     group,
		Summary:   r.Summary,
		Urgency:   r.Urgency,
		Reason:    r.Reason,
		Date:      e.Date,
		IsStarred: e.IsStarred,
		Person:    person,
		Deadline:  r.Deadline,
	}
}
