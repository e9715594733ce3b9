// Package model defines the data shared by every stage of a triage run.
//
// Emails are observed, never mutated: the pipeline only reacts to attribute
// changes by comparing fingerprints. ActionItems are rebuilt on every run
// and never persisted themselves.
package model

import (
	"strings"
	"time"
)

// Email is an inbound message as reported by the mail provider.
type Email struct {
	ID        string
	ThreadID  string
	Account   string
	Subject   string
	From      string
	Date      time.Time
	Snippet   string
	IsStarred bool
	IsUnread  bool
}

// Fingerprint returns the change-detection fingerprint of the email's
// analysis-relevant attributes.
func (e Email) Fingerprint() string {
	return Fingerprint(e.Subject, e.Snippet, e.From, e.Date.UTC().Format(time.RFC3339), e.IsStarred, e.IsUnread)
}

// SenderName extracts the display name from a From header, falling back to
// the address when no name is present.
//
//	"Ada Lovelace <ada@example.com>" -> "Ada Lovelace"
//	"<ada@example.com>"              -> "ada@example.com"
func SenderName(from string) string {
	name := from
	if i := strings.IndexByte(from, '<'); i >= 0 {
		name = strings.TrimSpace(from[:i])
		if name == "" {
			addr := from[i+1:]
			if j := strings.IndexByte(addr, '>'); j >= 0 {
				addr = addr[:j]
			}
			return strings.TrimSpace(addr)
		}
	}
	if len(name) >= 2 && name[0] == '"' && name[len(name)-1] == '"' {
		name = name[1 : len(name)-1]
	}
	return name
}
