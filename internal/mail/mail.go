// Package mail reads the inbox and applies the two commands the pipeline
// issues back to the provider.
package mail

import (
	"context"
	"errors"

	"github.com/abelbrown/triage/internal/model"
)

// ErrUnknownAccount is returned for an account with no configured token.
var ErrUnknownAccount = errors.New("unknown mail account")

// Source is the email provider for one or more accounts.
type Source interface {
	// List returns the starred or unread inbox messages of account.
	List(ctx context.Context, account string) ([]model.Email, error)
	// MarkResolved clears the star and unread flags. Idempotent.
	MarkResolved(ctx context.Context, account, id string) error
	// MarkStarred stars the message. Idempotent.
	MarkStarred(ctx context.Context, account, id string) error
}
