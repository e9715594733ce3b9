package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abelbrown/triage/internal/logging"
	"github.com/abelbrown/triage/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Compile-time interface satisfaction check
var _ Source = (*GmailClient)(nil)

const (
	user = "me"

	// DefaultQuery selects what the triage pipeline looks at.
	DefaultQuery = "in:inbox (is:starred OR is:unread)"

	defaultMaxResults = 200
	fetchConcurrency  = 8
)

// GmailConfig configures the Gmail client.
type GmailConfig struct {
	CredentialsFile string            // OAuth client secret JSON
	Tokens          map[string]string // account name -> token file
	Query           string
	MaxResults      int
}

// GmailClient implements Source over the Gmail API. One service per account
// is created on first use from the account's stored OAuth token.
type GmailClient struct {
	cfg GmailConfig

	mu       sync.Mutex
	services map[string]*gmail.Service
}

// NewGmailClient creates a client. Tokens must already exist on disk;
// obtaining them interactively is the job of a setup command.
func NewGmailClient(cfg GmailConfig) *GmailClient {
	if cfg.Query == "" {
		cfg.Query = DefaultQuery
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	return &GmailClient{cfg: cfg, services: make(map[string]*gmail.Service)}
}

// Accounts returns the configured account names, sorted.
func (c *GmailClient) Accounts() []string {
	names := make([]string, 0, len(c.cfg.Tokens))
	for name := range c.cfg.Tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *GmailClient) service(ctx context.Context, account string) (*gmail.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if srv, ok := c.services[account]; ok {
		return srv, nil
	}

	tokenFile, ok := c.cfg.Tokens[account]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}

	b, err := os.ReadFile(c.cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(b, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token for %s: %w", account, err)
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(oauthConfig.Client(context.Background(), tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	c.services[account] = srv
	return srv, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// List fetches message ids page by page, then message metadata
// concurrently. A message that cannot be fetched is logged and skipped.
func (c *GmailClient) List(ctx context.Context, account string) ([]model.Email, error) {
	srv, err := c.service(ctx, account)
	if err != nil {
		return nil, err
	}

	var ids []string
	pageToken := ""
	for len(ids) < c.cfg.MaxResults {
		call := srv.Users.Messages.List(user).
			Q(c.cfg.Query).
			MaxResults(int64(min(c.cfg.MaxResults-len(ids), 500))).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages for %s: %w", account, err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	emails := make([]*model.Email, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			msg, err := srv.Users.Messages.Get(user, id).
				Format("metadata").
				MetadataHeaders("Subject", "From", "Date").
				Context(gctx).
				Do()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logging.Warn("unable to retrieve message", "account", account, "id", id, "error", err)
				return nil
			}
			e := parseMessage(account, msg)
			emails[i] = &e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.Email, 0, len(emails))
	for _, e := range emails {
		if e != nil {
			out = append(out, *e)
		}
	}
	logging.Debug("listed messages", "account", account, "count", len(out))
	return out, nil
}

// MarkResolved removes the STARRED and UNREAD labels.
func (c *GmailClient) MarkResolved(ctx context.Context, account, id string) error {
	return c.modify(ctx, account, id, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"STARRED", "UNREAD"},
	})
}

// MarkStarred adds the STARRED label.
func (c *GmailClient) MarkStarred(ctx context.Context, account, id string) error {
	return c.modify(ctx, account, id, &gmail.ModifyMessageRequest{
		AddLabelIds: []string{"STARRED"},
	})
}

func (c *GmailClient) modify(ctx context.Context, account, id string, req *gmail.ModifyMessageRequest) error {
	srv, err := c.service(ctx, account)
	if err != nil {
		return err
	}
	if _, err := srv.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("modify message %s: %w", id, err)
	}
	return nil
}

func parseMessage(account string, msg *gmail.Message) model.Email {
	e := model.Email{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Account:  account,
		Snippet:  html.UnescapeString(msg.Snippet),
	}
	for _, label := range msg.LabelIds {
		switch label {
		case "STARRED":
			e.IsStarred = true
		case "UNREAD":
			e.IsUnread = true
		}
	}
	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "Subject":
				e.Subject = header.Value
			case "From":
				e.From = header.Value
			case "Date":
				if t, ok := parseDate(header.Value); ok {
					e.Date = t
				}
			}
		}
	}
	if e.Date.IsZero() && msg.InternalDate > 0 {
		e.Date = time.UnixMilli(msg.InternalDate)
	}
	return e
}

var dateLayouts = []string{
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
}

// parseDate handles the Date header variants seen in the wild, including a
// trailing "(UTC)" style zone comment.
func parseDate(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	if open := strings.LastIndex(v, " ("); open != -1 {
		if closeParen := strings.LastIndex(v, ")"); closeParen > open {
			v = strings.TrimSpace(v[:open] + v[closeParen+1:])
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	logging.Debug("could not parse date header", "value", value)
	return time.Time{}, false
}
