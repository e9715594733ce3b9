// Package brain talks to reasoning backends: a local CLI tool the user
// already pays for, and metered hosted APIs as fallback.
package brain

import (
	"context"
)

// Provider is the interface for reasoning backends.
type Provider interface {
	// Name returns the provider name (e.g., "claude-cli", "anthropic")
	Name() string

	// Available returns true if the provider is configured and ready
	Available() bool

	// Generate sends a prompt and returns the response
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request is a prompt plus the output contract the answer must follow.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	// Schema describes the expected JSON output. Appended to the system
	// prompt by providers that have no native structured-output mode.
	Schema    string
	MaxTokens int
}

// Response is the provider's raw answer.
type Response struct {
	Content     string
	Model       string
	RawResponse string // The raw body for logging/debugging
}

// Validator is implemented by structured results decoded from a response.
// Validate reports whether the decoded value honors the output contract.
type Validator interface {
	Validate() error
}

// Kind separates the local tool from metered APIs.
type Kind int

const (
	KindLocal Kind = iota
	KindMetered
)

// kinded is implemented by providers that know which path they belong to.
type kinded interface {
	Kind() Kind
}

func kindOf(p Provider) Kind {
	if k, ok := p.(kinded); ok {
		return k.Kind()
	}
	return KindMetered
}

// systemPrompt merges the schema into the system prompt.
func (r Request) systemPrompt() string {
	if r.Schema == "" {
		return r.SystemPrompt
	}
	if r.SystemPrompt == "" {
		return "Respond with a single JSON object matching this schema and nothing else:\n" + r.Schema
	}
	return r.SystemPrompt + "\n\nRespond with a single JSON object matching this schema and nothing else:\n" + r.Schema
}

func maxTokensOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}
