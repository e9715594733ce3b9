package brain

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
var _ Provider = (*CLIProvider)(nil)

// ErrCLITimeout is returned when one invocation of the local tool exceeds
// its timeout.
var ErrCLITimeout = errors.New("local reasoning tool timed out")

// CLIConfig configures the local reasoning tool.
type CLIConfig struct {
	Command string        // executable name or path, e.g. "claude"
	Args    []string      // e.g. ["-p", "--output-format", "json"]
	Timeout time.Duration // per attempt
	Retries int           // extra attempts after the first
	Backoff time.Duration // fixed wait between attempts
}

// DefaultCLIConfig invokes Claude Code in print mode with JSON output.
func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		Command: "claude",
		Args:    []string{"-p", "--output-format", "json"},
		Timeout: 3 * time.Minute,
		Retries: 2,
		Backoff: 2 * time.Second,
	}
}

// CLIProvider runs a local command-line reasoning tool with the prompt on
// stdin and reads the answer from stdout.
type CLIProvider struct {
	cfg CLIConfig
}

// NewCLIProvider creates a local-tool provider. Zero fields fall back to
// DefaultCLIConfig.
func NewCLIProvider(cfg CLIConfig) *CLIProvider {
	def := DefaultCLIConfig()
	if cfg.Command == "" {
		cfg.Command = def.Command
		if cfg.Args == nil {
			cfg.Args = def.Args
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &CLIProvider{cfg: cfg}
}

func (c *CLIProvider) Name() string {
	return c.cfg.Command
}

func (c *CLIProvider) Kind() Kind {
	return KindLocal
}

// Available reports whether the command can be found on PATH.
func (c *CLIProvider) Available() bool {
	_, err := exec.LookPath(c.cfg.Command)
	return err == nil
}

// Generate runs the tool, retrying failed attempts with a fixed backoff.
func (c *CLIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	path, err := exec.LookPath(c.cfg.Command)
	if err != nil {
		return Response{}, fmt.Errorf("find %s: %w", c.cfg.Command, err)
	}

	prompt := req.UserPrompt
	if sys := req.systemPrompt(); sys != "" {
		prompt = sys + "\n\n" + req.UserPrompt
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			logging.Warn("local tool attempt failed, retrying",
				"command", c.cfg.Command, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(c.cfg.Backoff):
			}
		}

		resp, err := c.run(ctx, path, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("%s cancelled: %w", c.cfg.Command, ctx.Err())
		}
	}

	return Response{}, fmt.Errorf("%s failed after %d attempts: %w", c.cfg.Command, c.cfg.Retries+1, lastErr)
}

func (c *CLIProvider) run(ctx context.Context, path, prompt string) (Response, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, c.cfg.Args...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return Response{}, fmt.Errorf("%w after %s", ErrCLITimeout, c.cfg.Timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return Response{}, fmt.Errorf("run %s: %w", c.cfg.Command, err)
		}
		return Response{}, fmt.Errorf("run %s: %w: %s", c.cfg.Command, err, truncate(msg, 500))
	}

	logging.Debug("local tool finished", "command", c.cfg.Command, "elapsed", time.Since(start), "bytes", stdout.Len())
	return parseCLIOutput(stdout.Bytes())
}

// parseCLIOutput accepts either a JSON envelope with a "result" field (as
// printed by `claude -p --output-format json`) or plain text.
func parseCLIOutput(out []byte) (Response, error) {
	raw := strings.TrimSpace(string(out))
	if raw == "" {
		return Response{}, errors.New("local tool produced no output")
	}

	var envelope struct {
		Type    string  `json:"type"`
		Result  *string `json:"result"`
		IsError bool    `json:"is_error"`
		Model   string  `json:"model"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err == nil && envelope.Result != nil {
		if envelope.IsError {
			return Response{}, fmt.Errorf("local tool reported error: %s", truncate(*envelope.Result, 500))
		}
		return Response{Content: *envelope.Result, Model: envelope.Model, RawResponse: raw}, nil
	}

	return Response{Content: raw, RawResponse: raw}, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
