package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abelbrown/triage/internal/logging"
	"golang.org/x/time/rate"
)

// Compile-time interface satisfaction check
var _ Provider = (*HTTPProvider)(nil)

// ProviderConfig defines how to communicate with a hosted completion API
type ProviderConfig struct {
	Name         string
	Endpoint     string
	APIKey       string
	Model        string
	AuthHeader   string            // "x-api-key" or "Authorization"
	AuthPrefix   string            // "" or "Bearer "
	ExtraHeaders map[string]string // Additional headers (e.g., anthropic-version)

	// Request building
	BuildBody func(cfg *ProviderConfig, req Request) map[string]any

	// Response parsing
	ParseResponse func(body []byte) (content, model string, err error)
}

// HTTPProvider is a generic HTTP-based metered provider
type HTTPProvider struct {
	config  *ProviderConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPProvider creates a provider from config
func NewHTTPProvider(cfg *ProviderConfig) *HTTPProvider {
	return &HTTPProvider{
		config:  cfg,
		client:  &http.Client{Timeout: 120 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (p *HTTPProvider) Name() string {
	return p.config.Name
}

func (p *HTTPProvider) Kind() Kind {
	return KindMetered
}

// Available returns true when a credential is configured.
func (p *HTTPProvider) Available() bool {
	return p.config.APIKey != ""
}

func (p *HTTPProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if !p.Available() {
		return Response{}, fmt.Errorf("%s provider not configured", p.config.Name)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limiter: %w", err)
	}

	logging.Debug("HTTP provider request", "provider", p.config.Name, "model", p.config.Model)

	body := p.config.BuildBody(p.config, req)
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}

	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logging.Error("API error", "provider", p.config.Name, "status", resp.StatusCode, "body", string(respBody))
		return Response{}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	content, model, err := p.config.ParseResponse(respBody)
	if err != nil {
		return Response{}, fmt.Errorf("parse response: %w", err)
	}

	logging.Debug("API response", "provider", p.config.Name, "model", model, "content_len", len(content))

	return Response{
		Content:     content,
		Model:       model,
		RawResponse: string(respBody),
	}, nil
}

func (p *HTTPProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")

	if p.config.AuthHeader != "" && p.config.APIKey != "" {
		req.Header.Set(p.config.AuthHeader, p.config.AuthPrefix+p.config.APIKey)
	}

	for k, v := range p.config.ExtraHeaders {
		req.Header.Set(k, v)
	}
}
