package brain

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// Compile-time interface satisfaction check
var _ Provider = (*GeminiProvider)(nil)

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	apiKey string
	model  string

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewGeminiProvider creates a Gemini provider. The SDK client is built on
// first use so an unconfigured provider costs nothing.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiProvider{apiKey: apiKey, model: model}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Kind() Kind {
	return KindMetered
}

func (p *GeminiProvider) Available() bool {
	return p.apiKey != ""
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if !p.Available() {
		return Response{}, fmt.Errorf("gemini provider not configured")
	}

	p.once.Do(func() {
		p.client, p.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  p.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	if p.clientErr != nil {
		return Response{}, fmt.Errorf("failed to create Gemini client: %w", p.clientErr)
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokensOr(req.MaxTokens, 8192)),
	}
	if sys := req.systemPrompt(); sys != "" {
		config.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	if req.Schema != "" {
		config.ResponseMIMEType = "application/json"
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.UserPrompt), config)
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate: %w", err)
	}

	text := result.Text()
	if text == "" {
		return Response{}, fmt.Errorf("gemini returned an empty response")
	}

	model := p.model
	if result.ModelVersion != "" {
		model = result.ModelVersion
	}
	return Response{Content: text, Model: model}, nil
}
