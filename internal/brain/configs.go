package brain

import (
	"encoding/json"
	"strings"
)

// Provider configurations

// AnthropicConfig targets the Anthropic Messages API.
func AnthropicConfig(apiKey, model string) *ProviderConfig {
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	return &ProviderConfig{
		Name:       "anthropic",
		Endpoint:   "https://api.anthropic.com/v1/messages",
		APIKey:     apiKey,
		Model:      model,
		AuthHeader: "x-api-key",
		AuthPrefix: "",
		ExtraHeaders: map[string]string{
			"anthropic-version": "2023-06-01",
		},
		BuildBody:     buildClaudeBody,
		ParseResponse: parseClaudeResponse,
	}
}

// OpenAIConfig targets an OpenAI-compatible chat completions API.
func OpenAIConfig(apiKey, model string) *ProviderConfig {
	if model == "" {
		model = "gpt-4o"
	}
	return &ProviderConfig{
		Name:          "openai",
		Endpoint:      "https://api.openai.com/v1/chat/completions",
		APIKey:        apiKey,
		Model:         model,
		AuthHeader:    "Authorization",
		AuthPrefix:    "Bearer ",
		BuildBody:     buildOpenAIBody,
		ParseResponse: parseOpenAIResponse,
	}
}

// Body builders

func buildClaudeBody(cfg *ProviderConfig, req Request) map[string]any {
	body := map[string]any{
		"model":      cfg.Model,
		"max_tokens": maxTokensOr(req.MaxTokens, 8192),
		"messages":   []map[string]string{{"role": "user", "content": req.UserPrompt}},
	}
	if sys := req.systemPrompt(); sys != "" {
		body["system"] = sys
	}
	return body
}

func buildOpenAIBody(cfg *ProviderConfig, req Request) map[string]any {
	messages := []map[string]string{}
	if sys := req.systemPrompt(); sys != "" {
		messages = append(messages, map[string]string{"role": "system", "content": sys})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.UserPrompt})

	body := map[string]any{
		"model":                 cfg.Model,
		"max_completion_tokens": maxTokensOr(req.MaxTokens, 8192),
		"messages":              messages,
	}
	if req.Schema != "" {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	return body
}

// Response parsers

func parseClaudeResponse(body []byte) (string, string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", err
	}
	var texts []string
	for _, c := range resp.Content {
		if c.Type == "text" {
			texts = append(texts, c.Text)
		}
	}
	return strings.Join(texts, "\n\n"), resp.Model, nil
}

func parseOpenAIResponse(body []byte) (string, string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", err
	}
	if len(resp.Choices) > 0 {
		return resp.Choices[0].Message.Content, resp.Model, nil
	}
	return "", resp.Model, nil
}
