package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const anthropicDefaultBaseURL = "https://api.anthropic.com"

// Anthropic implements Generator against the Messages REST API.
type Anthropic struct {
	opts   Options
	client *http.Client
}

func NewAnthropic(opts Options) *Anthropic {
	if opts.BaseURL == "" {
		opts.BaseURL = anthropicDefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Model == "" {
		opts.Model = "claude-3-5-sonnet-latest"
	}
	return &Anthropic{opts: opts, client: opts.httpClient()}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Generate(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(a.opts.APIKey) == "" {
		return Response{}, ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, ErrEmptyPrompt
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = a.opts.Temperature
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = a.opts.MaxOutputTokens
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.opts.BaseURL+"/v1/messages", nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	hReq.Header.Set("x-api-key", a.opts.APIKey)
	hReq.Header.Set("anthropic-version", "2023-06-01")

	payload := map[string]any{
		"model":       a.opts.Model,
		"max_tokens":  maxTokens,
		"temperature": temperature,
		"messages": []map[string]any{{
			"role":    "user",
			"content": req.Prompt,
		}},
	}
	if req.System != "" {
		payload["system"] = req.System
	}

	body, err := doJSON(ctx, a.client, hReq, payload)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic: %w", err)
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, fmt.Errorf("anthropic: parse response: %w", err)
	}

	text := ""
	for _, block := range parsed.Content {
		if block.Type == "text" || block.Text != "" {
			text += block.Text
		}
	}
	if text == "" {
		return Response{}, fmt.Errorf("anthropic: response contained no text blocks")
	}

	return Response{
		Text: text,
		Usage: Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
		},
		Provider: a.Name(),
	}, nil
}
