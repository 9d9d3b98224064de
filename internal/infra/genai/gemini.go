package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

// Gemini implements Generator against the generateContent REST API.
type Gemini struct {
	opts   Options
	client *http.Client
}

func NewGemini(opts Options) *Gemini {
	if opts.BaseURL == "" {
		opts.BaseURL = geminiDefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	return &Gemini{opts: opts, client: opts.httpClient()}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(g.opts.APIKey) == "" {
		return Response{}, ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, ErrEmptyPrompt
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = g.opts.Temperature
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = g.opts.MaxOutputTokens
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	urlStr := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.opts.BaseURL, url.PathEscape(g.opts.Model), url.QueryEscape(g.opts.APIKey))
	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}

	payload := map[string]any{
		"contents": []map[string]any{{
			"role":  "user",
			"parts": []map[string]any{{"text": req.Prompt}},
		}},
		"generationConfig": map[string]any{
			"temperature":     temperature,
			"maxOutputTokens": maxTokens,
		},
	}
	if req.System != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": req.System}},
		}
	}

	body, err := doJSON(ctx, g.client, hReq, payload)
	if err != nil {
		return Response{}, fmt.Errorf("gemini: %w", err)
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, fmt.Errorf("gemini: parse response: %w", err)
	}

	// A MAX_TOKENS finish still carries usable partial text; pass it along
	// and let the recovery parser deal with the cut.
	text := ""
	for _, cand := range parsed.Candidates {
		for _, p := range cand.Content.Parts {
			text += p.Text
		}
	}
	if text == "" {
		return Response{}, fmt.Errorf("gemini: response contained no candidate text")
	}

	return Response{
		Text: text,
		Usage: Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
		},
		Provider: g.Name(),
	}, nil
}
