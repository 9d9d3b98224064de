// Package genai talks to external text-completion services. Concrete
// providers (Gemini, Anthropic) sit behind the Generator interface; Router
// adds failover between them and Budget caps daily spend. Callers never
// depend on which provider produced a response.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrMissingAPIKey aborts setup before any unit is dispatched.
	ErrMissingAPIKey = errors.New("missing api key")

	// ErrEmptyPrompt rejects a request with no user payload.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrBudgetExhausted is returned once the daily call or token budget is
	// spent. Its text is deliberately outside the transient classification:
	// waiting within one run will not refill the budget, units should fall
	// back and be retried on the next run.
	ErrBudgetExhausted = errors.New("daily completion budget spent")
)

// Request is one completion call. Zero Temperature and MaxOutputTokens fall
// back to the provider's configured defaults.
type Request struct {
	System          string
	Prompt          string
	Temperature     float64
	MaxOutputTokens int
}

// Usage reports token counts for one completion call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response carries the raw model text. Output cut off by the token limit is
// returned as-is; salvaging a structured value from it is the caller's job.
type Response struct {
	Text     string
	Usage    Usage
	Provider string
}

// Generator is the narrow completion-service contract the pipeline uses.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// Options configures one concrete provider client.
type Options struct {
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
}

func (o Options) httpClient() *http.Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// doJSON posts a JSON payload and returns the response body. Non-2xx
// responses become errors carrying the status code and a body excerpt, which
// is what the retry classification reads ("status 429" and friends).
func doJSON(ctx context.Context, client *http.Client, req *http.Request, payload any) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(b))
	req.ContentLength = int64(len(b))
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, excerpt(body))
	}
	return body, nil
}

// excerpt keeps provider error bodies readable in logs and trace records.
func excerpt(body []byte) string {
	const limit = 512
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
