package genai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.String(), "key=test-key") {
			t.Errorf("missing API key query param: %s", r.URL.String())
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "list three loops") {
			t.Errorf("request body missing prompt: %s", body)
		}
		if !strings.Contains(string(body), "systemInstruction") {
			t.Errorf("request body missing system instruction: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"items\":[\"for\",\"while\",\"range\"]}"}]}}],"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":9}}`))
	}))
	defer srv.Close()

	g := NewGemini(Options{APIKey: "test-key", BaseURL: srv.URL})
	resp, err := g.Generate(context.Background(), Request{System: "respond with JSON", Prompt: "list three loops"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.Contains(resp.Text, "while") {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 9 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if resp.Provider != "gemini" {
		t.Errorf("provider = %q", resp.Provider)
	}
}

func TestGeminiRateLimitedErrorText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Resource has been exhausted"}}`))
	}))
	defer srv.Close()

	g := NewGemini(Options{APIKey: "test-key", BaseURL: srv.URL})
	_, err := g.Generate(context.Background(), Request{Prompt: "anything"})
	if err == nil {
		t.Fatal("Generate succeeded, want 429 error")
	}
	// The retry policy classifies by message text, so the status must be in it.
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error text %q does not carry the status code", err)
	}
}

func TestGeminiTruncatedTextPassesThrough(t *testing.T) {
	// MAX_TOKENS responses still return partial text with HTTP 200; the
	// client must hand it over untouched for the recovery parser.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"title\": \"cut of"}]},"finishReason":"MAX_TOKENS"}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":4096}}`))
	}))
	defer srv.Close()

	g := NewGemini(Options{APIKey: "test-key", BaseURL: srv.URL})
	resp, err := g.Generate(context.Background(), Request{Prompt: "anything"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Text != `{"title": "cut of` {
		t.Errorf("text = %q, want the raw partial output", resp.Text)
	}
}

func TestGeminiMissingAPIKey(t *testing.T) {
	g := NewGemini(Options{})
	_, err := g.Generate(context.Background(), Request{Prompt: "anything"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic-version header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"ok\":true}"}],"usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer srv.Close()

	a := NewAnthropic(Options{APIKey: "test-key", BaseURL: srv.URL})
	resp, err := a.Generate(context.Background(), Request{Prompt: "anything"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Text != `{"ok":true}` || resp.Usage.InputTokens != 3 || resp.Usage.OutputTokens != 4 {
		t.Errorf("unexpected response: %+v", resp)
	}
}
