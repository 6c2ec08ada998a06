package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func openAIHandler(t *testing.T, content string, gotReq *map[string]any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if gotReq != nil {
			*gotReq = body
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop"},
			},
		})
	}
}

func TestGateway_OpenAICompatible(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(openAIHandler(t, "hello from model", &got))
	defer srv.Close()

	g := New(Config{APIKey: "k", Provider: OpenRouter, BaseURL: srv.URL})
	res, err := g.Complete(context.Background(), Request{
		Messages:  Chat("sys", "usr"),
		Model:     "test-model",
		MaxTokens: 100,
		Timeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Content != "hello from model" || res.FinishReason != "stop" {
		t.Fatalf("result: %+v", res)
	}
	if got["temperature"].(float64) != 0.3 {
		t.Fatalf("temperature = %v, want 0.3", got["temperature"])
	}
	msgs := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2 (system kept inline)", len(msgs))
	}
}

func TestGateway_GoogleHeaderInjected(t *testing.T) {
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("x-goog-api-key")
		openAIHandler(t, "ok", nil)(w, r)
	}))
	defer srv.Close()

	g := New(Config{APIKey: "goog-key", Provider: Google, BaseURL: srv.URL})
	if _, err := g.Complete(context.Background(), Request{Messages: Chat("s", "u"), Model: "m"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if header != "goog-key" {
		t.Fatalf("x-goog-api-key = %q", header)
	}
}

func TestGateway_AnthropicLiftsSystemPrompt(t *testing.T) {
	var got anthropicRequest
	var version string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("path = %q", r.URL.Path)
		}
		version = r.Header.Get("anthropic-version")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]string{{"type": "text", "text": "claude says"}},
			"stop_reason": "end_turn",
		})
	}))
	defer srv.Close()

	g := New(Config{APIKey: "k", Provider: Anthropic, BaseURL: srv.URL})
	res, err := g.Complete(context.Background(), Request{
		Messages: Chat("be brief", "question"),
		Model:    "claude-test", MaxTokens: 50,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Content != "claude says" || res.FinishReason != "end_turn" {
		t.Fatalf("result: %+v", res)
	}
	if got.System != "be brief" {
		t.Fatalf("system not lifted: %q", got.System)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != RoleUser {
		t.Fatalf("messages: %+v", got.Messages)
	}
	if version != anthropicVersion {
		t.Fatalf("anthropic-version = %q", version)
	}
}

func TestGateway_HTTPErrorIsSanitized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "bad key sk-secret1234567890abcd", "type": "auth"},
		})
	}))
	defer srv.Close()

	g := New(Config{APIKey: "k", Provider: OpenAI, BaseURL: srv.URL})
	_, err := g.Complete(context.Background(), Request{Messages: Chat("s", "u"), Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "HTTP 401") {
		t.Fatalf("status missing: %v", err)
	}
	if strings.Contains(err.Error(), "sk-secret") {
		t.Fatalf("secret leaked: %v", err)
	}
}

func TestGateway_MissingChoicesIsEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	g := New(Config{APIKey: "k", Provider: OpenAI, BaseURL: srv.URL})
	_, err := g.Complete(context.Background(), Request{Messages: Chat("s", "u"), Model: "m"})
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("err = %v, want ErrEmptyContent", err)
	}
}

func TestGateway_TimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	g := New(Config{APIKey: "k", Provider: OpenAI, BaseURL: srv.URL})
	_, err := g.Complete(context.Background(), Request{
		Messages: Chat("s", "u"), Model: "m", Timeout: 50 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestGateway_EmptyStringContentIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(openAIHandler(t, "   ", nil))
	defer srv.Close()

	g := New(Config{APIKey: "k", Provider: OpenAI, BaseURL: srv.URL})
	res, err := g.Complete(context.Background(), Request{Messages: Chat("s", "u"), Model: "m"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !res.Empty() {
		t.Fatalf("expected empty result, got %q", res.Content)
	}
}

func TestParseProvider_FallsBackToOpenRouter(t *testing.T) {
	for _, in := range []string{"", "unknown", "OPENROUTER"} {
		if got := ParseProvider(in); got != OpenRouter {
			t.Fatalf("ParseProvider(%q) = %q", in, got)
		}
	}
	if got := ParseProvider("Anthropic"); got != Anthropic {
		t.Fatalf("ParseProvider(Anthropic) = %q", got)
	}
}

func TestEffectiveBaseURL_TrimsTrailingSlash(t *testing.T) {
	c := Config{Provider: OpenAI, BaseURL: "http://localhost:9999/v1/"}
	if got := c.EffectiveBaseURL(); got != "http://localhost:9999/v1" {
		t.Fatalf("base url: %q", got)
	}
	if got := (Config{Provider: Anthropic}).EffectiveBaseURL(); got != "https://api.anthropic.com/v1" {
		t.Fatalf("default anthropic url: %q", got)
	}
}
