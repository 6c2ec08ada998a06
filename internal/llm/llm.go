// Package llm is the provider-aware chat-completion gateway. It shapes
// requests for OpenAI-compatible endpoints (OpenRouter, OpenAI, Google via
// its OpenAI surface, HuggingFace) and for Anthropic's native Messages API,
// applies per-call timeouts, and classifies failures so the orchestrator can
// turn them into point-level skips instead of run failures.
//
// The gateway does no retries. Empty-but-successful responses are returned
// as-is with a warning; the caller decides what an empty completion means.
package llm

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors callers branch on. Everything else is a transport or HTTP
// failure with a sanitized message.
var (
	// ErrTimeout marks a call that exceeded its deadline.
	ErrTimeout = errors.New("llm call timed out")
	// ErrEmptyContent marks a 2xx response with no usable completion
	// (missing choices or content blocks).
	ErrEmptyContent = errors.New("llm returned no content")
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat builds the common system+user message pair.
func Chat(system, user string) []Message {
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}

// Request is one chat-completion call.
type Request struct {
	Messages  []Message
	Model     string
	MaxTokens int
	// Timeout bounds the whole call; zero means the context's deadline
	// alone applies.
	Timeout time.Duration
}

// Result is a parsed completion. FinishReason carries the provider's
// finish_reason or stop_reason verbatim, for diagnostics only.
type Result struct {
	Content      string
	FinishReason string
}

// Empty reports whether the completion carries no usable text.
func (r Result) Empty() bool {
	for _, c := range r.Content {
		if c != ' ' && c != '\n' && c != '\t' && c != '\r' {
			return false
		}
	}
	return true
}

// Caller is the seam the orchestrators depend on; tests substitute stubs.
type Caller interface {
	Complete(ctx context.Context, req Request) (Result, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, req Request) (Result, error)

func (f CallerFunc) Complete(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
