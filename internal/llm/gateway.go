package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/sanitize"
)

// Gateway implements Caller against the configured provider. One Gateway is
// built per orchestrator run from the request's Config; it holds no state
// beyond the config and a shared transport.
type Gateway struct {
	cfg Config
	// HTTPClient lets tests substitute a transport. Per-call timeouts come
	// from the request, not the client.
	HTTPClient *http.Client
}

// New returns a Gateway for the given config.
func New(cfg Config) *Gateway {
	cfg.Provider = ParseProvider(string(cfg.Provider))
	return &Gateway{cfg: cfg}
}

// Complete performs one chat completion. The request timeout is applied on
// top of the caller's context; classification of failures follows the
// gateway contract (ErrTimeout, sanitized HTTP errors, ErrEmptyContent).
func (g *Gateway) Complete(ctx context.Context, req Request) (Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	var res Result
	var err error
	if g.cfg.Provider.Anthropic() {
		res, err = g.completeAnthropic(ctx, req)
	} else {
		res, err = g.completeOpenAI(ctx, req)
	}
	if err != nil {
		return Result{}, classify(err)
	}
	if res.Empty() {
		log.Warn().
			Str("model", req.Model).
			Str("finish_reason", res.FinishReason).
			Msg("llm returned empty content")
	}
	return res, nil
}

func (g *Gateway) completeOpenAI(ctx context.Context, req Request) (Result, error) {
	cc := openai.DefaultConfig(g.cfg.APIKey)
	cc.BaseURL = g.cfg.EffectiveBaseURL()
	hc := g.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if g.cfg.Provider == Google {
		// Google's OpenAI surface wants the key in its own header too.
		hc = &http.Client{
			Transport: headerTransport{
				base:  hc.Transport,
				name:  "x-goog-api-key",
				value: g.cfg.APIKey,
			},
			Timeout: hc.Timeout,
		}
	}
	cc.HTTPClient = hc
	client := openai.NewClientWithConfig(cc)

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, ErrEmptyContent
	}
	return Result{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}

// headerTransport injects one static header on every request.
type headerTransport struct {
	base  http.RoundTripper
	name  string
	value string
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	clone.Header.Set(t.name, t.value)
	return base.RoundTrip(clone)
}

// classify folds transport errors into the gateway's sentinel taxonomy and
// scrubs everything else so provider error bodies cannot leak secrets.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEmptyContent) {
		return ErrEmptyContent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("HTTP %d: %s", apiErr.HTTPStatusCode,
			sanitize.Error(errors.New(apiErr.Message)))
	}
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		return fmt.Errorf("HTTP %d: %s", httpErr.status,
			sanitize.Error(errors.New(httpErr.message)))
	}
	return errors.New(sanitize.Error(err))
}

// httpStatusError carries a non-2xx status from the native Anthropic path.
type httpStatusError struct {
	status  int
	message string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.message)
}
