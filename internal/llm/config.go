package llm

import "strings"

// Provider selects the request/response dialect.
type Provider string

const (
	OpenRouter  Provider = "openrouter"
	OpenAI      Provider = "openai"
	Google      Provider = "google"
	HuggingFace Provider = "huggingface"
	Anthropic   Provider = "anthropic"
)

// ParseProvider normalizes a client-supplied provider string. Unknown or
// empty values fall back to OpenRouter, the engine's historical default.
func ParseProvider(s string) Provider {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case OpenAI:
		return OpenAI
	case Google:
		return Google
	case HuggingFace:
		return HuggingFace
	case Anthropic:
		return Anthropic
	default:
		return OpenRouter
	}
}

// Anthropic reports whether the provider uses the native Messages API
// rather than the OpenAI-compatible chat surface.
func (p Provider) Anthropic() bool { return p == Anthropic }

// Config carries the per-request LLM settings. It arrives with each HTTP
// request and is threaded explicitly through the orchestrator; there is no
// ambient key store.
type Config struct {
	APIKey     string
	Provider   Provider
	WorkModel  string
	FinalModel string
	// BaseURL overrides the provider's default endpoint when set.
	BaseURL string
}

var defaultBaseURLs = map[Provider]string{
	OpenRouter:  "https://openrouter.ai/api/v1",
	OpenAI:      "https://api.openai.com/v1",
	Google:      "https://generativelanguage.googleapis.com/v1beta/openai",
	HuggingFace: "https://router.huggingface.co/v1",
	Anthropic:   "https://api.anthropic.com/v1",
}

// EffectiveBaseURL resolves the endpoint the gateway will call.
func (c Config) EffectiveBaseURL() string {
	if u := strings.TrimSpace(c.BaseURL); u != "" {
		return strings.TrimRight(u, "/")
	}
	return defaultBaseURLs[ParseProvider(string(c.Provider))]
}
