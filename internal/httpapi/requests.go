package httpapi

import (
	"strings"

	"github.com/google/uuid"

	"github.com/lutumlabs/lutum/internal/i18n"
	"github.com/lutumlabs/lutum/internal/llm"
	"github.com/lutumlabs/lutum/internal/research"
)

// Field caps. Oversized requests are rejected with a generic 400; the caps
// exist so no client can push unbounded text into prompts or logs.
const (
	maxMessageLen   = 5000
	maxSessionIDLen = 64
)

// llmFields is the provider configuration every LLM-backed endpoint accepts.
type llmFields struct {
	APIKey     string `json:"api_key" binding:"required,max=300"`
	Provider   string `json:"provider" binding:"max=40"`
	WorkModel  string `json:"work_model" binding:"max=200"`
	FinalModel string `json:"final_model" binding:"max=200"`
	BaseURL    string `json:"base_url" binding:"max=500"`
	Language   string `json:"language" binding:"max=20"`
}

func (f llmFields) config() llm.Config {
	return llm.Config{
		APIKey:     f.APIKey,
		Provider:   llm.ParseProvider(f.Provider),
		WorkModel:  f.WorkModel,
		FinalModel: f.FinalModel,
		BaseURL:    f.BaseURL,
	}
}

func (f llmFields) lang() i18n.Lang {
	return i18n.Normalize(f.Language)
}

type overviewRequest struct {
	Message   string `json:"message" binding:"required,max=5000"`
	SessionID string `json:"session_id" binding:"max=64"`
	llmFields
}

type runRequest struct {
	Message   string `json:"message" binding:"required,max=5000"`
	SessionID string `json:"session_id" binding:"max=64"`
	MaxStep   int    `json:"max_step" binding:"min=0,max=5"`
	llmFields
}

type planRequest struct {
	UserQuery              string   `json:"user_query" binding:"required,max=5000"`
	ClarificationQuestions []string `json:"clarification_questions" binding:"max=50,dive,max=2000"`
	ClarificationAnswers   []string `json:"clarification_answers" binding:"max=50,dive,max=5000"`
	SessionID              string   `json:"session_id" binding:"max=64"`
	AcademicMode           bool     `json:"academic_mode"`
	llmFields
}

type reviseRequest struct {
	ContextState research.ContextState `json:"context_state"`
	Feedback     string                `json:"feedback" binding:"required,max=5000"`
	SessionID    string                `json:"session_id" binding:"max=64"`
	llmFields
}

type deepRequest struct {
	ContextState research.ContextState `json:"context_state"`
	SessionID    string                `json:"session_id" binding:"max=64"`
	llmFields
}

type resumeRequest struct {
	SessionID string `json:"session_id" binding:"required,max=64"`
	llmFields
}

type askStartRequest struct {
	Question  string `json:"question" binding:"required,max=5000"`
	SessionID string `json:"session_id" binding:"max=64"`
	llmFields
}

// validContextState rejects context states the orchestrators cannot run.
// The state is client-supplied; its caps mirror the planning outputs.
func validContextState(s research.ContextState) bool {
	q := strings.TrimSpace(s.UserQuery)
	if q == "" || len(q) > maxMessageLen {
		return false
	}
	if len(s.ResearchPlan) > 200 || len(s.AcademicBereiche) > 20 {
		return false
	}
	for _, p := range s.ResearchPlan {
		if len(p) > maxMessageLen {
			return false
		}
	}
	return true
}

// sessionOrNew returns the client's session id or a fresh short one.
func sessionOrNew(requested string) string {
	id := strings.TrimSpace(requested)
	if id == "" || len(id) > maxSessionIDLen {
		return uuid.NewString()[:12]
	}
	return id
}
