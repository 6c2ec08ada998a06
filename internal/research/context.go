package research

import (
	"github.com/lutumlabs/lutum/internal/checkpoint"
	"github.com/lutumlabs/lutum/internal/prompts"
)

// ContextState is the opaque token the client carries between the planning
// endpoints and the deep-research endpoints. The server hands it out after
// planning and accepts it back verbatim; resume pre-seeds the underscore
// fields.
type ContextState struct {
	UserQuery              string         `json:"user_query"`
	SessionTitle           string         `json:"session_title,omitempty"`
	ClarificationQuestions []string       `json:"clarification_questions,omitempty"`
	ClarificationAnswers   []string       `json:"clarification_answers,omitempty"`
	ResearchPlan           []string       `json:"research_plan,omitempty"`
	AcademicBereiche       []prompts.Area `json:"academic_bereiche,omitempty"`
	PlanVersion            int            `json:"plan_version,omitempty"`
	CurrentStep            int            `json:"current_step,omitempty"`

	// Resume seeding. ResumedFrom references the original session id; the
	// dossiers and learnings below were completed before the interruption.
	ResumedFrom          string              `json:"_resumed_from,omitempty"`
	CompletedDossiers    []checkpoint.Dossier `json:"_completed_dossiers,omitempty"`
	AccumulatedLearnings []string            `json:"_accumulated_learnings,omitempty"`
}

// TotalAcademicPoints counts points across all areas.
func (c ContextState) TotalAcademicPoints() int {
	n := 0
	for _, a := range c.AcademicBereiche {
		n += len(a.Points)
	}
	return n
}
