package research

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/llm"
	"github.com/lutumlabs/lutum/internal/prompts"
)

// ErrPlanEmpty reports a planning call whose reply contained no parseable
// points.
var ErrPlanEmpty = errors.New("plan reply contained no points")

// PlanResult is the planning endpoints' payload.
type PlanResult struct {
	PlanPoints       []string       `json:"plan_points"`
	PlanText         string         `json:"plan_text"`
	AcademicBereiche []prompts.Area `json:"academic_bereiche,omitempty"`
	ContextState     ContextState   `json:"context_state"`
}

// CreatePlan turns the clarified question into a research plan, flat or
// academic. The returned context state is what the client hands to the deep
// endpoints.
func (e *Engine) CreatePlan(ctx context.Context, state ContextState, cfg llm.Config, academic bool) (PlanResult, error) {
	var system, user string
	if academic {
		system, user = prompts.BuildAcademicPlan(state.UserQuery, state.ClarificationQuestions, state.ClarificationAnswers)
	} else {
		system, user = prompts.BuildPlan(state.UserQuery, state.ClarificationQuestions, state.ClarificationAnswers)
	}
	return e.plan(ctx, state, cfg, academic, system, user)
}

// RevisePlan re-plans with user feedback appended; the plan version bumps.
func (e *Engine) RevisePlan(ctx context.Context, state ContextState, cfg llm.Config, feedback string) (PlanResult, error) {
	academic := len(state.AcademicBereiche) > 0
	var system, user string
	if academic {
		system, user = prompts.BuildAcademicPlan(state.UserQuery, state.ClarificationQuestions,
			append(state.ClarificationAnswers, "Feedback on the previous plan: "+feedback))
	} else {
		system, user = prompts.BuildPlanRevision(state.UserQuery, state.ResearchPlan, feedback)
	}
	return e.plan(ctx, state, cfg, academic, system, user)
}

func (e *Engine) plan(ctx context.Context, state ContextState, cfg llm.Config, academic bool, system, user string) (PlanResult, error) {
	res, err := e.caller(cfg).Complete(ctx, llm.Request{
		Messages:  llm.Chat(system, user),
		Model:     cfg.WorkModel,
		MaxTokens: PlanTokens,
		Timeout:   PlanTimeout,
	})
	if err != nil {
		return PlanResult{}, err
	}
	if res.Empty() {
		return PlanResult{}, llm.ErrEmptyContent
	}

	out := PlanResult{ContextState: state}
	out.ContextState.PlanVersion = state.PlanVersion + 1
	if academic {
		areas := prompts.ParseAcademicPlan(res.Content)
		if len(areas) == 0 {
			return PlanResult{}, ErrPlanEmpty
		}
		if len(areas) < 2 {
			log.Warn().Int("areas", len(areas)).Msg("academic plan came back with fewer than two areas")
		}
		out.AcademicBereiche = areas
		out.PlanText = prompts.FormatAcademicPlan(areas)
		for _, a := range areas {
			out.PlanPoints = append(out.PlanPoints, a.Points...)
		}
		out.ContextState.AcademicBereiche = areas
		out.ContextState.ResearchPlan = out.PlanPoints
		return out, nil
	}

	points := prompts.ParsePlanPoints(res.Content)
	if len(points) == 0 {
		return PlanResult{}, ErrPlanEmpty
	}
	if len(points) < 5 {
		log.Warn().Int("points", len(points)).Msg("plan came back with fewer than five points")
	}
	out.PlanPoints = points
	out.PlanText = strings.TrimSpace(res.Content)
	out.ContextState.ResearchPlan = points
	return out, nil
}
