package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/checkpoint"
	"github.com/lutumlabs/lutum/internal/events"
	"github.com/lutumlabs/lutum/internal/export"
	"github.com/lutumlabs/lutum/internal/i18n"
	"github.com/lutumlabs/lutum/internal/llm"
	"github.com/lutumlabs/lutum/internal/prompts"
)

// RunDeep drives flat deep research: the worker loop over every plan point,
// then the offloaded final synthesis. It always terminates the session's
// event stream with exactly one done or error envelope.
func (e *Engine) RunDeep(ctx context.Context, state ContextState, cfg llm.Config, lang i18n.Lang) {
	plan := state.ResearchPlan
	sid := checkpoint.SessionID(state.UserQuery, plan)
	if state.ResumedFrom != "" {
		sid = state.ResumedFrom
	}
	r := e.newRun(ctx, sid, lang, cfg, state.UserQuery)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("session", sid).Any("panic", rec).Msg("deep research run panicked")
			r.fail("research_failed")
		}
	}()

	// Resume pre-seeds completed work; the registry starts fresh either way
	// (earlier dossiers already carry their renumbered text).
	dossiers := append([]checkpoint.Dossier(nil), state.CompletedDossiers...)
	learnings := append([]string(nil), state.AccumulatedLearnings...)
	completedBefore := len(dossiers)
	fullPlan := append(append([]string(nil), pointsOf(dossiers)...), plan...)

	if state.ResumedFrom != "" {
		r.status("session_resumed", i18n.Args{"remaining": len(plan)})
	}
	r.status("deep_research_start", i18n.Args{"points": len(plan)})
	r.emit(events.Envelope{Type: events.TypeSessionID, Data: map[string]any{"session_id": sid}})

	r.saveCheckpoint(&checkpoint.Checkpoint{
		SessionID: sid, UserQuery: state.UserQuery, ResearchPlan: fullPlan,
		CompletedDossiers: dossiers, AccumulatedLearnings: learnings,
		RemainingPoints: plan, Status: "started",
	})

	total := completedBefore + len(plan)
	for i, point := range plan {
		if ctx.Err() != nil {
			r.fail("research_failed")
			return
		}
		number := completedBefore + i + 1
		out := r.runPoint(point, learnings, pointProgress{
			Number: number, Total: total, Remaining: total - number,
		})
		if out.Skipped {
			continue
		}
		dossiers = append(dossiers, *out.Dossier)
		if strings.TrimSpace(out.KeyLearnings) != "" {
			learnings = append(learnings, out.KeyLearnings)
		}
		r.saveCheckpoint(&checkpoint.Checkpoint{
			SessionID: sid, UserQuery: state.UserQuery, ResearchPlan: fullPlan,
			CompletedDossiers: dossiers, AccumulatedLearnings: learnings,
			RemainingPoints: plan[i+1:],
			Status:          fmt.Sprintf("dossier_%d_complete", len(dossiers)),
		})
	}

	// Final synthesis. The event stream keeps ticking while the call runs.
	r.emit(events.Envelope{
		Type:    events.TypeSynthesisStart,
		Message: i18n.Status(lang, "synthesis_start", nil),
	})
	r.pause()

	final := r.finalSynthesis(fullPlan, dossiers)

	r.saveCheckpoint(&checkpoint.Checkpoint{
		SessionID: sid, UserQuery: state.UserQuery, ResearchPlan: fullPlan,
		CompletedDossiers: dossiers, AccumulatedLearnings: learnings,
		Status: "completed",
	})
	r.flushLogs()
	r.emit(events.Envelope{
		Type:    events.TypeDone,
		Message: i18n.Status(lang, "research_complete", i18n.Args{"duration": r.duration()}),
		Data: map[string]any{
			"final_document":   final,
			"total_points":     len(dossiers),
			"total_sources":    r.registry.Count(),
			"duration_seconds": r.duration(),
			"source_registry":  r.registry.Sources(),
			"error":            nil,
		},
	})
}

// finalSynthesis runs the terminal LLM call, saves a backup on success, and
// degrades to a dossier concatenation when the call fails.
func (r *run) finalSynthesis(plan []string, dossiers []checkpoint.Dossier) string {
	if len(dossiers) == 0 {
		return "No dossiers created - research failed."
	}
	bodies := make([]string, 0, len(dossiers))
	for _, d := range dossiers {
		bodies = append(bodies, d.Dossier)
	}
	system, user := prompts.BuildFinalSynthesis(r.userQuery, plan, bodies)
	res, err := r.completeOffloaded(llm.Request{
		Messages:  llm.Chat(system, user),
		Model:     r.cfg.FinalModel,
		MaxTokens: FinalSynthesisTokens,
		Timeout:   FinalSynthesisTimeout,
	})
	if err != nil || res.Empty() {
		log.Warn().Err(err).Msg("final synthesis failed, falling back to dossier concatenation")
		return fallbackDocument(dossiers)
	}
	if r.e.Export != nil {
		r.e.Export.SaveSynthesis(export.FinalSynthesisDir, "synthesis", res.Content)
	}
	return res.Content
}

// fallbackDocument glues the dossiers into a readable report when the
// synthesis model is unavailable. Citations stay globally numbered.
func fallbackDocument(dossiers []checkpoint.Dossier) string {
	var b strings.Builder
	b.WriteString("# Research Result\n\n")
	for _, d := range dossiers {
		b.WriteString(fmt.Sprintf("## %s\n\n%s\n\n---\n\n", d.Point, d.Dossier))
	}
	return b.String()
}

// fail closes the stream with the single error envelope.
func (r *run) fail(messageKey string) {
	r.flushLogs()
	r.emit(events.Envelope{
		Type:    events.TypeError,
		Message: i18n.Status(r.lang, messageKey, nil),
	})
}

func pointsOf(dossiers []checkpoint.Dossier) []string {
	out := make([]string, 0, len(dossiers))
	for _, d := range dossiers {
		out = append(out, d.Point)
	}
	return out
}
