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
	"github.com/lutumlabs/lutum/internal/sanitize"
)

// areaResult records one finished area for the final payload.
type areaResult struct {
	Title    string               `json:"bereich_titel"`
	Synthese string               `json:"synthese"`
	Sources  []string             `json:"sources"`
	Dossiers []checkpoint.Dossier `json:"dossiers"`
}

// RunAcademic drives hierarchical research: the worker loop per area with
// area-scoped learnings, one synthesis per area, and a cross-area
// conclusion. Dossier citations are renumbered globally; area syntheses are
// not re-renumbered (their inputs already carry global indices).
func (e *Engine) RunAcademic(ctx context.Context, state ContextState, cfg llm.Config, lang i18n.Lang) {
	areas := state.AcademicBereiche
	planFlat := make([]string, 0, 16)
	for _, a := range areas {
		planFlat = append(planFlat, a.Points...)
	}
	sid := checkpoint.SessionID(state.UserQuery, planFlat)
	r := e.newRun(ctx, sid, lang, cfg, state.UserQuery)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("session", sid).Any("panic", rec).Msg("academic run panicked")
			r.fail("academic_failed")
		}
	}()

	totalPoints := len(planFlat)
	r.status("academic_start", i18n.Args{"bereiche": len(areas), "points": totalPoints})
	r.emit(events.Envelope{Type: events.TypeSessionID, Data: map[string]any{"session_id": sid}})

	var (
		results      []areaResult
		allDossiers  []checkpoint.Dossier
		pointCounter int
	)
	r.saveCheckpoint(&checkpoint.Checkpoint{
		SessionID: sid, UserQuery: state.UserQuery, ResearchPlan: planFlat,
		RemainingPoints: planFlat, Status: "started",
	})

	for ai, area := range areas {
		if ctx.Err() != nil {
			r.fail("academic_failed")
			return
		}
		r.emit(events.Envelope{
			Type:    events.TypeBereichStart,
			Message: i18n.Status(lang, "bereich_start", i18n.Args{"current": ai + 1, "total": len(areas), "title": area.Title}),
			Data: map[string]any{
				"bereich_title":     area.Title,
				"bereich_number":    ai + 1,
				"total_bereiche":    len(areas),
				"points_in_bereich": len(area.Points),
			},
		})

		// Learnings are scoped to this area: each area is independently
		// researchable by design, so cross-area context would only bleed
		// assumptions between them.
		var areaLearnings []string
		var areaDossiers []checkpoint.Dossier
		for _, point := range area.Points {
			pointCounter++
			out := r.runPoint(point, areaLearnings, pointProgress{
				Number: pointCounter, Total: totalPoints, Remaining: totalPoints - pointCounter,
			})
			if out.Skipped {
				continue
			}
			areaDossiers = append(areaDossiers, *out.Dossier)
			allDossiers = append(allDossiers, *out.Dossier)
			if strings.TrimSpace(out.KeyLearnings) != "" {
				areaLearnings = append(areaLearnings, out.KeyLearnings)
			}
			r.saveCheckpoint(&checkpoint.Checkpoint{
				SessionID: sid, UserQuery: state.UserQuery, ResearchPlan: planFlat,
				CompletedDossiers: allDossiers, AccumulatedLearnings: areaLearnings,
				RemainingPoints: planFlat[pointCounter:],
				Status:          fmt.Sprintf("dossier_%d_complete", len(allDossiers)),
			})
		}

		synthese := r.areaSynthesis(area, areaDossiers)
		sources := make([]string, 0, 16)
		for _, d := range areaDossiers {
			sources = append(sources, d.Sources...)
		}
		results = append(results, areaResult{
			Title: area.Title, Synthese: synthese,
			Sources: sources, Dossiers: areaDossiers,
		})
		r.emit(events.Envelope{
			Type:    events.TypeBereichComplete,
			Message: i18n.Status(lang, "bereich_complete", i18n.Args{"title": area.Title}),
			Data: map[string]any{
				"bereich_title":    area.Title,
				"bereich_number":   ai + 1,
				"dossiers_count":   len(areaDossiers),
				"sources_count":    len(sources),
				"synthese_preview": sanitize.Truncate(synthese, 500),
			},
		})
	}

	// Cross-area conclusion.
	r.emit(events.Envelope{
		Type:    events.TypeMetaSynthesisStart,
		Message: i18n.Status(lang, "meta_synthesis_start", nil),
		Data: map[string]any{
			"bereiche_count": len(areas),
			"total_sources":  r.registry.Count(),
		},
	})
	r.pause()

	stats := prompts.ConclusionStats{
		Areas:    len(areas),
		Dossiers: len(allDossiers),
		Sources:  r.registry.Count(),
	}
	syntheses := make([]string, 0, len(results))
	for _, res := range results {
		stats.SyntheseChars += len(res.Synthese)
		syntheses = append(syntheses, res.Synthese)
	}
	conclusion := r.conclusion(areas, syntheses, stats)

	impact := fmt.Sprintf("Diese Recherche umfasst %d Bereiche, %d Dossiers und %d Quellen.",
		len(areas), len(allDossiers), r.registry.Count())
	if lang == i18n.English {
		impact = fmt.Sprintf("This research covers %d areas, %d dossiers and %d sources.",
			len(areas), len(allDossiers), r.registry.Count())
	}

	// Legacy flat document for clients that predate the structured payload.
	var legacy strings.Builder
	for _, res := range results {
		legacy.WriteString(res.Synthese)
		legacy.WriteString("\n\n---\n\n")
	}
	legacy.WriteString(conclusion)
	if r.e.Export != nil {
		r.e.Export.SaveSynthesis(export.AcademicSynthesisDir, "academic", legacy.String())
	}

	r.saveCheckpoint(&checkpoint.Checkpoint{
		SessionID: sid, UserQuery: state.UserQuery, ResearchPlan: planFlat,
		CompletedDossiers: allDossiers, Status: "completed",
	})
	r.flushLogs()
	r.emit(events.Envelope{
		Type:    events.TypeDone,
		Message: i18n.Status(lang, "academic_complete", i18n.Args{"duration": r.duration()}),
		Data: map[string]any{
			"syntheses": results,
			"conclusion": map[string]any{
				"impact_statement": impact,
				"content":          conclusion,
				"title":            state.SessionTitle,
			},
			"final_document":     legacy.String(),
			"total_points":       len(allDossiers),
			"total_sources":      r.registry.Count(),
			"total_bereiche":     len(areas),
			"duration_seconds":   r.duration(),
			"source_registry":    r.registry.Sources(),
			"conclusion_metrics": stats,
			"error":              nil,
		},
	})
}

// areaSynthesis synthesizes one area from its dossiers; a failed call
// degrades to gluing the dossiers together. The output keeps the global
// citations its inputs already carry and is not re-renumbered.
func (r *run) areaSynthesis(area prompts.Area, dossiers []checkpoint.Dossier) string {
	if len(dossiers) == 0 {
		return fmt.Sprintf("## %s\n\n(Keine Dossiers in diesem Bereich.)", area.Title)
	}
	r.status("bereich_synthesis", i18n.Args{"title": area.Title})
	bodies := make([]string, 0, len(dossiers))
	for _, d := range dossiers {
		bodies = append(bodies, d.Dossier)
	}
	system, user := prompts.BuildAreaSynthesis(r.userQuery, area.Title, bodies)
	res, err := r.completeOffloaded(llm.Request{
		Messages:  llm.Chat(system, user),
		Model:     r.cfg.FinalModel,
		MaxTokens: AreaSynthesisTokens,
		Timeout:   AreaSynthesisTimeout,
	})
	if err != nil || res.Empty() {
		log.Warn().Str("area", area.Title).Err(err).Msg("area synthesis failed, gluing dossiers")
		return fmt.Sprintf("## %s\n\n%s", area.Title, strings.Join(bodies, "\n\n---\n\n"))
	}
	return res.Content
}

// conclusion runs the meta-synthesis across all areas, degrading to a
// notice when the model fails.
func (r *run) conclusion(areas []prompts.Area, syntheses []string, stats prompts.ConclusionStats) string {
	system, user := prompts.BuildConclusion(r.userQuery, areas, syntheses, stats)
	res, err := r.completeOffloaded(llm.Request{
		Messages:  llm.Chat(system, user),
		Model:     r.cfg.FinalModel,
		MaxTokens: ConclusionTokens,
		Timeout:   ConclusionTimeout,
	})
	if err != nil || res.Empty() {
		log.Warn().Err(err).Msg("conclusion failed")
		if r.lang == i18n.English {
			return "The cross-area conclusion could not be generated. The area syntheses above stand on their own."
		}
		return "Die bereichsübergreifende Conclusio konnte nicht erstellt werden. Die Bereichssynthesen oben stehen für sich."
	}
	return res.Content
}
