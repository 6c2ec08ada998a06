package research

import (
	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/checkpoint"
	"github.com/lutumlabs/lutum/internal/events"
	"github.com/lutumlabs/lutum/internal/i18n"
	"github.com/lutumlabs/lutum/internal/llm"
	"github.com/lutumlabs/lutum/internal/prompts"
	"github.com/lutumlabs/lutum/internal/sanitize"
	"github.com/lutumlabs/lutum/internal/scrape"
	"github.com/lutumlabs/lutum/internal/search"
)

// minPickedURLs is the dead-end threshold: below this the worker
// reformulates its queries once before giving up on the point.
const minPickedURLs = 2

// pointOutcome is what one worker iteration produced.
type pointOutcome struct {
	Dossier      *checkpoint.Dossier
	KeyLearnings string
	Skipped      bool
	SkipReason   string
}

// pointProgress carries the counters the point events expose.
type pointProgress struct {
	Number    int // 1-based, global across the run
	Total     int
	Remaining int
}

// runPoint executes think → search → pick → scrape → dossier for one
// research point. Every failure path degrades into a skip with a reason;
// the loop never aborts the run.
func (r *run) runPoint(point string, learnings []string, prog pointProgress) pointOutcome {
	r.status("pick_point", i18n.Args{
		"current": prog.Number, "total": prog.Total,
		"point": sanitize.Truncate(point, 80),
	})

	// Think.
	r.status("think_start", nil)
	system, user := prompts.BuildThink(r.userQuery, point, learnings)
	res, err := r.complete(llm.Request{
		Messages: llm.Chat(system, user),
		Model:    r.cfg.WorkModel,
		Timeout:  ThinkTimeout,
	})
	if err != nil || res.Empty() {
		log.Warn().Str("point", sanitize.Truncate(point, 60)).Err(err).Msg("think stage failed")
		return r.skip(point, SkipThinkFailed, prog)
	}
	think := prompts.ParseThink(res.Content)
	if len(think.Queries) == 0 {
		return r.skip(point, SkipNoQueries, prog)
	}

	// Search.
	r.status("searching", i18n.Args{"count": len(think.Queries)})
	batch := r.e.runner().Run(r.ctx, think.Queries)
	if search.Empty(batch) {
		return r.skip(point, SkipNoResults, prog)
	}
	listing, counter := search.FormatForPrompt(batch, 1)

	// Pick.
	r.status("selecting_sources", nil)
	urls := r.pickURLs(point, listing)

	// Dead-end retry: reformulate once with fresh keywords, append the new
	// results to the listing (counter keeps running), pick again.
	if len(urls) < minPickedURLs {
		r.status("few_results_retry", nil)
		retryQueries := r.reformulate(point, think.Queries)
		if len(retryQueries) > 0 {
			r.status("retry_search", i18n.Args{"count": len(retryQueries)})
			retryBatch := r.e.runner().Run(r.ctx, retryQueries)
			var more string
			more, counter = search.FormatForPrompt(retryBatch, counter)
			listing += more
			urls = r.pickURLs(point, listing)
		}
		if len(urls) < 1 {
			return r.skip(point, SkipNoURLsAfterRetry, prog)
		}
	}
	r.emit(events.Envelope{Type: events.TypeSources, Data: map[string]any{"urls": urls}})

	// Scrape.
	r.status("scraping", i18n.Args{"count": len(urls)})
	pages := r.e.scraper().Batch(r.ctx, urls, PointScrapeTimeout)
	sourcesBlock := prompts.FormatSources(pages)
	if sourcesBlock == "" {
		return r.skip(point, SkipScrapeEmpty, prog)
	}

	// Dossier.
	r.status("creating_dossier", nil)
	system, user = prompts.BuildDossier(r.userQuery, point, pages)
	res, err = r.complete(llm.Request{
		Messages:  llm.Chat(system, user),
		Model:     r.cfg.WorkModel,
		MaxTokens: DossierTokens,
		Timeout:   DossierTimeout,
	})
	if err != nil || res.Empty() {
		log.Warn().Str("point", sanitize.Truncate(point, 60)).Err(err).Msg("dossier stage failed")
		return r.skip(point, SkipDossierFailed, prog)
	}
	parsed := prompts.ParseDossier(res.Content)
	if parsed.Body == "" {
		return r.skip(point, SkipDossierFailed, prog)
	}

	// Renumber local citations into the global registry; learnings reuse
	// the body's mapping so they stay valid in later points.
	citationURLs := parsed.CitationURLs()
	body, keyLearnings := r.registry.RenumberDossier(parsed.Body, parsed.KeyLearnings, citationURLs)

	dossierSources := sanitize.FilterURLs(citationURLs, r.e.AllowPrivate)
	if len(dossierSources) == 0 {
		// The model skipped the SOURCES block; fall back to what was read.
		for _, p := range scrape.Successes(pages) {
			dossierSources = append(dossierSources, p.URL)
		}
	}

	d := &checkpoint.Dossier{Point: point, Dossier: body, Sources: dossierSources}
	r.emit(events.Envelope{
		Type:    events.TypePointComplete,
		Message: i18n.Status(r.lang, "point_done", i18n.Args{"current": prog.Number, "total": prog.Total}),
		Data: map[string]any{
			"point_title":     sanitize.Truncate(point, 120),
			"point_number":    prog.Number,
			"total_points":    prog.Total,
			"remaining_count": prog.Remaining,
			"dossier_full":    body,
			"key_learnings":   keyLearnings,
			"sources":         dossierSources,
		},
	})
	r.pause()
	return pointOutcome{Dossier: d, KeyLearnings: keyLearnings}
}

func (r *run) pickURLs(point, listing string) []string {
	system, user := prompts.BuildPickURLs(r.userQuery, point, listing, prompts.PointPickCount)
	res, err := r.complete(llm.Request{
		Messages: llm.Chat(system, user),
		Model:    r.cfg.WorkModel,
		Timeout:  PickTimeout,
	})
	if err != nil || res.Empty() {
		log.Warn().Err(err).Msg("pick-urls stage failed")
		return nil
	}
	return prompts.ParsePickURLs(res.Content, prompts.PointPickCount, r.e.AllowPrivate)
}

func (r *run) reformulate(point string, failed []string) []string {
	system, user := prompts.BuildReformulate(r.userQuery, point, failed)
	res, err := r.complete(llm.Request{
		Messages: llm.Chat(system, user),
		Model:    r.cfg.WorkModel,
		Timeout:  ThinkTimeout,
	})
	if err != nil || res.Empty() {
		log.Warn().Err(err).Msg("reformulation failed")
		return nil
	}
	return prompts.ParseReformulate(res.Content)
}

// skip emits the skipped point_complete and returns the outcome. The
// learnings placeholder keeps the accumulated-learnings indices aligned
// with point numbers.
func (r *run) skip(point, reason string, prog pointProgress) pointOutcome {
	r.status("point_skipped", i18n.Args{"reason": reason})
	r.emit(events.Envelope{
		Type:    events.TypePointComplete,
		Message: i18n.Status(r.lang, "point_skipped", i18n.Args{"reason": reason}),
		Data: map[string]any{
			"point_title":   sanitize.Truncate(point, 120),
			"point_number":  prog.Number,
			"total_points":  prog.Total,
			"skipped":       true,
			"skip_reason":   reason,
			"key_learnings": "Skipped - " + reason,
		},
	})
	return pointOutcome{Skipped: true, SkipReason: reason}
}
