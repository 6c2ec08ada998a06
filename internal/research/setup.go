package research

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/events"
	"github.com/lutumlabs/lutum/internal/i18n"
	"github.com/lutumlabs/lutum/internal/llm"
	"github.com/lutumlabs/lutum/internal/prompts"
	"github.com/lutumlabs/lutum/internal/scrape"
	"github.com/lutumlabs/lutum/internal/search"
)

// Setup pipeline steps. max_step values above StepClarify are accepted and
// behave as StepClarify; the pipeline has nothing beyond it.
const (
	StepOverview = 1
	StepSearch   = 2
	StepClarify  = 3
)

const setupResultsPerQuery = 8

// Overview runs only the first setup stage, for the non-streaming overview
// endpoint.
func (e *Engine) Overview(ctx context.Context, userQuery string, cfg llm.Config) (prompts.Overview, string, error) {
	caller := e.caller(cfg)
	system, user := prompts.BuildOverview(userQuery)
	res, err := caller.Complete(ctx, llm.Request{
		Messages: llm.Chat(system, user),
		Model:    cfg.WorkModel,
		Timeout:  ThinkTimeout,
	})
	if err != nil {
		return prompts.Overview{}, "", err
	}
	if res.Empty() {
		return prompts.Overview{}, "", llm.ErrEmptyContent
	}
	return prompts.ParseOverview(res.Content), res.Content, nil
}

// RunSetup streams the three-stage setup pipeline: overview queries, the
// initial broad search with a curated URL pick, and the clarification pass
// over the scraped pages. The stream terminates with done or error.
func (e *Engine) RunSetup(ctx context.Context, sid, userQuery string, maxStep int, cfg llm.Config, lang i18n.Lang) {
	r := e.newRun(ctx, sid, lang, cfg, userQuery)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("session", sid).Any("panic", rec).Msg("setup pipeline panicked")
			r.fail("pipeline_failed")
		}
	}()

	if maxStep < StepOverview {
		maxStep = StepOverview
	}
	if maxStep > StepClarify {
		// Steps beyond clarify were never implemented; accept and clamp.
		maxStep = StepClarify
	}

	// Step 1: overview.
	r.status("getting_overview", nil)
	overview, _, err := e.Overview(ctx, userQuery, cfg)
	r.flushLogs()
	if err != nil || len(overview.Queries) == 0 {
		log.Warn().Err(err).Msg("overview stage failed")
		r.fail("pipeline_failed")
		return
	}
	r.status("overview_done", i18n.Args{"count": len(overview.Queries)})

	var (
		picked  []string
		scraped []scrape.Page
		clarify string
	)

	if maxStep >= StepSearch {
		// Step 2: broad search plus the curated ten-URL pick.
		r.status("searching_web", nil)
		runner := e.runner()
		runner.PerQuery = setupResultsPerQuery
		batch := runner.Run(ctx, overview.Queries)
		if search.Empty(batch) {
			log.Warn().Msg("setup search found nothing")
		}
		listing, _ := search.FormatForPrompt(batch, 1)
		system, user := prompts.BuildPickURLs(userQuery, "", listing, prompts.SetupPickCount)
		res, err := r.complete(llm.Request{
			Messages: llm.Chat(system, user),
			Model:    cfg.WorkModel,
			Timeout:  PickTimeout,
		})
		if err == nil && !res.Empty() {
			picked = prompts.ParsePickURLs(res.Content, prompts.SetupPickCount, e.AllowPrivate)
		}
		if len(picked) == 0 {
			// Model pick failed; fall back to the top results.
			picked = search.URLs(batch)
			if len(picked) > prompts.SetupPickCount {
				picked = picked[:prompts.SetupPickCount]
			}
		}
		r.status("sources_found", i18n.Args{"count": len(picked)})
		r.emit(events.Envelope{Type: events.TypeSources, Data: map[string]any{"urls": picked}})
	}

	if maxStep >= StepClarify {
		// Step 3: read the picked pages and ask the focusing questions.
		r.status("reading_sources", nil)
		scraped = e.scraper().Batch(ctx, picked, SetupScrapeTimeout)
		successes := len(scrape.Successes(scraped))
		if successes == 0 {
			clarify = prompts.ClarifyNoSources
		} else {
			system, user := prompts.BuildClarify(userQuery, scraped)
			res, err := r.complete(llm.Request{
				Messages: llm.Chat(system, user),
				Model:    cfg.WorkModel,
				Timeout:  ThinkTimeout,
			})
			if err != nil || res.Empty() {
				log.Warn().Err(err).Msg("clarify stage failed")
				clarify = prompts.ClarifyNoSources
			} else {
				clarify = res.Content
			}
		}
		r.status("sources_analyzed", i18n.Args{"count": successes})
	}

	r.flushLogs()
	r.emit(events.Envelope{
		Type: events.TypeDone,
		Data: map[string]any{
			"session_title":   overview.SessionTitle,
			"response":        clarify,
			"queries_count":   len(overview.Queries),
			"urls_count":      len(picked),
			"scraped_count":   len(scrape.Successes(scraped)),
			"queries_initial": overview.Queries,
			"error":           nil,
		},
	})
}
