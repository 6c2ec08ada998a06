// Package research is the orchestrator core: the setup pipeline, the
// per-point worker loop, and the flat and academic mode drivers. All side
// effects of a run (events, checkpoints, backups, log export) originate
// here; the leaf packages stay pure with respect to session state.
package research

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/checkpoint"
	"github.com/lutumlabs/lutum/internal/cite"
	"github.com/lutumlabs/lutum/internal/events"
	"github.com/lutumlabs/lutum/internal/export"
	"github.com/lutumlabs/lutum/internal/i18n"
	"github.com/lutumlabs/lutum/internal/llm"
	"github.com/lutumlabs/lutum/internal/logbuf"
	"github.com/lutumlabs/lutum/internal/scrape"
	"github.com/lutumlabs/lutum/internal/search"
)

// Stage timeouts and output budgets. Work calls are short and skippable;
// synthesis calls run for minutes and are offloaded so the event stream
// stays alive.
const (
	ThinkTimeout   = 60 * time.Second
	PickTimeout    = 60 * time.Second
	DossierTimeout = 120 * time.Second
	DossierTokens  = 8000

	SetupScrapeTimeout = 20 * time.Second
	PointScrapeTimeout = 45 * time.Second

	FinalSynthesisTimeout = 20 * time.Minute
	FinalSynthesisTokens  = 32000
	AreaSynthesisTimeout  = 180 * time.Second
	AreaSynthesisTokens   = 48000
	ConclusionTimeout     = 300 * time.Second
	ConclusionTokens      = 96000

	PlanTimeout = 120 * time.Second
	PlanTokens  = 4000
)

// defaultFlushPause lets the transport deliver queued structured events
// before the orchestrator enters a long blocking call.
const defaultFlushPause = 300 * time.Millisecond

// Skip reasons a point can terminate with instead of a dossier.
const (
	SkipThinkFailed      = "think_failed"
	SkipNoQueries        = "no_queries"
	SkipNoResults        = "no_results"
	SkipNoURLsAfterRetry = "no_urls_after_retry"
	SkipScrapeEmpty      = "scrape_empty"
	SkipDossierFailed    = "dossier_failed"
)

// Engine wires the orchestrator's collaborators. Every external dependency
// is a seam: tests substitute stub callers, providers and navigators.
type Engine struct {
	Bus         *events.Bus
	Checkpoints *checkpoint.Store
	Export      *export.Writer
	LogBuffer   *logbuf.Buffer

	SearchProvider search.Provider
	NewNavigator   scrape.NavigatorFactory

	// NewCaller builds the LLM gateway for one run's config.
	NewCaller func(llm.Config) llm.Caller

	// AllowPrivate relaxes SSRF checks for local fixtures.
	AllowPrivate bool

	// Test overrides; zero means production defaults.
	SearchSpacing time.Duration
	ScrapeDelay   time.Duration
	FlushPause    time.Duration
}

func (e *Engine) caller(cfg llm.Config) llm.Caller {
	if e.NewCaller != nil {
		return e.NewCaller(cfg)
	}
	return llm.New(cfg)
}

func (e *Engine) runner() *search.Runner {
	return &search.Runner{Provider: e.SearchProvider, Spacing: e.SearchSpacing}
}

func (e *Engine) scraper() *scrape.Client {
	return &scrape.Client{
		NewNavigator: e.NewNavigator,
		AllowPrivate: e.AllowPrivate,
		Delay:        e.ScrapeDelay,
	}
}

func (e *Engine) flushPause() time.Duration {
	if e.FlushPause > 0 {
		return e.FlushPause
	}
	return defaultFlushPause
}

// run carries the state of one orchestrator run. It is confined to a single
// goroutine; the registry and slices are never shared.
type run struct {
	e         *Engine
	ctx       context.Context
	sid       string
	lang      i18n.Lang
	cfg       llm.Config
	caller    llm.Caller
	registry  *cite.Registry
	userQuery string
	started   time.Time
}

func (e *Engine) newRun(ctx context.Context, sid string, lang i18n.Lang, cfg llm.Config, userQuery string) *run {
	return &run{
		e:         e,
		ctx:       ctx,
		sid:       sid,
		lang:      lang,
		cfg:       cfg,
		caller:    e.caller(cfg),
		registry:  cite.NewRegistry(),
		userQuery: userQuery,
		started:   time.Now(),
	}
}

func (r *run) emit(ev events.Envelope) {
	r.e.Bus.Emit(r.sid, ev)
}

func (r *run) status(key string, args i18n.Args) {
	r.emit(events.Envelope{Type: events.TypeStatus, Message: i18n.Status(r.lang, key, args)})
}

// flushLogs drains the WARN+ ring into the event stream, so the UI sees
// backend diagnostics without polling. Called after LLM calls and before
// terminal envelopes.
func (r *run) flushLogs() {
	if r.e.LogBuffer == nil {
		return
	}
	for _, entry := range r.e.LogBuffer.Drain() {
		r.emit(events.Envelope{
			Type:    events.TypeLog,
			Message: entry.Short,
			Data:    map[string]any{"level": entry.Level, "full": entry.Message},
		})
	}
}

// complete runs one LLM call and flushes the log ring afterwards.
func (r *run) complete(req llm.Request) (llm.Result, error) {
	res, err := r.caller.Complete(r.ctx, req)
	r.flushLogs()
	return res, err
}

// completeOffloaded runs a long synthesis call in its own goroutine and
// waits on a channel, keeping this goroutine free to notice cancellation.
// Without the offload, a stalled provider would silently freeze the stream.
func (r *run) completeOffloaded(req llm.Request) (llm.Result, error) {
	type outcome struct {
		res llm.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := r.caller.Complete(r.ctx, req)
		ch <- outcome{res, err}
	}()
	select {
	case o := <-ch:
		r.flushLogs()
		return o.res, o.err
	case <-r.ctx.Done():
		return llm.Result{}, r.ctx.Err()
	}
}

// pause gives the transport a moment to flush structured events before a
// blocking stage.
func (r *run) pause() {
	select {
	case <-r.ctx.Done():
	case <-time.After(r.e.flushPause()):
	}
}

func (r *run) duration() int {
	return int(time.Since(r.started).Seconds())
}

// saveCheckpoint persists the session snapshot; failures are logged and the
// run continues, losing only resumability.
func (r *run) saveCheckpoint(cp *checkpoint.Checkpoint) {
	if r.e.Checkpoints == nil {
		return
	}
	if err := r.e.Checkpoints.Save(cp); err != nil {
		log.Error().Str("session", r.sid).Err(err).Msg("checkpoint save failed")
	}
}
