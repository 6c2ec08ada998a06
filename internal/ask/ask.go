// Package ask runs the six-stage verification pipeline: restate the
// question, enumerate the knowledge needed, search, answer with citations,
// audit the answer into claims, and verify the claims against a second
// scrape pass. Sessions live in an in-memory registry and every finished
// run is journaled to disk.
package ask

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/events"
	"github.com/lutumlabs/lutum/internal/export"
	"github.com/lutumlabs/lutum/internal/i18n"
	"github.com/lutumlabs/lutum/internal/llm"
	"github.com/lutumlabs/lutum/internal/logbuf"
	"github.com/lutumlabs/lutum/internal/prompts"
	"github.com/lutumlabs/lutum/internal/sanitize"
	"github.com/lutumlabs/lutum/internal/scrape"
	"github.com/lutumlabs/lutum/internal/search"
)

// Stage budgets. The short stages are work calls; answer and verification
// read full scraped sources and get more room.
const (
	StageTimeout  = 60 * time.Second
	AnswerTimeout = 180 * time.Second
	VerifyTimeout = 180 * time.Second
	AnswerTokens  = 8000
	VerifyTokens  = 8000

	ScrapeTimeout   = 20 * time.Second
	resultsPerQuery = 3
)

// Session is the registry entry for one Ask run.
type Session struct {
	ID        string    `json:"session_id"`
	Question  string    `json:"question"`
	Language  i18n.Lang `json:"language"`
	Status    string    `json:"status"` // running | complete | failed
	Validated *bool     `json:"validated,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Service owns the Ask pipeline and its session registry.
type Service struct {
	Bus       *events.Bus
	Export    *export.Writer
	LogBuffer *logbuf.Buffer

	SearchProvider search.Provider
	NewNavigator   scrape.NavigatorFactory
	NewCaller      func(llm.Config) llm.Caller

	AllowPrivate  bool
	SearchSpacing time.Duration
	ScrapeDelay   time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// Register records a new session and returns its id. An empty requested id
// gets a fresh UUID-derived one.
func (s *Service) Register(requestedID, question string, lang i18n.Lang) string {
	id := strings.TrimSpace(requestedID)
	if id == "" {
		id = uuid.NewString()[:12]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		s.sessions = make(map[string]*Session)
	}
	s.sessions[id] = &Session{
		ID:        id,
		Question:  sanitize.Truncate(question, 300),
		Language:  lang,
		Status:    "running",
		CreatedAt: time.Now(),
	}
	return id
}

// List returns all sessions, newest first.
func (s *Service) List() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Service) finish(id, status string, validated *bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Status = status
		sess.Validated = validated
	}
}

func (s *Service) caller(cfg llm.Config) llm.Caller {
	if s.NewCaller != nil {
		return s.NewCaller(cfg)
	}
	return llm.New(cfg)
}

// Run executes the whole pipeline synchronously and terminates the
// session's event stream with done or error. Callers stream it from a
// separate goroutine.
func (s *Service) Run(ctx context.Context, sid, question string, cfg llm.Config, lang i18n.Lang) {
	r := &askRun{
		s: s, ctx: ctx, sid: sid, lang: lang, cfg: cfg,
		caller:   s.caller(cfg),
		question: question,
		started:  time.Now(),
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("session", sid).Any("panic", rec).Msg("ask pipeline panicked")
			r.fail("internal error")
		}
	}()
	r.emit(events.Envelope{Type: events.TypeConnected, Message: i18n.Ask(lang, "starting", nil)})

	// C1: intent.
	intent, ok := r.stage("C1", "c1_start", "c1_done", nil, StageTimeout, 0, func() (string, string) {
		return prompts.BuildAskIntent(question)
	})
	if !ok {
		return
	}

	// C2: knowledge needs.
	knowledge, ok := r.stage("C2", "c2_start", "c2_done", nil, StageTimeout, 0, func() (string, string) {
		return prompts.BuildAskKnowledge(question, intent)
	})
	if !ok {
		return
	}

	// C3: search queries.
	r.stageStart("C3", "c3_start", nil)
	began := time.Now()
	res, err := r.complete(llm.Request{
		Messages: llm.Chat(prompts.BuildAskQueries(question, knowledge)),
		Model:    cfg.WorkModel,
		Timeout:  StageTimeout,
	})
	if err != nil || res.Empty() {
		r.stageFailed("C3", err)
		return
	}
	queries := prompts.ParseAskQueries(res.Content)
	if len(queries) == 0 {
		r.stageFailed("C3", llm.ErrEmptyContent)
		return
	}
	r.emit(events.Envelope{
		Type:    events.TypeStageContent,
		Message: i18n.Ask(lang, "c3_done", i18n.Args{"count": len(queries)}),
		Data:    map[string]any{"stage": "C3", "content": res.Content, "queries": queries},
	})
	r.record("C3", began, len(res.Content))

	// Scrape phase 1: top result per query.
	pages := r.scrapePhase(1, "scrape1_start", "scrape1_done", queries)
	r.journal.TotalSources += len(scrape.Successes(pages))

	// C4: cited answer.
	answer, ok := r.stage("C4", "c4_start", "c4_done", map[string]any{"sources": pageURLs(pages)},
		AnswerTimeout, AnswerTokens, func() (string, string) {
			return prompts.BuildAskAnswer(question, pages)
		})
	if !ok {
		return
	}

	// C5: auditable claims.
	r.stageStart("C5", "c5_start", nil)
	began = time.Now()
	res, err = r.complete(llm.Request{
		Messages: llm.Chat(prompts.BuildAskAudit(question, answer)),
		Model:    cfg.WorkModel,
		Timeout:  StageTimeout,
	})
	if err != nil || res.Empty() {
		r.stageFailed("C5", err)
		return
	}
	claims := prompts.ParseAskClaims(res.Content)
	if len(claims) == 0 {
		r.stageFailed("C5", llm.ErrEmptyContent)
		return
	}
	r.emit(events.Envelope{
		Type:    events.TypeStageContent,
		Message: i18n.Ask(lang, "c5_done", i18n.Args{"count": len(claims)}),
		Data:    map[string]any{"stage": "C5", "content": res.Content, "claims": claims},
	})
	r.record("C5", began, len(res.Content))

	// Scrape phase 2: verification queries.
	verifyQueries := make([]string, 0, len(claims))
	for _, c := range claims {
		verifyQueries = append(verifyQueries, c.Query)
	}
	verifyPages := r.scrapePhase(2, "scrape2_start", "scrape2_done", verifyQueries)
	r.journal.TotalSources += len(scrape.Successes(verifyPages))

	// C6: verification report.
	report, ok := r.stage("C6", "c6_start", "c6_done", map[string]any{"sources": pageURLs(verifyPages)},
		VerifyTimeout, VerifyTokens, func() (string, string) {
			return prompts.BuildAskVerification(question, claims, verifyPages)
		})
	if !ok {
		return
	}
	validated, verdictOK := prompts.ParseValidated(report)
	if !verdictOK {
		log.Warn().Str("session", sid).Msg("verification report missing verdict line")
	}

	duration := int(time.Since(r.started).Seconds())
	r.journal.Question = question
	r.journal.SessionID = sid
	r.journal.Language = string(lang)
	r.journal.Answer = answer
	r.journal.Verification = report
	r.journal.Validated = validated
	r.journal.DurationSeconds = duration
	r.saveJournal()

	s.finish(sid, "complete", &validated)
	r.flushLogs()
	r.emit(events.Envelope{
		Type:    events.TypeDone,
		Message: i18n.Ask(lang, "complete", i18n.Args{"duration": duration}),
		Data: map[string]any{
			"duration":      duration,
			"total_sources": r.journal.TotalSources,
			"answer":        answer,
			"verification":  report,
			"validated":     validated,
			"error":         nil,
		},
	})
}

// askRun is the per-run state, confined to one goroutine.
type askRun struct {
	s        *Service
	ctx      context.Context
	sid      string
	lang     i18n.Lang
	cfg      llm.Config
	caller   llm.Caller
	question string
	started  time.Time
	journal  Journal
}

func (r *askRun) emit(ev events.Envelope) {
	r.s.Bus.Emit(r.sid, ev)
}

func (r *askRun) flushLogs() {
	if r.s.LogBuffer == nil {
		return
	}
	for _, entry := range r.s.LogBuffer.Drain() {
		r.emit(events.Envelope{
			Type:    events.TypeLog,
			Message: entry.Short,
			Data:    map[string]any{"level": entry.Level, "full": entry.Message},
		})
	}
}

func (r *askRun) complete(req llm.Request) (llm.Result, error) {
	res, err := r.caller.Complete(r.ctx, req)
	r.flushLogs()
	return res, err
}

func (r *askRun) stageStart(stage, key string, args i18n.Args) {
	r.emit(events.Envelope{
		Type:    events.TypeStageStart,
		Message: i18n.Ask(r.lang, key, args),
		Data:    map[string]any{"stage": stage},
	})
}

// stage runs one plain LLM stage: start event, call, content event. extra is
// merged into the content payload. It returns ok=false after terminating the
// stream on failure.
func (r *askRun) stage(stage, startKey, doneKey string, extra map[string]any,
	timeout time.Duration, maxTokens int, build func() (string, string)) (string, bool) {
	r.stageStart(stage, startKey, nil)
	began := time.Now()
	system, user := build()
	res, err := r.complete(llm.Request{
		Messages:  llm.Chat(system, user),
		Model:     r.cfg.WorkModel,
		MaxTokens: maxTokens,
		Timeout:   timeout,
	})
	if err != nil || res.Empty() {
		r.stageFailed(stage, err)
		return "", false
	}
	data := map[string]any{"stage": stage, "content": res.Content}
	for k, v := range extra {
		data[k] = v
	}
	r.emit(events.Envelope{
		Type:    events.TypeStageContent,
		Message: i18n.Ask(r.lang, doneKey, nil),
		Data:    data,
	})
	r.record(stage, began, len(res.Content))
	return res.Content, true
}

func (r *askRun) record(stage string, began time.Time, chars int) {
	r.journal.Stages = append(r.journal.Stages, StageRecord{
		Stage:      stage,
		DurationMS: int(time.Since(began).Milliseconds()),
		Chars:      chars,
	})
}

// scrapePhase searches the queries, takes the top valid URL per query (cap
// ten), and scrapes them concurrently with per-URL progress events.
func (r *askRun) scrapePhase(phase int, startKey, doneKey string, queries []string) []scrape.Page {
	runner := &search.Runner{
		Provider: r.s.SearchProvider,
		PerQuery: resultsPerQuery,
		Spacing:  r.s.SearchSpacing,
	}
	batch := runner.Run(r.ctx, queries)
	urls := topURLPerQuery(batch, r.s.AllowPrivate)

	r.emit(events.Envelope{
		Type:    events.TypeScrapeStart,
		Message: i18n.Ask(r.lang, startKey, nil),
		Data:    map[string]any{"phase": phase, "urls": urls},
	})
	client := &scrape.Client{
		NewNavigator: r.s.NewNavigator,
		AllowPrivate: r.s.AllowPrivate,
		Delay:        r.s.ScrapeDelay,
	}
	pages := client.Parallel(r.ctx, urls, ScrapeTimeout, func(done, total int) {
		r.emit(events.Envelope{
			Type: events.TypeScrapeProgress,
			Data: map[string]any{"phase": phase, "done": done, "total": total},
		})
	})
	count := len(scrape.Successes(pages))
	r.emit(events.Envelope{
		Type:    events.TypeScrapeDone,
		Message: i18n.Ask(r.lang, doneKey, i18n.Args{"count": count}),
		Data:    map[string]any{"phase": phase, "count": count, "total": len(urls)},
	})
	return pages
}

func (r *askRun) stageFailed(stage string, err error) {
	log.Warn().Str("session", r.sid).Str("stage", stage).Err(err).Msg("ask stage failed")
	r.s.finish(r.sid, "failed", nil)
	r.flushLogs()
	msg := i18n.Ask(r.lang, "stage_failed", i18n.Args{"stage": stage})
	r.emit(events.Envelope{
		Type:    events.TypeError,
		Message: msg,
		Data:    map[string]any{"stage": stage},
	})
}

func (r *askRun) fail(reason string) {
	r.s.finish(r.sid, "failed", nil)
	r.flushLogs()
	r.emit(events.Envelope{
		Type:    events.TypeError,
		Message: i18n.Ask(r.lang, "error", i18n.Args{"error": reason}),
	})
}

// topURLPerQuery keeps the first safe URL of each query's results, deduped,
// capped at the Ask URL limit.
func topURLPerQuery(batch []search.QueryResults, allowPrivate bool) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, prompts.AskURLCap)
	for _, qr := range batch {
		for _, res := range qr.Results {
			if err := sanitize.ValidateURL(res.URL, allowPrivate); err != nil {
				continue
			}
			if _, dup := seen[res.URL]; dup {
				continue
			}
			seen[res.URL] = struct{}{}
			out = append(out, res.URL)
			break
		}
		if len(out) >= prompts.AskURLCap {
			break
		}
	}
	return out
}

func pageURLs(pages []scrape.Page) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.URL)
	}
	return out
}
