package research

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lutumlabs/lutum/internal/checkpoint"
	"github.com/lutumlabs/lutum/internal/events"
	"github.com/lutumlabs/lutum/internal/export"
	"github.com/lutumlabs/lutum/internal/i18n"
	"github.com/lutumlabs/lutum/internal/llm"
	"github.com/lutumlabs/lutum/internal/scrape"
	"github.com/lutumlabs/lutum/internal/search"
)

// stubCaller dispatches on distinctive phrases in each stage's system
// prompt, the way the pipeline's prompts actually differ. Individual stages
// can be overridden per test.
type stubCaller struct {
	mu        sync.Mutex
	pickCalls int

	think       func(user string) string
	pick        func(user string, call int) string
	reformulate func(user string) string
	dossier     func(user string) string
	overview    func(user string) string
	clarify     func(user string) string
	plan        func(user string) string
	synthesis   func(user string) string
	area        func(user string) string
	conclusion  func(user string) string
}

var quelleRe = regexp.MustCompile(`=== QUELLE: (\S+) ===`)
var listingURLRe = regexp.MustCompile(`URL: (\S+)`)

func defaultDossierReply(user string) string {
	urls := quelleRe.FindAllStringSubmatch(user, -1)
	var b strings.Builder
	b.WriteString("## 📋 HEADER\nPoint analyzed.\n\n## 🎯 KERNSUMMARY\n")
	for i := range urls {
		b.WriteString(fmt.Sprintf("Finding %d [%d]. ", i+1, i+1))
	}
	b.WriteString("\n\n## 💡 KEY LEARNINGS\nRemember [1].\n\n=== SOURCES ===\n")
	for i, m := range urls {
		b.WriteString(fmt.Sprintf("[%d] %s - Source %d\n", i+1, m[1], i+1))
	}
	b.WriteString("\n=== END DOSSIER ===\n")
	return b.String()
}

func defaultPickReply(user string, _ int) string {
	var b strings.Builder
	b.WriteString("=== SELECTED ===\n")
	n := 0
	for _, m := range listingURLRe.FindAllStringSubmatch(user, -1) {
		n++
		b.WriteString(fmt.Sprintf("url %d: %s\n", n, m[1]))
		if n >= 2 {
			break
		}
	}
	return b.String()
}

func (s *stubCaller) Complete(_ context.Context, req llm.Request) (llm.Result, error) {
	system, user := req.Messages[0].Content, req.Messages[len(req.Messages)-1].Content
	reply := func(f func(string) string, fallback string) (llm.Result, error) {
		if f != nil {
			return llm.Result{Content: f(user), FinishReason: "stop"}, nil
		}
		return llm.Result{Content: fallback, FinishReason: "stop"}, nil
	}
	switch {
	case strings.Contains(system, "research librarian"):
		return reply(s.overview, "session: Stub Session\nquery 1 (Primary): stub overview query\nquery 2 (Critical): stub critical query")
	case strings.Contains(system, "research consultant"):
		return reply(s.clarify, "Good start! 1. Which time frame matters most?")
	case strings.Contains(system, "academic investigation"),
		strings.Contains(system, "research director"):
		return reply(s.plan, "(1) First stub point with enough text\n\n(2) Second stub point with enough text")
	case strings.Contains(system, "previous queries"):
		return reply(s.reformulate, "search 1: retry query one\nsearch 2: retry query two\nsearch 3: retry query three\nsearch 4: retry query four\nsearch 5: retry query five")
	case strings.Contains(system, "search strategist"):
		return reply(s.think, "=== THINKING ===\nStub strategy.\n\n=== SEARCHES ===\nsearch 1 (Primary): alpha query\nsearch 2 (Critical): beta query")
	case strings.Contains(system, "source curator"):
		s.mu.Lock()
		s.pickCalls++
		call := s.pickCalls
		s.mu.Unlock()
		if s.pick != nil {
			return llm.Result{Content: s.pick(user, call), FinishReason: "stop"}, nil
		}
		return llm.Result{Content: defaultPickReply(user, call), FinishReason: "stop"}, nil
	case strings.Contains(system, "writing a dossier"):
		if s.dossier != nil {
			return llm.Result{Content: s.dossier(user), FinishReason: "stop"}, nil
		}
		return llm.Result{Content: defaultDossierReply(user), FinishReason: "stop"}, nil
	case strings.Contains(system, "synthesizing ONE research area"):
		return reply(s.area, "## Area Synthesis\n\nArea findings keep [1] as-is.")
	case strings.Contains(system, "principal investigator"):
		return reply(s.conclusion, "## Answer\n\nCross-area answer [1].")
	case strings.Contains(system, "senior research editor"):
		return reply(s.synthesis, "# Stub Report\n\n## Executive Summary\nAnswer citing [1] and [3].\n\n=== END REPORT ===")
	default:
		return llm.Result{}, fmt.Errorf("stub caller: unrecognized system prompt: %.80s", system)
	}
}

// countingProvider returns one unique URL per search call.
type countingProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Search(_ context.Context, query string, _ int) ([]search.Result, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()
	return []search.Result{{
		Title:   fmt.Sprintf("Result %d", n),
		URL:     fmt.Sprintf("https://site%d.test/page", n),
		Snippet: "stub snippet for " + query,
	}}, nil
}

// testNavigator records visits and serves substantial fake content.
type testNavigator struct {
	mu      sync.Mutex
	visited []string
}

func (n *testNavigator) Navigate(_ context.Context, url string, _ time.Duration) (string, error) {
	n.mu.Lock()
	n.visited = append(n.visited, url)
	n.mu.Unlock()
	return "Scraped content from " + url + ". " + strings.Repeat("Substantial body text. ", 10), nil
}

func (n *testNavigator) Close(context.Context) error { return nil }

type testRig struct {
	engine *Engine
	caller *stubCaller
	nav    *testNavigator
	bus    *events.Bus
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	caller := &stubCaller{}
	nav := &testNavigator{}
	bus := events.NewBusSize(1000)
	e := &Engine{
		Bus:            bus,
		Checkpoints:    &checkpoint.Store{Root: t.TempDir()},
		Export:         &export.Writer{Root: t.TempDir()},
		SearchProvider: &countingProvider{},
		NewNavigator:   func() (scrape.Navigator, error) { return nav, nil },
		NewCaller:      func(llm.Config) llm.Caller { return caller },
		SearchSpacing:  time.Millisecond,
		ScrapeDelay:    time.Millisecond,
		FlushPause:     time.Millisecond,
	}
	return &testRig{engine: e, caller: caller, nav: nav, bus: bus}
}

// drain collects all queued envelopes for a session up to the terminal one.
func (rig *testRig) drain(t *testing.T, sid string) []events.Envelope {
	t.Helper()
	ch := rig.bus.Subscribe(sid)
	var out []events.Envelope
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
			if events.Terminal(ev) {
				return out
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("stream did not terminate; got %d envelopes", len(out))
		}
	}
}

func ofType(evs []events.Envelope, typ string) []events.Envelope {
	var out []events.Envelope
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func testConfig() llm.Config {
	return llm.Config{APIKey: "k", Provider: llm.OpenRouter, WorkModel: "work", FinalModel: "final"}
}

var testPlan = []string{"Summarize A", "Summarize B"}

func TestRunDeep_HappyFlat(t *testing.T) {
	rig := newTestRig(t)
	state := ContextState{UserQuery: "compare A and B", ResearchPlan: testPlan}
	sid := checkpoint.SessionID(state.UserQuery, testPlan)

	rig.engine.RunDeep(context.Background(), state, testConfig(), i18n.English)
	evs := rig.drain(t, sid)

	last := evs[len(evs)-1]
	if last.Type != events.TypeDone {
		t.Fatalf("terminal envelope: %+v", last)
	}
	if got := last.Data["total_points"].(int); got != 2 {
		t.Fatalf("total_points = %v", got)
	}
	if got := last.Data["total_sources"].(int); got != 4 {
		t.Fatalf("total_sources = %v", got)
	}
	final := last.Data["final_document"].(string)
	if !strings.Contains(final, "Stub Report") {
		t.Fatalf("final document: %.120s", final)
	}

	// Ordering: session_id early, point_completes in order, synthesis_start
	// before done, exactly one terminal envelope.
	completes := ofType(evs, events.TypePointComplete)
	if len(completes) != 2 {
		t.Fatalf("point_complete count = %d", len(completes))
	}
	if completes[0].Data["point_number"].(int) != 1 || completes[1].Data["point_number"].(int) != 2 {
		t.Fatalf("point order: %+v", completes)
	}
	if len(ofType(evs, events.TypeSynthesisStart)) != 1 {
		t.Fatal("synthesis_start missing")
	}
	for i, ev := range evs {
		if events.Terminal(ev) && i != len(evs)-1 {
			t.Fatalf("terminal envelope at %d of %d", i, len(evs))
		}
	}
	if len(ofType(evs, events.TypeSources)) != 2 {
		t.Fatal("sources envelopes missing")
	}

	// Citation renumbering (S5): dossier 1 keeps [1][2], dossier 2 gets
	// [3][4]; the registry is the initial segment 1..4.
	d1 := completes[0].Data["dossier_full"].(string)
	d2 := completes[1].Data["dossier_full"].(string)
	if !strings.Contains(d1, "[1]") || !strings.Contains(d1, "[2]") || strings.Contains(d1, "[3]") {
		t.Fatalf("dossier 1 citations:\n%s", d1)
	}
	if !strings.Contains(d2, "[3]") || !strings.Contains(d2, "[4]") {
		t.Fatalf("dossier 2 citations:\n%s", d2)
	}
	registry := last.Data["source_registry"].(map[string]string)
	for _, k := range []string{"1", "2", "3", "4"} {
		if registry[k] == "" {
			t.Fatalf("registry missing %s: %v", k, registry)
		}
	}
	if len(registry) != 4 {
		t.Fatalf("registry size: %v", registry)
	}

	// Learnings carry the renumbered citations forward.
	if kl := completes[1].Data["key_learnings"].(string); !strings.Contains(kl, "[3]") {
		t.Fatalf("learnings of point 2 not renumbered: %q", kl)
	}
}

func TestRunDeep_DeadEndRetry(t *testing.T) {
	rig := newTestRig(t)
	rig.caller.pick = func(user string, call int) string {
		if call == 1 {
			return "=== SELECTED ===\n(nothing usable)"
		}
		return defaultPickReply(user, call)
	}
	state := ContextState{UserQuery: "q", ResearchPlan: []string{"Only point"}}
	sid := checkpoint.SessionID(state.UserQuery, state.ResearchPlan)

	rig.engine.RunDeep(context.Background(), state, testConfig(), i18n.English)
	evs := rig.drain(t, sid)

	var sawRetryStatus, sawReformStatus bool
	for _, ev := range ofType(evs, events.TypeStatus) {
		if strings.Contains(ev.Message, "reformulating") {
			sawReformStatus = true
		}
		if strings.Contains(ev.Message, "Retrying search") {
			sawRetryStatus = true
		}
	}
	if !sawReformStatus || !sawRetryStatus {
		t.Fatalf("retry statuses missing (reform=%v retry=%v)", sawReformStatus, sawRetryStatus)
	}
	completes := ofType(evs, events.TypePointComplete)
	if len(completes) != 1 || completes[0].Data["skipped"] != nil {
		t.Fatalf("point should complete after retry: %+v", completes)
	}
	if done := evs[len(evs)-1]; done.Data["total_points"].(int) != 1 {
		t.Fatalf("done: %+v", done.Data)
	}
}

func TestRunDeep_ThinkFailureSkipsAndContinues(t *testing.T) {
	rig := newTestRig(t)
	first := true
	var mu sync.Mutex
	rig.caller.think = func(user string) string {
		mu.Lock()
		defer mu.Unlock()
		if first {
			first = false
			return "   "
		}
		return "=== SEARCHES ===\nsearch 1: working query"
	}
	state := ContextState{UserQuery: "q", ResearchPlan: testPlan}
	sid := checkpoint.SessionID(state.UserQuery, testPlan)

	rig.engine.RunDeep(context.Background(), state, testConfig(), i18n.English)
	evs := rig.drain(t, sid)

	completes := ofType(evs, events.TypePointComplete)
	if len(completes) != 2 {
		t.Fatalf("point_complete count: %d", len(completes))
	}
	if completes[0].Data["skipped"] != true || completes[0].Data["skip_reason"] != SkipThinkFailed {
		t.Fatalf("first point: %+v", completes[0].Data)
	}
	if completes[1].Data["skipped"] != nil {
		t.Fatalf("second point should succeed: %+v", completes[1].Data)
	}
	done := evs[len(evs)-1]
	if done.Type != events.TypeDone || done.Data["total_points"].(int) != 1 {
		t.Fatalf("done: %+v", done)
	}
}

func TestRunDeep_SSRFURLsNeverScraped(t *testing.T) {
	rig := newTestRig(t)
	rig.caller.pick = func(string, int) string {
		return "url 1: http://127.0.0.1:6379/"
	}
	state := ContextState{UserQuery: "q", ResearchPlan: []string{"Dangerous point"}}
	sid := checkpoint.SessionID(state.UserQuery, state.ResearchPlan)

	rig.engine.RunDeep(context.Background(), state, testConfig(), i18n.English)
	evs := rig.drain(t, sid)

	completes := ofType(evs, events.TypePointComplete)
	if len(completes) != 1 || completes[0].Data["skip_reason"] != SkipNoURLsAfterRetry {
		t.Fatalf("expected no_urls_after_retry skip: %+v", completes)
	}
	if len(rig.nav.visited) != 0 {
		t.Fatalf("navigator was reached: %v", rig.nav.visited)
	}
}

func TestRunDeep_ResumeKeepsOldDossiersVerbatim(t *testing.T) {
	rig := newTestRig(t)
	state := ContextState{UserQuery: "resume me", ResearchPlan: testPlan}
	sid := checkpoint.SessionID(state.UserQuery, testPlan)

	// Simulate a crash after point 1: a checkpoint holding one dossier.
	preCrash := checkpoint.Dossier{
		Point:   "Summarize A",
		Dossier: "## KERNSUMMARY\nOriginal finding [1].",
		Sources: []string{"https://old.test/a"},
	}
	if err := rig.engine.Checkpoints.Save(&checkpoint.Checkpoint{
		SessionID: sid, UserQuery: "resume me", ResearchPlan: testPlan,
		CompletedDossiers:    []checkpoint.Dossier{preCrash},
		AccumulatedLearnings: []string{"Remember [1]."},
		RemainingPoints:      []string{"Summarize B"},
		Status:               "dossier_1_complete",
	}); err != nil {
		t.Fatal(err)
	}

	if err := rig.engine.Resume(context.Background(), sid, testConfig(), i18n.English); err != nil {
		t.Fatalf("resume: %v", err)
	}
	evs := rig.drain(t, sid)

	done := evs[len(evs)-1]
	if done.Type != events.TypeDone || done.Data["total_points"].(int) != 2 {
		t.Fatalf("done: %+v", done.Data)
	}
	// Only the remaining point ran.
	completes := ofType(evs, events.TypePointComplete)
	if len(completes) != 1 || completes[0].Data["point_number"].(int) != 2 {
		t.Fatalf("resumed completes: %+v", completes)
	}
	// The pre-crash dossier survives byte-identical in the final checkpoint.
	cp, err := rig.engine.Checkpoints.Load(sid)
	if err != nil {
		t.Fatal(err)
	}
	if len(cp.CompletedDossiers) != 2 {
		t.Fatalf("checkpoint dossiers: %d", len(cp.CompletedDossiers))
	}
	if cp.CompletedDossiers[0].Dossier != preCrash.Dossier {
		t.Fatalf("old dossier mutated: %q", cp.CompletedDossiers[0].Dossier)
	}
	if cp.Status != "completed" {
		t.Fatalf("status: %q", cp.Status)
	}
}

func TestRunDeep_ResumeErrors(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.engine.Resume(context.Background(), "missing00000", testConfig(), i18n.English); err != ErrNoCheckpoint {
		t.Fatalf("err = %v", err)
	}
	if err := rig.engine.Checkpoints.Save(&checkpoint.Checkpoint{
		SessionID: "finished0000", UserQuery: "q", Status: "completed",
	}); err != nil {
		t.Fatal(err)
	}
	if err := rig.engine.Resume(context.Background(), "finished0000", testConfig(), i18n.English); err != ErrNothingToDo {
		t.Fatalf("err = %v", err)
	}
}

func TestRunDeep_GermanStatusMessages(t *testing.T) {
	rig := newTestRig(t)
	state := ContextState{UserQuery: "frage", ResearchPlan: []string{"Punkt eins"}}
	sid := checkpoint.SessionID(state.UserQuery, state.ResearchPlan)

	rig.engine.RunDeep(context.Background(), state, testConfig(), i18n.German)
	evs := rig.drain(t, sid)

	statuses := ofType(evs, events.TypeStatus)
	if len(statuses) == 0 {
		t.Fatal("no statuses")
	}
	var sawStart bool
	for _, ev := range statuses {
		if strings.Contains(ev.Message, "Starte Deep Research") {
			sawStart = true
		}
		if strings.Contains(ev.Message, "Starting deep research") {
			t.Fatalf("english message in de run: %q", ev.Message)
		}
	}
	if !sawStart {
		t.Fatal("german start status missing")
	}
}

func TestRunDeep_SynthesisFailureFallsBackToConcatenation(t *testing.T) {
	rig := newTestRig(t)
	rig.caller.synthesis = func(string) string { return "" }
	state := ContextState{UserQuery: "q", ResearchPlan: []string{"Point one"}}
	sid := checkpoint.SessionID(state.UserQuery, state.ResearchPlan)

	rig.engine.RunDeep(context.Background(), state, testConfig(), i18n.English)
	evs := rig.drain(t, sid)

	done := evs[len(evs)-1]
	final := done.Data["final_document"].(string)
	if !strings.HasPrefix(final, "# Research Result") {
		t.Fatalf("fallback document: %.120s", final)
	}
	if !strings.Contains(final, "Point one") {
		t.Fatalf("fallback missing dossier: %.200s", final)
	}
}
