package ask

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lutumlabs/lutum/internal/events"
	"github.com/lutumlabs/lutum/internal/export"
	"github.com/lutumlabs/lutum/internal/i18n"
	"github.com/lutumlabs/lutum/internal/llm"
	"github.com/lutumlabs/lutum/internal/scrape"
	"github.com/lutumlabs/lutum/internal/search"
)

// askStubCaller answers each stage by its system prompt's distinctive
// phrase. Stages can be broken per test via fail.
type askStubCaller struct {
	fail map[string]bool
}

func (s *askStubCaller) stageOf(system string) string {
	switch {
	case strings.Contains(system, "Restate precisely"):
		return "C1"
	case strings.Contains(system, "enumerate the pieces"):
		return "C2"
	case strings.Contains(system, "EXACTLY 10 search queries"):
		return "C3"
	case strings.Contains(system, "answering a question from scraped sources"):
		return "C4"
	case strings.Contains(system, "fact-check auditor"):
		return "C5"
	case strings.Contains(system, "fact-check verifier"):
		return "C6"
	}
	return ""
}

func (s *askStubCaller) Complete(_ context.Context, req llm.Request) (llm.Result, error) {
	stage := s.stageOf(req.Messages[0].Content)
	if s.fail[stage] {
		return llm.Result{}, fmt.Errorf("stage %s is down", stage)
	}
	var content string
	switch stage {
	case "C1":
		content = "The user wants a factual comparison."
	case "C2":
		content = "1. Definition of both items\n2. Current figures"
	case "C3":
		content = "1. first stub query\n2. second stub query\n3. third stub query"
	case "C4":
		content = "## Answer\n\nItem one leads [1]. Item two follows [2]."
	case "C5":
		content = "1. Item one leads → item one market position\n2. Item two follows → item two market position"
	case "C6":
		content = "1. CONFIRMED [V1]\n2. CONFIRMED [V2]\n\nValidated: Yes"
	default:
		return llm.Result{}, fmt.Errorf("unrecognized system prompt: %.60s", req.Messages[0].Content)
	}
	return llm.Result{Content: content, FinishReason: "stop"}, nil
}

type askProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *askProvider) Name() string { return "ask-stub" }

func (p *askProvider) Search(_ context.Context, query string, _ int) ([]search.Result, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()
	return []search.Result{
		{Title: "Top", URL: fmt.Sprintf("https://ask%d.test/top", n), Snippet: "s"},
		{Title: "Second", URL: fmt.Sprintf("https://ask%d.test/second", n), Snippet: "s"},
	}, nil
}

type askNavigator struct{}

func (askNavigator) Navigate(_ context.Context, url string, _ time.Duration) (string, error) {
	return "Page body for " + url + ". " + strings.Repeat("Enough text to count. ", 5), nil
}

func (askNavigator) Close(context.Context) error { return nil }

func newTestService(t *testing.T) (*Service, *askStubCaller, string) {
	t.Helper()
	caller := &askStubCaller{fail: map[string]bool{}}
	exportRoot := t.TempDir()
	svc := &Service{
		Bus:            events.NewBusSize(500),
		Export:         &export.Writer{Root: exportRoot},
		SearchProvider: &askProvider{},
		NewNavigator:   func() (scrape.Navigator, error) { return askNavigator{}, nil },
		NewCaller:      func(llm.Config) llm.Caller { return caller },
		SearchSpacing:  time.Millisecond,
		ScrapeDelay:    time.Millisecond,
	}
	return svc, caller, exportRoot
}

func drain(t *testing.T, bus *events.Bus, sid string) []events.Envelope {
	t.Helper()
	ch := bus.Subscribe(sid)
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

func cfg() llm.Config {
	return llm.Config{APIKey: "k", Provider: llm.OpenRouter, WorkModel: "work", FinalModel: "final"}
}

func TestRun_FullPipeline(t *testing.T) {
	svc, _, exportRoot := newTestService(t)
	sid := svc.Register("", "which is faster", i18n.English)
	svc.Run(context.Background(), sid, "which is faster", cfg(), i18n.English)
	evs := drain(t, svc.Bus, sid)

	if evs[0].Type != events.TypeConnected {
		t.Fatalf("first envelope: %+v", evs[0])
	}
	done := evs[len(evs)-1]
	if done.Type != events.TypeDone {
		t.Fatalf("terminal: %+v", done)
	}
	if done.Data["validated"] != true {
		t.Fatalf("validated: %v", done.Data["validated"])
	}
	// 3 answer sources + 2 verification sources.
	if done.Data["total_sources"].(int) != 5 {
		t.Fatalf("total_sources: %v", done.Data["total_sources"])
	}
	if !strings.Contains(done.Data["answer"].(string), "[1]") {
		t.Fatalf("answer: %v", done.Data["answer"])
	}
	if !strings.Contains(done.Data["verification"].(string), "Validated: Yes") {
		t.Fatalf("verification: %v", done.Data["verification"])
	}

	// All six stages started, in order.
	var stages []string
	for _, ev := range evs {
		if ev.Type == events.TypeStageStart {
			stages = append(stages, ev.Data["stage"].(string))
		}
	}
	want := []string{"C1", "C2", "C3", "C4", "C5", "C6"}
	if len(stages) != len(want) {
		t.Fatalf("stages: %v", stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stage order: %v", stages)
		}
	}

	// Both scrape phases ran with per-URL progress.
	var phases []int
	progress := 0
	for _, ev := range evs {
		switch ev.Type {
		case events.TypeScrapeStart:
			phases = append(phases, ev.Data["phase"].(int))
		case events.TypeScrapeProgress:
			progress++
		}
	}
	if len(phases) != 2 || phases[0] != 1 || phases[1] != 2 {
		t.Fatalf("scrape phases: %v", phases)
	}
	if progress != 5 {
		t.Fatalf("progress events: %d", progress)
	}

	// Registry updated.
	sessions := svc.List()
	if len(sessions) != 1 || sessions[0].Status != "complete" {
		t.Fatalf("sessions: %+v", sessions)
	}
	if sessions[0].Validated == nil || !*sessions[0].Validated {
		t.Fatalf("session verdict: %+v", sessions[0])
	}

	// Journal on disk.
	path := filepath.Join(exportRoot, export.AskJournalDir, "deep_question_"+sid+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		t.Fatal(err)
	}
	if j.SessionID != sid || !j.Validated || len(j.Stages) == 0 {
		t.Fatalf("journal: %+v", j)
	}
}

func TestRun_StageFailureTerminatesStream(t *testing.T) {
	svc, caller, exportRoot := newTestService(t)
	caller.fail["C2"] = true
	sid := svc.Register("", "q", i18n.English)
	svc.Run(context.Background(), sid, "q", cfg(), i18n.English)
	evs := drain(t, svc.Bus, sid)

	last := evs[len(evs)-1]
	if last.Type != events.TypeError {
		t.Fatalf("terminal: %+v", last)
	}
	if last.Data["stage"] != "C2" {
		t.Fatalf("failed stage: %+v", last.Data)
	}
	if !strings.Contains(last.Message, "C2") {
		t.Fatalf("message: %q", last.Message)
	}
	if svc.List()[0].Status != "failed" {
		t.Fatalf("session: %+v", svc.List()[0])
	}
	// No journal for a failed run.
	if _, err := os.Stat(filepath.Join(exportRoot, export.AskJournalDir)); !os.IsNotExist(err) {
		t.Fatalf("journal dir exists after failure: %v", err)
	}
}

func TestRegister_IDs(t *testing.T) {
	svc, _, _ := newTestService(t)
	id := svc.Register("", "q", i18n.German)
	if len(id) != 12 {
		t.Fatalf("generated id: %q", id)
	}
	if got := svc.Register("client-chosen", "q2", i18n.English); got != "client-chosen" {
		t.Fatalf("requested id: %q", got)
	}
	if len(svc.List()) != 2 {
		t.Fatalf("sessions: %+v", svc.List())
	}
}

func TestTopURLPerQuery(t *testing.T) {
	batch := []search.QueryResults{
		{Query: "a", Results: []search.Result{
			{URL: "http://127.0.0.1/secret"},
			{URL: "https://ok.test/a"},
		}},
		{Query: "b", Results: []search.Result{
			{URL: "https://ok.test/a"}, // dup of a's pick
			{URL: "https://ok.test/b"},
		}},
		{Query: "c", Results: nil},
	}
	got := topURLPerQuery(batch, false)
	if len(got) != 2 || got[0] != "https://ok.test/a" || got[1] != "https://ok.test/b" {
		t.Fatalf("got %v", got)
	}
}

func TestRun_GermanMessages(t *testing.T) {
	svc, _, _ := newTestService(t)
	sid := svc.Register("", "frage", i18n.German)
	svc.Run(context.Background(), sid, "frage", cfg(), i18n.German)
	evs := drain(t, svc.Bus, sid)

	for _, ev := range evs {
		if strings.Contains(ev.Message, "Analyzing the question") {
			t.Fatalf("english message in de run: %q", ev.Message)
		}
	}
	if !strings.Contains(evs[len(evs)-1].Message, "abgeschlossen") {
		t.Fatalf("done message: %q", evs[len(evs)-1].Message)
	}
}
