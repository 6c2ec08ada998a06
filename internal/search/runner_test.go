package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type scriptedProvider struct {
	byQuery map[string][]Result
	err     error
	calls   []string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Search(_ context.Context, query string, limit int) ([]Result, error) {
	p.calls = append(p.calls, query)
	if p.err != nil {
		return nil, p.err
	}
	res := p.byQuery[query]
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func TestRunner_SequentialWithSanitizedQueries(t *testing.T) {
	p := &scriptedProvider{byQuery: map[string][]Result{
		"alpha": {{Title: "A", URL: "https://a.test"}},
		"beta":  {{Title: "B", URL: "https://b.test"}},
	}}
	r := &Runner{Provider: p, Spacing: time.Millisecond}

	got := r.Run(context.Background(), []string{`"alpha"`, "beta"})
	if len(got) != 2 {
		t.Fatalf("batches = %d", len(got))
	}
	if got[0].Query != "alpha" {
		t.Fatalf("quotes not stripped: %q", got[0].Query)
	}
	if len(got[0].Results) != 1 || len(got[1].Results) != 1 {
		t.Fatalf("results: %+v", got)
	}
	if p.calls[0] != "alpha" || p.calls[1] != "beta" {
		t.Fatalf("call order: %v", p.calls)
	}
}

func TestRunner_FailedQueryYieldsEmptyList(t *testing.T) {
	p := &scriptedProvider{err: errors.New("engine down")}
	r := &Runner{Provider: p, Spacing: time.Millisecond}

	got := r.Run(context.Background(), []string{"anything"})
	if len(got) != 1 || len(got[0].Results) != 0 {
		t.Fatalf("expected one empty batch, got %+v", got)
	}
	if !Empty(got) {
		t.Fatal("Empty() should report true")
	}
}

func TestRunner_OversizedQueryIsBounded(t *testing.T) {
	p := &scriptedProvider{byQuery: map[string][]Result{}}
	r := &Runner{Provider: p, Spacing: time.Millisecond}

	r.Run(context.Background(), []string{strings.Repeat("x", 2000)})
	if len(p.calls) != 1 || len(p.calls[0]) > 500 {
		t.Fatalf("query not bounded: %d chars", len(p.calls[0]))
	}
}

func TestFormatForPrompt_CounterContinuesAcrossQueries(t *testing.T) {
	batch := []QueryResults{
		{Query: "q1", Results: []Result{
			{Title: "One", URL: "https://one.test", Snippet: "first"},
			{Title: "Two", URL: "https://two.test"},
		}},
		{Query: "q2", Results: []Result{
			{Title: "Three", URL: "https://three.test", Snippet: strings.Repeat("s", 400)},
		}},
	}
	text, next := FormatForPrompt(batch, 1)
	if next != 4 {
		t.Fatalf("next counter = %d, want 4", next)
	}
	for _, want := range []string{"[1] One", "[2] Two", "[3] Three", "=== Query: q1 ==="} {
		if !strings.Contains(text, want) {
			t.Fatalf("listing missing %q:\n%s", want, text)
		}
	}
	// Retry batches append with the continued counter.
	retry, next2 := FormatForPrompt([]QueryResults{
		{Query: "q3", Results: []Result{{Title: "Four", URL: "https://four.test"}}},
	}, next)
	if next2 != 5 || !strings.Contains(retry, "[4] Four") {
		t.Fatalf("retry listing: next=%d\n%s", next2, retry)
	}
}

func TestURLs_DeduplicatesFirstWins(t *testing.T) {
	batch := []QueryResults{
		{Results: []Result{{URL: "https://a.test"}, {URL: "https://b.test"}}},
		{Results: []Result{{URL: "https://a.test"}, {URL: "https://c.test"}}},
	}
	got := URLs(batch)
	want := []string{"https://a.test", "https://b.test", "https://c.test"}
	if len(got) != len(want) {
		t.Fatalf("urls: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("urls[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
