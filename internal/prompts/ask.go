package prompts

import (
	"fmt"
	"strings"

	"github.com/lutumlabs/lutum/internal/sanitize"
	"github.com/lutumlabs/lutum/internal/scrape"
)

// Ask-mode sizes: C3 produces ten queries, C5 exactly ten claims, scrape
// phases cap at ten URLs.
const (
	AskQueryCount = 10
	AskClaimCount = 10
	AskURLCap     = 10
	askPageCap    = 2000
)

const askIntentSystem = `You are a research analyst. Restate precisely what the user wants to know:
the core question, implied sub-questions, and what a complete answer must
contain. 3-6 sentences, same language as the question, no answer yet.`

// BuildAskIntent returns the C1 prompt.
func BuildAskIntent(question string) (string, string) {
	return askIntentSystem, sanitize.UserInput(question)
}

const askKnowledgeSystem = `You are a research analyst. Given a question and its restated intent,
enumerate the pieces of information needed to answer it well: facts, figures,
definitions, current state. Numbered list, same language as the question.`

// BuildAskKnowledge returns the C2 prompt.
func BuildAskKnowledge(question, intent string) (string, string) {
	return askKnowledgeSystem, fmt.Sprintf("Question:\n%s\n\nIntent:\n%s",
		sanitize.UserInput(question), boundInput(intent))
}

const askQueriesSystem = `You are a search strategist. Produce EXACTLY 10 search queries that together
cover the stated knowledge needs.

Format:
1. <query>
2. <query>
...

Simple keyword queries, no quotes, no URLs, no operators.`

// BuildAskQueries returns the C3 prompt.
func BuildAskQueries(question, knowledge string) (string, string) {
	return askQueriesSystem, fmt.Sprintf("Question:\n%s\n\nKnowledge needed:\n%s",
		sanitize.UserInput(question), boundInput(knowledge))
}

// ParseAskQueries extracts the C3 queries as a bounded numbered list.
func ParseAskQueries(resp string) []string {
	out := make([]string, 0, AskQueryCount)
	for _, q := range parseNumberedList(resp, AskQueryCount) {
		q = sanitize.Query(q)
		if len(q) > 3 {
			out = append(out, q)
		}
	}
	return out
}

const askAnswerSystem = `You are a research analyst answering a question from scraped sources only.
Cite every claim with [N] matching the numbered sources. Structure the answer
with short markdown headings. State openly what the sources do not cover.
Same language as the question.`

// BuildAskAnswer returns the C4 prompt over the phase-1 scrape results.
func BuildAskAnswer(question string, pages []scrape.Page) (string, string) {
	return askAnswerSystem, fmt.Sprintf("Question:\n%s\n\nSources:\n%s",
		sanitize.UserInput(question), FormatAskSources(pages))
}

const askAuditSystem = `You are a fact-check auditor. From the answer below, extract EXACTLY 10
verifiable claims and design one verification search query for each.

Format, one line per claim:
1. <claim> → <verification query>
2. <claim> → <verification query>
...

The query must be able to confirm or refute the claim independently.`

// BuildAskAudit returns the C5 prompt.
func BuildAskAudit(question, answer string) (string, string) {
	return askAuditSystem, fmt.Sprintf("Question:\n%s\n\nAnswer to audit:\n%s",
		sanitize.UserInput(question), boundInput(answer))
}

// Claim is one auditable statement with its verification query.
type Claim struct {
	Text  string `json:"text"`
	Query string `json:"query"`
}

// ParseAskClaims extracts claim → query pairs. Lines without the arrow fall
// back to being both claim and query, so a sloppy reply still verifies.
func ParseAskClaims(resp string) []Claim {
	out := make([]Claim, 0, AskClaimCount)
	for _, line := range parseNumberedList(resp, AskClaimCount) {
		text, query, found := strings.Cut(line, "→")
		if !found {
			text, query, found = strings.Cut(line, "->")
		}
		c := Claim{Text: strings.TrimSpace(text)}
		if found {
			c.Query = sanitize.Query(query)
		}
		if c.Query == "" {
			c.Query = sanitize.Query(c.Text)
		}
		if c.Text == "" || len(c.Query) <= 3 {
			continue
		}
		out = append(out, c)
	}
	return out
}

const askVerifySystem = `You are a fact-check verifier. Cross-check each claim against the
verification sources [V1]..[Vn]. For every claim output one of CONFIRMED,
CONTRADICTED, or UNCERTAIN with a short cited justification.

End the report with exactly one line, always in English:

Validated: Yes

or

Validated: No

Yes only if no claim is CONTRADICTED. The body is written in the language of
the question; the final line is always English.`

// BuildAskVerification returns the C6 prompt over the phase-2 scrape
// results.
func BuildAskVerification(question string, claims []Claim, pages []scrape.Page) (string, string) {
	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(sanitize.UserInput(question))
	b.WriteString("\n\nClaims:\n")
	for i, c := range claims {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, c.Text))
	}
	b.WriteString("\nVerification sources:\n")
	b.WriteString(formatAskSourcesPrefixed(pages, "V"))
	return askVerifySystem, b.String()
}

// FormatAskSources renders scraped pages as the numbered block the Ask
// prompts consume.
func FormatAskSources(pages []scrape.Page) string {
	return formatAskSourcesPrefixed(pages, "")
}

func formatAskSourcesPrefixed(pages []scrape.Page, prefix string) string {
	var b strings.Builder
	i := 0
	for _, p := range pages {
		i++
		if p.Success {
			b.WriteString(fmt.Sprintf("[%s%d] URL: %s\nContent: %s\n\n",
				prefix, i, p.URL, sanitize.Truncate(p.Content, askPageCap)))
		} else {
			b.WriteString(fmt.Sprintf("[%s%d] URL: %s\nError: %s\n\n", prefix, i, p.URL, p.Error))
		}
	}
	if i == 0 {
		return "Keine Quellen gefunden.\n"
	}
	return b.String()
}

// ParseValidated extracts the C6 verdict line. Missing or mangled verdicts
// report false with ok=false so the caller can flag the run.
func ParseValidated(resp string) (validated, ok bool) {
	for _, line := range strings.Split(boundInput(resp), "\n") {
		line = strings.TrimSpace(line)
		if v, found := strings.CutPrefix(line, "Validated:"); found {
			v = strings.TrimSpace(v)
			return strings.EqualFold(v, "yes"), true
		}
	}
	return false, false
}
