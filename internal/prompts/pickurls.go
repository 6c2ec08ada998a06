package prompts

import (
	"fmt"
	"strings"

	"github.com/lutumlabs/lutum/internal/sanitize"
)

// URL selection sizes: the setup pick reads broadly, the per-point pick
// selects the scrape batch.
const (
	SetupPickCount = 10
	PointPickCount = 20
)

const pickSystem = `You are a source curator. From a numbered search-result list you select the
URLs most worth reading in full.

Respond in EXACTLY this format:

=== SELECTED ===
url 1: <full URL>
url 2: <full URL>
...

=== REJECTED ===
rejected: <short reason covering what you skipped>

Rules:
- Select EXACTLY %d URLs (fewer only if the list has fewer usable entries).
- Prefer primary sources, depth, and diversity of perspective.
- Never select link aggregators, login walls, or obvious SEO spam.
- Copy URLs exactly as listed.`

// BuildPickURLs returns the selection prompt over a formatted result list.
// count is SetupPickCount or PointPickCount depending on the stage.
func BuildPickURLs(userQuery, point, listing string, count int) (string, string) {
	var b strings.Builder
	b.WriteString("Research question:\n")
	b.WriteString(sanitize.UserInput(userQuery))
	if point != "" {
		b.WriteString("\n\nCurrent research point:\n")
		b.WriteString(sanitize.UserInput(point))
	}
	b.WriteString("\n\nSearch results:\n\n")
	b.WriteString(boundInput(listing))
	return fmt.Sprintf(pickSystem, count), b.String()
}

// ParsePickURLs sweeps the reply for URLs, validates each, and caps the
// list. The regex sweep is deliberate: models often ignore the url N:
// format but still paste the URLs.
func ParsePickURLs(resp string, count int, allowPrivate bool) []string {
	candidates := sweepURLs(resp, count*3)
	out := make([]string, 0, count)
	for _, u := range candidates {
		if err := sanitize.ValidateURL(u, allowPrivate); err != nil {
			continue
		}
		out = append(out, u)
		if len(out) >= count {
			break
		}
	}
	return out
}

const reformulateSystem = `You are a search strategist. The previous queries for a research point found
almost nothing usable. Produce EXACTLY 5 alternative search queries that use
different keywords, synonyms, or a different angle on the topic.

Respond in EXACTLY this format:

=== SEARCHES ===
search 1: <query>
search 2: <query>
search 3: <query>
search 4: <query>
search 5: <query>

Rules: simple keyword queries, no quotes, no URLs, genuinely different from
the failed queries.`

// ReformulateQueryCount is the number of alternative queries a dead-end
// retry asks for.
const ReformulateQueryCount = 5

// BuildReformulate returns the dead-end retry prompt.
func BuildReformulate(userQuery, point string, failedQueries []string) (string, string) {
	var b strings.Builder
	b.WriteString("Research question:\n")
	b.WriteString(sanitize.UserInput(userQuery))
	b.WriteString("\n\nResearch point:\n")
	b.WriteString(sanitize.UserInput(point))
	b.WriteString("\n\nQueries that found nothing usable:\n")
	for _, q := range failedQueries {
		b.WriteString("- ")
		b.WriteString(sanitize.Query(q))
		b.WriteString("\n")
	}
	return reformulateSystem, b.String()
}

// ParseReformulate extracts the alternative queries, reusing the think-line
// parser so URL salvage and operator filtering apply here too.
func ParseReformulate(resp string) []string {
	body := section(boundInput(resp), "=== SEARCHES ===")
	if body == "" {
		body = boundInput(resp)
	}
	t := ParseThink("=== SEARCHES ===\n" + body)
	if len(t.Queries) > ReformulateQueryCount {
		t.Queries = t.Queries[:ReformulateQueryCount]
	}
	return t.Queries
}
