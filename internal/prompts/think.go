package prompts

import (
	"net/url"
	"strings"

	"github.com/lutumlabs/lutum/internal/sanitize"
)

// MaxThinkQueries caps how many search queries one think step may request.
const MaxThinkQueries = 10

const thinkSystem = `You are a search strategist. For a given research point you design the
searches that will find the best sources.

Respond in EXACTLY this format:

=== THINKING ===
<2-5 sentences: what the point needs, which angles to cover, which source
types to target>

=== SEARCHES ===
search 1 (Primary): <query>
search 2 (Primary): <query>
search 3 (Community): <query>
...up to 10 searches.

Rules:
- Queries are simple keyword searches. No quotes, no site: operators, no URLs.
- Diversify: authoritative sources, community discussions, practical
  experience, critical takes.
- Fewer, better queries beat ten filler queries.`

// BuildThink returns the think prompt for one research point. Accumulated
// learnings from earlier points, when present, steer the strategy.
func BuildThink(userQuery, point string, learnings []string) (string, string) {
	var b strings.Builder
	b.WriteString("Overall research question:\n")
	b.WriteString(sanitize.UserInput(userQuery))
	b.WriteString("\n\nCurrent research point:\n")
	b.WriteString(sanitize.UserInput(point))
	if len(learnings) > 0 {
		b.WriteString("\n\nKey learnings from earlier points:\n")
		for _, l := range learnings {
			b.WriteString("- ")
			b.WriteString(sanitize.Truncate(l, 1500))
			b.WriteString("\n")
		}
	}
	return thinkSystem, b.String()
}

// Think is the parsed think reply.
type Think struct {
	Thinking string
	Queries  []string
}

// ParseThink extracts the thinking block and the search queries. Lines that
// look like URLs become keyword queries when a q= parameter is recoverable
// and are dropped otherwise; site: operators disqualify a query.
func ParseThink(resp string) Think {
	resp = boundInput(resp)
	t := Think{Thinking: section(resp, "=== THINKING ===")}

	searches := section(resp, "=== SEARCHES ===")
	if searches == "" {
		// Tolerate a reply that skipped the marker but kept the line format.
		searches = resp
	}
	for _, line := range strings.Split(searches, "\n") {
		if len(line) > MaxParseLine {
			line = line[:MaxParseLine]
		}
		q := extractSearchLine(line)
		if q == "" {
			continue
		}
		t.Queries = append(t.Queries, q)
		if len(t.Queries) >= MaxThinkQueries {
			break
		}
	}
	return t
}

// extractSearchLine turns one "search N (Cat): query" line into a clean
// query, or "" when the line is prose or unusable.
func extractSearchLine(line string) string {
	line = strings.TrimSpace(line)
	low := strings.ToLower(line)
	if !strings.HasPrefix(low, "search") {
		return ""
	}
	idx := strings.Index(line, ":")
	if idx < 0 {
		return ""
	}
	q := strings.TrimSpace(line[idx+1:])
	if strings.Contains(q, "://") {
		q = queryFromURL(q)
	}
	if strings.Contains(strings.ToLower(q), "site:") {
		return ""
	}
	q = sanitize.Query(q)
	if len(q) <= 3 {
		return ""
	}
	return q
}

// queryFromURL salvages a search query from a pasted search-engine URL.
func queryFromURL(raw string) string {
	u, err := url.Parse(strings.Fields(raw)[0])
	if err != nil {
		return ""
	}
	return u.Query().Get("q")
}
