package prompts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lutumlabs/lutum/internal/sanitize"
)

// OverviewQueryCount is how many diversified queries the overview asks for.
const OverviewQueryCount = 10

const overviewSystem = `You are a research librarian preparing a first broad look at a topic.

Given a research question, respond in EXACTLY this format:

session: <concise session title, max 60 characters>
query 1 (Primary): <search query>
query 2 (Primary): <search query>
query 3 (Community): <search query>
query 4 (Community): <search query>
query 5 (Practical): <search query>
query 6 (Practical): <search query>
query 7 (Critical): <search query>
query 8 (Critical): <search query>
query 9 (Current): <search query>
query 10 (Current): <search query>

Rules:
- Queries are plain keyword searches, no quotes, no URLs, no operators.
- Categories: Primary = authoritative sources, Community = forums and
  discussions, Practical = how-to and real-world usage, Critical = problems,
  criticism and limitations, Current = recent developments.
- Write queries in the language most likely to find good sources.
- No other text before or after.`

// Overview is the parsed overview reply.
type Overview struct {
	SessionTitle string
	Queries      []string
}

// BuildOverview returns the overview prompt for a user question.
func BuildOverview(userQuery string) (string, string) {
	return overviewSystem, fmt.Sprintf("Research question:\n%s", sanitize.UserInput(userQuery))
}

var (
	sessionRe = regexp.MustCompile(`(?im)^\s*session\s*:\s*(.+)$`)
	queryRe   = regexp.MustCompile(`(?im)^\s*query\s+\d{1,2}\s*(?:\([^)]*\))?\s*:\s*(.+)$`)
)

// ParseOverview extracts the session title and queries. Any query count is
// accepted; zero queries is the caller's error condition.
func ParseOverview(resp string) Overview {
	resp = boundInput(resp)
	var o Overview
	if m := sessionRe.FindStringSubmatch(resp); m != nil {
		o.SessionTitle = sanitize.Truncate(strings.TrimSpace(m[1]), 100)
	}
	for _, m := range queryRe.FindAllStringSubmatch(resp, -1) {
		q := strings.TrimSpace(m[1])
		if q == "" {
			continue
		}
		o.Queries = append(o.Queries, q)
		if len(o.Queries) >= OverviewQueryCount {
			break
		}
	}
	return o
}
