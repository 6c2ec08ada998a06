package prompts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lutumlabs/lutum/internal/sanitize"
)

const planSystem = `You are a research director decomposing a question into an executable plan.

Produce at least 5 numbered research points in EXACTLY this format, separated
by blank lines:

(1) <verb-first instruction, one line>
Goal: <what this point must establish>
Queries: <2-3 example search queries>
Filters: <source types to prefer or avoid>
Output: <what the dossier for this point should contain>
Validation: <how to tell the findings are trustworthy>

(2) ...

Rules:
- Each point is self-contained and independently researchable.
- Points build from foundations toward the final answer.
- At least one point must hunt for counter-evidence or limitations.
- No text before (1) or after the last point.`

// BuildPlan returns the flat planning prompt. Clarification questions and
// the user's answers, when present, are appended as context.
func BuildPlan(userQuery string, questions, answers []string) (string, string) {
	var b strings.Builder
	b.WriteString("Research question:\n")
	b.WriteString(sanitize.UserInput(userQuery))
	if len(questions) > 0 || len(answers) > 0 {
		b.WriteString("\n\nClarification so far:\n")
		for i, q := range questions {
			b.WriteString(fmt.Sprintf("Q%d: %s\n", i+1, sanitize.UserInput(q)))
			if i < len(answers) {
				b.WriteString(fmt.Sprintf("A%d: %s\n", i+1, sanitize.UserInput(answers[i])))
			}
		}
	}
	return planSystem, b.String()
}

// BuildPlanRevision appends user feedback to a prior plan and asks for a
// revised one in the same format.
func BuildPlanRevision(userQuery string, previousPlan []string, feedback string) (string, string) {
	var b strings.Builder
	b.WriteString("Research question:\n")
	b.WriteString(sanitize.UserInput(userQuery))
	b.WriteString("\n\nPrevious plan:\n")
	for i, p := range previousPlan {
		b.WriteString(fmt.Sprintf("(%d) %s\n\n", i+1, p))
	}
	b.WriteString("=== USER FEEDBACK ===\n")
	b.WriteString(sanitize.UserInput(feedback))
	b.WriteString("\n\nRevise the plan accordingly. Same format, full plan, not a diff.")
	return planSystem, b.String()
}

// planPointRe captures one "(N) ..." block up to the next "(N)" or the end.
var planPointRe = regexp.MustCompile(`(?s)\((\d{1,3})\)\s*(.+?)(?:\n\s*\(\d{1,3}\)|\z)`)

// ParsePlanPoints extracts ordered point strings from a plan reply. Each
// point keeps its sub-structure (Goal/Queries/...) as one
// whitespace-collapsed string.
func ParsePlanPoints(resp string) []string {
	resp = boundInput(resp)
	out := make([]string, 0, 8)
	rest := resp
	for {
		m := planPointRe.FindStringSubmatchIndex(rest)
		if m == nil {
			break
		}
		body := strings.TrimSpace(rest[m[4]:m[5]])
		if body != "" {
			out = append(out, collapseWhitespace(body))
		}
		// Continue from the start of the next "(N)" if one was found.
		nextStart := m[5]
		if nextStart >= len(rest) {
			break
		}
		rest = rest[nextStart:]
	}
	return out
}

var wsRunRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(wsRunRe.ReplaceAllString(s, " "))
}
