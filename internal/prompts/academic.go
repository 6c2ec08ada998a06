package prompts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lutumlabs/lutum/internal/sanitize"
)

const academicPlanSystem = `You are a research director structuring an academic investigation.

Decompose the question into 3-5 autonomous research areas, each with 2-4
research points, in EXACTLY this format:

=== AREA 1: <area title> ===
1) <research point>
2) <research point>

=== AREA 2: <area title> ===
1) <research point>
...

=== END PLAN ===

Rules:
- Each area is independently researchable; no area may reference another.
- Each point is a self-contained instruction.
- At least one area must examine criticism, limitations or counter-evidence.
- No text outside the plan.`

// Area is one academic research area with its ordered points.
type Area struct {
	Title  string   `json:"title"`
	Points []string `json:"points"`
}

// BuildAcademicPlan returns the hierarchical planning prompt.
func BuildAcademicPlan(userQuery string, questions, answers []string) (string, string) {
	_, user := BuildPlan(userQuery, questions, answers)
	return academicPlanSystem, user
}

// areaHeadRe tolerates the German keyword the model sometimes echoes back.
var areaHeadRe = regexp.MustCompile(`(?im)^\s*===\s*(?:AREA|BEREICH)\s+\d{1,2}\s*:\s*(.+?)\s*===\s*$`)

// minPointLen drops heading fragments the point pattern would otherwise
// swallow.
const minPointLen = 10

// ParseAcademicPlan extracts ordered areas and their points. Fewer than two
// areas is suspicious but tolerated; the caller decides whether to proceed.
func ParseAcademicPlan(resp string) []Area {
	resp = boundInput(resp)
	if end := strings.Index(resp, "=== END PLAN ==="); end >= 0 {
		resp = resp[:end]
	}
	heads := areaHeadRe.FindAllStringSubmatchIndex(resp, -1)
	out := make([]Area, 0, len(heads))
	for i, h := range heads {
		title := strings.TrimSpace(resp[h[2]:h[3]])
		bodyEnd := len(resp)
		if i+1 < len(heads) {
			bodyEnd = heads[i+1][0]
		}
		body := resp[h[1]:bodyEnd]
		points := make([]string, 0, 4)
		for _, p := range parseNumberedList(body, 0) {
			if len(p) < minPointLen {
				continue
			}
			points = append(points, p)
		}
		if title == "" || len(points) == 0 {
			continue
		}
		out = append(out, Area{Title: sanitize.Truncate(title, 200), Points: points})
	}
	return out
}

// FormatAcademicPlan renders areas for the plan-confirmation response.
func FormatAcademicPlan(areas []Area) string {
	var b strings.Builder
	for i, a := range areas {
		b.WriteString(fmt.Sprintf("**Area %d: %s**\n", i+1, a.Title))
		for j, p := range a.Points {
			b.WriteString(fmt.Sprintf("  %d) %s\n", j+1, p))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
