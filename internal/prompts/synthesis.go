package prompts

import (
	"fmt"
	"strings"

	"github.com/lutumlabs/lutum/internal/sanitize"
)

const finalSynthesisSystem = `You are a senior research editor producing the final report from a set of
research dossiers. The dossiers carry global citations [N]; keep every [N]
exactly as written and never renumber.

Report structure:

# <report title>

## Executive Summary
<the answer in one paragraph>

## <one section per major theme, derived from the research plan>
<synthesized findings, all claims cited [N]>

## Offene Fragen
<what the research could not settle>

## Fazit
<conclusion tying back to the research question>

=== SOURCES ===
[N] <url> - one line per citation that appears in the report

=== END REPORT ===

Forbidden: filler phrases ("it is important to note", "in today's world"),
invented sources, knowledge not present in the dossiers. Write in the
language of the research question.`

// BuildFinalSynthesis returns the flat-mode terminal synthesis prompt over
// all completed dossiers.
func BuildFinalSynthesis(userQuery string, plan []string, dossiers []string) (string, string) {
	var b strings.Builder
	b.WriteString("Research question:\n")
	b.WriteString(sanitize.UserInput(userQuery))
	b.WriteString("\n\nResearch plan:\n")
	for i, p := range plan {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, sanitize.Truncate(p, 300)))
	}
	b.WriteString("\nDossiers:\n\n")
	for i, d := range dossiers {
		b.WriteString(fmt.Sprintf("┌─── DOSSIER %d ───┐\n", i+1))
		b.WriteString(boundInput(d))
		b.WriteString("\n└──────────────────┘\n\n")
	}
	return finalSynthesisSystem, b.String()
}

const areaSynthesisSystem = `You are a research editor synthesizing ONE research area from its dossiers.
The dossiers carry global citations [N]; keep every [N] exactly as written.

Structure:

## <area title>

### Core Findings
### Detailed Analysis
### Evidence Evaluation
### Open Questions
### Area Conclusion

All claims cited [N]. Write in the language of the research question. Only
this area; never reference other areas.`

// BuildAreaSynthesis returns the per-area synthesis prompt (academic mode).
func BuildAreaSynthesis(userQuery, areaTitle string, dossiers []string) (string, string) {
	var b strings.Builder
	b.WriteString("Research question:\n")
	b.WriteString(sanitize.UserInput(userQuery))
	b.WriteString("\n\nArea: ")
	b.WriteString(sanitize.Truncate(areaTitle, 200))
	b.WriteString("\n\nDossiers of this area:\n\n")
	for i, d := range dossiers {
		b.WriteString(fmt.Sprintf("┌─── DOSSIER %d ───┐\n", i+1))
		b.WriteString(boundInput(d))
		b.WriteString("\n└──────────────────┘\n\n")
	}
	return areaSynthesisSystem, b.String()
}

const conclusionSystem = `You are a principal investigator writing the conclusion across all research
areas. The area syntheses carry global citations [N]; keep them as written.

Structure:

## Cross-Connections
<where the areas reinforce each other>

## Contradictions
<where the areas disagree, and which evidence is stronger>

## Patterns
<recurring themes across areas>

## New Insights
<what only emerges from combining the areas>

## Answer
<the direct, cited answer to the research question>

Write in the language of the research question.`

// ConclusionStats feeds the conclusion prompt's scale context and is echoed
// back to the client as conclusion metrics.
type ConclusionStats struct {
	Areas         int `json:"total_areas"`
	Dossiers      int `json:"total_dossiers"`
	Sources       int `json:"total_sources"`
	SyntheseChars int `json:"total_synthese_chars"`
}

// BuildConclusion returns the academic meta-synthesis prompt over all area
// syntheses.
func BuildConclusion(userQuery string, areas []Area, syntheses []string, stats ConclusionStats) (string, string) {
	var b strings.Builder
	b.WriteString("Research question:\n")
	b.WriteString(sanitize.UserInput(userQuery))
	b.WriteString(fmt.Sprintf("\n\nScale: %d areas, %d dossiers, %d sources.\n\nArea syntheses:\n\n",
		stats.Areas, stats.Dossiers, stats.Sources))
	for i, s := range syntheses {
		title := ""
		if i < len(areas) {
			title = areas[i].Title
		}
		b.WriteString(fmt.Sprintf("┌─── AREA %d: %s ───┐\n", i+1, sanitize.Truncate(title, 120)))
		b.WriteString(boundInput(s))
		b.WriteString("\n└──────────────────┘\n\n")
	}
	return conclusionSystem, b.String()
}
