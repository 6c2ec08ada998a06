package prompts

import (
	"fmt"
	"strings"

	"github.com/lutumlabs/lutum/internal/sanitize"
	"github.com/lutumlabs/lutum/internal/scrape"
)

// clarifyPageCap bounds how much of each overview page goes into the prompt.
const clarifyPageCap = 3000

const clarifySystem = `You are a research consultant who just skimmed the first sources on a topic.

Task: help the user sharpen their research question.

Respond with:
1. One positive, encouraging sentence about what the initial sources show.
2. Up to 5 numbered focusing questions that would make the research more
   precise (scope, time frame, audience, depth, comparison targets).
3. If the question is already precise, say so instead of inventing questions.

Respond in the same language as the research question. Plain text, no markdown
headers.`

// ClarifyNoSources is returned without an LLM call when every overview
// scrape failed; the setup pipeline still completes.
const ClarifyNoSources = "Die ersten Quellen konnten leider nicht gelesen werden. Die Recherche kann trotzdem gestartet werden - das Thema wird dann während der Recherche eingegrenzt."

// BuildClarify returns the clarification prompt over the scraped overview
// pages. Pages are injected as bounded, clearly delimited blocks.
func BuildClarify(userQuery string, pages []scrape.Page) (string, string) {
	var b strings.Builder
	b.WriteString("Research question:\n")
	b.WriteString(sanitize.UserInput(userQuery))
	b.WriteString("\n\nInitial sources:\n\n")
	i := 0
	for _, p := range pages {
		if !p.Success {
			continue
		}
		i++
		b.WriteString(fmt.Sprintf("=== PAGE %d: %s ===\n", i, p.URL))
		b.WriteString(sanitize.Truncate(p.Content, clarifyPageCap))
		b.WriteString("\n\n")
	}
	return clarifySystem, b.String()
}
