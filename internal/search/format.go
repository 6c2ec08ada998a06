package search

import (
	"fmt"
	"strings"

	"github.com/lutumlabs/lutum/internal/sanitize"
)

const snippetCap = 200

// FormatForPrompt renders a result batch as the numbered flat list the
// pick-urls prompt consumes. The counter starts at start and continues
// across queries, so a retry batch can append to an earlier listing without
// renumbering it. It returns the listing and the next counter value.
func FormatForPrompt(batch []QueryResults, start int) (string, int) {
	var b strings.Builder
	n := start
	for _, qr := range batch {
		b.WriteString(fmt.Sprintf("=== Query: %s ===\n", qr.Query))
		if len(qr.Results) == 0 {
			b.WriteString("(no results)\n\n")
			continue
		}
		for _, r := range qr.Results {
			b.WriteString(fmt.Sprintf("[%d] %s\n", n, r.Title))
			b.WriteString(fmt.Sprintf("    URL: %s\n", r.URL))
			if s := strings.TrimSpace(r.Snippet); s != "" {
				b.WriteString(fmt.Sprintf("    %s\n", sanitize.Truncate(s, snippetCap)))
			}
			n++
		}
		b.WriteString("\n")
	}
	return b.String(), n
}

// URLs flattens a batch into its result URLs, first occurrence wins.
func URLs(batch []QueryResults) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 32)
	for _, qr := range batch {
		for _, r := range qr.Results {
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}
			out = append(out, r.URL)
		}
	}
	return out
}
