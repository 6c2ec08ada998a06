// Package prompts builds the orchestrator's LLM prompts and parses their
// replies. LLM output is structured by convention, not by schema: every
// parser here tolerates prefix variants, reordering, and truncation, and
// bounds its input so a degenerate completion cannot stall the run.
package prompts

import (
	"regexp"
	"strings"
)

// Parser bounds. Completions beyond MaxParseInput are cut before any regex
// touches them; individual lines are capped the same way.
const (
	MaxParseInput = 500 << 10
	MaxParseLine  = 2000
)

// boundInput trims a completion to the parseable window.
func boundInput(s string) string {
	if len(s) > MaxParseInput {
		s = s[:MaxParseInput]
	}
	return s
}

// numberedRe accepts the list prefixes models actually produce: "1) x",
// "1. x", "1: x", and bullet "- x".
var numberedRe = regexp.MustCompile(`^\s*(?:\d{1,3}\s*[).:\-]|-)\s+(.*)$`)

// parseNumberedList extracts list items line by line, tolerating every
// prefix variant and skipping prose lines.
func parseNumberedList(s string, max int) []string {
	out := make([]string, 0, max)
	for _, line := range strings.Split(boundInput(s), "\n") {
		if len(line) > MaxParseLine {
			line = line[:MaxParseLine]
		}
		m := numberedRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.TrimSpace(m[1])
		if item == "" {
			continue
		}
		out = append(out, item)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// urlRe sweeps for http(s) URLs anywhere in the text; models routinely
// ignore the requested "url N:" format.
var urlRe = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)

// sweepURLs returns every URL in the text, deduped in order of appearance,
// with trailing punctuation stripped.
func sweepURLs(s string, max int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, max)
	for _, raw := range urlRe.FindAllString(boundInput(s), -1) {
		u := strings.TrimRight(raw, ".,;:")
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// section returns the text between a marker line and the next marker (or the
// end). Marker matching is case-insensitive and tolerates surrounding
// whitespace.
func section(s, marker string) string {
	low := strings.ToLower(s)
	idx := strings.Index(low, strings.ToLower(marker))
	if idx < 0 {
		return ""
	}
	rest := s[idx+len(marker):]
	if next := strings.Index(rest, "==="); next >= 0 {
		// Back up to the start of the marker line.
		lineStart := strings.LastIndex(rest[:next], "\n")
		if lineStart >= 0 {
			rest = rest[:lineStart]
		} else {
			rest = rest[:next]
		}
	}
	return strings.TrimSpace(rest)
}
