package prompts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lutumlabs/lutum/internal/sanitize"
	"github.com/lutumlabs/lutum/internal/scrape"
)

// DossierPageCap bounds how much of each scraped page enters the prompt.
const DossierPageCap = 10000

const dossierSystem = `You are a research analyst writing a dossier on one research point from the
sources provided. Everything you state must be backed by the sources; cite
with [N] matching your source list.

Structure the dossier EXACTLY like this:

## 📋 HEADER
<point restated, date range of sources, confidence level>

## 📊 EVIDENCE
<markdown table: finding | source [N] | strength>

## 🎯 KERNSUMMARY
<3-5 sentences: the essential answer to this point>

## 🔍 ANALYSE
<detailed analysis, every claim cited [N]>

## ⚖️ BEWERTUNG
<source quality, gaps, contradictions between sources>

## 💡 KEY LEARNINGS
<at most 200 words: the facts later research points must know, cited [N]>

=== SOURCES ===
[1] <url> - <title or description>
[2] <url> - <title or description>

=== END DOSSIER ===

Rules:
- Only use the numbered sources below; number them in order of first use.
- Write in the language of the research question.
- No knowledge from outside the sources.`

// BuildDossier returns the dossier prompt over the scraped pages for one
// point. Pages are delimited with QUELLE markers and bounded per page.
func BuildDossier(userQuery, point string, pages []scrape.Page) (string, string) {
	var b strings.Builder
	b.WriteString("Overall research question:\n")
	b.WriteString(sanitize.UserInput(userQuery))
	b.WriteString("\n\nResearch point:\n")
	b.WriteString(sanitize.UserInput(point))
	b.WriteString("\n\nSources:\n\n")
	b.WriteString(FormatSources(pages))
	return dossierSystem, b.String()
}

// FormatSources concatenates successful pages into the QUELLE-delimited
// block the dossier prompt consumes.
func FormatSources(pages []scrape.Page) string {
	var b strings.Builder
	for _, p := range scrape.Successes(pages) {
		b.WriteString(fmt.Sprintf("=== QUELLE: %s ===\n", p.URL))
		b.WriteString(sanitize.Truncate(p.Content, DossierPageCap))
		b.WriteString("\n\n")
	}
	return b.String()
}

// Dossier is the parsed dossier reply.
type Dossier struct {
	Body         string
	KeyLearnings string
	// Citations maps the dossier's local indices to URLs, authoritative for
	// renumbering.
	Citations map[int]string
}

const (
	sourcesMarker    = "=== SOURCES ==="
	endDossierMarker = "=== END DOSSIER ==="
	learningsHeading = "## 💡 KEY LEARNINGS"
	learningsMarker  = "=== KEY LEARNINGS ==="
)

var sourceLineRe = regexp.MustCompile(`^\s*\[(\d{1,5})\]\s*(\S+?)(?:\s+[-—]\s+.*)?\s*$`)

// ParseDossier splits a dossier reply into body, key learnings, and the
// local citation map. A missing SOURCES block yields an empty map; a missing
// learnings heading yields empty learnings. Both are the caller's decision,
// not parse errors.
func ParseDossier(resp string) Dossier {
	resp = boundInput(resp)
	if end := strings.Index(resp, endDossierMarker); end >= 0 {
		resp = resp[:end]
	}

	d := Dossier{Citations: map[int]string{}}
	body := resp
	if idx := strings.Index(resp, sourcesMarker); idx >= 0 {
		body = strings.TrimSpace(resp[:idx])
		for _, line := range strings.Split(resp[idx+len(sourcesMarker):], "\n") {
			if len(line) > MaxParseLine {
				continue
			}
			m := sourceLineRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 {
				continue
			}
			if _, dup := d.Citations[n]; dup {
				continue
			}
			d.Citations[n] = strings.TrimRight(m[2], ".,;")
		}
	}

	heading := learningsHeading
	idx := strings.Index(body, heading)
	if idx < 0 {
		heading = learningsMarker
		idx = strings.Index(body, heading)
	}
	if idx >= 0 {
		d.KeyLearnings = strings.TrimSpace(body[idx+len(heading):])
		d.Body = strings.TrimSpace(body[:idx])
	} else {
		d.Body = strings.TrimSpace(body)
	}
	return d
}

// CitationURLs returns the citation map's URLs ordered by local index, the
// shape the citation registry consumes.
func (d Dossier) CitationURLs() []string {
	max := 0
	for n := range d.Citations {
		if n > max {
			max = n
		}
	}
	out := make([]string, max)
	for n, u := range d.Citations {
		out[n-1] = u
	}
	return out
}
