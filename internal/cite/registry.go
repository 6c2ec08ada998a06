package cite

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// tokenRe matches bracketed citation tokens like [3]. Index width is capped
// so a degenerate LLM output cannot produce absurd numbers.
var tokenRe = regexp.MustCompile(`\[(\d{1,5})\]`)

// Registry maps global citation indices to source URLs for one orchestrator
// run. Indices are assigned monotonically starting at 1 and are never
// reassigned; two identical URLs may hold two distinct indices, which keeps
// the numbering auditable against the order dossiers were produced.
//
// A Registry is owned by a single orchestrator goroutine; it is not safe for
// concurrent use and does not need to be.
type Registry struct {
	next    int
	sources map[int]string
}

// NewRegistry returns an empty registry with the counter at 1.
func NewRegistry() *Registry {
	return &Registry{next: 1, sources: make(map[int]string)}
}

// Next returns the next global index that would be assigned.
func (r *Registry) Next() int { return r.next }

// Count returns how many global indices have a recorded URL.
func (r *Registry) Count() int { return len(r.sources) }

// URL returns the source recorded for a global index, if any.
func (r *Registry) URL(global int) (string, bool) {
	u, ok := r.sources[global]
	return u, ok
}

// Sources returns a copy of the global index → URL mapping with string keys,
// the shape the done payload and checkpoints expose.
func (r *Registry) Sources() map[string]string {
	out := make(map[string]string, len(r.sources))
	for k, v := range r.sources {
		out[strconv.Itoa(k)] = v
	}
	return out
}

// RenumberDossier rewrites the local [1]..[k] citations of a dossier into
// global indices and records global → URL using the dossier's ordered URL
// list. Distinct local indices are assigned globals in ascending local
// order. The key-learnings block is rewritten with the same local→global
// mapping so learnings carry globally valid citations into later points;
// locals that appear only in the learnings get fresh globals.
//
// A local index with no corresponding URL (off-by-one LLM output) is still
// renumbered, but no URL is recorded: the registry exposes the gap rather
// than guessing.
func (r *Registry) RenumberDossier(body, learnings string, urls []string) (string, string) {
	mapping := r.assign(collectLocals(body), urls)
	body = rewrite(body, mapping)
	if learnings != "" {
		// Learnings may cite locals the body never used.
		extra := make([]int, 0, 4)
		for _, n := range collectLocals(learnings) {
			if _, ok := mapping[n]; !ok {
				extra = append(extra, n)
			}
		}
		for n, g := range r.assign(extra, urls) {
			mapping[n] = g
		}
		learnings = rewrite(learnings, mapping)
	}
	return body, learnings
}

// Renumber rewrites a standalone text block, consuming fresh globals for its
// distinct local indices. Used where no learnings accompany the text.
func (r *Registry) Renumber(text string, urls []string) string {
	return rewrite(text, r.assign(collectLocals(text), urls))
}

// assign consumes one global per local, in ascending local order, and
// records URLs where the local maps inside the url list.
func (r *Registry) assign(locals []int, urls []string) map[int]int {
	mapping := make(map[int]int, len(locals))
	for _, n := range locals {
		g := r.next
		r.next++
		mapping[n] = g
		if n >= 1 && n <= len(urls) && urls[n-1] != "" {
			r.sources[g] = urls[n-1]
		}
	}
	return mapping
}

// collectLocals returns the distinct local indices in ascending order.
func collectLocals(text string) []int {
	seen := map[int]struct{}{}
	for _, m := range tokenRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		seen[n] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// rewrite replaces every [local] token with its [global] form in a single
// pass. Each token is visited exactly once, so a freshly written global can
// never be re-matched by a later substitution.
func rewrite(text string, mapping map[int]int) string {
	if len(mapping) == 0 {
		return text
	}
	return tokenRe.ReplaceAllStringFunc(text, func(tok string) string {
		n, err := strconv.Atoi(tok[1 : len(tok)-1])
		if err != nil {
			return tok
		}
		g, ok := mapping[n]
		if !ok {
			return tok
		}
		return fmt.Sprintf("[%d]", g)
	})
}
