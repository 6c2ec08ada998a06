package search

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/sanitize"
)

// Defaults for batch query execution. Spacing between queries is the
// outbound rate limit toward the search engine; one engine, strictly
// sequential.
const (
	DefaultPerQuery = 20
	DefaultSpacing  = 1500 * time.Millisecond
	QueryTimeout    = 15 * time.Second
)

// QueryResults pairs a query with its ordered hits.
type QueryResults struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Runner executes query batches against one provider. Queries run strictly
// sequentially with Spacing between them; a failed query yields an empty
// result list and a warning, never an error for the batch.
type Runner struct {
	Provider Provider
	// PerQuery caps results per query; zero means DefaultPerQuery.
	PerQuery int
	// Spacing is the inter-query delay; zero means DefaultSpacing.
	// Tests set a small value.
	Spacing time.Duration
}

// Run searches every query in order. Queries are sanitized first; queries
// that sanitize to nothing are skipped with an empty entry so the caller's
// indices still line up.
func (r *Runner) Run(ctx context.Context, queries []string) []QueryResults {
	perQuery := r.PerQuery
	if perQuery <= 0 {
		perQuery = DefaultPerQuery
	}
	spacing := r.Spacing
	if spacing <= 0 {
		spacing = DefaultSpacing
	}

	out := make([]QueryResults, 0, len(queries))
	for i, raw := range queries {
		q := sanitize.Query(raw)
		qr := QueryResults{Query: q}
		if q == "" {
			out = append(out, qr)
			continue
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				out = append(out, qr)
				continue
			case <-time.After(spacing):
			}
		}
		qctx, cancel := context.WithTimeout(ctx, QueryTimeout)
		results, err := r.Provider.Search(qctx, q, perQuery)
		cancel()
		if err != nil {
			log.Warn().Str("query", q).Err(err).Msg("search query failed")
			out = append(out, qr)
			continue
		}
		if len(results) > perQuery {
			results = results[:perQuery]
		}
		qr.Results = results
		out = append(out, qr)
	}
	return out
}

// TotalResults counts hits across a batch.
func TotalResults(batch []QueryResults) int {
	n := 0
	for _, qr := range batch {
		n += len(qr.Results)
	}
	return n
}

// Empty reports whether every query in the batch came back without hits.
func Empty(batch []QueryResults) bool {
	return TotalResults(batch) == 0
}
