// Package scrape turns URLs into visible page text. A Navigator renders one
// page at a time; Client owns batch discipline: SSRF validation, dedupe,
// batch caps, inter-request spacing, size limits, and bounded teardown.
package scrape

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/sanitize"
)

// Batch limits. Every URL entering a batch came from an LLM or a search
// engine, so the caps are defensive, not cosmetic.
const (
	MaxURLsPerBatch = 100
	MaxResponseSize = 10 << 20 // bytes of extracted text per page
	MinContentChars = 50       // significant chars below this count as failure
	DefaultDelay    = 500 * time.Millisecond
	CloseTimeout    = 10 * time.Second
)

// TruncationMarker is appended where a page body hit MaxResponseSize.
const TruncationMarker = "\n[...TRUNCATED...]"

// Page is the outcome of scraping one URL.
type Page struct {
	URL     string `json:"url"`
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Navigator renders pages from one browser session. Implementations are used
// sequentially by a single batch; they do not need to be concurrency-safe.
type Navigator interface {
	// Navigate loads the URL and returns the page's visible text.
	Navigate(ctx context.Context, url string, timeout time.Duration) (string, error)
	// Close releases the session. Batch bounds the time it may take.
	Close(ctx context.Context) error
}

// NavigatorFactory opens a fresh session. Each batch owns exactly one
// session (or one per URL in parallel mode); sessions are never shared.
type NavigatorFactory func() (Navigator, error)

// Client runs scrape batches.
type Client struct {
	NewNavigator NavigatorFactory
	// AllowPrivate disables the SSRF host checks for local fixtures.
	AllowPrivate bool
	// Delay is the inter-request spacing; zero means DefaultDelay.
	Delay time.Duration
}

// Batch scrapes the URLs sequentially through one navigator session.
// Unsafe URLs and duplicates are dropped before any navigation, the batch is
// capped at MaxURLsPerBatch, and per-URL failures never abort the batch.
// Teardown is bounded: if the navigator hangs on close, the already
// collected results are returned anyway.
func (c *Client) Batch(ctx context.Context, urls []string, perURL time.Duration) []Page {
	urls = sanitize.FilterURLs(urls, c.AllowPrivate)
	if len(urls) > MaxURLsPerBatch {
		log.Warn().Int("requested", len(urls)).Int("cap", MaxURLsPerBatch).Msg("scrape batch truncated")
		urls = urls[:MaxURLsPerBatch]
	}
	if len(urls) == 0 {
		return nil
	}

	nav, err := c.NewNavigator()
	if err != nil {
		log.Error().Err(err).Msg("browser session failed to open")
		out := make([]Page, 0, len(urls))
		for _, u := range urls {
			out = append(out, Page{URL: u, Error: sanitize.Error(err)})
		}
		return out
	}
	defer closeBounded(nav)

	delay := c.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	out := make([]Page, 0, len(urls))
	for i, u := range urls {
		if i > 0 {
			select {
			case <-ctx.Done():
				out = append(out, Page{URL: u, Error: "cancelled"})
				continue
			case <-time.After(delay):
			}
		}
		out = append(out, scrapeOne(ctx, nav, u, perURL))
	}
	return out
}

// Parallel scrapes each URL through its own navigator session concurrently.
// Used by Ask mode, where batches are small (≤10) and latency matters more
// than browser reuse. progress, if non-nil, is called after each page with
// the number completed so far.
func (c *Client) Parallel(ctx context.Context, urls []string, perURL time.Duration, progress func(done, total int)) []Page {
	urls = sanitize.FilterURLs(urls, c.AllowPrivate)
	if len(urls) > MaxURLsPerBatch {
		urls = urls[:MaxURLsPerBatch]
	}
	out := make([]Page, len(urls))
	doneCh := make(chan int, len(urls))
	for i, u := range urls {
		go func(i int, u string) {
			nav, err := c.NewNavigator()
			if err != nil {
				out[i] = Page{URL: u, Error: sanitize.Error(err)}
			} else {
				out[i] = scrapeOne(ctx, nav, u, perURL)
				closeBounded(nav)
			}
			doneCh <- i
		}(i, u)
	}
	for done := 1; done <= len(urls); done++ {
		<-doneCh
		if progress != nil {
			progress(done, len(urls))
		}
	}
	return out
}

func scrapeOne(ctx context.Context, nav Navigator, url string, timeout time.Duration) Page {
	text, err := nav.Navigate(ctx, url, timeout)
	if err != nil {
		log.Warn().Str("url", sanitize.Truncate(url, 120)).Err(err).Msg("scrape failed")
		return Page{URL: url, Error: sanitize.Error(err)}
	}
	if len(text) > MaxResponseSize {
		text = text[:MaxResponseSize] + TruncationMarker
	}
	if significantChars(text) < MinContentChars {
		return Page{URL: url, Error: "page body empty"}
	}
	return Page{URL: url, Success: true, Content: text}
}

// closeBounded gives the navigator CloseTimeout to shut down and abandons it
// if it hangs; collected results must not be lost to a wedged browser.
func closeBounded(nav Navigator) {
	ctx, cancel := context.WithTimeout(context.Background(), CloseTimeout)
	defer cancel()
	done := make(chan struct{})
	go func() {
		if err := nav.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("browser close failed")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("browser close timed out, abandoning session")
	}
}

func significantChars(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// Successes filters a batch down to its successful pages.
func Successes(pages []Page) []Page {
	out := make([]Page, 0, len(pages))
	for _, p := range pages {
		if p.Success && strings.TrimSpace(p.Content) != "" {
			out = append(out, p)
		}
	}
	return out
}
