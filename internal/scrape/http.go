package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lutumlabs/lutum/internal/extract"
)

// HTTPNavigator is the browserless fallback: plain GET plus HTML text
// extraction. Pages behind client-side rendering come back thin, but the
// navigator needs no Chromium and is what tests and --no-browser runs use.
type HTTPNavigator struct {
	// Client defaults to a redirect-capped client when nil.
	Client    *http.Client
	UserAgent string
}

const httpMaxRedirects = 5

// NewHTTPNavigator returns a navigator with the default client.
func NewHTTPNavigator() Navigator {
	return &HTTPNavigator{}
}

func (n *HTTPNavigator) httpClient() *http.Client {
	if n.Client != nil {
		return n.Client
	}
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= httpMaxRedirects {
				return fmt.Errorf("stopped after %d redirects", httpMaxRedirects)
			}
			return nil
		},
	}
}

// Navigate fetches the URL and extracts visible text from the HTML body.
func (n *HTTPNavigator) Navigate(ctx context.Context, url string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	ua := n.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (X11; Linux x86_64) lutum/1.0"
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := n.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text/plain") {
		return "", fmt.Errorf("unsupported content type %q", strings.Split(ct, ";")[0])
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return "", err
	}
	if strings.Contains(ct, "text/plain") {
		return string(body), nil
	}
	doc := extract.FromHTML(body)
	if doc.Title != "" {
		return doc.Title + "\n\n" + doc.Text, nil
	}
	return doc.Text, nil
}

// Close is a no-op; the navigator holds no session state.
func (n *HTTPNavigator) Close(context.Context) error { return nil }
