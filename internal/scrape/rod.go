package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodNavigator renders pages in a headless Chromium controlled via go-rod.
// One navigator is one browser process; pages are opened and closed per URL.
type RodNavigator struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// jsWaitDelay lets client-side rendering settle after DOMContentLoaded
// before the text extraction runs.
const jsWaitDelay = 1 * time.Second

// NewRodNavigator launches a headless browser and connects to it.
func NewRodNavigator() (Navigator, error) {
	l := launcher.New().Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return &RodNavigator{browser: browser, launcher: l}, nil
}

// Navigate opens a fresh page, waits for the DOM plus a short JS settle
// delay, and returns the body's visible text.
func (n *RodNavigator) Navigate(ctx context.Context, url string, timeout time.Duration) (string, error) {
	page, err := n.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx).Timeout(timeout)
	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitDOMStable(300*time.Millisecond, 0); err != nil {
		// A busy page is still worth extracting from.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(jsWaitDelay):
	}

	res, err := page.Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return res.Value.Str(), nil
}

// Close shuts the browser down and cleans up the launched process.
func (n *RodNavigator) Close(_ context.Context) error {
	err := n.browser.Close()
	n.launcher.Cleanup()
	return err
}
