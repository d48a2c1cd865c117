//go:build !unittest

package tiktok

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Launch starts a headless Chrome with stealth patches applied. Calling it
// on a running fetcher is a no-op.
func (b *BrowserFetcher) Launch() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page != nil {
		return nil
	}

	l := launcher.New().Headless(true)
	if b.cfg.Proxy != "" {
		l = l.Proxy(b.cfg.Proxy)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("create stealth page: %w", err)
	}

	b.browser = browser
	b.page = page
	b.setupResourceBlocking()
	return nil
}

// setupResourceBlocking drops assets the extractor never reads.
func (b *BrowserFetcher) setupResourceBlocking() {
	router := b.browser.HijackRequests()
	blocked := []string{"*.css", "*.png", "*.jpg", "*.jpeg", "*.webp", "*.mp4", "*.woff*", "*.svg", "*analytics*"}
	for _, pattern := range blocked {
		router.MustAdd(pattern, func(ctx *rod.Hijack) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
	}
	go router.Run()
}

// render loads rawURL in the shared tab. Caller must hold mu.
func (b *BrowserFetcher) render(ctx context.Context, rawURL string) (*RawPage, error) {
	page := b.page.Context(ctx).Timeout(b.cfg.Timeout)
	defer page.CancelTimeout()

	if err := page.Navigate(rawURL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitStable(2 * time.Second); err != nil {
		return nil, fmt.Errorf("wait for page stable: %w", err)
	}

	// responseStatus is 0 when Chrome cannot tell, e.g. for cached documents.
	res, err := page.Eval(`() => {
		const nav = performance.getEntriesByType('navigation')[0];
		return nav && nav.responseStatus ? nav.responseStatus : 0;
	}`)
	if err != nil {
		return nil, fmt.Errorf("read document status: %w", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read rendered html: %w", err)
	}
	return renderedPage(rawURL, res.Value.Int(), []byte(html))
}

// closeBrowser releases the tab and the browser. Caller must hold mu.
func (b *BrowserFetcher) closeBrowser() error {
	if b.page != nil {
		if err := b.page.Close(); err != nil {
			return fmt.Errorf("close page: %w", err)
		}
		b.page = nil
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			return fmt.Errorf("close browser: %w", err)
		}
		b.browser = nil
	}
	return nil
}
