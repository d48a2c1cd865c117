package tiktok

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-rod/rod"
)

// BrowserFetcher renders pages in a headless Chrome before handing their
// HTML to the pipeline. Use it when plain HTTP gets only an empty shell.
// Call Launch before Fetch and Close when done. Fetches are serialized over
// a single tab. The document status comes from the page's navigation timing
// and maps to the same errors as HTTPFetcher; when Chrome reports none the
// page is treated as 200.
type BrowserFetcher struct {
	cfg FetchConfig

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
}

// NewBrowserFetcher prepares a fetcher; no browser is started until Launch.
func NewBrowserFetcher(cfg FetchConfig) *BrowserFetcher {
	return &BrowserFetcher{cfg: cfg.withDefaults()}
}

// Fetch navigates to rawURL and returns the rendered document. Attempts are
// retried with the same linear backoff as HTTPFetcher.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (*RawPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page == nil {
		return nil, &FetchError{URL: rawURL, Err: ErrBrowserNotReady}
	}
	return retryFetch(ctx, rawURL, b.cfg.MaxRetries, b.cfg.BaseDelay, func() (*RawPage, error) {
		return b.render(ctx, rawURL)
	})
}

// Close shuts the browser down. It is safe to call more than once.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeBrowser()
}

// renderedPage applies HTTPFetcher's status and body checks to a rendered
// document. status 0 means unknown and is treated as 200.
func renderedPage(rawURL string, status int, body []byte) (*RawPage, error) {
	if status == 0 {
		status = http.StatusOK
	}
	if err := checkStatus(status); err != nil {
		return nil, err
	}
	if err := checkBody(rawURL, body); err != nil {
		return nil, err
	}
	return &RawPage{URL: rawURL, Status: status, Body: body}, nil
}
