//go:build unittest

package tiktok

import (
	"context"
	"fmt"
)

func (b *BrowserFetcher) Launch() error {
	return fmt.Errorf("browser: %w (build tag: unittest)", ErrBrowserNotReady)
}

func (b *BrowserFetcher) setupResourceBlocking() {}

func (b *BrowserFetcher) render(context.Context, string) (*RawPage, error) {
	return nil, ErrBrowserNotReady
}

func (b *BrowserFetcher) closeBrowser() error {
	b.page = nil
	b.browser = nil
	return nil
}
