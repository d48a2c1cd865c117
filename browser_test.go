package tiktok

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserFetcher_NotLaunched(t *testing.T) {
	t.Parallel()
	b := NewBrowserFetcher(FetchConfig{})
	_, err := b.Fetch(context.Background(), "https://www.tiktok.com/@alice")
	assert.ErrorIs(t, err, ErrBrowserNotReady)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "https://www.tiktok.com/@alice", fe.URL)
}

func TestBrowserFetcher_CloseIdempotent(t *testing.T) {
	t.Parallel()
	b := NewBrowserFetcher(FetchConfig{})
	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}

func TestBrowserFetcher_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBrowserFetcher(FetchConfig{Proxy: "socks5://127.0.0.1:1080"})
	assert.Equal(t, 3, b.cfg.MaxRetries)
	assert.Equal(t, "socks5://127.0.0.1:1080", b.cfg.Proxy)
}

func TestRenderedPage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantErr    error
	}{
		{"ok", 200, "<html></html>", 200, nil},
		{"unknown status", 0, "<html></html>", 200, nil},
		{"missing page", 404, "<html>gone</html>", 0, ErrNotFound},
		{"rate limited", 429, "", 0, ErrRateLimited},
		{"verify page", 200, `<div id="tiktok-verify-page"></div>`, 0, ErrCaptcha},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page, err := renderedPage("https://www.tiktok.com/@alice", tt.status, []byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, page.Status)
			assert.Equal(t, tt.body, string(page.Body))
		})
	}
}

func TestRenderedPage_ServerErrorKeepsStatus(t *testing.T) {
	t.Parallel()
	_, err := renderedPage("https://www.tiktok.com/@alice", 503, nil)
	var se *statusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 503, se.status)
}
