package tiktok

import (
	"errors"
	"fmt"
)

var (
	ErrRateLimited     = errors.New("tiktok: rate limited")
	ErrNotFound        = errors.New("tiktok: not found")
	ErrCaptcha         = errors.New("tiktok: captcha required")
	ErrBrowserNotReady = errors.New("tiktok: browser not initialized")
	ErrInvalidResponse = errors.New("tiktok: invalid response")
	ErrUnsupportedKind = errors.New("tiktok: unsupported scrape kind")
	ErrInputRequired   = errors.New("tiktok: input is required")
	ErrInvalidLimit    = errors.New("tiktok: limit must not be negative")
)

// FetchError is returned once every fetch attempt for a URL has failed.
// Status is the last HTTP status seen, or 0 when no response was received.
type FetchError struct {
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("tiktok: fetch %s failed after %d attempt(s) (status %d): %v", e.URL, e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("tiktok: fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// statusError carries a non-2xx response status through the retry loop.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("status %d: %v", e.status, e.err)
	}
	return fmt.Sprintf("status %d", e.status)
}

func (e *statusError) Unwrap() error { return e.err }
