package tiktok

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

// userAgents is the fixed pool a User-Agent is drawn from per request.
// Rotating it only avoids the most trivial fingerprinting; it does not get
// past TikTok's anti-bot checks and nothing here relies on it doing so.
var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:132.0) Gecko/20100101 Firefox/132.0",
}

// UserAgents returns a copy of the default User-Agent pool.
func UserAgents() []string {
	out := make([]string, len(userAgents))
	copy(out, userAgents)
	return out
}

// verifyMarker identifies TikTok's bot-check interstitial.
var verifyMarker = []byte("tiktok-verify-page")

const defaultMaxBodyBytes = 16 << 20

// FetchConfig configures an HTTPFetcher. Zero fields take their defaults.
type FetchConfig struct {
	// MaxRetries is the total number of attempts per URL.
	MaxRetries int
	// BaseDelay scales the linear backoff: the wait after attempt n is n*BaseDelay.
	BaseDelay time.Duration
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// UserAgents overrides the default pool.
	UserAgents []string
	// Proxy is an http, https or socks5 URL.
	Proxy string
	// RequestsPerSecond paces attempts across requests; 0 disables pacing.
	RequestsPerSecond float64
	// MaxBodyBytes rejects larger pages with ErrInvalidResponse.
	MaxBodyBytes int64
}

// DefaultFetchConfig returns the defaults applied to zero FetchConfig fields.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		MaxRetries:   3,
		BaseDelay:    time.Second,
		Timeout:      15 * time.Second,
		UserAgents:   UserAgents(),
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

func (c FetchConfig) withDefaults() FetchConfig {
	d := DefaultFetchConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if len(c.UserAgents) == 0 {
		c.UserAgents = d.UserAgents
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	return c
}

// Fetcher downloads a page. Implementations return *FetchError once they
// give up on a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*RawPage, error)
}

// HTTPFetcher fetches pages over plain HTTP with retry and linear backoff.
// It holds no per-request state and is safe for concurrent use.
type HTTPFetcher struct {
	client  *http.Client
	cfg     FetchConfig
	proxy   string
	limiter *rate.Limiter
}

// newTransport builds the pooled transport for cfg, routed through
// proxyAddr when it is set. Dial and header timeouts follow cfg.Timeout so a
// stalled proxy cannot hold an attempt past its budget.
func newTransport(cfg FetchConfig, proxyAddr string) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   min(cfg.Timeout, 10*time.Second),
		KeepAlive: 30 * time.Second,
	}
	t := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
		DialContext:           dialer.DialContext,
	}
	if proxyAddr == "" {
		return t, nil
	}

	u, err := url.Parse(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		t.Proxy = http.ProxyURL(u)
	case "socks5":
		dial, err := socks5Dial(u, dialer)
		if err != nil {
			return nil, err
		}
		t.DialContext = dial
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}
	return t, nil
}

// socks5Dial returns a context-aware dial func tunnelling through u.
func socks5Dial(u *url.URL, forward *net.Dialer) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}
	d, err := proxy.SOCKS5("tcp", u.Host, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5: context dialer not supported")
	}
	return cd.DialContext, nil
}

// NewHTTPFetcher builds a fetcher from cfg.
func NewHTTPFetcher(cfg FetchConfig) (*HTTPFetcher, error) {
	cfg = cfg.withDefaults()

	jar, _ := cookiejar.New(nil)
	f := &HTTPFetcher{
		client:  &http.Client{Jar: jar, Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	if cfg.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if err := f.SetProxy(cfg.Proxy); err != nil {
		return nil, err
	}
	return f, nil
}

// SetProxy routes the fetcher through an http, https or socks5 proxy; an
// empty address goes direct. The previous transport is kept on error.
func (f *HTTPFetcher) SetProxy(proxyAddr string) error {
	t, err := newTransport(f.cfg, proxyAddr)
	if err != nil {
		return err
	}
	f.client.Transport = t
	f.proxy = proxyAddr
	return nil
}

// linearBackOff waits n*base before the (n+1)th attempt.
type linearBackOff struct {
	base time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.base
}

func (b *linearBackOff) Reset() { b.n = 0 }

// Fetch GETs rawURL, retrying up to MaxRetries attempts in total. A 404 is
// not retried. The backoff wait ends early when ctx is done.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*RawPage, error) {
	return retryFetch(ctx, rawURL, f.cfg.MaxRetries, f.cfg.BaseDelay, func() (*RawPage, error) {
		return f.attempt(ctx, rawURL)
	})
}

// retryFetch runs attempt under linear backoff and reports each scheduled
// retry to the request's hook. Final failures come back as *FetchError.
func retryFetch(ctx context.Context, rawURL string, maxTries int, base time.Duration, attempt func() (*RawPage, error)) (*RawPage, error) {
	hook := hookFrom(ctx)
	attempts, lastStatus := 0, 0

	op := func() (*RawPage, error) {
		attempts++
		page, err := attempt()
		if err == nil {
			return page, nil
		}
		var se *statusError
		if errors.As(err, &se) {
			lastStatus = se.status
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	page, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&linearBackOff{base: base}),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			hook.Observe(ctx, Event{State: StateFetching, URL: rawURL, Attempt: attempts, Wait: wait, Err: err})
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, &FetchError{URL: rawURL, Status: lastStatus, Attempts: attempts, Err: err}
	}
	return page, nil
}

// attempt performs a single GET with browser-like headers.
func (f *HTTPFetcher) attempt(ctx context.Context, rawURL string) (*RawPage, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://www.tiktok.com/")
	req.Header.Set("Origin", "https://www.tiktok.com")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	// One byte past the cap tells an oversized page from one that fits exactly.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, backoff.Permanent(fmt.Errorf("%w: body of %s exceeds %d bytes", ErrInvalidResponse, rawURL, f.cfg.MaxBodyBytes))
	}
	if err := checkBody(rawURL, body); err != nil {
		return nil, err
	}

	return &RawPage{URL: rawURL, Status: resp.StatusCode, Body: body}, nil
}

// checkStatus maps a document status to the package's sentinels. Both
// fetchers share it so a missing page means ErrNotFound either way.
func checkStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &statusError{status: status, err: ErrRateLimited}
	case status == http.StatusNotFound:
		return &statusError{status: status, err: ErrNotFound}
	case status < 200 || status > 299:
		return &statusError{status: status}
	}
	return nil
}

// checkBody rejects TikTok's bot-check interstitial.
func checkBody(rawURL string, body []byte) error {
	if bytes.Contains(body, verifyMarker) {
		return fmt.Errorf("%w: verify page served for %s", ErrCaptcha, rawURL)
	}
	return nil
}

func (f *HTTPFetcher) userAgent() string {
	return f.cfg.UserAgents[rand.IntN(len(f.cfg.UserAgents))]
}
