package tiktok

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultBaseURL  = "https://www.tiktok.com"
	defaultDeadline = 2 * time.Minute

	// apiPageSize caps count= on JSON endpoints; TikTok ignores larger values.
	apiPageSize = 20
)

// Scraper runs the fetch -> extract -> map -> fallback pipeline. Configure
// it with the With* methods before first use; afterwards it is read-only
// and safe for concurrent Scrape calls.
type Scraper struct {
	fetcher    Fetcher
	hook       Hook
	baseURL    string // defaults to "https://www.tiktok.com"
	deadline   time.Duration
	strategies []Strategy
}

// New creates a Scraper backed by an HTTPFetcher with default settings.
func New() *Scraper {
	f, _ := NewHTTPFetcher(FetchConfig{})
	return &Scraper{
		fetcher:    f,
		hook:       nopHook{},
		baseURL:    defaultBaseURL,
		deadline:   defaultDeadline,
		strategies: DefaultStrategies(),
	}
}

// WithFetcher replaces the page fetcher.
func (s *Scraper) WithFetcher(f Fetcher) *Scraper {
	s.fetcher = f
	return s
}

// WithHook sets the observer notified of every state transition.
func (s *Scraper) WithHook(h Hook) *Scraper {
	if h == nil {
		h = nopHook{}
	}
	s.hook = h
	return s
}

// WithDeadline bounds a whole Scrape call, retries and pagination included.
// Zero disables the deadline.
func (s *Scraper) WithDeadline(d time.Duration) *Scraper {
	s.deadline = d
	return s
}

// WithBaseURL points the scraper at another origin.
func (s *Scraper) WithBaseURL(u string) *Scraper {
	s.baseURL = strings.TrimRight(u, "/")
	return s
}

// WithStrategies sets the embedded-state strategies tried on HTML pages, in order.
func (s *Scraper) WithStrategies(strategies ...Strategy) *Scraper {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	s.strategies = strategies
	return s
}

// Scrape executes req. Invalid requests fail before any network call. A
// fetch that exhausts its retries returns a *FetchError; an empty result is
// not an error.
func (s *Scraper) Scrape(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if s.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deadline)
		defer cancel()
	}
	ctx = withHook(ctx, s.hook)

	if req.Kind.paginated() {
		return s.scrapePages(ctx, req)
	}

	out, err := s.run(ctx, req.Kind, s.pageURL(req))
	if err != nil {
		return nil, fmt.Errorf("scrape %s %q: %w", req.Kind, req.Input, err)
	}
	return &Result{
		Kind:     req.Kind,
		Strategy: out.strategy,
		Records:  truncate(out.records, req.limit()),
	}, nil
}

func (s *Scraper) scrapePages(ctx context.Context, req Request) (*Result, error) {
	limit := req.limit()
	res := &Result{Kind: req.Kind, Records: []Record{}, Cursor: req.Cursor}

	for len(res.Records) < limit {
		count := min(limit-len(res.Records), apiPageSize)
		out, err := s.run(ctx, req.Kind, s.apiURL(req.Kind, req.Input, res.Cursor, count))
		if err != nil {
			return nil, fmt.Errorf("scrape %s %q at cursor %d: %w", req.Kind, req.Input, res.Cursor, err)
		}
		if len(out.records) > 0 || res.Strategy == StrategyNone {
			res.Strategy = out.strategy
		}
		res.Records = append(res.Records, out.records...)
		res.HasMore = out.hasMore

		if len(out.records) == 0 || !out.hasMore || out.cursor == res.Cursor {
			res.Cursor = out.cursor
			break
		}
		res.Cursor = out.cursor
	}

	res.Records = truncate(res.Records, limit)
	return res, nil
}

type pageOutcome struct {
	records  []Record
	strategy Strategy
	cursor   int64
	hasMore  bool
}

// run moves one page through Fetching -> Extracting -> Mapping or
// FallbackScraping -> Done, or to Failed when the fetch gives up.
func (s *Scraper) run(ctx context.Context, kind Kind, pageURL string) (pageOutcome, error) {
	var out pageOutcome

	s.emit(ctx, Event{State: StateFetching, Kind: kind, URL: pageURL})
	page, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		s.emit(ctx, Event{State: StateFailed, Kind: kind, URL: pageURL, Err: err})
		return out, err
	}

	s.emit(ctx, Event{State: StateExtracting, Kind: kind, URL: pageURL})
	var (
		doc   *goquery.Document
		state ExtractedState
		ok    bool
	)
	if kind.paginated() {
		state, ok = extractAPIState(ctx, s.hook, page.Body)
	} else {
		doc, err = parseDocument(page.Body)
		if err == nil {
			state, ok = extractState(ctx, s.hook, doc, s.strategies)
		}
	}

	if ok {
		out.records = MapItems(state, kind)
		out.strategy = state.Strategy
		if state.Strategy == StrategyAPI {
			out.cursor, out.hasMore = apiPaging(state.Root)
		}
		s.emit(ctx, Event{State: StateMapping, Kind: kind, URL: pageURL, Strategy: state.Strategy, Count: len(out.records)})
	}

	if len(out.records) == 0 {
		if doc == nil {
			doc, _ = parseDocument(page.Body)
		}
		items := ScrapeMarkup(doc)
		out.records = make([]Record, 0, len(items))
		for i := range items {
			out.records = append(out.records, &items[i])
		}
		out.strategy = StrategyMarkup
		out.hasMore = false
		s.emit(ctx, Event{State: StateFallbackScraping, Kind: kind, URL: pageURL, Strategy: StrategyMarkup, Count: len(out.records)})
	}

	s.emit(ctx, Event{State: StateDone, Kind: kind, URL: pageURL, Strategy: out.strategy, Count: len(out.records)})
	return out, nil
}

func (s *Scraper) emit(ctx context.Context, ev Event) {
	s.hook.Observe(ctx, ev)
}

// pageURL returns the HTML page for feed and post kinds.
func (s *Scraper) pageURL(req Request) string {
	input := strings.TrimSpace(req.Input)
	switch req.Kind {
	case KindUser:
		return s.baseURL + "/@" + url.PathEscape(strings.TrimPrefix(input, "@"))
	case KindHashtag:
		return s.baseURL + "/tag/" + url.PathEscape(strings.TrimPrefix(input, "#"))
	case KindMusic:
		return s.baseURL + "/music/" + url.PathEscape(input)
	case KindVideo:
		if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
			return input
		}
		// TikTok redirects /@_/ to the owner's handle.
		return s.baseURL + "/@_/video/" + url.PathEscape(input)
	default:
		return s.baseURL + "/trending"
	}
}

// apiURL returns the JSON endpoint for paginated kinds.
func (s *Scraper) apiURL(kind Kind, input string, cursor int64, count int) string {
	q := url.Values{}
	q.Set("count", strconv.Itoa(count))
	input = strings.TrimSpace(input)

	if kind == KindComments {
		q.Set("aweme_id", input)
		q.Set("cursor", strconv.FormatInt(cursor, 10))
		return s.baseURL + "/api/comment/list/?" + q.Encode()
	}
	q.Set("aid", "1988")
	q.Set("keyword", input)
	q.Set("offset", strconv.FormatInt(cursor, 10))
	return s.baseURL + "/api/search/general/full/?" + q.Encode()
}

func truncate(records []Record, limit int) []Record {
	if records == nil {
		return []Record{}
	}
	if len(records) > limit {
		return records[:limit]
	}
	return records
}

// Close releases the fetcher's resources, such as a headless browser.
func (s *Scraper) Close() error {
	if c, ok := s.fetcher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
