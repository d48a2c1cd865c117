package tiktok

import (
	"context"
	"log/slog"
	"time"
)

// State is a step of the scrape state machine.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateExtracting
	StateMapping
	StateFallbackScraping
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateExtracting:
		return "extracting"
	case StateMapping:
		return "mapping"
	case StateFallbackScraping:
		return "fallback_scraping"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is what a Hook receives. Only the fields relevant to State are set.
type Event struct {
	State    State
	Kind     Kind
	URL      string
	Strategy Strategy
	Attempt  int
	Wait     time.Duration
	Count    int
	Err      error
}

// Hook observes scrape progress. Implementations must be safe for
// concurrent use when a Scraper serves concurrent requests.
type Hook interface {
	Observe(ctx context.Context, ev Event)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, ev Event)

func (f HookFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

type nopHook struct{}

func (nopHook) Observe(context.Context, Event) {}

// SlogHook logs events to l. Failures and parse errors are logged at warn,
// retries at info, everything else at debug.
func SlogHook(l *slog.Logger) Hook {
	if l == nil {
		l = slog.Default()
	}
	return HookFunc(func(ctx context.Context, ev Event) {
		attrs := []slog.Attr{slog.String("state", ev.State.String())}
		if ev.Kind != "" {
			attrs = append(attrs, slog.String("kind", string(ev.Kind)))
		}
		if ev.URL != "" {
			attrs = append(attrs, slog.String("url", ev.URL))
		}
		if ev.Strategy != StrategyNone {
			attrs = append(attrs, slog.String("strategy", ev.Strategy.String()))
		}
		if ev.Attempt > 0 {
			attrs = append(attrs, slog.Int("attempt", ev.Attempt))
		}
		if ev.Wait > 0 {
			attrs = append(attrs, slog.Duration("wait", ev.Wait))
		}
		if ev.State == StateMapping || ev.State == StateDone || ev.State == StateFallbackScraping {
			attrs = append(attrs, slog.Int("count", ev.Count))
		}

		level := slog.LevelDebug
		msg := "scrape " + ev.State.String()
		switch {
		case ev.State == StateFailed:
			level = slog.LevelWarn
		case ev.Err != nil && ev.Wait > 0:
			level = slog.LevelInfo
			msg = "retrying fetch"
		case ev.Err != nil:
			level = slog.LevelWarn
			msg = "state extraction failed"
		}
		if ev.Err != nil {
			attrs = append(attrs, slog.Any("error", ev.Err))
		}
		l.LogAttrs(ctx, level, msg, attrs...)
	})
}

type hookKey struct{}

// withHook scopes h to one request so fetchers can report retries.
func withHook(ctx context.Context, h Hook) context.Context {
	return context.WithValue(ctx, hookKey{}, h)
}

func hookFrom(ctx context.Context) Hook {
	if h, ok := ctx.Value(hookKey{}).(Hook); ok && h != nil {
		return h
	}
	return nopHook{}
}
