package tiktok

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// Strategy names the way a record set was recovered from a page.
type Strategy int

const (
	StrategyNone Strategy = iota
	// StrategyByID reads the script element with id SIGI_STATE.
	StrategyByID
	// StrategyByMarker finds window['SIGI_STATE']= inside any script.
	StrategyByMarker
	// StrategyAlternate reads __UNIVERSAL_DATA_FOR_REHYDRATION__.
	StrategyAlternate
	// StrategyAPI treats the whole body as a JSON API response.
	StrategyAPI
	// StrategyMarkup means records came from the fallback markup scraper.
	StrategyMarkup
)

var strategyNames = map[Strategy]string{
	StrategyNone:      "none",
	StrategyByID:      "state_by_id",
	StrategyByMarker:  "state_by_marker",
	StrategyAlternate: "state_alternate",
	StrategyAPI:       "api",
	StrategyMarkup:    "markup",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseStrategy maps a name such as "state_by_marker" to its Strategy.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return StrategyNone, fmt.Errorf("unknown extraction strategy %q", name)
}

// DefaultStrategies is the priority order used for HTML pages.
func DefaultStrategies() []Strategy {
	return []Strategy{StrategyByID, StrategyByMarker, StrategyAlternate}
}

const (
	sigiScriptSelector      = "script#SIGI_STATE"
	universalScriptSelector = "script#__UNIVERSAL_DATA_FOR_REHYDRATION__"
)

var sigiMarker = regexp.MustCompile(`window\[\s*['"]SIGI_STATE['"]\s*\]\s*=\s*`)

// ExtractedState is the untyped object graph recovered by one strategy.
type ExtractedState struct {
	Strategy Strategy
	Root     gjson.Result
}

// ExtractState tries strategies in order and returns the first state that
// parses. ok is false when none matched; callers fall back to ScrapeMarkup.
// Only the embedded-state strategies (StrategyByID, StrategyByMarker and
// StrategyAlternate) apply to a document; any other Strategy is skipped.
// JSON endpoint bodies go through ExtractAPIState instead.
func ExtractState(doc *goquery.Document, strategies ...Strategy) (ExtractedState, bool) {
	return extractState(context.Background(), nopHook{}, doc, strategies)
}

func extractState(ctx context.Context, hook Hook, doc *goquery.Document, strategies []Strategy) (ExtractedState, bool) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	for _, s := range strategies {
		var (
			root  gjson.Result
			found bool
			err   error
		)
		switch s {
		case StrategyByID:
			root, found, err = stateByID(doc)
		case StrategyByMarker:
			root, found, err = stateByMarker(doc)
		case StrategyAlternate:
			root, found, err = stateAlternate(doc)
		default:
			continue
		}
		if err != nil {
			hook.Observe(ctx, Event{State: StateExtracting, Strategy: s, Err: err})
			continue
		}
		if found {
			return ExtractedState{Strategy: s, Root: root}, true
		}
	}
	return ExtractedState{}, false
}

// ExtractAPIState parses a JSON endpoint response. ok is false when body is
// not a JSON object.
func ExtractAPIState(body []byte) (ExtractedState, bool) {
	return extractAPIState(context.Background(), nopHook{}, body)
}

func extractAPIState(ctx context.Context, hook Hook, body []byte) (ExtractedState, bool) {
	root, err := parseState(string(bytes.TrimSpace(body)))
	if err != nil {
		hook.Observe(ctx, Event{State: StateExtracting, Strategy: StrategyAPI, Err: err})
		return ExtractedState{}, false
	}
	return ExtractedState{Strategy: StrategyAPI, Root: root}, true
}

func stateByID(doc *goquery.Document) (gjson.Result, bool, error) {
	sel := doc.Find(sigiScriptSelector).First()
	if sel.Length() == 0 {
		return gjson.Result{}, false, nil
	}
	root, err := parseState(sel.Text())
	if err != nil {
		return gjson.Result{}, false, err
	}
	return root, true, nil
}

func stateByMarker(doc *goquery.Document) (gjson.Result, bool, error) {
	var (
		root  gjson.Result
		found bool
		err   error
	)
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		loc := sigiMarker.FindStringIndex(text)
		if loc == nil {
			return true
		}
		obj, ok := balancedObject(text, loc[1])
		if !ok {
			err = fmt.Errorf("%w: unterminated object after SIGI_STATE marker", ErrInvalidResponse)
			return true
		}
		parsed, perr := parseState(obj)
		if perr != nil {
			err = perr
			return true
		}
		root, found, err = parsed, true, nil
		return false
	})
	if found {
		return root, true, nil
	}
	return gjson.Result{}, false, err
}

func stateAlternate(doc *goquery.Document) (gjson.Result, bool, error) {
	sel := doc.Find(universalScriptSelector).First()
	if sel.Length() == 0 {
		return gjson.Result{}, false, nil
	}
	root, err := parseState(sel.Text())
	if err != nil {
		return gjson.Result{}, false, err
	}
	if !root.Get("__DEFAULT_SCOPE__").IsObject() {
		return gjson.Result{}, false, fmt.Errorf("%w: rehydration data has no __DEFAULT_SCOPE__", ErrInvalidResponse)
	}
	return root, true, nil
}

// parseState validates text as a JSON object.
func parseState(text string) (gjson.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return gjson.Result{}, fmt.Errorf("%w: empty state", ErrInvalidResponse)
	}
	if !gjson.Valid(text) {
		return gjson.Result{}, fmt.Errorf("%w: state is not valid JSON", ErrInvalidResponse)
	}
	root := gjson.Parse(text)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: state is not a JSON object", ErrInvalidResponse)
	}
	return root, nil
}

// balancedObject returns the JSON object starting at the first '{' at or
// after from, honouring string literals and escapes.
func balancedObject(s string, from int) (string, bool) {
	start := strings.IndexByte(s[from:], '{')
	if start == -1 {
		return "", false
	}
	start += from

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
