package tiktok

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func sigiByIDPage(state string) string {
	return `<html><body><script id="SIGI_STATE" type="application/json">` + state + `</script></body></html>`
}

func sigiMarkerPage(state string) string {
	return `<html><body><script>var x = 1;</script>` +
		`<script>window['SIGI_STATE']=` + state + `;window['SIGI_RETRY']={"x":1}</script></body></html>`
}

func universalPage(state string) string {
	return `<html><body><script id="__UNIVERSAL_DATA_FOR_REHYDRATION__" type="application/json">` + state + `</script></body></html>`
}

func TestStrategy_Names(t *testing.T) {
	t.Parallel()
	for s, name := range strategyNames {
		got, err := ParseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, s, got)
		assert.Equal(t, name, s.String())
	}
	_, err := ParseStrategy("guess")
	assert.Error(t, err)
	assert.Equal(t, "unknown", Strategy(42).String())
}

func TestExtractState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		html     string
		want     Strategy
		wantPath string
	}{
		{
			name:     "by id",
			html:     sigiByIDPage(`{"ItemModule":{"1":{"id":"1"}}}`),
			want:     StrategyByID,
			wantPath: "ItemModule.1.id",
		},
		{
			name:     "by marker single quotes",
			html:     sigiMarkerPage(`{"ItemModule":{"2":{"id":"2","desc":"a } in text"}}}`),
			want:     StrategyByMarker,
			wantPath: "ItemModule.2.id",
		},
		{
			name:     "by marker double quotes with spaces",
			html:     `<script>window["SIGI_STATE"] = {"ItemModule":{"3":{"id":"3"}}}</script>`,
			want:     StrategyByMarker,
			wantPath: "ItemModule.3.id",
		},
		{
			name:     "alternate",
			html:     universalPage(`{"__DEFAULT_SCOPE__":{"webapp.user-detail":{}}}`),
			want:     StrategyAlternate,
			wantPath: "__DEFAULT_SCOPE__",
		},
		{
			name:     "by id wins over alternate",
			html:     sigiByIDPage(`{"ItemModule":{}}`) + universalPage(`{"__DEFAULT_SCOPE__":{}}`),
			want:     StrategyByID,
			wantPath: "ItemModule",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			state, ok := ExtractState(mustDoc(t, tt.html))
			require.True(t, ok)
			assert.Equal(t, tt.want, state.Strategy)
			assert.True(t, state.Root.Get(tt.wantPath).Exists(), "missing %s", tt.wantPath)
		})
	}
}

func TestExtractState_ParseFailureFallsThrough(t *testing.T) {
	t.Parallel()
	html := sigiByIDPage(`{not json`) + universalPage(`{"__DEFAULT_SCOPE__":{"ok":true}}`)

	rec := &recorder{}
	state, ok := extractState(context.Background(), rec, mustDoc(t, html), DefaultStrategies())
	require.True(t, ok)
	assert.Equal(t, StrategyAlternate, state.Strategy)

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, StateExtracting, events[0].State)
	assert.Equal(t, StrategyByID, events[0].Strategy)
	assert.ErrorIs(t, events[0].Err, ErrInvalidResponse)
}

func TestExtractState_NotFound(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		html string
	}{
		{"plain page", `<html><body><p>nothing here</p></body></html>`},
		{"empty state script", sigiByIDPage(``)},
		{"state is an array", sigiByIDPage(`[1,2]`)},
		{"unterminated marker", `<script>window['SIGI_STATE']={"a":{"b":1}</script>`},
		{"alternate without default scope", universalPage(`{"other":{}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := ExtractState(mustDoc(t, tt.html))
			assert.False(t, ok)
		})
	}
}

func TestExtractState_RestrictedStrategies(t *testing.T) {
	t.Parallel()
	doc := mustDoc(t, sigiByIDPage(`{"ItemModule":{}}`))
	_, ok := ExtractState(doc, StrategyAlternate)
	assert.False(t, ok)

	state, ok := ExtractState(doc, StrategyAlternate, StrategyByID)
	require.True(t, ok)
	assert.Equal(t, StrategyByID, state.Strategy)
}

func TestExtractState_SkipsNonDocumentStrategies(t *testing.T) {
	t.Parallel()
	doc := mustDoc(t, sigiByIDPage(`{"ItemModule":{}}`))
	_, ok := ExtractState(doc, StrategyAPI, StrategyMarkup, Strategy(42))
	assert.False(t, ok)

	state, ok := ExtractState(doc, StrategyAPI, StrategyByID)
	require.True(t, ok)
	assert.Equal(t, StrategyByID, state.Strategy)
}

func TestExtractAPIState(t *testing.T) {
	t.Parallel()
	state, ok := ExtractAPIState([]byte("  {\"comments\":[],\"has_more\":0}\n"))
	require.True(t, ok)
	assert.Equal(t, StrategyAPI, state.Strategy)
	assert.True(t, state.Root.Get("comments").IsArray())

	_, ok = ExtractAPIState([]byte(`<html>login</html>`))
	assert.False(t, ok)
	_, ok = ExtractAPIState(nil)
	assert.False(t, ok)
}

func TestBalancedObject(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"simple", `= {"a":1};`, `{"a":1}`, true},
		{"nested", `{"a":{"b":{}}} trailing {}`, `{"a":{"b":{}}}`, true},
		{"brace in string", `{"a":"}{"}`, `{"a":"}{"}`, true},
		{"escaped quote", `{"a":"\"}"}x`, `{"a":"\"}"}`, true},
		{"no object", `nothing`, "", false},
		{"unterminated", `{"a":{`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := balancedObject(tt.in, 0)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
