// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/source-retriever/pkg/types"
)

func swapURL(t *testing.T, target *string, url string) {
	t.Helper()
	old := *target
	*target = url
	t.Cleanup(func() { *target = old })
}

func jsonServer(t *testing.T, status int, body string, inspect func(*http.Request)) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

// --- Bocha ---

func TestBochaSearch(t *testing.T) {
	const body = `{"code":200,"data":{"webPages":{"value":[
		{"name":"<em>AI</em> &amp; society","url":"https://example.com/a","snippet":"About <em>AI</em>","datePublished":"2024-05-01T00:00:00Z"},
		{"name":"no url","snippet":"dropped"},
		{"title":"Alt keys","link":"https://example.com/b","summary":"from summary"}
	]}}}`

	var gotReq bochaRequest
	var gotAuth string
	ts := jsonServer(t, http.StatusOK, body, func(r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
	})
	swapURL(t, &bochaAPIURL, ts.URL)

	b := &BochaBackend{Client: ts.Client(), APIKey: "k"}
	results, err := b.Search(context.Background(), "ai", 5)
	require.NoError(t, err)

	assert.Equal(t, "Bearer k", gotAuth)
	assert.Equal(t, bochaRequest{Query: "ai", Freshness: "noLimit", Summary: true, Count: 5}, gotReq)

	require.Len(t, results, 2)
	assert.Equal(t, types.CandidateResult{
		ID:          "bocha-0",
		Title:       "AI & society",
		URL:         "https://example.com/a",
		Snippet:     "About AI",
		Source:      types.SourceWeb,
		PublishedAt: "2024-05-01T00:00:00Z",
	}, results[0])
	assert.Equal(t, "bocha-2", results[1].ID)
	assert.Equal(t, "Alt keys", results[1].Title)
	assert.Equal(t, "from summary", results[1].Snippet)
}

func TestBochaSearchResultsShape(t *testing.T) {
	ts := jsonServer(t, http.StatusOK, `{"results":[{"title":"T","url":"https://x","body":"b"}]}`, nil)
	swapURL(t, &bochaAPIURL, ts.URL)

	b := &BochaBackend{Client: ts.Client(), APIKey: "k"}
	results, err := b.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Snippet)
}

func TestBochaSearchErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"non-2xx", http.StatusUnauthorized, `{"message":"bad key"}`, ErrHTTPStatus},
		{"invalid json", http.StatusOK, `<html>`, ErrMalformedResponse},
		{"no result list", http.StatusOK, `{"data":{}}`, ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := jsonServer(t, tt.status, tt.body, nil)
			swapURL(t, &bochaAPIURL, ts.URL)

			b := &BochaBackend{Client: ts.Client(), APIKey: "k"}
			_, err := b.Search(context.Background(), "q", 10)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBochaMissingKey(t *testing.T) {
	called := false
	ts := jsonServer(t, http.StatusOK, `{}`, func(*http.Request) { called = true })
	swapURL(t, &bochaAPIURL, ts.URL)

	b := &BochaBackend{Client: ts.Client()}
	_, err := b.Search(context.Background(), "q", 10)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, called, "no request without a key")
}

func TestBochaEmptyList(t *testing.T) {
	results, err := parseBochaResponse([]byte(`{"data":{"webPages":{"value":[]}}}`))
	require.NoError(t, err)
	assert.Empty(t, results)
}

// --- OneBound ---

func TestOneBoundSearch(t *testing.T) {
	const body = `{"error_code":"0000","items":{"item":[
		{"title":"公众号文章","z_url":"https://mp.weixin.qq.com/s/1","desc":"摘要","publish_time":"2024-03-02"},
		{"title":"Only title","url":"https://mp.weixin.qq.com/s/2"},
		{"title":"no link"}
	]}}`
	var gotQuery map[string][]string
	ts := jsonServer(t, http.StatusOK, body, func(r *http.Request) { gotQuery = r.URL.Query() })
	swapURL(t, &oneBoundAPIURL, ts.URL)

	b := &OneBoundBackend{Client: ts.Client(), APIKey: "key", APISecret: "secret"}
	results, err := b.Search(context.Background(), "大模型", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"key"}, gotQuery["key"])
	assert.Equal(t, []string{"secret"}, gotQuery["secret"])
	assert.Equal(t, []string{"大模型"}, gotQuery["q"])
	assert.Equal(t, []string{"1"}, gotQuery["page"])

	require.Len(t, results, 2)
	assert.Equal(t, types.SourceWeChat, results[0].Source)
	assert.Equal(t, "摘要", results[0].Snippet)
	assert.Equal(t, "2024-03-02", results[0].PublishedAt)
	assert.Equal(t, "Only title", results[1].Snippet, "snippet falls back to title")
}

func TestParseOneBoundShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"items.item", `{"items":{"item":[{"url":"u1"}]}}`, 1},
		{"item", `{"item":[{"url":"u1"},{"detail_url":"u2"}]}`, 2},
		{"items array", `{"error_code":"0000","items":[{"url":"u1"}]}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOneBoundResponse([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestOneBoundErrors(t *testing.T) {
	_, err := parseOneBoundResponse([]byte(`{"error_code":"4005","reason":"quota exceeded"}`))
	assert.ErrorIs(t, err, ErrBackendError)
	assert.Contains(t, err.Error(), "quota exceeded")

	_, err = parseOneBoundResponse([]byte(`{"error_code":"0000"}`))
	assert.ErrorIs(t, err, ErrMalformedResponse)

	b := &OneBoundBackend{Client: http.DefaultClient}
	_, err = b.Search(context.Background(), "q", 10)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestOneBoundTransportErrorHidesKey(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()
	swapURL(t, &oneBoundAPIURL, ts.URL)

	b := &OneBoundBackend{Client: http.DefaultClient, APIKey: "super-secret-key"}
	_, err := b.Search(context.Background(), "q", 10)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-key")
}

// --- News RSS ---

const newsFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>q - Google News</title>
<item><title>First &amp; foremost</title><link>https://news.example.com/1</link>
<description>&lt;a href="x"&gt;First&lt;/a&gt; story</description>
<pubDate>Mon, 01 Apr 2024 10:00:00 GMT</pubDate></item>
<item><title>Second</title><link>https://news.example.com/2</link></item>
<item><title>Third</title><link>https://news.example.com/3</link></item>
</channel></rss>`

func TestNewsSearch(t *testing.T) {
	var gotQuery map[string][]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, newsFeed)
	}))
	defer ts.Close()
	swapURL(t, &newsRSSBase, ts.URL)

	b := &NewsBackend{Client: ts.Client(), Locale: "zh-CN"}
	results, err := b.Search(context.Background(), "ai", 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"zh-CN"}, gotQuery["hl"])
	assert.Equal(t, []string{"CN"}, gotQuery["gl"])
	assert.Equal(t, []string{"CN:zh"}, gotQuery["ceid"])

	require.Len(t, results, 2)
	assert.Equal(t, "First & foremost", results[0].Title)
	assert.Equal(t, "First story", results[0].Snippet)
	assert.Equal(t, "2024-04-01T10:00:00Z", results[0].PublishedAt)
	assert.Equal(t, types.SourceNews, results[1].Source)
}

func TestNewsMalformedFeed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "definitely not a feed")
	}))
	defer ts.Close()
	swapURL(t, &newsRSSBase, ts.URL)

	b := &NewsBackend{Client: ts.Client()}
	_, err := b.Search(context.Background(), "ai", 5)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestSplitLocale(t *testing.T) {
	tests := []struct{ in, hl, gl string }{
		{"", "en-US", "US"},
		{"en-GB", "en-GB", "GB"},
		{"fr", "fr", "FR"},
	}
	for _, tt := range tests {
		hl, gl := splitLocale(tt.in)
		assert.Equal(t, tt.hl, hl, tt.in)
		assert.Equal(t, tt.gl, gl, tt.in)
	}
}

// --- normalization ---

func TestCleanText(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"plain   text\n here", "plain text here"},
		{"<em>bold</em> move", "bold move"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"<script>alert(1)</script>safe", "safe"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanText(tt.in), tt.in)
	}
}

func TestFirstStringAcceptsNumbers(t *testing.T) {
	root, err := parseJSON([]byte(`{"a":"  ","b":20240101,"c":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "20240101", firstString(root, "a", "b", "c"))
	assert.Equal(t, "", firstString(root, "missing"))
}
