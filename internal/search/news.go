// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/pdiddy/source-retriever/internal/httputil"
	"github.com/pdiddy/source-retriever/pkg/types"
)

// newsRSSBase is the Google News RSS search endpoint. Declared as a var so
// tests can substitute an httptest server.
var newsRSSBase = "https://news.google.com/rss/search"

// NewsBackend searches Google News through its RSS search feed. It needs no
// credentials.
type NewsBackend struct {
	Client    *http.Client
	UserAgent string
	// Locale is a language-country pair such as "en-US" (default).
	Locale string
}

// Name returns the backend identifier.
func (b *NewsBackend) Name() string { return "news" }

// Tag returns the source tag of every news candidate.
func (b *NewsBackend) Tag() types.SourceTag { return types.SourceNews }

// Search fetches the RSS search feed for query and returns up to count items.
func (b *NewsBackend) Search(ctx context.Context, query string, count int) ([]types.CandidateResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if count <= 0 {
		count = defaultCount
	}

	hl, gl := splitLocale(b.Locale)
	params := url.Values{
		"q":    {query},
		"hl":   {hl},
		"gl":   {gl},
		"ceid": {gl + ":" + strings.SplitN(hl, "-", 2)[0]},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, newsRSSBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.1")
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news rss request: %w", err)
	}
	defer resp.Body.Close()

	if !httputil.IsSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: news rss returned HTTP %d", ErrHTTPStatus, resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing news rss: %v", ErrMalformedResponse, err)
	}
	return normalizeFeed(feed, count), nil
}

func normalizeFeed(feed *gofeed.Feed, count int) []types.CandidateResult {
	results := make([]types.CandidateResult, 0, min(count, len(feed.Items)))
	for i, item := range feed.Items {
		if len(results) >= count {
			break
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		r := types.CandidateResult{
			ID:      fmt.Sprintf("news-%d", i),
			Title:   cleanText(item.Title),
			URL:     link,
			Snippet: cleanText(item.Description),
			Source:  types.SourceNews,
		}
		switch {
		case item.PublishedParsed != nil:
			r.PublishedAt = item.PublishedParsed.UTC().Format(time.RFC3339)
		case item.Published != "":
			r.PublishedAt = item.Published
		}
		results = append(results, r)
	}
	return results
}

// splitLocale turns "en-US" into hl "en-US" and gl "US".
func splitLocale(locale string) (hl, gl string) {
	if locale == "" {
		locale = "en-US"
	}
	parts := strings.SplitN(locale, "-", 2)
	if len(parts) == 1 {
		return locale, strings.ToUpper(locale)
	}
	return locale, strings.ToUpper(parts[1])
}
