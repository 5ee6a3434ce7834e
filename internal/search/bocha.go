// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pdiddy/source-retriever/internal/httputil"
	"github.com/pdiddy/source-retriever/pkg/types"
)

// bochaAPIURL is the Bocha web search endpoint. Declared as a var so tests
// can substitute an httptest server.
var bochaAPIURL = "https://api.bochaai.com/v1/web-search"

const maxBochaResponse = 8 << 20

var bochaFields = fieldPaths{
	Title:     []string{"name", "title"},
	URL:       []string{"url", "link"},
	Snippet:   []string{"snippet", "summary", "body"},
	Published: []string{"datePublished", "date_published"},
}

// BochaBackend queries the Bocha web search API.
type BochaBackend struct {
	Client     *http.Client
	APIKey     string
	UserAgent  string
	MaxRetries int
}

// Name returns the backend identifier.
func (b *BochaBackend) Name() string { return "bocha" }

// Tag returns the source tag of every Bocha candidate.
func (b *BochaBackend) Tag() types.SourceTag { return types.SourceWeb }

type bochaRequest struct {
	Query     string `json:"query"`
	Freshness string `json:"freshness"`
	Summary   bool   `json:"summary"`
	Count     int    `json:"count"`
}

// Search posts the query to Bocha and normalizes the hits.
func (b *BochaBackend) Search(ctx context.Context, query string, count int) ([]types.CandidateResult, error) {
	if b.APIKey == "" {
		return nil, fmt.Errorf("%w: bocha api key", ErrNotConfigured)
	}
	if count <= 0 {
		count = defaultCount
	}

	payload, err := json.Marshal(bochaRequest{
		Query:     query,
		Freshness: "noLimit",
		Summary:   true,
		Count:     count,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding bocha request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, bochaAPIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.APIKey)
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, b.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("bocha request: %w", err)
	}
	defer resp.Body.Close()

	body, err := httputil.ReadLimited(resp.Body, maxBochaResponse)
	if err != nil {
		return nil, fmt.Errorf("reading bocha response: %w", err)
	}
	if !httputil.IsSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: bocha returned HTTP %d: %s", ErrHTTPStatus, resp.StatusCode, truncate(string(body), 200))
	}

	return parseBochaResponse(body)
}

// parseBochaResponse accepts {data:{webPages:{value:[...]}}} or {results:[...]}.
func parseBochaResponse(body []byte) ([]types.CandidateResult, error) {
	root, err := parseJSON(body)
	if err != nil {
		return nil, err
	}
	items, ok := firstArray(root, "data.webPages.value", "results")
	if !ok {
		return nil, fmt.Errorf("%w: bocha response has no result list", ErrMalformedResponse)
	}
	return normalizeItems("bocha", types.SourceWeb, items, bochaFields), nil
}
