// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/source-retriever/internal/httputil"
	"github.com/pdiddy/source-retriever/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlexBackend queries the OpenAlex API for scholarly works.
type OpenAlexBackend struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email      string
	UserAgent  string
	MaxRetries int
}

// Name returns the backend identifier.
func (b *OpenAlexBackend) Name() string { return "openalex" }

// Tag returns the source tag of every OpenAlex candidate.
func (b *OpenAlexBackend) Tag() types.SourceTag { return types.SourceAcademic }

// Search queries OpenAlex and returns works that have a resolvable URL.
func (b *OpenAlexBackend) Search(ctx context.Context, query string, count int) ([]types.CandidateResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if count <= 0 {
		count = defaultCount
	}
	if count > 200 {
		count = 200
	}

	params := url.Values{
		"search":   {query},
		"per_page": {strconv.Itoa(count)},
		"page":     {"1"},
	}
	if b.Email != "" {
		params.Set("mailto", b.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, b.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: OpenAlex API returned HTTP %d", ErrHTTPStatus, resp.StatusCode)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, fmt.Errorf("%w: parsing OpenAlex response: %v", ErrMalformedResponse, err)
	}

	results := make([]types.CandidateResult, 0, len(oar.Results))
	for i, work := range oar.Results {
		u := workURL(work)
		if u == "" {
			continue
		}
		results = append(results, types.CandidateResult{
			ID:          fmt.Sprintf("openalex-%d", i),
			Title:       cleanText(work.Title),
			URL:         u,
			Snippet:     reconstructAbstract(work.AbstractInvertedIndex),
			Source:      types.SourceAcademic,
			PublishedAt: work.PublicationDate,
		})
	}
	return results, nil
}

// workURL prefers the DOI link, then the open-access copy, then the landing
// page, then the OpenAlex record itself.
func workURL(w openAlexWork) string {
	for _, u := range []string{w.DOI, w.OpenAccess.OAURL, w.PrimaryLocation.LandingPageURL, w.ID} {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string             `json:"id"`
	Title                 string             `json:"title"`
	DOI                   string             `json:"doi"`
	PublicationDate       string             `json:"publication_date"`
	AbstractInvertedIndex map[string][]int   `json:"abstract_inverted_index"`
	OpenAccess            openAlexOpenAccess `json:"open_access"`
	PrimaryLocation       openAlexLocation   `json:"primary_location"`
}

type openAlexOpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}

type openAlexLocation struct {
	LandingPageURL string `json:"landing_page_url"`
}
