// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tidwall/gjson"

	"github.com/pdiddy/source-retriever/pkg/types"
)

// fieldPaths lists, per candidate field, the response keys a backend may use,
// in priority order. The first non-empty value wins.
type fieldPaths struct {
	Title     []string
	URL       []string
	Snippet   []string
	Published []string
}

var strictPolicy = bluemonday.StrictPolicy()

// parseJSON validates body and returns its root.
func parseJSON(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
	}
	return gjson.ParseBytes(body), nil
}

// firstArray returns the first of paths that holds an array. A path holding
// an empty array still counts as found.
func firstArray(root gjson.Result, paths ...string) ([]gjson.Result, bool) {
	for _, p := range paths {
		if v := root.Get(p); v.IsArray() {
			return v.Array(), true
		}
	}
	return nil, false
}

// firstString returns the first non-blank string or number among paths.
func firstString(item gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := item.Get(p)
		if v.Type != gjson.String && v.Type != gjson.Number {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// normalizeItems maps raw hits to candidates. Hits without a URL are dropped;
// IDs keep the hit's position in the raw response.
func normalizeItems(backend string, tag types.SourceTag, items []gjson.Result, fields fieldPaths) []types.CandidateResult {
	results := make([]types.CandidateResult, 0, len(items))
	for i, item := range items {
		u := firstString(item, fields.URL...)
		if u == "" {
			continue
		}
		results = append(results, types.CandidateResult{
			ID:          fmt.Sprintf("%s-%d", backend, i),
			Title:       cleanText(firstString(item, fields.Title...)),
			URL:         u,
			Snippet:     cleanText(firstString(item, fields.Snippet...)),
			Source:      tag,
			PublishedAt: firstString(item, fields.Published...),
		})
	}
	return results
}

// cleanText strips markup such as <em> highlights, decodes entities, and
// collapses whitespace.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		s = html.UnescapeString(strictPolicy.Sanitize(s))
	}
	return strings.Join(strings.Fields(s), " ")
}
