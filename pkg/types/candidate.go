// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the source-retriever pipeline.
//
// A retrieval call creates every value here fresh; nothing is retained between calls.
package types

// SourceTag identifies the category of backend that produced a candidate.
// The tag is fixed per backend, never derived from content.
type SourceTag string

const (
	SourceWeb      SourceTag = "web"
	SourceWeChat   SourceTag = "wechat"
	SourceNews     SourceTag = "news"
	SourceAcademic SourceTag = "academic"
)

// CandidateResult is one normalized search hit. Snippet may later be
// replaced with extracted full-page text by the retrieval workflow.
type CandidateResult struct {
	// ID is "<backend>-<position>" and is unique only within one backend response.
	ID string `json:"id" yaml:"id"`

	Title string `json:"title" yaml:"title"`

	// URL is never empty; backends drop hits without one.
	URL string `json:"url" yaml:"url"`

	Snippet string `json:"snippet" yaml:"snippet"`

	Source SourceTag `json:"source" yaml:"source"`

	// PublishedAt is passed through as the backend reported it.
	PublishedAt string `json:"publishedAt,omitempty" yaml:"published_at,omitempty"`
}

// SelectionItem is the reduced view of a candidate handed to a selection oracle.
// Index is the candidate's position in the deduplicated candidate list.
type SelectionItem struct {
	Index   int       `json:"index"`
	Title   string    `json:"title"`
	Snippet string    `json:"snippet"`
	Source  SourceTag `json:"source"`
}

// Selection is an oracle's answer: positions worth reading in full, in
// the order the results should be returned.
type Selection struct {
	Indices []int `json:"indices" yaml:"indices"`
}

// DedupByURL returns results with repeated URLs removed, keeping the first
// occurrence of each URL, and the number of entries dropped.
func DedupByURL(results []CandidateResult) ([]CandidateResult, int) {
	seen := make(map[string]struct{}, len(results))
	deduped := make([]CandidateResult, 0, len(results))
	removed := 0
	for _, r := range results {
		if _, ok := seen[r.URL]; ok {
			removed++
			continue
		}
		seen[r.URL] = struct{}{}
		deduped = append(deduped, r)
	}
	return deduped, removed
}
