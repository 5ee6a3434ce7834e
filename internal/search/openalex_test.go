// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pdiddy/source-retriever/pkg/types"
)

// --- reconstructAbstract ---

func TestReconstructAbstract(t *testing.T) {
	tests := []struct {
		name  string
		index map[string][]int
		want  string
	}{
		{
			name:  "empty map",
			index: map[string][]int{},
			want:  "",
		},
		{
			name:  "nil map",
			index: nil,
			want:  "",
		},
		{
			name:  "single word",
			index: map[string][]int{"hello": {0}},
			want:  "hello",
		},
		{
			name: "multi-word ordered",
			index: map[string][]int{
				"We":      {0},
				"propose": {1},
				"a":       {2},
				"new":     {3},
				"method":  {4},
			},
			want: "We propose a new method",
		},
		{
			name: "words with shared positions (word appearing multiple times)",
			index: map[string][]int{
				"the": {0, 4},
				"cat": {1},
				"sat": {2},
				"on":  {3},
				"mat": {5},
			},
			want: "the cat sat on the mat",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reconstructAbstract(tt.index)
			if got != tt.want {
				t.Errorf("reconstructAbstract() = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- Mock OpenAlex server ---

const sampleOpenAlexJSON = `{
  "meta": {"count": 3, "per_page": 20, "page": 1},
  "results": [
    {
      "id": "https://openalex.org/W2741809807",
      "title": "Attention Is All You Need",
      "doi": "https://doi.org/10.5555/3295222.3295349",
      "publication_date": "2017-06-12",
      "abstract_inverted_index": {
        "We": [0], "propose": [1], "a": [2, 5], "new": [3],
        "architecture": [4], "based": [6], "on": [7], "attention": [8]
      },
      "open_access": {"is_oa": true, "oa_url": "https://arxiv.org/pdf/1706.03762"}
    },
    {
      "id": "https://openalex.org/W3210812345",
      "title": "BERT: Pre-training of  Deep Bidirectional Transformers",
      "doi": "",
      "publication_date": "",
      "abstract_inverted_index": {},
      "open_access": {"is_oa": true, "oa_url": "https://arxiv.org/pdf/1810.04805"}
    },
    {
      "id": "https://openalex.org/W999",
      "title": "Landing only",
      "primary_location": {"landing_page_url": "https://journal.example.com/w999"}
    }
  ]
}`

func openAlexTestServer(statusCode int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprint(w, body)
	}))
}

// --- OpenAlexBackend.Search ---

func TestOpenAlexBackendSearch(t *testing.T) {
	ts := openAlexTestServer(http.StatusOK, sampleOpenAlexJSON)
	defer ts.Close()

	old := openAlexSearchBase
	openAlexSearchBase = ts.URL
	defer func() { openAlexSearchBase = old }()

	b := &OpenAlexBackend{Client: ts.Client(), Email: "test@example.com"}
	results, err := b.Search(context.Background(), "attention", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}

	r0 := results[0]
	if r0.URL != "https://doi.org/10.5555/3295222.3295349" {
		t.Errorf("URL = %q, want DOI link", r0.URL)
	}
	if r0.Source != types.SourceAcademic {
		t.Errorf("Source = %q, want %q", r0.Source, types.SourceAcademic)
	}
	if r0.PublishedAt != "2017-06-12" {
		t.Errorf("PublishedAt = %q", r0.PublishedAt)
	}
	if !strings.HasPrefix(r0.Snippet, "We propose a new architecture") {
		t.Errorf("Snippet = %q, want reconstructed abstract", r0.Snippet)
	}

	// No DOI: the open-access copy is used.
	if results[1].URL != "https://arxiv.org/pdf/1810.04805" {
		t.Errorf("URL = %q, want oa_url", results[1].URL)
	}
	if results[1].Title != "BERT: Pre-training of Deep Bidirectional Transformers" {
		t.Errorf("Title = %q, want collapsed whitespace", results[1].Title)
	}
	if results[1].Snippet != "" {
		t.Errorf("Snippet = %q, want empty for empty inverted index", results[1].Snippet)
	}

	if results[2].URL != "https://journal.example.com/w999" {
		t.Errorf("URL = %q, want landing page", results[2].URL)
	}
}

func TestOpenAlexBackendParameters(t *testing.T) {
	var gotQuery map[string][]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer ts.Close()

	old := openAlexSearchBase
	openAlexSearchBase = ts.URL
	defer func() { openAlexSearchBase = old }()

	b := &OpenAlexBackend{Client: ts.Client(), Email: "me@example.com"}
	if _, err := b.Search(context.Background(), "graph neural networks", 500); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := gotQuery["per_page"]; len(got) != 1 || got[0] != "200" {
		t.Errorf("per_page = %v, want capped at 200", got)
	}
	if got := gotQuery["mailto"]; len(got) != 1 || got[0] != "me@example.com" {
		t.Errorf("mailto = %v", got)
	}
	if got := gotQuery["search"]; len(got) != 1 || got[0] != "graph neural networks" {
		t.Errorf("search = %v", got)
	}
}

func TestOpenAlexBackendErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{}`, ErrHTTPStatus},
		{"malformed body", http.StatusOK, `{"results": [`, ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := openAlexTestServer(tt.status, tt.body)
			defer ts.Close()

			old := openAlexSearchBase
			openAlexSearchBase = ts.URL
			defer func() { openAlexSearchBase = old }()

			b := &OpenAlexBackend{Client: ts.Client()}
			_, err := b.Search(context.Background(), "q", 10)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAlexBackendEmptyQuery(t *testing.T) {
	b := &OpenAlexBackend{Client: http.DefaultClient}
	results, err := b.Search(context.Background(), "   ", 10)
	if err != nil || results != nil {
		t.Errorf("Search(blank) = %v, %v; want nil, nil", results, err)
	}
}
