// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries web search backends concurrently and returns merged
// candidates deduplicated by URL.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/pdiddy/source-retriever/internal/logging"
	"github.com/pdiddy/source-retriever/internal/metrics"
	"github.com/pdiddy/source-retriever/pkg/types"
)

const defaultCount = 10

var (
	// ErrNotConfigured marks a backend whose credentials are missing.
	ErrNotConfigured = errors.New("backend not configured")
	// ErrHTTPStatus marks a non-2xx response.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	// ErrMalformedResponse marks a body outside the documented response shapes.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrBackendError marks an error reported inside a successful response.
	ErrBackendError = errors.New("backend reported error")
	// ErrBackendPanic marks a backend that panicked during Search.
	ErrBackendPanic = errors.New("backend panicked")
)

// Backend searches a single external API. Implementations tag every
// candidate with their own fixed source tag and drop hits without a URL.
type Backend interface {
	Name() string
	Tag() types.SourceTag
	Search(ctx context.Context, query string, count int) ([]types.CandidateResult, error)
}

// ContentFetcher returns the full text of a page, or "" when it cannot.
type ContentFetcher interface {
	FetchFullContent(ctx context.Context, url string) string
}

// Aggregator fans a query out to its backends and owns full-content
// extraction for the candidates they return.
type Aggregator struct {
	// Backends are queried concurrently; their results are concatenated in
	// this order before deduplication.
	Backends []Backend
	Fetcher  ContentFetcher
	// Count is the number of results requested from each backend.
	Count   int
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Report holds the merged results of one query and per-backend diagnostics.
type Report struct {
	Results     []types.CandidateResult
	DupsRemoved int
	// PerBackend counts candidates contributed by each backend before dedup.
	PerBackend map[string]int
	// Err combines the failures of every backend that contributed nothing.
	Err error
}

// Search runs every backend, waits for all of them, and returns their
// results deduplicated by exact URL. A failing backend contributes nothing.
func (a *Aggregator) Search(ctx context.Context, query string) []types.CandidateResult {
	return a.SearchReport(ctx, query).Results
}

// SearchReport is Search with diagnostics.
func (a *Aggregator) SearchReport(ctx context.Context, query string) Report {
	logger := logging.OrNop(a.Logger)

	type backendResult struct {
		results []types.CandidateResult
		err     error
		elapsed time.Duration
	}

	out := make([]backendResult, len(a.Backends))
	var wg sync.WaitGroup
	for i, b := range a.Backends {
		wg.Add(1)
		go func(i int, b Backend) {
			defer wg.Done()
			start := time.Now()
			defer func() {
				if r := recover(); r != nil {
					out[i] = backendResult{err: fmt.Errorf("%w: %v", ErrBackendPanic, r)}
				}
				out[i].elapsed = time.Since(start)
			}()
			results, err := b.Search(ctx, query, a.Count)
			out[i] = backendResult{results: results, err: err}
		}(i, b)
	}
	wg.Wait()

	report := Report{PerBackend: make(map[string]int, len(a.Backends))}
	var errs *multierror.Error
	var all []types.CandidateResult
	for i, br := range out {
		name := a.Backends[i].Name()
		if br.err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, br.err))
			a.Metrics.RecordBackend(name, 0, true)
			logBackendFailure(logger, name, query, br.err)
			continue
		}
		report.PerBackend[name] = len(br.results)
		a.Metrics.RecordBackend(name, len(br.results), false)
		logger.Debug("backend_completed",
			zap.String("backend", name),
			zap.String("query", query),
			zap.Int("results", len(br.results)),
			zap.Duration("elapsed", br.elapsed))
		all = append(all, br.results...)
	}

	report.Results, report.DupsRemoved = types.DedupByURL(all)
	report.Err = errs.ErrorOrNil()
	return report
}

func logBackendFailure(logger *zap.Logger, backend, query string, err error) {
	fields := []zap.Field{zap.String("backend", backend), zap.String("query", query), zap.Error(err)}
	switch {
	case errors.Is(err, ErrNotConfigured):
		logger.Warn("backend_not_configured", fields...)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		logger.Warn("backend_cancelled", fields...)
	default:
		logger.Warn("backend_failed", fields...)
	}
}

// FetchFullContent returns the extracted text of url, or "" when extraction
// fails or no fetcher is configured.
func (a *Aggregator) FetchFullContent(ctx context.Context, url string) string {
	if a.Fetcher == nil {
		return ""
	}
	return a.Fetcher.FetchFullContent(ctx, url)
}

// NewBackends builds the enabled backends in registration order: bocha,
// onebound, news, openalex. Backends without credentials are still
// registered and report ErrNotConfigured when searched.
func NewBackends(cfg types.BackendConfig, creds types.Credentials, client *http.Client) []Backend {
	var backends []Backend
	if cfg.EnableBocha {
		backends = append(backends, &BochaBackend{
			Client:     client,
			APIKey:     creds.BochaAPIKey,
			UserAgent:  cfg.UserAgent,
			MaxRetries: cfg.MaxRetries,
		})
	}
	if cfg.EnableOneBound {
		backends = append(backends, &OneBoundBackend{
			Client:     client,
			APIKey:     creds.OneBoundAPIKey,
			APISecret:  creds.OneBoundAPISecret,
			UserAgent:  cfg.UserAgent,
			MaxRetries: cfg.MaxRetries,
		})
	}
	if cfg.EnableNews {
		backends = append(backends, &NewsBackend{
			Client:    client,
			UserAgent: cfg.UserAgent,
			Locale:    cfg.NewsLocale,
		})
	}
	if cfg.EnableOpenAlex {
		backends = append(backends, &OpenAlexBackend{
			Client:     client,
			Email:      creds.OpenAlexEmail,
			UserAgent:  cfg.UserAgent,
			MaxRetries: cfg.MaxRetries,
		})
	}
	return backends
}

// FormatTable writes results as a human-readable table to w.
func FormatTable(results []types.CandidateResult, w io.Writer) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-8s  %-50s  %s\n", "Rank", "Source", "Title", "URL")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for i, r := range results {
		fmt.Fprintf(w, "%-4d  %-8s  %-50s  %s\n",
			i+1, r.Source, truncate(r.Title, 50), r.URL)
	}
	fmt.Fprintf(w, "\n%d results\n", len(results))
}

// FormatJSON writes results as indented JSON to w.
func FormatJSON(results []types.CandidateResult, w io.Writer) error {
	if results == nil {
		results = []types.CandidateResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// truncate shortens s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
