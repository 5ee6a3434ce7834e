// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workflow runs a retrieval: search every query under a time budget,
// merge and deduplicate the candidates, let an oracle pick the ones worth
// reading, and enrich those with full page text.
//
// Retrieve never fails. Each stage has a fallback, and the Outcome records
// which path produced the results.
package workflow

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/source-retriever/internal/logging"
	"github.com/pdiddy/source-retriever/internal/metrics"
	"github.com/pdiddy/source-retriever/pkg/types"
)

// Aggregator is the search and extraction surface the workflow consumes.
// *search.Aggregator satisfies it.
type Aggregator interface {
	Search(ctx context.Context, query string) []types.CandidateResult
	FetchFullContent(ctx context.Context, url string) string
}

// Oracle picks candidates from a batch. Returned indices refer to positions
// in the full candidate list and may be invalid; the workflow filters them.
type Oracle interface {
	Select(ctx context.Context, items []types.SelectionItem) (types.Selection, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, items []types.SelectionItem) (types.Selection, error)

// Select calls f.
func (f OracleFunc) Select(ctx context.Context, items []types.SelectionItem) (types.Selection, error) {
	return f(ctx, items)
}

// Recorder persists finished runs. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, out Outcome) error
}

// Path names the exit a retrieval took.
type Path string

const (
	PathNoCandidates   Path = "no_candidates"
	PathSelected       Path = "selected"
	PathEmptySelection Path = "empty_selection"
	PathOracleFailure  Path = "oracle_failure"
)

// Outcome is the result of one Retrieve call.
type Outcome struct {
	RunID   string                  `json:"run_id" yaml:"run_id"`
	Queries []string                `json:"queries" yaml:"queries"`
	Results []types.CandidateResult `json:"results" yaml:"results"`

	// Candidates is the size of the deduplicated candidate list.
	Candidates int `json:"candidates" yaml:"candidates"`

	// Selected holds the oracle indices that survived validation, in order.
	Selected []int `json:"selected,omitempty" yaml:"selected,omitempty"`

	Path Path `json:"path" yaml:"path"`

	// Enriched counts results whose snippet was replaced by page text.
	Enriched int `json:"enriched" yaml:"enriched"`

	// TimedOut lists queries whose search exceeded the time budget.
	TimedOut []string `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`

	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Retriever runs retrievals. It holds configuration and collaborators only;
// no state is kept between calls, so one Retriever may serve concurrent calls.
type Retriever struct {
	cfg      types.WorkflowConfig
	agg      Aggregator
	logger   *zap.Logger
	metrics  *metrics.Metrics
	recorder Recorder
}

// Option customizes a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Retriever) { r.metrics = m }
}

// WithRecorder stores every finished run.
func WithRecorder(rec Recorder) Option {
	return func(r *Retriever) { r.recorder = rec }
}

// New validates cfg and returns a Retriever that searches through agg.
func New(cfg types.RetrievalConfig, agg Aggregator, opts ...Option) (*Retriever, error) {
	if agg == nil {
		return nil, fmt.Errorf("workflow: nil aggregator")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Retriever{cfg: cfg.Workflow, agg: agg}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger)
	return r, nil
}

// Retrieve searches every query, asks oracle to choose among the merged
// candidates, and returns the chosen candidates enriched with page text.
//
// Results follow the oracle's order. When the oracle picks nothing usable the
// first EmptySelectionFallback candidates are returned; when it fails, the
// first OracleFailureFallback candidates are returned without enrichment.
func (r *Retriever) Retrieve(ctx context.Context, queries []string, oracle Oracle) (out Outcome) {
	out = Outcome{
		RunID:     uuid.NewString(),
		Queries:   queries,
		StartedAt: time.Now(),
	}
	logger := r.logger.With(zap.String("run_id", out.RunID))

	defer func() {
		out.Duration = time.Since(out.StartedAt)
		r.metrics.RecordRun(string(out.Path))
		logger.Info("retrieval_done",
			zap.String("path", string(out.Path)),
			zap.Int("candidates", out.Candidates),
			zap.Int("results", len(out.Results)),
			zap.Int("enriched", out.Enriched),
			zap.Duration("elapsed", out.Duration))
	}()

	logger.Debug("state", zap.String("state", "searching"), zap.Int("queries", len(queries)))
	candidates, timedOut := r.searchAll(ctx, logger, queries)
	out.TimedOut = timedOut
	out.Candidates = len(candidates)

	logger.Debug("state", zap.String("state", "aggregated"), zap.Int("candidates", len(candidates)))
	if len(candidates) == 0 {
		out.Path = PathNoCandidates
		out.Results = []types.CandidateResult{}
		r.record(ctx, logger, out)
		return out
	}

	logger.Debug("state", zap.String("state", "selecting"))
	sel, err := r.selectSafely(ctx, oracle, SelectionBatch(candidates, r.cfg.SelectionBatchSize))
	if err != nil {
		logger.Warn("oracle_failed", zap.Error(err))
		out.Path = PathOracleFailure
		out.Results = head(candidates, r.cfg.OracleFailureFallback)
		r.record(ctx, logger, out)
		return out
	}

	valid := ValidIndices(sel.Indices, len(candidates))
	if dropped := len(sel.Indices) - len(valid); dropped > 0 {
		logger.Debug("oracle_indices_dropped", zap.Int("dropped", dropped), zap.Ints("indices", sel.Indices))
	}
	if len(valid) == 0 {
		out.Path = PathEmptySelection
		out.Results = head(candidates, r.cfg.EmptySelectionFallback)
		r.record(ctx, logger, out)
		return out
	}

	logger.Debug("state", zap.String("state", "enriching"), zap.Ints("indices", valid))
	out.Enriched = r.enrich(ctx, logger, candidates, valid)

	out.Path = PathSelected
	out.Selected = valid
	out.Results = make([]types.CandidateResult, len(valid))
	for k, idx := range valid {
		out.Results[k] = candidates[idx]
	}
	r.record(ctx, logger, out)
	return out
}

// searchAll runs every query concurrently and returns the flattened,
// deduplicated candidates in query order plus the queries that timed out.
func (r *Retriever) searchAll(ctx context.Context, logger *zap.Logger, queries []string) ([]types.CandidateResult, []string) {
	perQuery := make([][]types.CandidateResult, len(queries))
	expired := make([]bool, len(queries))

	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			perQuery[i], expired[i] = r.searchWithTimeout(ctx, logger, q)
			return nil
		})
	}
	_ = g.Wait()

	var flat []types.CandidateResult
	var timedOut []string
	for i, results := range perQuery {
		flat = append(flat, results...)
		if expired[i] {
			timedOut = append(timedOut, queries[i])
		}
	}
	deduped, removed := types.DedupByURL(flat)
	if removed > 0 {
		logger.Debug("candidates_deduplicated", zap.Int("removed", removed))
	}
	return deduped, timedOut
}

// searchWithTimeout races one aggregated search against the search budget.
// The search context is cancelled at the deadline; a search that ignores
// cancellation is abandoned and its late result dropped.
func (r *Retriever) searchWithTimeout(ctx context.Context, logger *zap.Logger, query string) ([]types.CandidateResult, bool) {
	qctx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	// Buffered so an abandoned search can still deliver and exit.
	done := make(chan []types.CandidateResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("search_panic", zap.String("query", query), zap.Any("panic", rec))
				done <- nil
			}
		}()
		done <- r.agg.Search(qctx, query)
	}()

	select {
	case results := <-done:
		return results, false
	case <-qctx.Done():
		logger.Warn("search_timeout",
			zap.String("query", query),
			zap.Duration("budget", r.cfg.SearchTimeout),
			zap.Error(qctx.Err()))
		return nil, true
	}
}

// selectSafely calls the oracle, converting a panic into an error.
func (r *Retriever) selectSafely(ctx context.Context, oracle Oracle, items []types.SelectionItem) (sel types.Selection, err error) {
	if oracle == nil {
		return types.Selection{}, fmt.Errorf("no selection oracle")
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("selection oracle panicked: %v", rec)
		}
	}()
	return oracle.Select(ctx, items)
}

// enrich fetches page text for every selected index concurrently and, after
// all fetches finish, replaces snippets with text longer than EnrichMinChars.
// It returns the number of candidates enriched.
func (r *Retriever) enrich(ctx context.Context, logger *zap.Logger, candidates []types.CandidateResult, indices []int) int {
	fetched := make([]string, len(indices))

	var g errgroup.Group
	if r.cfg.FetchConcurrency > 0 {
		g.SetLimit(r.cfg.FetchConcurrency)
	}
	for k, idx := range indices {
		url := candidates[idx].URL
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Warn("fetch_panic", zap.String("url", url), zap.Any("panic", rec))
				}
			}()
			fetched[k] = r.agg.FetchFullContent(ctx, url)
			return nil
		})
	}
	_ = g.Wait()

	enriched := 0
	for k, idx := range indices {
		n := utf8.RuneCountInString(fetched[k])
		if n > r.cfg.EnrichMinChars {
			candidates[idx].Snippet = fetched[k]
			enriched++
			continue
		}
		logger.Debug("snippet_kept", zap.String("url", candidates[idx].URL), zap.Int("fetched_chars", n))
	}
	return enriched
}

func (r *Retriever) record(ctx context.Context, logger *zap.Logger, out Outcome) {
	if r.recorder == nil {
		return
	}
	out.Duration = time.Since(out.StartedAt)
	if err := r.recorder.Record(ctx, out); err != nil {
		logger.Warn("history_record_failed", zap.Error(err))
	}
}

// SelectionBatch reduces the first size candidates to the view an oracle sees.
func SelectionBatch(candidates []types.CandidateResult, size int) []types.SelectionItem {
	n := min(size, len(candidates))
	items := make([]types.SelectionItem, n)
	for i := 0; i < n; i++ {
		c := candidates[i]
		items[i] = types.SelectionItem{Index: i, Title: c.Title, Snippet: c.Snippet, Source: c.Source}
	}
	return items
}

// ValidIndices keeps indices within [0, n) in their original order, dropping
// repeats after the first occurrence.
func ValidIndices(indices []int, n int) []int {
	seen := make(map[int]struct{}, len(indices))
	valid := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		valid = append(valid, idx)
	}
	return valid
}

// head returns a copy of the first n candidates.
func head(candidates []types.CandidateResult, n int) []types.CandidateResult {
	n = max(0, min(n, len(candidates)))
	out := make([]types.CandidateResult, n)
	copy(out, candidates[:n])
	return out
}
