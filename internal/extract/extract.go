// Package extract turns a web page URL into readable plain text.
//
// Extraction runs in two tiers. The reader service is asked for a plain-text
// rendering first; when it answers with a non-2xx status or cannot be reached,
// the page is fetched directly and its main content is pulled out of the
// HTML. FetchFullContent never returns an error: total failure yields "".
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/source-retriever/internal/httputil"
	"github.com/pdiddy/source-retriever/internal/logging"
	"github.com/pdiddy/source-retriever/internal/metrics"
	"github.com/pdiddy/source-retriever/pkg/types"
)

// Tier labels used in logs and metrics.
const (
	TierReader = "reader"
	TierDirect = "direct"
)

const defaultMaxContentBytes = 4 << 20

var errStatus = errors.New("unexpected HTTP status")

// Extractor fetches full page text. Construct it with New.
type Extractor struct {
	Client     *http.Client
	ReaderBase string
	// ReaderKey is sent as a bearer token when set; the reader also works
	// anonymously at a lower rate.
	ReaderKey       string
	UserAgent       string
	MaxContentBytes int64

	logger  *zap.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter
	cache   *cache.Cache
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// WithClient replaces the HTTP client built from the configured timeout.
func WithClient(c *http.Client) Option {
	return func(e *Extractor) { e.Client = c }
}

// New builds an Extractor from cfg. readerKey may be empty.
func New(cfg types.ExtractConfig, readerKey string, opts ...Option) *Extractor {
	e := &Extractor{
		Client:          &http.Client{Timeout: cfg.Timeout},
		ReaderBase:      cfg.ReaderBase,
		ReaderKey:       readerKey,
		UserAgent:       cfg.UserAgent,
		MaxContentBytes: cfg.MaxContentBytes,
	}
	if cfg.ReaderRPS > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.ReaderRPS), 1)
	}
	if cfg.CacheTTL > 0 {
		e.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	if e.MaxContentBytes <= 0 {
		e.MaxContentBytes = defaultMaxContentBytes
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger)
	return e
}

// FetchFullContent returns the readable text of pageURL, or "" when both
// tiers fail. Non-empty results are cached for the configured TTL.
func (e *Extractor) FetchFullContent(ctx context.Context, pageURL string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extract_panic", zap.String("url", pageURL), zap.Any("panic", r))
			text = ""
		}
	}()

	if e.cache != nil {
		if v, ok := e.cache.Get(pageURL); ok {
			e.metrics.RecordExtraction("cache", "hit")
			return v.(string)
		}
	}

	start := time.Now()
	text, err := e.fetchReader(ctx, pageURL)
	if err == nil {
		e.metrics.RecordExtraction(TierReader, "ok")
		e.logger.Debug("extract_reader_ok",
			zap.String("url", pageURL),
			zap.Int("chars", len([]rune(text))),
			zap.Duration("elapsed", time.Since(start)))
		e.remember(pageURL, text)
		return text
	}
	e.metrics.RecordExtraction(TierReader, "error")
	e.logger.Debug("extract_reader_failed", zap.String("url", pageURL), zap.Error(err))

	text, err = e.fetchDirect(ctx, pageURL)
	if err != nil {
		e.metrics.RecordExtraction(TierDirect, "error")
		e.logger.Warn("extract_failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	e.metrics.RecordExtraction(TierDirect, "ok")
	e.logger.Debug("extract_direct_ok",
		zap.String("url", pageURL),
		zap.Int("chars", len([]rune(text))),
		zap.Duration("elapsed", time.Since(start)))
	e.remember(pageURL, text)
	return text
}

func (e *Extractor) remember(pageURL, text string) {
	if e.cache != nil && text != "" {
		e.cache.SetDefault(pageURL, text)
	}
}

// fetchReader asks the reader service for a plain-text rendering. Any 2xx
// answer is accepted as-is after trimming.
func (e *Extractor) fetchReader(ctx context.Context, pageURL string) (string, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("reader rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.ReaderBase+pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating reader request: %w", err)
	}
	req.Header.Set("X-Return-Format", "text")
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}
	if e.ReaderKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.ReaderKey)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reader request: %w", err)
	}
	defer resp.Body.Close()

	if !httputil.IsSuccess(resp.StatusCode) {
		return "", fmt.Errorf("%w: reader returned HTTP %d", errStatus, resp.StatusCode)
	}
	body, err := httputil.ReadLimited(resp.Body, e.MaxContentBytes)
	if err != nil {
		return "", fmt.Errorf("reading reader response: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

// fetchDirect downloads the page itself and extracts its main text.
func (e *Extractor) fetchDirect(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("direct request: %w", err)
	}
	defer resp.Body.Close()

	if !httputil.IsSuccess(resp.StatusCode) {
		return "", fmt.Errorf("%w: page returned HTTP %d", errStatus, resp.StatusCode)
	}

	body, err := httputil.ReadLimited(resp.Body, e.MaxContentBytes)
	if err != nil {
		return "", fmt.Errorf("reading page: %w", err)
	}
	return MainText(string(body))
}
