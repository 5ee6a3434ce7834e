package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/source-retriever/internal/extract"
	"github.com/pdiddy/source-retriever/internal/history"
	"github.com/pdiddy/source-retriever/internal/logging"
	"github.com/pdiddy/source-retriever/internal/metrics"
	"github.com/pdiddy/source-retriever/internal/search"
	"github.com/pdiddy/source-retriever/internal/secrets"
	"github.com/pdiddy/source-retriever/internal/selection"
	"github.com/pdiddy/source-retriever/internal/workflow"
	"github.com/pdiddy/source-retriever/pkg/types"
)

var defaultHistoryPath = filepath.Join(".source-retriever", "history.db")

// setDefaults registers every config key with viper so that environment
// variables are seen by Unmarshal even when no config file names the key.
// Keys bound to persistent flags (log.*, history_path) get their defaults
// from the flags; a SetDefault here would shadow them.
func setDefaults(v *viper.Viper, d types.RetrievalConfig) {
	v.SetDefault("backends.timeout", d.Backends.Timeout)
	v.SetDefault("backends.user_agent", d.Backends.UserAgent)
	v.SetDefault("backends.count", d.Backends.Count)
	v.SetDefault("backends.max_retries", d.Backends.MaxRetries)
	v.SetDefault("backends.enable_bocha", d.Backends.EnableBocha)
	v.SetDefault("backends.enable_onebound", d.Backends.EnableOneBound)
	v.SetDefault("backends.enable_news", d.Backends.EnableNews)
	v.SetDefault("backends.enable_openalex", d.Backends.EnableOpenAlex)
	v.SetDefault("backends.news_locale", d.Backends.NewsLocale)

	v.SetDefault("extract.timeout", d.Extract.Timeout)
	v.SetDefault("extract.user_agent", d.Extract.UserAgent)
	v.SetDefault("extract.reader_base", d.Extract.ReaderBase)
	v.SetDefault("extract.reader_rps", d.Extract.ReaderRPS)
	v.SetDefault("extract.cache_ttl", d.Extract.CacheTTL)
	v.SetDefault("extract.max_content_bytes", d.Extract.MaxContentBytes)

	v.SetDefault("workflow.search_timeout", d.Workflow.SearchTimeout)
	v.SetDefault("workflow.selection_batch_size", d.Workflow.SelectionBatchSize)
	v.SetDefault("workflow.enrich_min_chars", d.Workflow.EnrichMinChars)
	v.SetDefault("workflow.empty_selection_fallback", d.Workflow.EmptySelectionFallback)
	v.SetDefault("workflow.oracle_failure_fallback", d.Workflow.OracleFailureFallback)
	v.SetDefault("workflow.fetch_concurrency", d.Workflow.FetchConcurrency)

	v.SetDefault("oracle.base_url", d.Oracle.BaseURL)
	v.SetDefault("oracle.model", d.Oracle.Model)
	v.SetDefault("oracle.timeout", d.Oracle.Timeout)
}

// loadConfig decodes v over the defaults, applies the OPENROUTER_BASE_URL
// override, and validates the result.
func loadConfig(v *viper.Viper, getenv func(string) string) (types.RetrievalConfig, error) {
	cfg := types.DefaultRetrievalConfig()
	setDefaults(v, cfg)
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	if base := getenv("OPENROUTER_BASE_URL"); base != "" {
		cfg.Oracle.BaseURL = base
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// app holds the wired components for one command invocation.
type app struct {
	cfg        types.RetrievalConfig
	logger     *zap.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	extractor  *extract.Extractor
	aggregator *search.Aggregator
	retriever  *workflow.Retriever
	oracle     *selection.LLMOracle
	store      *history.Store
}

// newApp reads credentials and configuration and wires every component.
// The history store is opened only when withHistory is set and a path is
// configured. Call close when done.
func newApp(cmd *cobra.Command, withHistory bool) (*app, error) {
	if err := secrets.LoadEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(viper.GetViper(), os.Getenv)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return nil, err
	}

	secretsDir, _ := cmd.Flags().GetString("secrets-dir")
	files, err := secrets.Load(secretsDir, logger)
	if err != nil {
		return nil, err
	}
	cfg.Credentials = secrets.Resolve(files, os.Getenv)
	if present := secrets.Present(cfg.Credentials); len(present) > 0 {
		logger.Debug("credentials_loaded", zap.Strings("keys", present))
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.metrics = metrics.New(a.registry)

	a.extractor = extract.New(cfg.Extract, cfg.Credentials.JinaAPIKey,
		extract.WithLogger(logger.Named("extract")),
		extract.WithMetrics(a.metrics))

	client := &http.Client{Timeout: cfg.Backends.Timeout}
	a.aggregator = &search.Aggregator{
		Backends: search.NewBackends(cfg.Backends, cfg.Credentials, client),
		Fetcher:  a.extractor,
		Count:    cfg.Backends.Count,
		Logger:   logger.Named("search"),
		Metrics:  a.metrics,
	}

	a.oracle = selection.NewLLMOracle(cfg.Oracle, cfg.Credentials.LLMAPIKey, nil, logger.Named("selection"))

	opts := []workflow.Option{
		workflow.WithLogger(logger.Named("workflow")),
		workflow.WithMetrics(a.metrics),
	}
	if withHistory && cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return nil, err
		}
		a.store = store
		opts = append(opts, workflow.WithRecorder(store))
	}

	a.retriever, err = workflow.New(cfg, a.aggregator, opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("history_close_failed", zap.Error(err))
		}
	}
	a.logger.Sync()
}
