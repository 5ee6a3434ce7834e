package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// BackendConfig holds settings for the search backends.
type BackendConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Count is the number of results requested from each backend (default 10).
	Count int `json:"count" yaml:"count" mapstructure:"count" validate:"gte=0,lte=100"`

	// MaxRetries bounds retries on HTTP 429 (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`

	EnableBocha    bool `json:"enable_bocha" yaml:"enable_bocha" mapstructure:"enable_bocha"`
	EnableOneBound bool `json:"enable_onebound" yaml:"enable_onebound" mapstructure:"enable_onebound"`
	EnableNews     bool `json:"enable_news" yaml:"enable_news" mapstructure:"enable_news"`
	EnableOpenAlex bool `json:"enable_openalex" yaml:"enable_openalex" mapstructure:"enable_openalex"`

	// NewsLocale selects the Google News edition, e.g. "en-US".
	NewsLocale string `json:"news_locale" yaml:"news_locale" mapstructure:"news_locale"`
}

// ExtractConfig holds settings for full-content extraction.
type ExtractConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// ReaderBase is prefixed to the target URL to form the reader service request.
	ReaderBase string `json:"reader_base" yaml:"reader_base" mapstructure:"reader_base" validate:"required,url"`

	// ReaderRPS limits reader service requests per second; 0 disables the limit.
	ReaderRPS float64 `json:"reader_rps" yaml:"reader_rps" mapstructure:"reader_rps" validate:"gte=0"`

	// CacheTTL keeps extracted text in memory for this long; 0 disables the cache.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"gte=0"`

	// MaxContentBytes caps how much of a response body is read.
	MaxContentBytes int64 `json:"max_content_bytes" yaml:"max_content_bytes" mapstructure:"max_content_bytes" validate:"gt=0"`
}

// WorkflowConfig holds the retrieval workflow's budgets and fallbacks.
type WorkflowConfig struct {
	// SearchTimeout bounds each query's aggregated search (default 15s).
	SearchTimeout time.Duration `json:"search_timeout" yaml:"search_timeout" mapstructure:"search_timeout" validate:"gt=0"`

	// SelectionBatchSize is how many candidates the oracle sees (default 50).
	SelectionBatchSize int `json:"selection_batch_size" yaml:"selection_batch_size" mapstructure:"selection_batch_size" validate:"gt=0"`

	// EnrichMinChars: extracted text replaces a snippet only when longer than this (default 100).
	EnrichMinChars int `json:"enrich_min_chars" yaml:"enrich_min_chars" mapstructure:"enrich_min_chars" validate:"gte=0"`

	// EmptySelectionFallback is how many leading candidates are returned when
	// the oracle selects nothing usable (default 3).
	EmptySelectionFallback int `json:"empty_selection_fallback" yaml:"empty_selection_fallback" mapstructure:"empty_selection_fallback" validate:"gte=0"`

	// OracleFailureFallback is how many leading candidates are returned when
	// the oracle fails (default 5).
	OracleFailureFallback int `json:"oracle_failure_fallback" yaml:"oracle_failure_fallback" mapstructure:"oracle_failure_fallback" validate:"gte=0"`

	// FetchConcurrency caps in-flight content fetches; 0 means no cap.
	FetchConcurrency int `json:"fetch_concurrency" yaml:"fetch_concurrency" mapstructure:"fetch_concurrency" validate:"gte=0"`
}

// OracleConfig holds settings for the LLM-backed selection oracle.
type OracleConfig struct {
	// BaseURL is an OpenAI-compatible API root.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`

	Model string `json:"model" yaml:"model" mapstructure:"model"`

	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
}

// LogConfig selects logger level and encoding.
type LogConfig struct {
	Level string `json:"level" yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `json:"json" yaml:"json" mapstructure:"json"`
}

// Credentials holds API keys. Absence of any key is a soft failure for the
// component that needs it, never a startup error. Never serialized.
type Credentials struct {
	BochaAPIKey       string `json:"-" yaml:"-" mapstructure:"-"`
	OneBoundAPIKey    string `json:"-" yaml:"-" mapstructure:"-"`
	OneBoundAPISecret string `json:"-" yaml:"-" mapstructure:"-"`
	JinaAPIKey        string `json:"-" yaml:"-" mapstructure:"-"`
	LLMAPIKey         string `json:"-" yaml:"-" mapstructure:"-"`
	OpenAlexEmail     string `json:"-" yaml:"-" mapstructure:"-"`
}

// RetrievalConfig groups all configuration for one Retriever.
type RetrievalConfig struct {
	Backends BackendConfig  `json:"backends" yaml:"backends" mapstructure:"backends"`
	Extract  ExtractConfig  `json:"extract" yaml:"extract" mapstructure:"extract"`
	Workflow WorkflowConfig `json:"workflow" yaml:"workflow" mapstructure:"workflow"`
	Oracle   OracleConfig   `json:"oracle" yaml:"oracle" mapstructure:"oracle"`
	Log      LogConfig      `json:"log" yaml:"log" mapstructure:"log"`

	// HistoryPath is the SQLite run ledger; empty disables history.
	HistoryPath string `json:"history_path" yaml:"history_path" mapstructure:"history_path"`

	Credentials Credentials `json:"-" yaml:"-" mapstructure:"-"`
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultRetrievalConfig returns the configuration used when nothing is overridden.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Backends: BackendConfig{
			HTTPConfig:     HTTPConfig{Timeout: 20 * time.Second, UserAgent: "source-retriever/0.1"},
			Count:          10,
			MaxRetries:     2,
			EnableBocha:    true,
			EnableOneBound: true,
			NewsLocale:     "en-US",
		},
		Extract: ExtractConfig{
			HTTPConfig:      HTTPConfig{Timeout: 30 * time.Second, UserAgent: defaultUserAgent},
			ReaderBase:      "https://r.jina.ai/",
			CacheTTL:        time.Hour,
			MaxContentBytes: 4 << 20,
		},
		Workflow: WorkflowConfig{
			SearchTimeout:          15 * time.Second,
			SelectionBatchSize:     50,
			EnrichMinChars:         100,
			EmptySelectionFallback: 3,
			OracleFailureFallback:  5,
			FetchConcurrency:       8,
		},
		Oracle: OracleConfig{
			BaseURL: "https://api.siliconflow.cn/v1",
			Model:   "deepseek-ai/DeepSeek-V3",
			Timeout: 60 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

var validate = validator.New()

// Validate reports every field that violates its constraints.
func (c RetrievalConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
