// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package selection provides selection oracles: an LLM-backed oracle for
// OpenAI-compatible chat endpoints and a deterministic offline one.
package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/pdiddy/source-retriever/internal/logging"
	"github.com/pdiddy/source-retriever/pkg/types"
)

var (
	// ErrNotConfigured is returned by Select when no API key is set.
	ErrNotConfigured = errors.New("selection oracle not configured")
	// ErrUnusableResponse marks a completion that does not hold an index list.
	ErrUnusableResponse = errors.New("unusable oracle response")
)

// LLMOracle asks a chat model to choose candidates.
type LLMOracle struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	apiKey  string
	logger  *zap.Logger
}

// NewLLMOracle builds an oracle for cfg. A missing apiKey is not an error
// here; Select reports ErrNotConfigured instead. httpClient may be nil.
func NewLLMOracle(cfg types.OracleConfig, apiKey string, httpClient *http.Client, logger *zap.Logger) *LLMOracle {
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return &LLMOracle{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		apiKey:  apiKey,
		logger:  logging.OrNop(logger),
	}
}

// Select sends the batch to the model and parses the chosen indices. Index
// validation against the candidate list is left to the caller.
func (o *LLMOracle) Select(ctx context.Context, items []types.SelectionItem) (types.Selection, error) {
	if o.apiKey == "" {
		return types.Selection{}, ErrNotConfigured
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	prompt, err := renderPrompt(items)
	if err != nil {
		return types.Selection{}, fmt.Errorf("rendering prompt: %w", err)
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return types.Selection{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return types.Selection{}, fmt.Errorf("%w: no choices", ErrUnusableResponse)
	}

	sel, err := parseSelection(resp.Choices[0].Message.Content)
	if err != nil {
		return types.Selection{}, err
	}
	o.logger.Debug("oracle_selected",
		zap.String("model", o.model),
		zap.Int("batch", len(items)),
		zap.Ints("indices", sel.Indices),
		zap.Duration("elapsed", time.Since(start)))
	return sel, nil
}

// parseSelection reads {"indices": [...]} from a completion, tolerating
// markdown fences and prose around the object. Non-integral numbers are
// dropped since they cannot name a position.
func parseSelection(content string) (types.Selection, error) {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			s = s[i : j+1]
		}
	}

	var raw struct {
		Indices *[]float64 `json:"indices"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return types.Selection{}, fmt.Errorf("%w: %v", ErrUnusableResponse, err)
	}
	if raw.Indices == nil {
		return types.Selection{}, fmt.Errorf("%w: missing indices field", ErrUnusableResponse)
	}

	sel := types.Selection{Indices: make([]int, 0, len(*raw.Indices))}
	for _, f := range *raw.Indices {
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			continue
		}
		sel.Indices = append(sel.Indices, int(f))
	}
	return sel, nil
}

// FirstN selects the first n items of every batch. It never fails and is
// used when no model is available.
type FirstN int

// Select returns the indices of the first n items.
func (n FirstN) Select(_ context.Context, items []types.SelectionItem) (types.Selection, error) {
	k := min(int(n), len(items))
	sel := types.Selection{Indices: make([]int, 0, max(k, 0))}
	for i := 0; i < k; i++ {
		sel.Indices = append(sel.Indices, items[i].Index)
	}
	return sel, nil
}
