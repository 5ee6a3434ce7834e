// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package selection

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/source-retriever/pkg/types"
)

func batch(n int) []types.SelectionItem {
	items := make([]types.SelectionItem, n)
	for i := range items {
		items[i] = types.SelectionItem{Index: i, Title: "title", Snippet: "snippet", Source: types.SourceWeb}
	}
	return items
}

// chatServer answers every chat completion with content and records the
// decoded request.
func chatServer(t *testing.T, status int, content string, got *map[string]any) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if got != nil {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			io.WriteString(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestOracle(ts *httptest.Server, key string) *LLMOracle {
	return NewLLMOracle(types.OracleConfig{
		BaseURL: ts.URL + "/v1/",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, key, ts.Client(), nil)
}

func TestLLMOracleSelect(t *testing.T) {
	var req map[string]any
	ts := chatServer(t, http.StatusOK, `{"indices": [4, 0, 2]}`, &req)

	sel, err := newTestOracle(ts, "test-key").Select(context.Background(), batch(5))
	require.NoError(t, err)
	assert.Equal(t, []int{4, 0, 2}, sel.Indices)

	assert.Equal(t, "test-model", req["model"])
	format, _ := req["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])

	msgs, _ := req["messages"].([]any)
	require.Len(t, msgs, 1)
	prompt, _ := msgs[0].(map[string]any)["content"].(string)
	assert.Contains(t, prompt, "meticulous researcher")
	assert.Contains(t, prompt, `"index":4`)
}

func TestLLMOracleFencedResponse(t *testing.T) {
	ts := chatServer(t, http.StatusOK, "```json\n{\"indices\": [1]}\n```", nil)
	sel, err := newTestOracle(ts, "test-key").Select(context.Background(), batch(3))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sel.Indices)
}

func TestLLMOracleFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "", nil},
		{"prose only", http.StatusOK, "I would pick the first two.", ErrUnusableResponse},
		{"missing field", http.StatusOK, `{"selected": [1]}`, ErrUnusableResponse},
		{"wrong type", http.StatusOK, `{"indices": "1,2"}`, ErrUnusableResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := chatServer(t, tt.status, tt.content, nil)
			_, err := newTestOracle(ts, "test-key").Select(context.Background(), batch(3))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLLMOracleNotConfigured(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer ts.Close()

	_, err := newTestOracle(ts, "").Select(context.Background(), batch(3))
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, called)
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []int
	}{
		{"plain", `{"indices":[0,1]}`, []int{0, 1}},
		{"empty list", `{"indices":[]}`, []int{}},
		{"surrounding prose", "Here you go: {\"indices\": [3]} hope that helps", []int{3}},
		{"floats", `{"indices":[1.0, 2.5, 3]}`, []int{1, 3}},
		{"negative kept for caller", `{"indices":[-1, 2]}`, []int{-1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := parseSelection(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Indices)
		})
	}
}

func TestRenderPrompt(t *testing.T) {
	prompt, err := renderPrompt(nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(prompt), "[]"))

	prompt, err = renderPrompt([]types.SelectionItem{{Index: 7, Title: "Quantum <b>", Source: types.SourceWeChat}})
	require.NoError(t, err)
	assert.Contains(t, prompt, `"index":7`)
	assert.Contains(t, prompt, `"source":"wechat"`)
}

func TestFirstN(t *testing.T) {
	tests := []struct {
		name  string
		n     FirstN
		items int
		want  []int
	}{
		{"fewer items than n", 5, 3, []int{0, 1, 2}},
		{"more items than n", 2, 10, []int{0, 1}},
		{"zero", 0, 4, []int{}},
		{"empty batch", 3, 0, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := tt.n.Select(context.Background(), batch(tt.items))
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Indices)
		})
	}
}
