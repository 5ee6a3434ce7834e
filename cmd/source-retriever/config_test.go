package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/source-retriever/pkg/types"
)

func noEnv(string) string { return "" }

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(viper.New(), noEnv)
	require.NoError(t, err)

	want := types.DefaultRetrievalConfig()
	assert.Equal(t, want.Workflow, cfg.Workflow)
	assert.Equal(t, want.Backends, cfg.Backends)
	assert.Equal(t, want.Oracle, cfg.Oracle)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source-retriever.yaml")
	yaml := `
workflow:
  search_timeout: 5s
  selection_batch_size: 20
backends:
  enable_news: true
  timeout: 3s
oracle:
  model: some/model
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := loadConfig(v, noEnv)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Workflow.SearchTimeout)
	assert.Equal(t, 20, cfg.Workflow.SelectionBatchSize)
	assert.Equal(t, 100, cfg.Workflow.EnrichMinChars, "unset keys keep defaults")
	assert.True(t, cfg.Backends.EnableNews)
	assert.Equal(t, 3*time.Second, cfg.Backends.Timeout)
	assert.Equal(t, "some/model", cfg.Oracle.Model)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("SOURCE_RETRIEVER_WORKFLOW_ENRICH_MIN_CHARS", "250")
	t.Setenv("SOURCE_RETRIEVER_BACKENDS_ENABLE_OPENALEX", "true")

	v := viper.New()
	v.SetEnvPrefix("SOURCE_RETRIEVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := loadConfig(v, noEnv)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Workflow.EnrichMinChars)
	assert.True(t, cfg.Backends.EnableOpenAlex)
}

func TestLoadConfigBaseURLOverride(t *testing.T) {
	getenv := func(k string) string {
		if k == "OPENROUTER_BASE_URL" {
			return "https://openrouter.ai/api/v1"
		}
		return ""
	}
	cfg, err := loadConfig(viper.New(), getenv)
	require.NoError(t, err)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Oracle.BaseURL)
}

func TestLoadConfigInvalid(t *testing.T) {
	v := viper.New()
	v.Set("workflow.selection_batch_size", 0)
	_, err := loadConfig(v, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestScanQueries(t *testing.T) {
	in := "AI education\n\n  # comment\n  ethics of AI  \n人工智能\n"
	got, err := scanQueries(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"AI education", "ethics of AI", "人工智能"}, got)
}

func TestCleanQueries(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, cleanQueries([]string{" a ", "", "  ", "b"}))
	assert.Empty(t, cleanQueries(nil))
}
