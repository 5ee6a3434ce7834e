// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves backend credentials from a directory of plain-text
// key files, .env files, and the process environment.
//
// A key file's name is the key and its trimmed contents are the value. Supported
// names are listed in keyTable. Only presence is ever checked; a missing key
// disables the component that needs it and is never an error here.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pdiddy/source-retriever/internal/logging"
	"github.com/pdiddy/source-retriever/pkg/types"
)

// keyTable maps secrets-directory file names to environment variable names.
var keyTable = []struct {
	file string
	env  string
	set  func(*types.Credentials, string)
}{
	{"bocha-api-key", "BOCHA_API_KEY", func(c *types.Credentials, v string) { c.BochaAPIKey = v }},
	{"onebound-api-key", "ONEBOUND_API_KEY", func(c *types.Credentials, v string) { c.OneBoundAPIKey = v }},
	{"onebound-api-secret", "ONEBOUND_API_SECRET", func(c *types.Credentials, v string) { c.OneBoundAPISecret = v }},
	{"jina-api-key", "JINA_API_KEY", func(c *types.Credentials, v string) { c.JinaAPIKey = v }},
	{"llm-api-key", "OPENROUTER_API_KEY", func(c *types.Credentials, v string) { c.LLMAPIKey = v }},
	{"openalex-email", "OPENALEX_EMAIL", func(c *types.Credentials, v string) { c.OpenAlexEmail = v }},
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, logger *zap.Logger) (map[string]string, error) {
	logger = logging.OrNop(logger)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("secret_unreadable", zap.String("name", name), zap.Error(err))
			continue
		}

		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// LoadEnv loads the given .env files into the process environment. Variables
// already set are kept. Missing files are skipped.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading env file %s: %w", p, err)
		}
	}
	return nil
}

// Resolve builds Credentials from a secrets map, falling back to getenv for
// keys with no secrets file. getenv is usually os.Getenv.
func Resolve(files map[string]string, getenv func(string) string) types.Credentials {
	var c types.Credentials
	for _, k := range keyTable {
		v := files[k.file]
		if v == "" && getenv != nil {
			v = strings.TrimSpace(getenv(k.env))
		}
		if v != "" {
			k.set(&c, v)
		}
	}
	return c
}

// Present returns the sorted file names of the credentials that are set.
// Values are never included.
func Present(c types.Credentials) []string {
	values := map[string]string{
		"bocha-api-key":       c.BochaAPIKey,
		"onebound-api-key":    c.OneBoundAPIKey,
		"onebound-api-secret": c.OneBoundAPISecret,
		"jina-api-key":        c.JinaAPIKey,
		"llm-api-key":         c.LLMAPIKey,
		"openalex-email":      c.OpenAlexEmail,
	}
	var names []string
	for name, v := range values {
		if v != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
