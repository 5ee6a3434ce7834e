// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

// OutcomeFile is the on-disk form of a retrieval. A saved run can be read back
// and inspected without querying any backend again.
type OutcomeFile struct {
	Outcome Outcome        `yaml:"outcome"`
	Summary OutcomeSummary `yaml:"summary"`
}

// OutcomeSummary stores result statistics and a timestamp.
type OutcomeSummary struct {
	Total     int       `yaml:"total"`
	Fallback  bool      `yaml:"fallback"`
	Timestamp time.Time `yaml:"timestamp"`
}

// WriteOutcomeFile saves out to path as YAML.
func WriteOutcomeFile(path string, out Outcome) error {
	of := OutcomeFile{
		Outcome: out,
		Summary: OutcomeSummary{
			Total:     len(out.Results),
			Fallback:  out.Path == PathEmptySelection || out.Path == PathOracleFailure,
			Timestamp: time.Now().UTC(),
		},
	}

	data, err := yaml.Marshal(&of)
	if err != nil {
		return fmt.Errorf("marshaling outcome file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadOutcomeFile loads a previously saved outcome file from disk.
func ReadOutcomeFile(path string) (*OutcomeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading outcome file: %w", err)
	}
	var of OutcomeFile
	if err := yaml.Unmarshal(data, &of); err != nil {
		return nil, fmt.Errorf("parsing outcome file: %w", err)
	}
	return &of, nil
}
