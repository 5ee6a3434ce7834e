// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/source-retriever/internal/search"
	"github.com/pdiddy/source-retriever/internal/selection"
	"github.com/pdiddy/source-retriever/internal/workflow"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [queries...]",
	Short: "Run the full retrieval workflow for a set of queries",
	Long: `Retrieve searches every query (each bounded by the search timeout),
merges the candidates, asks the selection model to choose the relevant ones,
and replaces the chosen snippets with the full page text where extraction
yields enough of it.

Queries come from arguments, or one per line from --queries-file ("-" reads
stdin). With --no-llm the first candidates are selected without a model.`,
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().String("queries-file", "", "file with one query per line (\"-\" for stdin)")
	retrieveCmd.Flags().Bool("no-llm", false, "select the leading candidates instead of calling the model")
	retrieveCmd.Flags().Int("pick", 5, "candidates selected per run with --no-llm")
	retrieveCmd.Flags().String("out", "", "write the outcome to this YAML file")
	retrieveCmd.Flags().Bool("json", false, "output the full outcome as JSON")

	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	queries := cleanQueries(args)
	if path, _ := cmd.Flags().GetString("queries-file"); path != "" {
		fromFile, err := readQueries(path)
		if err != nil {
			return err
		}
		queries = append(queries, fromFile...)
	}
	if len(queries) == 0 {
		return fmt.Errorf("provide one or more queries as arguments or with --queries-file")
	}

	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	var oracle workflow.Oracle = a.oracle
	if noLLM, _ := cmd.Flags().GetBool("no-llm"); noLLM {
		pick, _ := cmd.Flags().GetInt("pick")
		oracle = selection.FirstN(pick)
	}

	out := a.retriever.Retrieve(cmd.Context(), queries, oracle)

	if path, _ := cmd.Flags().GetString("out"); path != "" {
		if err := workflow.WriteOutcomeFile(path, out); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	search.FormatTable(out.Results, os.Stdout)
	fmt.Fprintf(os.Stdout, "run %s: path=%s candidates=%d enriched=%d",
		out.RunID, out.Path, out.Candidates, out.Enriched)
	if len(out.TimedOut) > 0 {
		fmt.Fprintf(os.Stdout, " timed_out=%d", len(out.TimedOut))
	}
	fmt.Fprintln(os.Stdout)
	return nil
}

func readQueries(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening queries file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return scanQueries(r)
}

// scanQueries reads one query per line, skipping blank lines and lines
// starting with '#'.
func scanQueries(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading queries: %w", err)
	}
	return cleanQueries(lines), nil
}

func cleanQueries(in []string) []string {
	out := make([]string, 0, len(in))
	for _, q := range in {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
