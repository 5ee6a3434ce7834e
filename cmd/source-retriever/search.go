package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/source-retriever/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search every enabled provider for one query",
	Long: `Search sends one query to every enabled provider concurrently, merges
the results in provider registration order, and removes duplicate URLs.
Provider failures are logged and never fail the command.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("query", "", "search query (or pass it as arguments)")
	searchCmd.Flags().Int("count", 0, "results requested per provider (0 = configured default)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		query = strings.Join(args, " ")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("provide a query with --query or as arguments")
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	if count, _ := cmd.Flags().GetInt("count"); count > 0 {
		a.aggregator.Count = count
	}
	results := a.aggregator.Search(cmd.Context(), query)

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return search.FormatJSON(results, os.Stdout)
	}
	search.FormatTable(results, os.Stdout)
	return nil
}
