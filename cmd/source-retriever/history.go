// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/source-retriever/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded retrieval runs",
	Long: `History lists recent retrieval runs from the SQLite ledger, newest
first. Given a run id, it lists the URLs that run returned.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum runs to list")
	historyCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := viper.GetString("history_path")
	if path == "" {
		return fmt.Errorf("history is disabled: set --history or history_path")
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	jsonOutput, _ := cmd.Flags().GetBool("json")

	if len(args) == 1 {
		rows, err := store.Results(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(rows)
		}
		for _, r := range rows {
			fmt.Fprintf(os.Stdout, "%-4d  %-8s  %s\n", r.Position+1, r.Source, r.URL)
		}
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		if runs == nil {
			runs = []history.Run{}
		}
		return writeJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-20s  %-16s  %-7s  %s\n", "Run", "Started", "Path", "Results", "Queries")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, r := range runs {
		fmt.Fprintf(os.Stdout, "%-36s  %-20s  %-16s  %-7d  %s\n",
			r.RunID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Path, r.Results,
			strings.Join(r.Queries, "; "))
	}
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
