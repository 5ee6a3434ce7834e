package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/source-retriever/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve search and retrieval over HTTP",
	Long: `Serve exposes the aggregator and the retrieval workflow over HTTP:

  POST /api/search        {"query": "...", "count": 10}
  POST /api/retrieve      {"queries": ["...", "..."]}
  GET  /api/connectivity  provider probe (?q= overrides the probe query)
  GET  /metrics           Prometheus counters
  GET  /health`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &server.Server{
		Aggregator: a.aggregator,
		Retriever:  a.retriever,
		Oracle:     a.oracle,
		Gatherer:   a.registry,
		Logger:     a.logger.Named("server"),
	}
	return srv.Run(cmd.Context(), addr)
}
