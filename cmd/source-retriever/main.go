// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the source-retriever CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the source-retriever CLI.
var rootCmd = &cobra.Command{
	Use:   "source-retriever",
	Short: "Multi-provider source retrieval for research writing",
	Long: `source-retriever fans a list of search queries out to several providers
(web search, WeChat articles, Google News, OpenAlex), merges and deduplicates
the candidates, asks an LLM to pick the most relevant ones, and fills the
chosen snippets with the full page text.

Each stage is reachable on its own: search runs the aggregator for one query,
fetch runs content extraction for one URL, and retrieve runs the whole
workflow. serve exposes the same operations over HTTP.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./source-retriever.yaml or ~/.config/source-retriever/config.yaml)")
	pf.String("secrets-dir", ".secrets", "directory of per-key credential files")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Bool("log-json", false, "emit JSON logs")
	pf.String("history", defaultHistoryPath, "SQLite run history database (empty disables)")

	viper.BindPFlag("log.level", pf.Lookup("log-level"))
	viper.BindPFlag("log.json", pf.Lookup("log-json"))
	viper.BindPFlag("history_path", pf.Lookup("history"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("source-retriever")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "source-retriever"))
		}
	}

	viper.SetEnvPrefix("SOURCE_RETRIEVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
