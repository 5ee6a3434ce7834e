package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Extract the readable text of one page",
	Long: `Fetch runs full-content extraction for a single URL: the reader service
first, then a direct fetch with main-content HTML extraction. Prints the text,
or nothing when both tiers fail.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	u, err := url.Parse(args[0])
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("not an absolute URL: %q", args[0])
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	text := a.extractor.FetchFullContent(cmd.Context(), args[0])
	if text == "" {
		return fmt.Errorf("no content extracted from %s", args[0])
	}
	fmt.Println(text)
	return nil
}
