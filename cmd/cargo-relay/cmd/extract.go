package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cargo-relay/internal/cli"
	"cargo-relay/internal/tracking"
)

func newExtractCmd(opts *rootOptions) *cobra.Command {
	var (
		query  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Run the extractor over a saved tracking page",
		Long: `Parse a provider response saved to disk (for example by the tracker
dump directory) and print what the relay would reply with.`,
		Example: `  cargo-relay extract dumps/1234567890.html --query 1234567890`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query = strings.TrimSpace(query)
			if query == "" {
				return tracking.ErrEmptyQuery
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read page: %w", err)
			}

			out, err := opts.outputConfig()
			if err != nil {
				return err
			}
			if asJSON {
				out.Format = "json"
			}

			logger := opts.commandLogger(cmd.ErrOrStderr())
			extractor := tracking.NewExtractor(tracking.WithExtractorLogger(logger))

			result := extractor.Extract(tracking.NewRawPage(string(data)), query)
			message := tracking.NewPresenter("").Present(result)

			formatter := cli.NewOutputFormatterTo(out, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return formatter.PrintTracking(result, message)
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "GC number the page was fetched for")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the structured result as JSON")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}
