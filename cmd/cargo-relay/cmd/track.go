package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cargo-relay/internal/cli"
	"cargo-relay/internal/tracking"
)

func newTrackCmd(opts *rootOptions) *cobra.Command {
	var (
		remote bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "track <number>",
		Short: "Look up a GC number",
		Long: `Fetch the tracking page for a GC number and print the chat-formatted
result. With --remote the lookup goes through a running relay server.`,
		Example: `  cargo-relay track 1234567890
  cargo-relay track 1234567890 --json
  cargo-relay track 1234567890 --remote -s http://relay.internal:5000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number := strings.TrimSpace(args[0])
			if number == "" {
				return tracking.ErrEmptyQuery
			}

			out, err := opts.outputConfig()
			if err != nil {
				return err
			}
			if asJSON {
				out.Format = "json"
			}
			formatter := cli.NewOutputFormatterTo(out, cmd.OutOrStdout(), cmd.ErrOrStderr())

			var spinner *cli.ProgressSpinner
			if !out.Quiet && out.Format == "text" {
				spinner = cli.NewProgressSpinner(fmt.Sprintf("Tracking %s", number), out.NoColor)
				spinner.Start()
			}
			stop := func() {
				if spinner != nil {
					spinner.Stop()
				}
			}

			if remote {
				resp, err := cli.NewClient(out).Track(cmd.Context(), number)
				stop()
				if err != nil {
					return err
				}
				return formatter.PrintTracking(resp.Result, resp.Message)
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				stop()
				return err
			}
			logger := opts.commandLogger(cmd.ErrOrStderr())
			tracker := tracking.NewTracker(newFetcher(cfg, logger), nil, nil, tracking.WithTrackerLogger(logger))

			result, message, err := tracker.Track(cmd.Context(), number)
			stop()
			if err != nil {
				return err
			}
			return formatter.PrintTracking(result, message)
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Look up through the relay server instead of the provider")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the structured result as JSON")

	return cmd
}
