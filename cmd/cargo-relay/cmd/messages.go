package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cargo-relay/internal/cli"
)

func newMessagesCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List recent messages stored by the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("invalid limit %d: must be a positive integer", limit)
			}
			out, err := opts.outputConfig()
			if err != nil {
				return err
			}

			messages, err := cli.NewClient(out).RecentMessages(cmd.Context(), limit)
			if err != nil {
				return err
			}

			formatter := cli.NewOutputFormatterTo(out, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return formatter.PrintMessages(messages)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Number of messages to show")

	return cmd
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <phone> <message>...",
		Short: "Send a WhatsApp message through the relay",
		Long: `Send a manual text message. The server requires the admin API key,
read from CARGO_RELAY_ADMIN_API_KEY.`,
		Example: `  cargo-relay send 919800000001 "Your consignment is out for delivery"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			phone := strings.TrimSpace(args[0])
			text := strings.Join(args[1:], " ")

			out, err := opts.outputConfig()
			if err != nil {
				return err
			}

			sent, err := cli.NewClient(out).SendMessage(cmd.Context(), phone, text)
			if err != nil {
				return err
			}

			formatter := cli.NewOutputFormatterTo(out, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if sent == nil || sent.MessageID == "" {
				formatter.PrintSuccess(fmt.Sprintf("Message sent to %s", phone))
				return nil
			}
			formatter.PrintSuccess(fmt.Sprintf("Message sent to %s (%s)", phone, sent.MessageID))
			return nil
		},
	}
}
