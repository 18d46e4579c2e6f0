package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <thread-id> <text>...",
		Short: "Send a text message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			msg, err := client.SendText(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "sent %s\n", msg.ItemID)
			return nil
		},
	}
}
