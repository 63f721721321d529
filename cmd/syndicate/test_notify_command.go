package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"syndicate/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Ask the daemon to publish a test message to the ntfy topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return fmt.Errorf("test notification: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				kind := statusOK
				if !resp.Sent {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("ntfy", kind, resp.Message, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
