package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"syndicate/internal/ipc"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var req ipc.LogTailRequest
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon log lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				req.Offset = -1
				req.Limit = lines
				for {
					resp, err := client.LogTail(req)
					if err != nil {
						return err
					}
					for _, line := range resp.Lines {
						fmt.Fprintln(cmd.OutOrStdout(), line)
					}
					if !follow {
						return nil
					}
					if err := cmd.Context().Err(); err != nil {
						return err
					}
					req.Offset = resp.Offset
					req.Limit = 0
					req.Follow = true
					req.WaitMillis = 2000
				}
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().Int64Var(&req.QueueID, "queue", 0, "Only lines for this transmission queue")
	cmd.Flags().StringVar(&req.CorrelationID, "correlation-id", "", "Only lines for one API request")
	cmd.Flags().StringVar(&req.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}
