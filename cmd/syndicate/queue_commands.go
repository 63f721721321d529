package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"syndicate/internal/api"
	"syndicate/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drive transmission queues",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueItemsCommand(ctx))
	queueCmd.AddCommand(newQueueRefreshCommand(ctx))
	queueCmd.AddCommand(newQueueTransmitCommand(ctx))
	queueCmd.AddCommand(newQueueSetActionCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transmission queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueues(cmd.Context(), func(q queueAPI) error {
				queues, err := q.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, jsonList(queues))
				}
				if len(queues) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No transmission queues")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderQueueTable(queues))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func renderQueueTable(queues []api.Queue) string {
	rows := make([][]string, 0, len(queues))
	for _, q := range queues {
		rows = append(rows, []string{
			strconv.FormatInt(q.ID, 10),
			q.Slug,
			q.Buyer,
			q.Kind,
			dash(q.LoadFrequency),
			yesNo(q.AutoSchedule),
			yesNo(q.Active),
			dash(q.LastRunOn),
		})
	}
	return renderTable(
		[]string{"ID", "Slug", "Buyer", "Kind", "Frequency", "Auto", "Active", "Last Run"},
		rows,
		[]columnAlignment{alignRight},
	)
}

func newQueueItemsCommand(ctx *commandContext) *cobra.Command {
	var actions []string
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "items <queue-id>",
		Short: "List a queue's items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withQueues(cmd.Context(), func(q queueAPI) error {
				items, err := q.Items(cmd.Context(), ipc.ItemsRequest{QueueID: id, Actions: actions, Limit: limit})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, jsonList(items))
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No items")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, it := range items {
					rows = append(rows, []string{
						strconv.FormatInt(it.ID, 10),
						strconv.FormatInt(it.EntryID, 10),
						it.Publication,
						truncate(it.Title, 48),
						it.ActionName,
						dash(it.TransmissionID),
						dash(it.Error),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Entry", "Publication", "Title", "Action", "Transmission", "Error"},
					rows,
					[]columnAlignment{alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&actions, "action", "a", nil, "Filter by action (pending, ignored, scheduled, created, transmitted, failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of items")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newQueueRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <queue-id>",
		Short: "Pull new entries into a queue now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withQueues(cmd.Context(), func(q queueAPI) error {
				res, err := q.Refresh(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queue %d refreshed: %d direct, %d from Qs, %d duplicate, %d filtered\n",
					id, res.Direct, res.FromQs, res.Duplicates, res.Filtered)
				return nil
			})
		},
	}
}

func newQueueTransmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "transmit <queue-id>",
		Short: "Send a queue's scheduled items now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withQueues(cmd.Context(), func(q queueAPI) error {
				res, err := q.Transmit(cmd.Context(), id)
				out := cmd.OutOrStdout()
				if res.Sent > 0 || res.Failed > 0 {
					fmt.Fprintf(out, "Queue %d transmitted: %d sent, %d failed", id, res.Sent, res.Failed)
					if res.BatchID != "" {
						fmt.Fprintf(out, " (batch %s)", res.BatchID)
					}
					fmt.Fprintln(out)
				} else if err == nil {
					fmt.Fprintf(out, "Queue %d has nothing scheduled\n", id)
				}
				return err
			})
		},
	}
}

func newQueueSetActionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-action <action> <item-id>...",
		Short: "Move items to pending, ignored, or scheduled",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args)-1)
			for _, raw := range args[1:] {
				id, err := parseID(raw)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return ctx.withQueues(cmd.Context(), func(q queueAPI) error {
				updated, err := q.SetAction(cmd.Context(), ids, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %d item(s)\n", updated)
				return nil
			})
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
