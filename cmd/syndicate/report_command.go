package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"syndicate/internal/daemonrun"
	"syndicate/internal/ipc"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Transmission reports",
	}
	reportCmd.AddCommand(newStatusCountsCommand(ctx))
	reportCmd.AddCommand(newStoreReportCommand(ctx))
	return reportCmd
}

func newStoreReportCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Row counts per table in the local database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				stats, err := stack.Store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				tables := slices.Sorted(maps.Keys(stats))
				rows := make([][]string, 0, len(tables))
				for _, name := range tables {
					rows = append(rows, []string{name, strconv.Itoa(stats[name])})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Table", "Rows"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newStatusCountsCommand(ctx *commandContext) *cobra.Command {
	var req ipc.StatusCountsRequest
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status-counts",
		Short: "Count items per publication and action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueues(cmd.Context(), func(q queueAPI) error {
				counts, err := q.StatusCounts(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, jsonList(counts))
				}
				if len(counts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No items in range")
					return nil
				}
				rows := make([][]string, 0, len(counts))
				total := 0
				for _, c := range counts {
					rows = append(rows, []string{c.Publication, c.ActionName, strconv.Itoa(c.Count)})
					total += c.Count
				}
				fmt.Fprintln(cmd.OutOrStdout(), tableView{
					headers: []string{"Publication", "Action", "Count"},
					aligns:  []columnAlignment{alignLeft, alignLeft, alignRight},
					rows:    rows,
					footer:  []string{"Total", "", strconv.Itoa(total)},
				}.render())
				return nil
			})
		},
	}
	cmd.Flags().Int64VarP(&req.QueueID, "queue", "q", 0, "Restrict to one transmission queue")
	cmd.Flags().StringVar(&req.Field, "field", "created", "Date field for the range (created or published)")
	cmd.Flags().StringVar(&req.From, "from", "", "First day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.To, "to", "", "Last day, inclusive (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
