package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"syndicate/internal/api"
	"syndicate/internal/daemonrun"
	"syndicate/internal/editorial"
)

func newEntryCommand(ctx *commandContext) *cobra.Command {
	entryCmd := &cobra.Command{
		Use:   "entry",
		Short: "Inspect and publish editorial entries",
	}
	entryCmd.AddCommand(newEntryShowCommand(ctx))
	entryCmd.AddCommand(newEntryPublishCommand(ctx))
	entryCmd.AddCommand(newEntryRejectCommand(ctx))
	return entryCmd
}

func newEntryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <entry-id>",
		Short: "Show an entry and its entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				entry, err := stack.API.Entry(cmd.Context(), id)
				if err != nil {
					return err
				}
				groups, err := stack.API.EntityDisplay(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, struct {
						Entry    *api.Entry        `json:"entry"`
						Entities []api.EntityGroup `json:"entities"`
					}{entry, groups})
				}
				printEntry(cmd, entry, groups)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func printEntry(cmd *cobra.Command, entry *api.Entry, groups []api.EntityGroup) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "#%d %s\n", entry.ID, entry.Title)
	if entry.SubTitle != "" {
		fmt.Fprintf(out, "  %s\n", entry.SubTitle)
	}
	fmt.Fprintf(out, "Publication: %s\n", entry.Publication)
	fmt.Fprintf(out, "Slug:        %s\n", entry.Slug)
	status := entry.Status
	if entry.Reason != "" {
		status += " (" + entry.Reason + ")"
	}
	fmt.Fprintf(out, "Status:      %s\n", status)
	fmt.Fprintf(out, "Pub date:    %s\n", dash(entry.PubDate))
	if entry.ApprovedBy != "" {
		fmt.Fprintf(out, "Approved:    %s by %s\n", entry.ApprovedOn, entry.ApprovedBy)
	}
	if len(entry.Tags) > 0 {
		fmt.Fprintf(out, "Tags:        %s\n", strings.Join(entry.Tags, ", "))
	}
	for _, g := range groups {
		fmt.Fprintf(out, "%-12s %s\n", g.Type+":", strings.Join(g.Names, ", "))
	}
}

func newEntryPublishCommand(ctx *commandContext) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "publish <entry-id>",
		Short: "Approve and publish an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(user) == "" {
				user = os.Getenv("USER")
			}
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				res, err := stack.Editorial.Approve(cmd.Context(), id, user)
				if err != nil {
					return err
				}
				printSaveResult(cmd, id, res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "by", "", "Approving editor (defaults to $USER)")
	return cmd
}

func newEntryRejectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <entry-id>",
		Short: "Reject an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				if _, err := stack.Editorial.Reject(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %d rejected\n", id)
				return nil
			})
		},
	}
}

func printSaveResult(cmd *cobra.Command, id int64, res editorial.SaveResult) {
	out := cmd.OutOrStdout()
	if !res.Published {
		fmt.Fprintf(out, "Entry %d saved as %s\n", id, res.Entry.Status)
		return
	}
	fmt.Fprintf(out, "Entry %d published: %d queue item(s) added", id, res.Queued)
	if len(res.Suppressed) > 0 {
		fmt.Fprintf(out, ", %d queue(s) skipped as duplicate", len(res.Suppressed))
	}
	fmt.Fprintln(out)
}
