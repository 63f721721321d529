package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"syndicate/internal/content"
	"syndicate/internal/daemonrun"
	"syndicate/internal/store"
)

type accountRow struct {
	ID     int64  `json:"id"`
	Slug   string `json:"slug"`
	Title  string `json:"title"`
	Kind   string `json:"kind"`
	Email  string `json:"email,omitempty"`
	Active bool   `json:"active"`
}

type feedLoadRow struct {
	ID            int64  `json:"id"`
	File          string `json:"file"`
	Status        string `json:"status"`
	PublicationID int64  `json:"publicationId,omitempty"`
	Loaded        int    `json:"loaded"`
	Rejected      int    `json:"rejected"`
	Message       string `json:"message,omitempty"`
	UpdatedOn     string `json:"updatedOn"`
}

var feedStatusNames = map[store.FeedLoadStatus]string{
	store.FeedAccepted:   "accepted",
	store.FeedProcessing: "processing",
	store.FeedSuccess:    "success",
	store.FeedRejected:   "rejected",
	store.FeedDuplicate:  "duplicate",
}

func newAccountCommand(ctx *commandContext) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect provider and buyer accounts",
	}

	var kind string
	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter content.AccountKind
			if kind != "" {
				parsed, err := content.ParseAccountKind(kind)
				if err != nil {
					return err
				}
				filter = parsed
			}
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				accounts, err := stack.Store.ListAccounts(cmd.Context(), filter)
				if err != nil {
					return err
				}
				rows := make([]accountRow, 0, len(accounts))
				for _, a := range accounts {
					rows = append(rows, accountRow{
						ID: a.ID, Slug: a.Slug, Title: a.Title, Kind: kindName(a.Kind), Email: a.Email, Active: a.Active,
					})
				}
				if asJSON {
					return writeJSON(cmd, rows)
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No accounts")
					return nil
				}
				cells := make([][]string, 0, len(rows))
				for _, r := range rows {
					cells = append(cells, []string{strconv.FormatInt(r.ID, 10), r.Slug, r.Title, r.Kind, dash(r.Email), yesNo(r.Active)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Slug", "Title", "Kind", "Email", "Active"}, cells, []columnAlignment{alignRight}))
				return nil
			})
		},
	}
	list.Flags().StringVar(&kind, "kind", "", "Only accounts of this kind (provider or buyer)")
	list.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	accountCmd.AddCommand(list)
	return accountCmd
}

func kindName(k content.AccountKind) string {
	switch k {
	case content.AccountProvider:
		return "provider"
	case content.AccountBuyer:
		return "buyer"
	}
	return string(k)
}

func newFeedCommand(ctx *commandContext) *cobra.Command {
	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Inspect inbox feed loads",
	}

	var limit int
	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent feed loads, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("limit must be zero or positive")
			}
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				loads, err := stack.Store.ListFeedLoads(cmd.Context(), limit)
				if err != nil {
					return err
				}
				rows := make([]feedLoadRow, 0, len(loads))
				for _, l := range loads {
					rows = append(rows, feedLoadRow{
						ID:            l.ID,
						File:          l.FileName,
						Status:        feedStatusName(l.Status),
						PublicationID: l.PublicationID,
						Loaded:        l.EntriesLoaded,
						Rejected:      l.EntriesRejected,
						Message:       l.Message,
						UpdatedOn:     l.UpdatedOn.UTC().Format(time.RFC3339),
					})
				}
				if asJSON {
					return writeJSON(cmd, rows)
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No feed loads")
					return nil
				}
				cells := make([][]string, 0, len(rows))
				for _, r := range rows {
					cells = append(cells, []string{
						strconv.FormatInt(r.ID, 10),
						r.File,
						r.Status,
						strconv.Itoa(r.Loaded),
						strconv.Itoa(r.Rejected),
						dash(r.Message),
						r.UpdatedOn,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "File", "Status", "Loaded", "Rejected", "Message", "Updated"},
					cells,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum feed loads to show (0 for all)")
	list.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	feedCmd.AddCommand(list)
	return feedCmd
}

func feedStatusName(s store.FeedLoadStatus) string {
	if name, ok := feedStatusNames[s]; ok {
		return name
	}
	return string(s)
}
