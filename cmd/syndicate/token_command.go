package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"syndicate/internal/auth"
	"syndicate/internal/daemonrun"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Buyer API tokens",
	}
	tokenCmd.AddCommand(newTokenIssueCommand(ctx))
	return tokenCmd
}

func newTokenIssueCommand(ctx *commandContext) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue <buyer-slug>",
		Short: "Issue an API token scoped to one buyer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				if _, err := stack.API.BuyerScope(cmd.Context(), args[0]); err != nil {
					return err
				}
				lifetime := ttl
				if lifetime <= 0 {
					lifetime = stack.Config.TokenTTL()
				}
				token, expires, err := auth.Issue(stack.Config.Auth.JWTSecret, args[0], lifetime)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.UTC().Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to auth.token_ttl_hours)")
	return cmd
}
