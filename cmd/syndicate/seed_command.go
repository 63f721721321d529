package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"syndicate/internal/daemonrun"
	"syndicate/internal/seed"
)

func newSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load accounts, publications, Qs, and queues from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := seed.Load(args[0])
			if err != nil {
				return err
			}
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				sum, err := seed.Apply(cmd.Context(), stack.Store, seed.Services{
					Qs:    stack.Editorial,
					Types: stack.Tagger,
				}, doc)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Seeded %d account(s), %d publication(s), %d entity type(s), %d Q(s), %d queue(s), %d upload location(s)\n",
					sum.Accounts, sum.Publications, sum.EntityTypes, sum.Qs, sum.Queues, sum.Uploads)
				return nil
			})
		},
	}
}
