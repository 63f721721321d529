package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var socketFlag, configFlag string
	ctx := newCommandContext(&socketFlag, &configFlag)

	root := &cobra.Command{
		Use:   "syndicate",
		Short: "Operate the syndication daemon and inspect its store",
		Long: "syndicate controls syndicated over its socket. Catalogue and report commands\n" +
			"fall back to opening the store directly when the daemon is not running.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&socketFlag, "socket", "", "Path to the syndicated socket")
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	root.AddCommand(newDaemonCommands(ctx)...)
	root.AddCommand(
		newConfigCommand(),
		newSeedCommand(ctx),
		newAccountCommand(ctx),
		newFeedCommand(ctx),
		newQueueCommand(ctx),
		newReportCommand(ctx),
		newEntryCommand(ctx),
		newTokenCommand(ctx),
		newLogsCommand(ctx),
		newTestNotifyCommand(ctx),
	)
	return root
}
