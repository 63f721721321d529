package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"syndicate/internal/config"
	"syndicate/internal/preflight"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:         "config",
		Short:       "Create and check the configuration file",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
	}
	configCmd.AddCommand(newConfigValidateCommand(), newConfigInitCommand())
	return configCmd
}

func resolveConfigTarget(raw string) (string, error) {
	if raw = strings.TrimSpace(raw); raw == "" {
		return config.DefaultConfigPath()
	}
	return config.ExpandPath(raw)
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveConfigTarget(targetPath)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			_, statErr := os.Stat(target)
			switch {
			case statErr == nil && !overwrite:
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			case statErr != nil && !errors.Is(statErr, fs.ErrNotExist):
				return fmt.Errorf("check config path: %w", statErr)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set auth.jwt_secret (or export SYNDICATE_JWT_SECRET) before issuing buyer tokens.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and check its directories and credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", resolved)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			colorize := shouldColorize(out)
			lines := []string{
				renderStatusLine("Database", statusInfo, cfg.DatabasePath(), colorize),
				renderStatusLine("Time zone", statusInfo, cfg.Location().String(), colorize),
				renderStatusLine("Merged words", statusInfo, strconv.Itoa(len(cfg.Syndication.MergedWords)), colorize),
			}
			checks := []preflight.Result{
				preflight.CheckDirectoryAccess("Inbox directory", cfg.Paths.InboxDir),
				preflight.CheckDirectoryAccess("Outbox directory", cfg.Paths.OutboxDir),
			}
			for _, c := range checks {
				lines = append(lines, renderStatusLine(c.Name, checkKind(c.Passed), c.Detail, colorize))
			}
			// Missing credentials only disable parts of the API.
			if auth := preflight.CheckAuthFromConfig(cfg); !auth.Passed {
				lines = append(lines, renderStatusLine(auth.Name, statusWarn, auth.Detail, colorize))
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			if failed := preflight.Failed(checks); len(failed) > 0 {
				return fmt.Errorf("configuration invalid: %s: %s", failed[0].Name, failed[0].Detail)
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
