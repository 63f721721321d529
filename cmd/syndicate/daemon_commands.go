package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"syndicate/internal/api"
	"syndicate/internal/daemonctl"
	"syndicate/internal/ipc"
	"syndicate/internal/preflight"
	"syndicate/internal/transmission"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStartCommand(ctx),
		newStopCommand(ctx),
		newStatusCommand(ctx),
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch syndicated in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			exe, err := daemonctl.ResolveExecutable()
			if err != nil {
				return err
			}
			state, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configPath,
				LogLevel:   logLevel,
			}, 10*time.Second)
			if err != nil {
				return err
			}
			if state == daemonctl.StartStateAlreadyRunning {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon already running")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon started")
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the daemon log level")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop syndicated",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			res, err := daemonctl.StopAndTerminate(cfg, 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon not running")
				return nil
			}
			if err != nil {
				return err
			}
			if res.ForcedKill {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon did not stop in time; terminated pid %d\n", res.PID)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var status *api.DaemonStatus
			if client := ctx.tryClient(); client != nil {
				resp, err := client.Status()
				client.Close()
				if err != nil {
					return err
				}
				status = resp
			}

			checkCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			extra := []preflight.Result{
				preflight.CheckEventsFromConfig(checkCtx, cfg),
				preflight.CheckNotificationsFromConfig(checkCtx, cfg),
				preflight.CheckAuthFromConfig(cfg),
			}
			if status == nil {
				extra = append(preflight.RunAll(checkCtx, cfg), extra...)
			}

			if asJSON {
				return writeJSON(cmd, struct {
					Daemon *ipc.StatusResponse `json:"daemon"`
					Checks []preflight.Result  `json:"checks"`
				}{status, extra})
			}
			renderStatus(cmd, status, extra)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func apiAddress(addr string) string {
	if addr == "" {
		return "disabled"
	}
	return addr
}

func renderDatabaseLine(status *api.DaemonStatus, colorize bool) string {
	db := status.Database
	detail := fmt.Sprintf("%s (schema v%d)", status.DatabasePath, db.SchemaVersion)
	switch {
	case db.Error != "":
		return renderStatusLine("Database", statusError, detail+": "+db.Error, colorize)
	case db.Integrity != "" && db.Integrity != "ok":
		return renderStatusLine("Database", statusWarn, detail+": integrity "+db.Integrity, colorize)
	}
	return renderStatusLine("Database", statusOK, detail, colorize)
}

func itemSummary(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	for _, action := range transmission.AllActions {
		if n := counts[action.Name()]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, action.Name()))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func renderStatus(cmd *cobra.Command, status *api.DaemonStatus, checks []preflight.Result) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	lines := renderSectionHeader("Daemon", colorize)
	if status == nil || !status.Running {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	} else {
		wf := status.Workflow
		lines = append(lines,
			renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize),
			renderStatusLine("API", statusInfo, apiAddress(status.APIAddress), colorize),
			renderDatabaseLine(status, colorize),
			renderStatusLine("Items", statusInfo, itemSummary(status.Items), colorize),
			renderStatusLine("Cycles", statusInfo, fmt.Sprintf("%d (last %s)", wf.Cycles, dash(wf.LastCycle)), colorize),
			renderStatusLine("Queues", statusInfo, fmt.Sprintf("%d refreshed, %d items created, %d transmitted", wf.Refreshed, wf.ItemsCreated, wf.Transmitted), colorize),
			renderStatusLine("Feeds", statusInfo, fmt.Sprintf("%d loaded, %d rejected", wf.FeedsLoaded, wf.FeedsRejects), colorize),
		)
		if wf.LastError != "" {
			lines = append(lines, renderStatusLine("Last error", statusError, wf.LastError, colorize))
		}
		for _, c := range status.Checks {
			lines = append(lines, renderStatusLine(c.Name, checkKind(c.Passed), c.Detail, colorize))
		}
	}
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	for _, c := range checks {
		lines = append(lines, renderStatusLine(c.Name, checkKind(c.Passed), c.Detail, colorize))
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}
