package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"syndicate/internal/config"
	"syndicate/internal/daemon"
	"syndicate/internal/ingest"
	"syndicate/internal/ipc"
	"syndicate/internal/logging"
	"syndicate/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// PIDPath returns the pid file written by a running daemon.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "syndicated.pid")
}

// Run starts the syndicate daemon and blocks until a signal arrives or the
// daemon is stopped over IPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("syndicate-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.LogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update syndicate.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "syndicate-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.InboxDir, "processed"), Pattern: "*"},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.InboxDir, "rejected"), Pattern: "*"},
	)
	logConfigSnapshot(logger, cfg)

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	stack, err := NewStack(signalCtx, cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon stack setup failed", "daemon_setup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the database path and the events settings"),
		)
		return err
	}
	defer stack.Close()

	watcher := ingest.NewWatcher(stack.Processor, time.Duration(cfg.Workflow.InboxScanInterval)*time.Second, logger)
	manager := workflow.NewManager(cfg, stack.Engine, stack.Store, logger,
		workflow.WithNotifier(stack.Notifier),
		workflow.WithFeedWatcher(watcher),
	)
	stack.Processor.Observe(manager.RecordFeed)

	d, err := daemon.New(cfg, daemon.Deps{
		Store:    stack.Store,
		Engine:   stack.Engine,
		API:      stack.API,
		Workflow: manager,
		Notifier: stack.Notifier,
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	select {
	case <-signalCtx.Done():
	case <-d.Done():
	}
	logger.Info("syndicate daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("inbox_dir", cfg.Paths.InboxDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_present", strings.TrimSpace(cfg.Paths.APIToken) != ""),
		logging.Bool("events_enabled", cfg.Events.Enabled),
		logging.Bool("auto_transmit", cfg.Delivery.AutoTransmit),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("time_zone", cfg.Syndication.TimeZone),
	)
}
