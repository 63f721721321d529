package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"syndicate/internal/api"
	"syndicate/internal/config"
	"syndicate/internal/logging"
	"syndicate/internal/notifications"
	"syndicate/internal/preflight"
	"syndicate/internal/store"
	"syndicate/internal/transmission"
	"syndicate/internal/workflow"
)

// Deps bundles the services the daemon orchestrates.
type Deps struct {
	Store    *store.Store
	Engine   *transmission.Engine
	API      *api.Service
	Workflow *workflow.Manager
	Notifier notifications.Service
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	engine   *transmission.Engine
	api      *api.Service
	workflow *workflow.Manager
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	checks  []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
	APIAddress   string
	Database     store.DatabaseHealth
	Items        map[string]int
	Checks       []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Engine == nil || deps.API == nil || deps.Workflow == nil {
		return nil, errors.New("daemon requires config, store, engine, api service, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "syndicated.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    deps.Store,
		engine:   deps.Engine,
		api:      deps.API,
		workflow: deps.Workflow,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and runs preflight checks. Items stranded in
// Created by an earlier shutdown go back to Scheduled before the workflow
// manager and API server launch.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another syndicated instance is already running")
	}

	checks := preflight.RunAll(ctx, d.cfg)
	d.checks = checks
	if failed := preflight.Failed(checks); len(failed) > 0 {
		_ = d.lock.Unlock()
		names := make([]string, 0, len(failed))
		for _, r := range failed {
			logging.ErrorWithContext(d.logger, "preflight check failed", "preflight_failed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldErrorHint, "fix the reported path or service and restart the daemon"),
			)
			names = append(names, r.Name)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
	}

	if n, err := d.store.ResetCreated(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reset interrupted items: %w", err)
	} else if n > 0 {
		logging.WarnWithContext(d.logger, "rescheduled items from an interrupted transmission", "items_rescheduled",
			logging.Int64("items", n),
			logging.String(logging.FieldImpact, "these items are sent again on the next transmission"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.start(runCtx); err != nil {
		d.workflow.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.done = make(chan struct{})
	d.running.Store(true)
	d.logger.Info("syndicate daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.server.stop()
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may report another instance running"),
		)
	}
	close(d.done)
	d.running.Store(false)
	d.logger.Info("syndicate daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Done is closed when a started daemon stops. It is nil before Start.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// APIAddress returns the bound API listener address, or "" when the API is disabled.
func (d *Daemon) APIAddress() string {
	return d.server.address()
}

// Status returns the current daemon status, including database health and
// item counts per action. Database errors are reported in the status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	checks := append([]preflight.Result(nil), d.checks...)
	d.mu.Unlock()
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		APIAddress:   d.APIAddress(),
		Checks:       checks,
	}
	health, err := d.store.Health(ctx)
	if err != nil && health.Error == "" {
		health.Error = err.Error()
	}
	status.Database = health
	if counts, err := d.store.PendingByAction(ctx); err == nil {
		status.Items = make(map[string]int, len(counts))
		for code, n := range counts {
			status.Items[transmission.Action(code).Name()] = n
		}
	} else {
		d.logger.Warn("item counts unavailable", logging.Error(err))
	}
	return status
}

// DTO converts the status into its API representation.
func (s Status) DTO() api.DaemonStatus {
	checks := make([]api.CheckResult, 0, len(s.Checks))
	for _, c := range s.Checks {
		checks = append(checks, api.CheckResult{Name: c.Name, Passed: c.Passed, Detail: c.Detail})
	}
	wf := s.Workflow
	out := api.DaemonStatus{
		Running:      s.Running,
		PID:          s.PID,
		DatabasePath: s.DatabasePath,
		LockFilePath: s.LockFilePath,
		APIAddress:   s.APIAddress,
		Database: api.DatabaseStatus{
			SchemaVersion: s.Database.SchemaVersion,
			Integrity:     s.Database.IntegrityCheck,
			Error:         s.Database.Error,
		},
		Workflow: api.WorkflowStatus{
			Running:      wf.Running,
			Cycles:       wf.Cycles,
			LastError:    wf.LastError,
			Refreshed:    wf.Refreshed,
			ItemsCreated: wf.ItemsCreated,
			Transmitted:  wf.Transmitted,
			FeedsLoaded:  wf.FeedsLoaded,
			FeedsRejects: wf.FeedsRejected,
		},
		Checks: checks,
		Items:  s.Items,
	}
	if !wf.LastCycle.IsZero() {
		out.Workflow.LastCycle = wf.LastCycle.UTC().Format(time.RFC3339)
	}
	return out
}

// Queues lists transmission queues visible to scope.
func (d *Daemon) Queues(ctx context.Context, scope api.Scope) ([]api.Queue, error) {
	return d.api.Queues(ctx, scope)
}

// Items lists a queue's items.
func (d *Daemon) Items(ctx context.Context, scope api.Scope, queueID int64, actions []transmission.Action, limit int) ([]api.Item, error) {
	return d.api.Items(ctx, scope, queueID, actions, limit)
}

// StatusCounts runs the transmission status report.
func (d *Daemon) StatusCounts(ctx context.Context, scope api.Scope, filter transmission.CountFilter) ([]api.StatusCount, error) {
	filter, err := transmission.NormalizeCountFilter(filter)
	if err != nil {
		return nil, err
	}
	return d.api.StatusCounts(ctx, scope, filter)
}

// EntityDisplay returns the grouped entities of an entry.
func (d *Daemon) EntityDisplay(ctx context.Context, entryID int64) ([]api.EntityGroup, error) {
	return d.api.EntityDisplay(ctx, entryID)
}

// Refresh refreshes one queue immediately.
func (d *Daemon) Refresh(ctx context.Context, queueID int64) (api.RefreshResponse, error) {
	res, err := d.engine.Refresh(ctx, queueID)
	if err != nil {
		return api.RefreshResponse{}, err
	}
	return api.FromRefreshResult(res), nil
}

// Transmit sends a queue's Scheduled items immediately.
func (d *Daemon) Transmit(ctx context.Context, queueID int64) (api.TransmitResponse, error) {
	res, err := d.engine.Transmit(ctx, queueID)
	return api.FromTransmitResult(res), err
}

// SetAction moves items between Pending, Ignored, and Scheduled.
func (d *Daemon) SetAction(ctx context.Context, itemIDs []int64, action transmission.Action) (int64, error) {
	return d.engine.SetAction(ctx, itemIDs, action)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the daemon log file location.
func (d *Daemon) LogPath() string {
	return d.cfg.LogPath()
}

// Location returns the syndication time zone used for report dates.
func (d *Daemon) Location() *time.Location {
	return d.cfg.Location()
}
