package workflow

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"syndicate/internal/logging"
	"syndicate/internal/services"
)

var (
	errAlreadyRunning = errors.New("workflow already running")
	errNotConfigured  = errors.New("workflow engine not configured")
)

// Start launches the schedule lane and, when a feed watcher is set, the
// inbox lane. Both run until Stop or until ctx ends.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.running:
		return errAlreadyRunning
	case m.engine == nil || m.store == nil:
		return errNotConfigured
	}

	runCtx, cancel := context.WithCancel(ctx)
	lanes := new(errgroup.Group)
	lanes.Go(func() error {
		m.scheduleLane(services.WithStage(runCtx, "schedule"))
		return nil
	})
	if m.feeds != nil {
		lanes.Go(func() error {
			m.inboxLane(services.WithStage(runCtx, "inbox"))
			return nil
		})
	}
	m.running, m.cancel, m.lanes = true, cancel, lanes
	return nil
}

// Stop cancels both lanes and blocks until they return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, lanes := m.cancel, m.lanes
	m.running, m.cancel, m.lanes = false, nil, nil
	m.mu.Unlock()

	cancel()
	_ = lanes.Wait()
}

// scheduleLane runs a cycle every poll interval, backing off to the error
// retry interval after a failed cycle.
func (m *Manager) scheduleLane(ctx context.Context) {
	for ctx.Err() == nil {
		wait := m.poll
		if err := m.RunCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			wait = m.errorRetry
		}
		if !pause(ctx, wait) {
			return
		}
	}
}

// inboxLane keeps the feed watcher running, restarting it after failures.
func (m *Manager) inboxLane(ctx context.Context) {
	for {
		err := m.feeds.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.watcherFailed(ctx, err)
		}
		if !pause(ctx, m.errorRetry) {
			return
		}
	}
}

func (m *Manager) watcherFailed(ctx context.Context, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(logging.WithContext(ctx, m.logger), "inbox watcher stopped", "inbox_watch_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check that the inbox directory exists and is readable"),
		logging.String(logging.FieldImpact, "new feeds are not loaded until the watcher restarts"),
	)
	m.notifyError(ctx, err, "inbox watcher")
}

// pause waits for d and reports false when ctx ended first.
func pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(max(d, time.Millisecond))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
