package workflow

import (
	"context"
	"errors"
	"fmt"

	"syndicate/internal/logging"
	"syndicate/internal/schedule"
	"syndicate/internal/services"
	"syndicate/internal/transmission"
)

// RunCycle refreshes every due queue and, with auto transmission enabled,
// transmits the queues holding Scheduled items. Queue failures do not stop
// the cycle; they are joined into the returned error.
func (m *Manager) RunCycle(ctx context.Context) error {
	now := m.now()
	loc := m.cfg.Location()
	ctx = services.WithStage(ctx, "cycle")
	logger := logging.WithContext(ctx, m.logger)

	due := func(q transmission.Queue) bool {
		ok, err := schedule.Due(q.LoadFrequency, q.LastRunOn, now, loc)
		if err != nil {
			logging.WarnWithContext(logger, "invalid load frequency", "queue_schedule_invalid",
				logging.Int64(logging.FieldQueueID, q.ID),
				logging.String("load_frequency", q.LoadFrequency),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix the queue's five-field crontab expression"),
			)
			return false
		}
		return ok
	}

	var errs []error
	results, err := m.engine.RefreshAll(ctx, due)
	if err != nil {
		errs = append(errs, fmt.Errorf("refresh: %w", err))
	}
	created := 0
	for _, r := range results {
		created += r.Created()
	}

	sent := 0
	if m.cfg.Delivery.AutoTransmit {
		n, err := m.transmitScheduled(ctx)
		sent = n
		if err != nil {
			errs = append(errs, err)
		}
	}

	cycleErr := errors.Join(errs...)
	m.recordCycle(now, len(results), created, sent, cycleErr)
	if cycleErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.ErrorWithContext(logger, "workflow cycle failed", "workflow_cycle_failed",
			logging.Error(cycleErr),
			logging.Int("queues_refreshed", len(results)),
			logging.Duration("retry_in", m.errorRetry),
			logging.String(logging.FieldErrorHint, "inspect the failing queue's upload locations and database access"),
		)
		m.notifyError(ctx, cycleErr, "scheduled refresh")
		return cycleErr
	}
	if len(results) > 0 || sent > 0 {
		logger.Info("workflow cycle complete",
			logging.String(logging.FieldEventType, "workflow_cycle_complete"),
			logging.Int("queues_refreshed", len(results)),
			logging.Int("items_created", created),
			logging.Int("items_sent", sent),
		)
	}
	return nil
}

func (m *Manager) transmitScheduled(ctx context.Context) (int, error) {
	ids, err := m.store.ScheduledQueueIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduled queues: %w", err)
	}
	var (
		sent int
		errs []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := m.engine.Transmit(ctx, id)
		sent += res.Sent
		if err != nil {
			errs = append(errs, fmt.Errorf("transmit queue %d: %w", id, err))
			continue
		}
		if res.Failed > 0 {
			errs = append(errs, fmt.Errorf("transmit queue %d: %d items failed", id, res.Failed))
		}
	}
	return sent, errors.Join(errs...)
}

func (m *Manager) notifyError(ctx context.Context, err error, label string) {
	if m.notifier == nil {
		return
	}
	if nerr := m.notifier.NotifyError(ctx, err, label); nerr != nil {
		m.logger.Debug("error notification failed", logging.Error(nerr))
	}
}
