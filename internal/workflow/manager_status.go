package workflow

import (
	"context"
	"time"

	"syndicate/internal/ingest"
	"syndicate/internal/logging"
	"syndicate/internal/store"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running       bool
	Cycles        int64
	LastCycle     time.Time
	LastError     string
	Refreshed     int64
	ItemsCreated  int64
	Transmitted   int64
	FeedsLoaded   int64
	FeedsRejected int64
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := StatusSummary{
		Running:       m.running,
		Cycles:        m.stats.cycles,
		LastCycle:     m.stats.lastCycle,
		Refreshed:     m.stats.refreshed,
		ItemsCreated:  m.stats.created,
		Transmitted:   m.stats.transmitted,
		FeedsLoaded:   m.stats.feedsLoaded,
		FeedsRejected: m.stats.feedsRejected,
	}
	if m.stats.lastErr != nil {
		summary.LastError = m.stats.lastErr.Error()
	}
	return summary
}

// RecordFeed tallies an ingest result and raises a notification for
// rejected files. It is registered as the ingest processor's observer.
func (m *Manager) RecordFeed(res ingest.Result) {
	m.mu.Lock()
	switch res.Status {
	case store.FeedRejected:
		m.stats.feedsRejected++
	case store.FeedSuccess:
		m.stats.feedsLoaded++
	}
	m.mu.Unlock()

	if res.Status != store.FeedRejected || m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyFeedRejected(context.Background(), res.File, res.Message); err != nil {
		m.logger.Debug("feed rejection notification failed", logging.Error(err))
	}
}

func (m *Manager) recordCycle(at time.Time, queues, created, sent int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.cycles++
	m.stats.lastCycle = at
	m.stats.refreshed += int64(queues)
	m.stats.created += int64(created)
	m.stats.transmitted += int64(sent)
	m.stats.lastErr = err
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.stats.lastErr = err
	m.mu.Unlock()
}
