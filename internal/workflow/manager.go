package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"syndicate/internal/config"
	"syndicate/internal/logging"
	"syndicate/internal/notifications"
	"syndicate/internal/transmission"
)

// Engine is the transmission surface the schedule lane drives.
type Engine interface {
	RefreshAll(ctx context.Context, due func(transmission.Queue) bool) ([]transmission.RefreshResult, error)
	Transmit(ctx context.Context, queueID int64) (transmission.TransmitResult, error)
}

// Store lists queues that are ready to transmit.
type Store interface {
	ScheduledQueueIDs(ctx context.Context) ([]int64, error)
}

// FeedWatcher loads inbox files until its context ends.
type FeedWatcher interface {
	Run(ctx context.Context) error
}

// Manager coordinates scheduled refreshes, transmission, and feed loading.
type Manager struct {
	cfg        *config.Config
	engine     Engine
	store      Store
	feeds      FeedWatcher
	logger     *slog.Logger
	notifier   notifications.Service
	now        func() time.Time
	poll       time.Duration
	errorRetry time.Duration

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	lanes   *errgroup.Group
	stats   counters
}

type counters struct {
	cycles        int64
	lastCycle     time.Time
	lastErr       error
	refreshed     int64
	created       int64
	transmitted   int64
	feedsLoaded   int64
	feedsRejected int64
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithNotifier overrides the notifier built from config.
func WithNotifier(n notifications.Service) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithFeedWatcher attaches the inbox watcher lane.
func WithFeedWatcher(w FeedWatcher) Option {
	return func(m *Manager) { m.feeds = w }
}

// WithClock overrides the time source used for due checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIntervals overrides the poll and error retry intervals from config.
func WithIntervals(poll, errorRetry time.Duration) Option {
	return func(m *Manager) {
		m.poll = poll
		m.errorRetry = errorRetry
	}
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, engine Engine, store Store, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:        cfg,
		engine:     engine,
		store:      store,
		logger:     logging.NewComponentLogger(logger, "workflow-manager"),
		notifier:   notifications.NewService(cfg),
		now:        time.Now,
		poll:       cfg.PollInterval(),
		errorRetry: cfg.ErrorRetryInterval(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
